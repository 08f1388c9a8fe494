// Package audit keeps a tamper-evident trail of every guardrail verdict and
// mutation outcome. Entries are JSONL with SHA-256 hash chaining: each line's
// prev_hash is the hash of the previous line, so any rewrite of history
// breaks the chain.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// GenesisHash is the prev_hash for the first entry in a new trail.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// Entry is one line in the trail. All fields are flat scalar values so the
// json.Marshal field order, and therefore the hash, is deterministic.
type Entry struct {
	Timestamp  string  `json:"ts"`
	RunID      string  `json:"run_id"`
	CustomerID string  `json:"customer_id"`
	EntityType string  `json:"entity_type"`
	EntityID   string  `json:"entity_id"`
	Lever      string  `json:"lever"`
	Decision   string  `json:"decision"`
	Reason     string  `json:"reason,omitempty"`
	ChangeID   int64   `json:"change_id,omitempty"`
	ChangePct  float64 `json:"change_pct,omitempty"`
	PolicyHash string  `json:"policy_hash"`
	PrevHash   string  `json:"prev_hash"`
}

// Trail is an append-only JSONL audit log with hash chaining.
type Trail struct {
	file     *os.File
	prevHash string
	mu       sync.Mutex
}

// Open opens (or creates) a trail file for appending. An existing file's
// last line is read back to recover the chain tail.
func Open(path string) (*Trail, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}

	prevHash := GenesisHash
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("audit: read existing trail: %w", err)
		}
		scanner := bufio.NewScanner(f)
		var lastLine []byte
		for scanner.Scan() {
			lastLine = append(lastLine[:0], scanner.Bytes()...)
		}
		f.Close()
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("audit: scan existing trail: %w", err)
		}
		if len(lastLine) > 0 {
			prevHash = HashLine(lastLine)
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("audit: open file: %w", err)
	}
	return &Trail{file: file, prevHash: prevHash}, nil
}

// Record appends an entry with hash chaining and syncs to disk.
func (t *Trail) Record(entry Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	entry.PrevHash = t.prevHash

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}
	if _, err := t.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: write entry: %w", err)
	}
	if err := t.file.Sync(); err != nil {
		return fmt.Errorf("audit: sync: %w", err)
	}

	t.prevHash = HashLine(line)
	return nil
}

// Close flushes and closes the underlying file.
func (t *Trail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file.Close()
}

// Verify re-reads a trail file and checks the hash chain end to end.
// Returns the number of valid entries, or an error at the first break.
func Verify(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("audit: open trail: %w", err)
	}
	defer f.Close()

	prevHash := GenesisHash
	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return count, fmt.Errorf("audit: line %d: malformed entry: %w", count+1, err)
		}
		if entry.PrevHash != prevHash {
			return count, fmt.Errorf("audit: line %d: chain broken (want prev_hash %s, got %s)", count+1, prevHash, entry.PrevHash)
		}
		prevHash = HashLine(append([]byte(nil), line...))
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("audit: scan trail: %w", err)
	}
	return count, nil
}

// HashLine returns "sha256:<hex>" of the given bytes.
func HashLine(line []byte) string {
	h := sha256.Sum256(line)
	return "sha256:" + hex.EncodeToString(h[:])
}
