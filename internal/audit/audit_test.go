package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestTrail(t *testing.T) (*Trail, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	trail, err := Open(path)
	if err != nil {
		t.Fatalf("open trail: %v", err)
	}
	return trail, path
}

func testEntry(decision string) Entry {
	return Entry{
		RunID:      "run-1",
		CustomerID: "cust-1",
		EntityType: "campaign",
		EntityID:   "camp-1",
		Lever:      "budget",
		Decision:   decision,
		PolicyHash: "sha256:abc",
	}
}

func TestSequentialWritesProduceValidChain(t *testing.T) {
	trail, path := newTestTrail(t)
	for i := 0; i < 5; i++ {
		if err := trail.Record(testEntry("applied")); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	trail.Close()

	n, err := Verify(path)
	if err != nil {
		t.Fatalf("expected valid chain: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 entries, got %d", n)
	}
}

func TestReopenContinuesChain(t *testing.T) {
	trail, path := newTestTrail(t)
	trail.Record(testEntry("applied"))
	trail.Record(testEntry("blocked"))
	trail.Close()

	trail2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	trail2.Record(testEntry("applied"))
	trail2.Close()

	n, err := Verify(path)
	if err != nil {
		t.Fatalf("chain must survive reopen: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 entries, got %d", n)
	}
}

func TestVerifyDetectsTamperedEntry(t *testing.T) {
	trail, path := newTestTrail(t)
	trail.Record(testEntry("applied"))
	trail.Record(testEntry("blocked"))
	trail.Record(testEntry("applied"))
	trail.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	tampered := strings.Replace(string(data), `"blocked"`, `"applied"`, 1)
	if tampered == string(data) {
		t.Fatal("tamper setup failed")
	}
	if err := os.WriteFile(path, []byte(tampered), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Verify(path); err == nil {
		t.Fatal("expected chain break after tamper")
	}
}

func TestVerifyDetectsDeletedLine(t *testing.T) {
	trail, path := newTestTrail(t)
	trail.Record(testEntry("applied"))
	trail.Record(testEntry("blocked"))
	trail.Record(testEntry("applied"))
	trail.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	// Drop the middle line.
	trimmed := strings.Join([]string{lines[0], lines[2]}, "\n") + "\n"
	if err := os.WriteFile(path, []byte(trimmed), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Verify(path); err == nil {
		t.Fatal("expected chain break after deletion")
	}
}

func TestFirstEntryUsesGenesisHash(t *testing.T) {
	trail, path := newTestTrail(t)
	trail.Record(testEntry("applied"))
	trail.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), GenesisHash) {
		t.Error("first entry must chain from the genesis hash")
	}
}
