package alert

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Report is the artifact written after every monitoring sweep, one JSON
// file per sweep in the report directory.
type Report struct {
	SweepID    string    `json:"sweep_id"`
	CustomerID string    `json:"customer_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Examined      int `json:"examined"`
	RolledBack    int `json:"rolled_back"`
	ConfirmedGood int `json:"confirmed_good"`
	Deferred      int `json:"deferred"`

	Rollbacks []Event `json:"rollbacks,omitempty"`
	Notes     []string `json:"notes,omitempty"`
}

// WriteReport writes the report artifact and returns its path.
// An empty dir disables report writing.
func WriteReport(dir string, report Report) (string, error) {
	if dir == "" {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("alert: create report directory: %w", err)
	}

	name := fmt.Sprintf("sweep-%s-%s.json", report.StartedAt.UTC().Format("20060102-150405"), report.SweepID)
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("alert: marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("alert: write report: %w", err)
	}
	return path, nil
}
