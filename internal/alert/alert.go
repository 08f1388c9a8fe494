// Package alert produces structured notifications for rollbacks and sweep
// summaries and fans them out to configured webhook sinks. This subsystem
// only builds and posts the message; delivery targets (chat, pager, plain
// log collectors) are collaborators.
package alert

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/perf"
)

// Event types.
const (
	TypeRollbackTriggered = "rollback_triggered"
	TypeSweepCompleted    = "sweep_completed"
	TypeMutationFailed    = "mutation_failed"
)

// Event is one structured alert message.
type Event struct {
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"ts"`
	CustomerID string    `json:"customer_id"`

	// Rollback fields.
	ChangeID   int64        `json:"change_id,omitempty"`
	EntityType string       `json:"entity_type,omitempty"`
	EntityID   string       `json:"entity_id,omitempty"`
	Lever      string       `json:"lever,omitempty"`
	Reason     string       `json:"reason,omitempty"`
	Baseline   perf.Metrics `json:"baseline,omitempty"`
	Current    perf.Metrics `json:"current,omitempty"`
	Delta      string       `json:"delta,omitempty"`

	// Sweep summary fields.
	SweepID       string `json:"sweep_id,omitempty"`
	Examined      int    `json:"examined,omitempty"`
	RolledBack    int    `json:"rolled_back,omitempty"`
	ConfirmedGood int    `json:"confirmed_good,omitempty"`
	Deferred      int    `json:"deferred,omitempty"`
}

// Summary renders the event as one line of human-readable text.
func (e Event) Summary() string {
	switch e.Type {
	case TypeRollbackTriggered:
		return fmt.Sprintf("rollback: %s %s %s (change %d): %s",
			e.EntityType, e.EntityID, e.Lever, e.ChangeID, e.Reason)
	case TypeSweepCompleted:
		return fmt.Sprintf("sweep %s: %d examined, %d rolled back, %d confirmed good, %d deferred",
			e.SweepID, e.Examined, e.RolledBack, e.ConfirmedGood, e.Deferred)
	case TypeMutationFailed:
		return fmt.Sprintf("mutation failed: %s %s %s: %s", e.EntityType, e.EntityID, e.Lever, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Reason)
}

// SinkConfig is one webhook sink. Events lists the event types the sink
// receives; empty means all.
type SinkConfig struct {
	URL     string            `yaml:"url"`
	Events  []string          `yaml:"events"`
	Format  string            `yaml:"format"` // generic | slack | pagerduty
	Headers map[string]string `yaml:"headers"`
}

// LoadSinks reads webhook sink configurations from a YAML file.
// A missing file means no sinks.
func LoadSinks(path string) ([]SinkConfig, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("alert: read sinks config: %w", err)
	}
	var cfg struct {
		Sinks []SinkConfig `yaml:"sinks"`
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("alert: parse sinks config: %w", err)
	}
	for i, s := range cfg.Sinks {
		if s.URL == "" {
			return nil, fmt.Errorf("alert: sink %d has no url", i)
		}
	}
	return cfg.Sinks, nil
}
