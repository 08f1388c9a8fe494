package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/model"
)

// Status tracks an entry through the rollback lifecycle.
// Transitions move forward only:
//
//	none -> monitoring -> rolled_back | confirmed_good
//
// Both rolled_back and confirmed_good are terminal.
type Status string

const (
	StatusNone          Status = "none"
	StatusMonitoring    Status = "monitoring"
	StatusRolledBack    Status = "rolled_back"
	StatusConfirmedGood Status = "confirmed_good"
)

// CanTransition reports whether moving from s to next is a legal forward step.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusNone:
		return next == StatusMonitoring
	case StatusMonitoring:
		return next == StatusRolledBack || next == StatusConfirmedGood
	}
	return false
}

// Entry is the immutable record of one applied change. Value fields are
// write-once; only the rollback fields transition, and only forward. The
// rollback fields are owned exclusively by the rollback monitor.
type Entry struct {
	ChangeID   int64            `json:"change_id"`
	CustomerID string           `json:"customer_id"`
	CampaignID string           `json:"campaign_id,omitempty"`
	EntityType model.EntityType `json:"entity_type"`
	EntityID   string           `json:"entity_id"`
	Lever      model.Lever      `json:"lever"`

	OldValue   float64   `json:"old_value"`
	NewValue   float64   `json:"new_value"`
	ChangePct  float64   `json:"change_pct"`
	ExecutedAt time.Time `json:"executed_at"`
	ApprovedBy string    `json:"approved_by"`

	RuleID         string          `json:"rule_id"`
	RiskTier       model.RiskTier  `json:"risk_tier"`
	Confidence     float64         `json:"confidence"`
	Evidence       json.RawMessage `json:"evidence,omitempty"`
	Metadata       string          `json:"metadata,omitempty"`
	ActionCategory string          `json:"action_category"`

	RollbackStatus        Status     `json:"rollback_status"`
	RollbackOfID          *int64     `json:"rollback_of_id,omitempty"`
	RollbackReason        string     `json:"rollback_reason,omitempty"`
	MonitoringStartedAt   *time.Time `json:"monitoring_started_at,omitempty"`
	MonitoringCompletedAt *time.Time `json:"monitoring_completed_at,omitempty"`
}

// FromAction builds a ledger entry for an executed candidate action.
// The caller supplies the approval identity and whether the change enters
// monitoring (live execution) or not (dry-run).
func FromAction(a model.CandidateAction, approvedBy string, executedAt time.Time, monitored bool) (Entry, error) {
	evidence, err := model.MarshalEvidence(a.Evidence)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: encode evidence: %w", err)
	}

	e := Entry{
		CustomerID:     a.CustomerID,
		CampaignID:     a.CampaignID,
		EntityType:     a.EntityType,
		EntityID:       a.EntityID,
		Lever:          a.Lever,
		OldValue:       a.CurrentValue,
		NewValue:       a.ProposedValue,
		ChangePct:      a.ChangePct(),
		ExecutedAt:     executedAt.UTC(),
		ApprovedBy:     approvedBy,
		RuleID:         a.RuleID,
		RiskTier:       a.RiskTier,
		Confidence:     a.Confidence,
		Evidence:       evidence,
		ActionCategory: a.ActionCategory(),
		RollbackStatus: StatusNone,
	}
	if monitored {
		started := executedAt.UTC()
		e.RollbackStatus = StatusMonitoring
		e.MonitoringStartedAt = &started
	}
	return e, nil
}

// InverseAction synthesizes the candidate action that undoes this entry:
// old and new values swapped, flagged as a rollback so the guardrail
// evaluator skips the history gates the original already consumed.
func (e Entry) InverseAction(rationale string) model.CandidateAction {
	return model.CandidateAction{
		RuleID:        "rollback." + e.RuleID,
		CustomerID:    e.CustomerID,
		CampaignID:    e.CampaignID,
		EntityType:    e.EntityType,
		EntityID:      e.EntityID,
		Lever:         e.Lever,
		CurrentValue:  e.NewValue,
		ProposedValue: e.OldValue,
		RiskTier:      e.RiskTier,
		Confidence:    1,
		Rationale:     rationale,
		IsRollback:    true,
	}
}
