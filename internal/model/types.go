package model

import (
	"fmt"
	"time"
)

// EntityType identifies what kind of advertising entity an action targets.
type EntityType string

const (
	EntityCampaign EntityType = "campaign"
	EntityAdGroup  EntityType = "ad_group"
	EntityKeyword  EntityType = "keyword"
	EntityAd       EntityType = "ad"
	EntityProduct  EntityType = "product"
)

// RiskTier classifies how dangerous a proposed change is.
type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// RiskRank maps risk tiers to comparable integers.
var RiskRank = map[RiskTier]int{
	RiskLow:    0,
	RiskMedium: 1,
	RiskHigh:   2,
}

// AutomationMode is the client-level switch controlling what the pipeline
// may do on its own.
type AutomationMode string

const (
	// ModeInsights blocks all mutations; the pipeline only reports.
	ModeInsights AutomationMode = "insights"
	// ModeSuggest allows evaluation but requires a human to apply.
	ModeSuggest AutomationMode = "suggest"
	// ModeAutopilot allows automated execution.
	ModeAutopilot AutomationMode = "autopilot"
)

// PrimaryKPI selects which regression trigger the rollback monitor applies.
type PrimaryKPI string

const (
	KPICPA  PrimaryKPI = "cpa"
	KPIROAS PrimaryKPI = "roas"
)

// Decision is the guardrail verdict outcome.
type Decision string

const (
	DecisionAllow Decision = "allow"
	// DecisionManual means the action passed every gate but the client's
	// automation mode requires a human to apply it.
	DecisionManual Decision = "manual"
	DecisionBlock  Decision = "block"
)

// CandidateAction is a proposed mutation produced by an external rule
// evaluation step. It is immutable once created and consumed exactly once
// by the guardrail -> executor path.
type CandidateAction struct {
	RuleID     string     `json:"rule_id" yaml:"rule_id"`
	CustomerID string     `json:"customer_id" yaml:"customer_id"`
	CampaignID string     `json:"campaign_id,omitempty" yaml:"campaign_id,omitempty"`
	EntityType EntityType `json:"entity_type" yaml:"entity_type"`
	EntityID   string     `json:"entity_id" yaml:"entity_id"`

	Lever         Lever   `json:"lever" yaml:"lever"`
	CurrentValue  float64 `json:"current_value" yaml:"current_value"`
	ProposedValue float64 `json:"proposed_value" yaml:"proposed_value"`

	RiskTier   RiskTier `json:"risk_tier" yaml:"risk_tier"`
	Confidence float64  `json:"confidence" yaml:"confidence"`
	Evidence   Evidence `json:"evidence,omitempty" yaml:"-"`
	Rationale  string   `json:"rationale" yaml:"rationale"`

	// IsRollback marks inverse actions synthesized by the rollback monitor.
	// They bypass the history-dependent gates their original already consumed.
	IsRollback bool `json:"is_rollback,omitempty" yaml:"-"`
}

// ChangePct returns the signed percentage change from current to proposed
// value. Zero when the lever is non-numeric (status, keyword, ad, exclusion)
// or the current value is zero.
func (a CandidateAction) ChangePct() float64 {
	if !a.Lever.Numeric() || a.CurrentValue == 0 {
		return 0
	}
	return (a.ProposedValue - a.CurrentValue) / a.CurrentValue * 100
}

// ActionCategory buckets the action for daily rate limiting.
// Categories are counted per (customer, category, day) in the ledger.
func (a CandidateAction) ActionCategory() string {
	switch a.Lever {
	case LeverKeyword:
		return "keyword_add"
	case LeverStatus:
		switch a.EntityType {
		case EntityAd:
			return "ad_pause"
		case EntityKeyword:
			return "keyword_pause"
		default:
			return fmt.Sprintf("%s_status", a.EntityType)
		}
	case LeverExclusion:
		return "exclusion_add"
	default:
		return fmt.Sprintf("%s_change", a.Lever)
	}
}

// Describe returns a short human-readable identity for logs and errors.
func (a CandidateAction) Describe() string {
	if a.Lever.Numeric() {
		return fmt.Sprintf("%s %s %s: %.2f -> %.2f", a.EntityType, a.EntityID, a.Lever, a.CurrentValue, a.ProposedValue)
	}
	return fmt.Sprintf("%s %s %s", a.EntityType, a.EntityID, a.Lever)
}

// Verdict is the guardrail evaluation outcome. Ephemeral: logged and
// reported, never persisted.
type Verdict struct {
	Decision       Decision `json:"decision"`
	BlockedReasons []string `json:"blocked_reasons,omitempty"`
	CheckedRules   []string `json:"checked_rules"`
}

// Allowed reports whether the action may proceed to execution.
// Manual verdicts are not executable.
func (v Verdict) Allowed() bool {
	return v.Decision == DecisionAllow
}

// ItemOutcome records what happened to one action in a batch.
type ItemOutcome struct {
	Action   CandidateAction `json:"action"`
	ChangeID int64           `json:"change_id,omitempty"`
	Reasons  []string        `json:"reasons,omitempty"`
	Err      string          `json:"error,omitempty"`
}

// BatchResult summarizes one executor run. Per-item failures are data here,
// not errors: callers must be able to tell "38 of 40 succeeded" from a full
// abort.
type BatchResult struct {
	RunID      string        `json:"run_id"`
	Mode       string        `json:"mode"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Successful []ItemOutcome `json:"successful"`
	Blocked    []ItemOutcome `json:"blocked"`
	Manual     []ItemOutcome `json:"manual"`
	Failed     []ItemOutcome `json:"failed"`
}

// Counts returns (successful, blocked, manual, failed) totals.
func (r BatchResult) Counts() (int, int, int, int) {
	return len(r.Successful), len(r.Blocked), len(r.Manual), len(r.Failed)
}

// Summary returns a one-line description suitable for direct display.
func (r BatchResult) Summary() string {
	s, b, m, f := r.Counts()
	return fmt.Sprintf("run %s (%s): %d applied, %d blocked, %d manual, %d failed",
		r.RunID, r.Mode, s, b, m, f)
}
