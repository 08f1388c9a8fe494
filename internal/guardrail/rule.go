package guardrail

import (
	"context"
	"time"

	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/model"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/policy"
)

// LedgerReader is the read-only ledger view the gates consult. All history
// comes through it, which is what makes the evaluator deterministic under a
// fake ledger in tests.
type LedgerReader interface {
	// LastChange returns when the same (entity, lever) last changed.
	LastChange(ctx context.Context, entityID string, lever model.Lever) (time.Time, bool, error)
	// LastOtherLeverChange returns the most recent change to a different
	// lever on the same entity since the given time.
	LastOtherLeverChange(ctx context.Context, entityID string, lever model.Lever, since time.Time) (model.Lever, time.Time, bool, error)
	// CountActions counts executed actions per (customer, category, day).
	CountActions(ctx context.Context, customerID, category string, day time.Time) (int, error)
}

// Input bundles everything a gate may read. Gates never mutate any of it.
type Input struct {
	Action model.CandidateAction
	Policy *policy.ClientPolicy
	Ledger LedgerReader
	Now    time.Time
}

// Violation is one gate's finding. Zero value means the gate passed.
type Violation struct {
	// Block refuses the action outright.
	Block bool
	// Manual downgrades an otherwise-allowed action to human application.
	Manual bool
	Reason string
}

// Rule is one guardrail gate. Gates are registered explicitly at startup in
// a declared order; there is no discovery by naming convention.
type Rule interface {
	// ID names the gate for the verdict's checked-rules audit list.
	ID() string
	// Check evaluates the gate. A ledger failure is an error, not a
	// violation: the caller must treat the item as failed, never as allowed.
	Check(ctx context.Context, in Input) (Violation, error)
}

// DefaultRules returns all gates in their fixed evaluation order.
// The order is part of the contract: verdicts list violations in this order
// so repeated evaluations of the same state are reproducible.
func DefaultRules() []Rule {
	return []Rule{
		automationModeGate{},
		protectedEntityGate{},
		dataSufficiencyGate{},
		magnitudeGate{},
		cooldownGate{},
		oneLeverGate{},
		rateLimitGate{},
		adCoverageGate{},
		productStateGate{},
	}
}
