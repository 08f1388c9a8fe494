// Package executor applies batches of approved candidate actions against the
// live mutation API, re-validating each item immediately before mutation.
// One item's failure never aborts the batch.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/ads"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/audit"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/guardrail"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/ledger"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/model"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/policy"
)

// Mode selects between simulation and live execution.
type Mode string

const (
	// DryRun performs all validation and ledger writes but never calls the
	// mutation API. Fully usable without live credentials.
	DryRun Mode = "dry_run"
	Live   Mode = "live"
)

// dryRunApprover tags ledger entries written by dry-run executions.
const dryRunApprover = "dry_run"

// Ledger is the executor's view of the store: the gates' read queries plus
// the append path.
type Ledger interface {
	guardrail.LedgerReader
	Append(ctx context.Context, e ledger.Entry) (int64, error)
}

// Executor runs batches through the guardrail -> mutate -> journal pipeline.
type Executor struct {
	evaluator *guardrail.Evaluator
	ledger    Ledger
	mutator   ads.Mutator
	trail     *audit.Trail // optional
	// approvedBy identifies who authorized live executions (system or human).
	approvedBy string
	now        func() time.Time
}

// Config wires an Executor.
type Config struct {
	Evaluator  *guardrail.Evaluator
	Ledger     Ledger
	Mutator    ads.Mutator
	Trail      *audit.Trail
	ApprovedBy string
}

// New creates an Executor. ApprovedBy defaults to "autopilot".
func New(cfg Config) *Executor {
	approvedBy := cfg.ApprovedBy
	if approvedBy == "" {
		approvedBy = "autopilot"
	}
	ev := cfg.Evaluator
	if ev == nil {
		ev = guardrail.New()
	}
	return &Executor{
		evaluator:  ev,
		ledger:     cfg.Ledger,
		mutator:    cfg.Mutator,
		trail:      cfg.Trail,
		approvedBy: approvedBy,
		now:        time.Now,
	}
}

// Execute processes the batch in caller-supplied order. Each item is
// re-validated against the ledger immediately before mutation, so earlier
// items' writes are visible to later items' gates (daily caps stay correct
// within one run). Per-item failures are collected, never propagated; the
// only fatal errors are a policy that does not validate and context
// cancellation between items.
func (x *Executor) Execute(ctx context.Context, batch []model.CandidateAction, pol *policy.ClientPolicy, policyHash string, mode Mode) (model.BatchResult, error) {
	result := model.BatchResult{
		RunID:     uuid.NewString(),
		Mode:      string(mode),
		StartedAt: x.now().UTC(),
	}

	if mode != DryRun && mode != Live {
		return result, fmt.Errorf("%w: unknown execution mode %q", policy.ErrConfiguration, mode)
	}
	if err := pol.Validate(); err != nil {
		return result, err
	}

	for _, action := range batch {
		if err := ctx.Err(); err != nil {
			// Interrupting between items is safe: every write so far is a
			// complete single-row transaction.
			result.FinishedAt = x.now().UTC()
			return result, err
		}
		x.executeOne(ctx, action, pol, policyHash, mode, &result)
	}

	result.FinishedAt = x.now().UTC()
	return result, nil
}

func (x *Executor) executeOne(ctx context.Context, action model.CandidateAction, pol *policy.ClientPolicy, policyHash string, mode Mode, result *model.BatchResult) {
	now := x.now().UTC()

	verdict, err := x.evaluator.Evaluate(ctx, action, pol, x.ledger, now)
	if err != nil {
		result.Failed = append(result.Failed, model.ItemOutcome{
			Action: action,
			Err:    fmt.Sprintf("guardrail evaluation: %v", err),
		})
		x.record(result.RunID, action, "failed", err.Error(), 0, policyHash)
		return
	}

	switch verdict.Decision {
	case model.DecisionBlock:
		// Blocked attempts are reported, not journaled: the ledger records
		// applied state only.
		result.Blocked = append(result.Blocked, model.ItemOutcome{
			Action:  action,
			Reasons: verdict.BlockedReasons,
		})
		x.record(result.RunID, action, "blocked", joinReasons(verdict.BlockedReasons), 0, policyHash)
		return

	case model.DecisionManual:
		result.Manual = append(result.Manual, model.ItemOutcome{
			Action:  action,
			Reasons: []string{"requires manual application (suggest mode)"},
		})
		x.record(result.RunID, action, "manual", "suggest mode", 0, policyHash)
		return
	}

	if mode == DryRun {
		// Simulate: no external call, but the ledger write still happens so
		// cooldowns behave consistently across consecutive dry-runs.
		entry, err := ledger.FromAction(action, dryRunApprover, now, false)
		if err != nil {
			result.Failed = append(result.Failed, model.ItemOutcome{Action: action, Err: err.Error()})
			return
		}
		changeID, err := x.ledger.Append(ctx, entry)
		if err != nil {
			result.Failed = append(result.Failed, model.ItemOutcome{Action: action, Err: err.Error()})
			x.record(result.RunID, action, "failed", err.Error(), 0, policyHash)
			return
		}
		result.Successful = append(result.Successful, model.ItemOutcome{Action: action, ChangeID: changeID})
		x.record(result.RunID, action, "applied_dry_run", "", changeID, policyHash)
		return
	}

	token, err := x.mutator.Apply(ctx, action)
	if err != nil {
		// MutationFailure is per-item data; the batch continues.
		result.Failed = append(result.Failed, model.ItemOutcome{
			Action: action,
			Err:    fmt.Sprintf("mutation %s: %v", action.Describe(), err),
		})
		x.record(result.RunID, action, "failed", err.Error(), 0, policyHash)
		return
	}

	entry, err := ledger.FromAction(action, x.approvedBy, now, true)
	if err != nil {
		// Same situation as a failed journal write below: the mutation is
		// already live. Keep the token in the error and on the audit trail.
		result.Failed = append(result.Failed, model.ItemOutcome{
			Action: action,
			Err:    fmt.Sprintf("mutation applied (token %s) but ledger entry could not be built: %v", token, err),
		})
		x.record(result.RunID, action, "failed", fmt.Sprintf("token %s: %v", token, err), 0, policyHash)
		return
	}
	entry.Metadata = fmt.Sprintf("mutation_token=%s", token)

	changeID, err := x.ledger.Append(ctx, entry)
	if err != nil {
		// The mutation applied but the journal write failed. Surface loudly:
		// this change is live yet invisible to cooldowns and monitoring.
		result.Failed = append(result.Failed, model.ItemOutcome{
			Action: action,
			Err:    fmt.Sprintf("mutation applied (token %s) but ledger write failed: %v", token, err),
		})
		x.record(result.RunID, action, "failed", err.Error(), 0, policyHash)
		return
	}

	result.Successful = append(result.Successful, model.ItemOutcome{Action: action, ChangeID: changeID})
	x.record(result.RunID, action, "applied", "", changeID, policyHash)
}

// record writes one audit-trail line when a trail is configured.
func (x *Executor) record(runID string, action model.CandidateAction, decision, reason string, changeID int64, policyHash string) {
	if x.trail == nil {
		return
	}
	_ = x.trail.Record(audit.Entry{
		RunID:      runID,
		CustomerID: action.CustomerID,
		EntityType: string(action.EntityType),
		EntityID:   action.EntityID,
		Lever:      string(action.Lever),
		Decision:   decision,
		Reason:     reason,
		ChangeID:   changeID,
		ChangePct:  action.ChangePct(),
		PolicyHash: policyHash,
	})
}

func joinReasons(reasons []string) string {
	if len(reasons) == 0 {
		return ""
	}
	out := reasons[0]
	for _, r := range reasons[1:] {
		out += "; " + r
	}
	return out
}
