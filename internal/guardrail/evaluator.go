package guardrail

import (
	"context"
	"time"

	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/model"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/policy"
)

// Evaluator runs every registered gate against a candidate action. Pure with
// respect to its inputs: all history comes through the LedgerReader.
type Evaluator struct {
	rules []Rule
}

// New creates an Evaluator with the default gate set.
func New() *Evaluator {
	return &Evaluator{rules: DefaultRules()}
}

// NewWithRules creates an Evaluator with an explicit gate list, in order.
func NewWithRules(rules []Rule) *Evaluator {
	return &Evaluator{rules: rules}
}

// Evaluate runs all gates with no short-circuit and collects every violated
// reason in gate order. Callers need the full list to render actionable
// feedback, not just the first failure.
//
// A single blocking gate blocks the action. With no blocks, a manual gate
// (suggest mode) downgrades the verdict to manual. Otherwise: allow.
func (ev *Evaluator) Evaluate(ctx context.Context, action model.CandidateAction, pol *policy.ClientPolicy, ledger LedgerReader, now time.Time) (model.Verdict, error) {
	in := Input{Action: action, Policy: pol, Ledger: ledger, Now: now.UTC()}

	verdict := model.Verdict{Decision: model.DecisionAllow}
	manual := false

	for _, rule := range ev.rules {
		verdict.CheckedRules = append(verdict.CheckedRules, rule.ID())

		v, err := rule.Check(ctx, in)
		if err != nil {
			return model.Verdict{}, err
		}
		if v.Block {
			verdict.BlockedReasons = append(verdict.BlockedReasons, v.Reason)
		}
		if v.Manual {
			manual = true
		}
	}

	switch {
	case len(verdict.BlockedReasons) > 0:
		verdict.Decision = model.DecisionBlock
	case manual:
		verdict.Decision = model.DecisionManual
	}
	return verdict, nil
}
