package guardrail

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/model"
)

// Evidence thresholds. Below these, a gate cannot trust the signal that
// produced the recommendation.
const (
	minBidClicks7d        = 30
	minKeywordClicks30d   = 30
	minAdImpressions30d   = 1000
	minProductClicks30d   = 30
	minActiveAdsAfterStop = 2
)

// automationModeGate blocks everything in insights mode and downgrades to
// manual in suggest mode.
type automationModeGate struct{}

func (automationModeGate) ID() string { return "automation_mode" }

func (automationModeGate) Check(_ context.Context, in Input) (Violation, error) {
	switch in.Policy.AutomationMode {
	case model.ModeInsights:
		return Violation{Block: true, Reason: "automation mode is insights: all mutations are blocked"}, nil
	case model.ModeSuggest:
		return Violation{Manual: true, Reason: "automation mode is suggest: requires manual application"}, nil
	}
	return Violation{}, nil
}

// protectedEntityGate blocks protected entities and brand-protected campaigns.
type protectedEntityGate struct{}

func (protectedEntityGate) ID() string { return "protected_entity" }

func (protectedEntityGate) Check(_ context.Context, in Input) (Violation, error) {
	a := in.Action
	if in.Policy.IsProtected(a.EntityID) {
		return Violation{Block: true, Reason: fmt.Sprintf("entity %s is protected", a.EntityID)}, nil
	}
	if a.EntityType == model.EntityCampaign && in.Policy.IsBrandProtected(a.EntityID) {
		return Violation{Block: true, Reason: fmt.Sprintf("campaign %s is brand-protected", a.EntityID)}, nil
	}
	return Violation{}, nil
}

// dataSufficiencyGate blocks actions whose lever has an unmet minimum
// evidence threshold. Missing or mistyped evidence blocks: a gate that
// cannot read its signal must fail closed.
type dataSufficiencyGate struct{}

func (dataSufficiencyGate) ID() string { return "data_sufficiency" }

func (dataSufficiencyGate) Check(_ context.Context, in Input) (Violation, error) {
	a := in.Action
	if a.IsRollback {
		// The original change already consumed this gate.
		return Violation{}, nil
	}

	switch {
	case a.Lever == model.LeverBid:
		ev, ok := a.Evidence.(model.BidEvidence)
		if !ok {
			return insufficient("bid change requires bid evidence"), nil
		}
		if ev.Clicks7d < minBidClicks7d {
			return insufficient(fmt.Sprintf("bid change requires >=%d clicks in 7d, have %d", minBidClicks7d, ev.Clicks7d)), nil
		}

	case a.EntityType == model.EntityKeyword && a.IsPause():
		ev, ok := a.Evidence.(model.KeywordEvidence)
		if !ok {
			return insufficient("keyword pause requires keyword evidence"), nil
		}
		if ev.Clicks30d < minKeywordClicks30d {
			return insufficient(fmt.Sprintf("keyword pause requires >=%d clicks in 30d, have %d", minKeywordClicks30d, ev.Clicks30d)), nil
		}

	case a.EntityType == model.EntityAd && a.IsPause():
		ev, ok := a.Evidence.(model.AdEvidence)
		if !ok {
			return insufficient("ad pause requires ad evidence"), nil
		}
		if ev.Impressions30d < minAdImpressions30d {
			return insufficient(fmt.Sprintf("ad pause requires >=%d impressions in 30d, have %d", minAdImpressions30d, ev.Impressions30d)), nil
		}

	case a.Lever == model.LeverProductBid:
		ev, ok := a.Evidence.(model.ProductEvidence)
		if !ok {
			return insufficient("product bid change requires product evidence"), nil
		}
		if ev.Clicks30d < minProductClicks30d {
			return insufficient(fmt.Sprintf("product bid change requires >=%d clicks in 30d, have %d", minProductClicks30d, ev.Clicks30d)), nil
		}
	}
	return Violation{}, nil
}

func insufficient(detail string) Violation {
	return Violation{Block: true, Reason: "insufficient data: " + detail}
}

// magnitudeGate blocks numeric changes exceeding the lever's configured cap.
type magnitudeGate struct{}

func (magnitudeGate) ID() string { return "magnitude" }

func (magnitudeGate) Check(_ context.Context, in Input) (Violation, error) {
	a := in.Action
	if a.IsRollback || !a.Lever.Numeric() {
		return Violation{}, nil
	}
	pct := a.ChangePct()
	limit := in.Policy.MagnitudeCap(a.Lever)
	if math.Abs(pct) > limit {
		return Violation{
			Block:  true,
			Reason: fmt.Sprintf("change of %+.1f%% exceeds %s cap of %.1f%%", pct, a.Lever, limit),
		}, nil
	}
	return Violation{}, nil
}

// cooldownGate blocks repeat changes to the same (entity, lever) inside the
// lever's cooldown window.
type cooldownGate struct{}

func (cooldownGate) ID() string { return "cooldown" }

func (cooldownGate) Check(ctx context.Context, in Input) (Violation, error) {
	a := in.Action
	if a.IsRollback {
		return Violation{}, nil
	}
	last, ok, err := in.Ledger.LastChange(ctx, a.EntityID, a.Lever)
	if err != nil {
		return Violation{}, err
	}
	if !ok {
		return Violation{}, nil
	}
	window := in.Policy.Cooldown(a.Lever)
	if elapsed := in.Now.Sub(last); elapsed < window {
		return Violation{
			Block: true,
			Reason: fmt.Sprintf("cooldown: %s changed %s ago, window is %s",
				a.Lever, elapsed.Round(time.Minute), window),
		}, nil
	}
	return Violation{}, nil
}

// oneLeverGate blocks when a different lever on the same entity changed
// inside the cooldown window. Two levers moving together confound causal
// attribution of the performance delta.
type oneLeverGate struct{}

func (oneLeverGate) ID() string { return "one_lever" }

func (oneLeverGate) Check(ctx context.Context, in Input) (Violation, error) {
	a := in.Action
	if a.IsRollback {
		return Violation{}, nil
	}
	window := in.Policy.Cooldown(a.Lever)
	other, at, ok, err := in.Ledger.LastOtherLeverChange(ctx, a.EntityID, a.Lever, in.Now.Add(-window))
	if err != nil {
		return Violation{}, err
	}
	if !ok {
		return Violation{}, nil
	}
	return Violation{
		Block: true,
		Reason: fmt.Sprintf("one lever at a time: %s on %s changed %s ago, inside the %s window",
			other, a.EntityID, in.Now.Sub(at).Round(time.Minute), window),
	}, nil
}

// rateLimitGate blocks when the daily cap for the action's category is
// already consumed. Re-evaluation inside a batch sees earlier same-batch
// ledger writes, which is what makes the cap correct within one run.
type rateLimitGate struct{}

func (rateLimitGate) ID() string { return "rate_limit" }

func (rateLimitGate) Check(ctx context.Context, in Input) (Violation, error) {
	a := in.Action
	if a.IsRollback {
		return Violation{}, nil
	}
	category := a.ActionCategory()
	limit := in.Policy.DailyCap(category)
	if limit <= 0 {
		return Violation{}, nil
	}
	count, err := in.Ledger.CountActions(ctx, a.CustomerID, category, in.Now)
	if err != nil {
		return Violation{}, err
	}
	if count >= limit {
		return Violation{
			Block:  true,
			Reason: fmt.Sprintf("rate limit: %d/%d %s actions already executed today", count, limit, category),
		}, nil
	}
	return Violation{}, nil
}

// adCoverageGate refuses to pause an ad when that would leave the ad group
// with fewer than two active ads.
type adCoverageGate struct{}

func (adCoverageGate) ID() string { return "ad_coverage" }

func (adCoverageGate) Check(_ context.Context, in Input) (Violation, error) {
	a := in.Action
	if a.EntityType != model.EntityAd || !a.IsPause() {
		return Violation{}, nil
	}
	ev, ok := a.Evidence.(model.AdEvidence)
	if !ok {
		return Violation{Block: true, Reason: "ad pause requires ad evidence to verify group coverage"}, nil
	}
	if ev.ActiveAdsInGroup-1 < minActiveAdsAfterStop {
		return Violation{
			Block: true,
			Reason: fmt.Sprintf("pausing would leave %d active ads in the group, minimum is %d",
				ev.ActiveAdsInGroup-1, minActiveAdsAfterStop),
		}, nil
	}
	return Violation{}, nil
}

// productStateGate refuses to mutate out-of-stock or feed-quality-flagged
// products. Applies to rollbacks too: a bad product stays untouched.
type productStateGate struct{}

func (productStateGate) ID() string { return "product_state" }

func (productStateGate) Check(_ context.Context, in Input) (Violation, error) {
	a := in.Action
	if a.EntityType != model.EntityProduct {
		return Violation{}, nil
	}
	ev, ok := a.Evidence.(model.ProductEvidence)
	if !ok {
		if a.IsRollback {
			// Inverse actions carry no evidence; the stock state was
			// checked when the original applied.
			return Violation{}, nil
		}
		return Violation{Block: true, Reason: "product mutation requires product evidence"}, nil
	}
	if ev.OutOfStock {
		return Violation{Block: true, Reason: fmt.Sprintf("product %s is out of stock", a.EntityID)}, nil
	}
	if ev.FeedQualityFlagged {
		return Violation{Block: true, Reason: fmt.Sprintf("product %s is feed-quality-flagged", a.EntityID)}, nil
	}
	return Violation{}, nil
}
