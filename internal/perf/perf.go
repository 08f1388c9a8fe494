// Package perf reads aggregate performance windows from the embedded
// analytical store and computes before/after deltas for the rollback
// monitor. Windows are recomputed on demand each sweep, never materialized.
package perf

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInsufficientData marks a delta that cannot be computed reliably,
// typically a zero-conversion baseline. The monitor skips the entry this
// sweep and re-checks the next one; it never divides by zero.
var ErrInsufficientData = errors.New("insufficient data")

// Reader is the performance-store collaborator: read-only time-series
// access keyed by entity and date range.
type Reader interface {
	// Window aggregates metrics for an entity over [from, to).
	Window(ctx context.Context, entityID string, from, to time.Time) (Metrics, error)
	// MedianConversionLagDays reports the entity's typical click-to-convert
	// lag, used to stretch the monitoring floor. Zero when unknown.
	MedianConversionLagDays(ctx context.Context, entityID string) (float64, error)
}

// Metrics is one aggregated performance window.
type Metrics struct {
	Impressions     int64   `json:"impressions"`
	Clicks          int64   `json:"clicks"`
	Cost            float64 `json:"cost"`
	Conversions     float64 `json:"conversions"`
	ConversionValue float64 `json:"conversion_value"`
}

// CPA returns cost per acquisition, or 0 when there are no conversions.
func (m Metrics) CPA() float64 {
	if m.Conversions == 0 {
		return 0
	}
	return m.Cost / m.Conversions
}

// ROAS returns conversion value over cost, or 0 when there is no spend.
func (m Metrics) ROAS() float64 {
	if m.Cost == 0 {
		return 0
	}
	return m.ConversionValue / m.Cost
}

// Delta is the percentage change between a baseline and current window.
// Ephemeral: recomputed each sweep, never persisted.
type Delta struct {
	CPAPct         float64 `json:"cpa_pct"`
	ROASPct        float64 `json:"roas_pct"`
	ConversionsPct float64 `json:"conversions_pct"`
	ValuePct       float64 `json:"value_pct"`

	// ROASKnown reports whether the ROAS and value ratios are defined.
	// Lead-gen accounts often track no conversion value at all; their CPA
	// and conversion ratios stay computable, only the revenue side is
	// undefined.
	ROASKnown bool `json:"roas_known"`
}

// Compute derives the delta between two windows. A baseline with zero
// conversions or zero cost leaves every ratio undefined; Compute returns
// ErrInsufficientData rather than NaN or Inf. A zero baseline conversion
// value only marks the ROAS/value ratios unknown, it never blocks the CPA
// side.
func Compute(baseline, current Metrics) (Delta, error) {
	if baseline.Conversions == 0 {
		return Delta{}, fmt.Errorf("%w: baseline has zero conversions", ErrInsufficientData)
	}
	if baseline.Cost == 0 {
		return Delta{}, fmt.Errorf("%w: baseline has zero cost", ErrInsufficientData)
	}

	d := Delta{
		CPAPct:         pctChange(baseline.CPA(), current.CPA()),
		ConversionsPct: pctChange(baseline.Conversions, current.Conversions),
	}
	if baseline.ConversionValue > 0 {
		d.ROASKnown = true
		d.ROASPct = pctChange(baseline.ROAS(), current.ROAS())
		d.ValuePct = pctChange(baseline.ConversionValue, current.ConversionValue)
	}
	return d, nil
}

// String renders the delta for rollback reasons and alert text.
func (d Delta) String() string {
	if !d.ROASKnown {
		return fmt.Sprintf("CPA %+.1f%%, conversions %+.1f%%, value untracked",
			d.CPAPct, d.ConversionsPct)
	}
	return fmt.Sprintf("CPA %+.1f%%, ROAS %+.1f%%, conversions %+.1f%%, value %+.1f%%",
		d.CPAPct, d.ROASPct, d.ConversionsPct, d.ValuePct)
}

func pctChange(base, current float64) float64 {
	return (current - base) / base * 100
}
