package monitor

import (
	"fmt"

	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/model"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/perf"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/policy"
)

// triggered applies the policy's primary-KPI regression trigger to a delta.
// Returns whether the change regressed and a reason embedding the metrics.
//
// CPA clients trigger conjunctively: a CPA rise alone is not damning if
// conversion volume held. ROAS clients trigger disjunctively: either a ROAS
// drop or a conversion-value drop alone indicates revenue harm.
func triggered(pol *policy.ClientPolicy, delta perf.Delta) (bool, string) {
	t := pol.Rollback
	switch pol.PrimaryKPI {
	case model.KPIROAS:
		if delta.ROASPct <= -t.ROASDropPct || delta.ValuePct <= -t.ValueDropPct {
			return true, fmt.Sprintf("ROAS regression: %s (thresholds ROAS -%.0f%% or value -%.0f%%)",
				delta, t.ROASDropPct, t.ValueDropPct)
		}
	default: // CPA
		if delta.CPAPct >= t.CPARisePct && delta.ConversionsPct <= -t.ConversionsDropPct {
			return true, fmt.Sprintf("CPA regression: %s (thresholds CPA +%.0f%% and conversions -%.0f%%)",
				delta, t.CPARisePct, t.ConversionsDropPct)
		}
	}
	return false, fmt.Sprintf("no regression: %s", delta)
}
