package model

// Status-lever values. The status lever reuses the numeric value fields:
// a pause proposes StatusPaused, an enable proposes StatusEnabled. Swapping
// old and new values therefore inverts the change, which is what lets the
// rollback monitor synthesize inverse actions uniformly across levers.
const (
	StatusValuePaused  float64 = 0
	StatusValueEnabled float64 = 1
)

// IsPause reports whether the action proposes pausing its entity.
func (a CandidateAction) IsPause() bool {
	return a.Lever == LeverStatus && a.ProposedValue == StatusValuePaused
}
