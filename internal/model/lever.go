package model

// Lever is the dimension of an entity being changed. Every Lever constant is
// an independent lever for cooldown and anti-oscillation purposes: the
// cooldown gate covers repeat changes to the same lever, the one-lever gate
// covers changes to any different lever on the same entity within the window.
// Status is independent of budget and bid.
type Lever string

const (
	LeverBudget     Lever = "budget"
	LeverBid        Lever = "bid"
	LeverStatus     Lever = "status"
	LeverKeyword    Lever = "keyword"
	LeverAd         Lever = "ad"
	LeverProductBid Lever = "product_bid"
	LeverExclusion  Lever = "exclusion"
)

// Levers lists all levers in declaration order.
var Levers = []Lever{
	LeverBudget,
	LeverBid,
	LeverStatus,
	LeverKeyword,
	LeverAd,
	LeverProductBid,
	LeverExclusion,
}

// Valid reports whether the lever is a known constant.
func (l Lever) Valid() bool {
	for _, k := range Levers {
		if l == k {
			return true
		}
	}
	return false
}

// Numeric reports whether the lever carries a numeric value that a
// percentage change and magnitude cap apply to.
func (l Lever) Numeric() bool {
	switch l {
	case LeverBudget, LeverBid, LeverProductBid:
		return true
	}
	return false
}

// IndependentOf reports whether changes to l and other confound each other's
// causal attribution. Two distinct levers are always independent; the same
// lever is not.
func (l Lever) IndependentOf(other Lever) bool {
	return l != other
}
