package strategy

// Position is one per-market entry from the maker venue's margin/positions
// response. Size is signed: positive long, negative short.
type Position struct {
	Market        string
	Size          float64
	Notional      float64
	UnrealizedPnL float64
}

// AccountState is the margin view a ladder is sized against. It is built
// from a single position snapshot so margin, skew and quantities within one
// generation cycle agree with each other.
type AccountState struct {
	Margin         float64
	ReservedMargin float64
	Positions      []Position
}

// PositionFor returns this market's own position, zero-valued when flat.
func (a AccountState) PositionFor(market string) Position {
	for _, p := range a.Positions {
		if p.Market == market {
			return p
		}
	}
	return Position{Market: market}
}

// Allocation is the per-side buying power and defensive skew for one cycle.
// Skew values are spread fractions added on top of the level spread.
type Allocation struct {
	MarginBids float64
	MarginAsks float64
	SkewBids   float64
	SkewAsks   float64
}

// CandidateOrder is one priced and sized rung of the ladder. Quantity is
// signed: positive buys, negative sells. A candidate is never emitted with
// zero quantity.
type CandidateOrder struct {
	Market     string
	Quantity   float64
	Price      float64
	ReduceOnly bool
}

func (c CandidateOrder) IsBuy() bool {
	return c.Quantity > 0
}

// Direction is +1 for buys and -1 for sells.
func (c CandidateOrder) Direction() float64 {
	if c.Quantity > 0 {
		return 1
	}
	return -1
}

// TopOfBook is the maker venue's current best bid and ask. OK is false when
// no usable book snapshot has been seen, which disables the anti-cross
// adjustment for the cycle.
type TopOfBook struct {
	Bid float64
	Ask float64
	OK  bool
}

// FeasibilityChecker approves a signed quantity before its level is added to
// the ladder. The hedge executor implements this against its own free margin
// so the maker never quotes size it cannot flatten.
type FeasibilityChecker interface {
	CanOpen(quantity, price float64) bool
}
