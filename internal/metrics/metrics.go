package metrics

type Counter interface {
	Inc()
}

type Adder interface {
	Add(v float64)
}

type Metrics struct {
	OrdersAttempted Counter
	OrdersPlaced    Counter
	OrdersFailed    Counter
	OrdersCancelled Counter
	OrdersFilled    Counter
	FillsUnmatched  Counter
	HedgesPlaced    Counter
	HedgesFailed    Counter
	VolumeTraded    Adder
	SpreadPnL       Adder
}

type noopCounter struct{}

func (noopCounter) Inc()          {}
func (noopCounter) Add(v float64) {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		OrdersAttempted: n,
		OrdersPlaced:    n,
		OrdersFailed:    n,
		OrdersCancelled: n,
		OrdersFilled:    n,
		FillsUnmatched:  n,
		HedgesPlaced:    n,
		HedgesFailed:    n,
		VolumeTraded:    n,
		SpreadPnL:       n,
	}
}
