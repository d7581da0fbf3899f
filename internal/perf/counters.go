package perf

import (
	"sync"
	"time"
)

// Period is one flush interval's worth of activity. Volume is the filled
// quantity within the period; the recorder maintains the cumulative total.
type Period struct {
	Start       time.Time
	End         time.Time
	Volume      float64
	Attempted   int
	Placed      int
	Failed      int
	Filled      int
	Cancelled   int
	Hedged      int
	HedgeFailed int
	SpreadPnL   float64
}

// Counters accumulates order-flow activity between flushes. All methods are
// safe for concurrent use; the fill handler and the cycle loop both write.
type Counters struct {
	mu     sync.Mutex
	period Period

	now func() time.Time
}

func NewCounters() *Counters {
	c := &Counters{now: time.Now}
	c.period.Start = c.now()
	return c
}

func (c *Counters) AddAttempted(n int) {
	c.mu.Lock()
	c.period.Attempted += n
	c.mu.Unlock()
}

func (c *Counters) AddPlaced(n int) {
	c.mu.Lock()
	c.period.Placed += n
	c.mu.Unlock()
}

func (c *Counters) AddFailed(n int) {
	c.mu.Lock()
	c.period.Failed += n
	c.mu.Unlock()
}

func (c *Counters) AddCancelled(n int) {
	c.mu.Lock()
	c.period.Cancelled += n
	c.mu.Unlock()
}

func (c *Counters) RecordFill(quantity float64) {
	c.mu.Lock()
	c.period.Filled++
	c.period.Volume += quantity
	c.mu.Unlock()
}

func (c *Counters) HedgePlaced() {
	c.mu.Lock()
	c.period.Hedged++
	c.mu.Unlock()
}

func (c *Counters) HedgeFailed() {
	c.mu.Lock()
	c.period.HedgeFailed++
	c.mu.Unlock()
}

func (c *Counters) AddSpreadPnL(v float64) {
	c.mu.Lock()
	c.period.SpreadPnL += v
	c.mu.Unlock()
}

// Drain returns the finished period and starts a fresh one.
func (c *Counters) Drain() Period {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.period
	out.End = c.now()
	c.period = Period{Start: out.End}
	return out
}
