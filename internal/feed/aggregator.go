package feed

import (
	"sync"
	"time"
)

// PriceLevel is one rung of a venue order-book snapshot.
type PriceLevel struct {
	Price float64
	Size  float64
}

// BookUpdate is a full top-N snapshot from the maker venue. No incremental
// diffing: best bid and best ask are re-derived from every message.
type BookUpdate struct {
	Bids []PriceLevel
	Asks []PriceLevel
	Time time.Time
}

// MidTick is one reference-price update from the hedge venue stream.
type MidTick struct {
	Price float64
	Time  time.Time
}

// Aggregator holds the latest mid price and maker top-of-book. The two
// sources tick independently and are stale-checked independently; consumers
// must not assume bid <= mid <= ask.
type Aggregator struct {
	mu      sync.RWMutex
	mid     float64
	midAt   time.Time
	bestBid float64
	bestAsk float64
	bookAt  time.Time
	notify  chan struct{}

	now func() time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		notify: make(chan struct{}),
		now:    time.Now,
	}
}

func (a *Aggregator) SetMid(price float64, at time.Time) {
	if price <= 0 {
		return
	}
	a.mu.Lock()
	a.mid = price
	a.midAt = at
	close(a.notify)
	a.notify = make(chan struct{})
	a.mu.Unlock()
}

func (a *Aggregator) MidPrice() (float64, time.Time) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.mid, a.midAt
}

func (a *Aggregator) MidPriceAge() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.midAt.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return a.now().Sub(a.midAt)
}

func (a *Aggregator) MidStale(threshold time.Duration) bool {
	return a.MidPriceAge() > threshold
}

// MidUpdated returns a channel closed on the next mid-price update. Each
// update replaces the channel, so waiters re-arm by calling again; concurrent
// cancellation monitors each hold their own epoch and never share state.
func (a *Aggregator) MidUpdated() <-chan struct{} {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.notify
}

// ApplyBook stores the snapshot's top of book. It reports false when the
// snapshot was unusable and dropped, so callers gate readiness on a stored
// top rather than on mere message arrival.
func (a *Aggregator) ApplyBook(update BookUpdate) bool {
	bid, ask, ok := bestFromSnapshot(update.Bids, update.Asks)
	if !ok {
		return false
	}
	at := update.Time
	if at.IsZero() {
		at = a.now()
	}
	a.mu.Lock()
	a.bestBid = bid
	a.bestAsk = ask
	a.bookAt = at
	a.mu.Unlock()
	return true
}

// TopOfBook reports the maker venue's best bid and ask from the latest
// snapshot. ok is false until the first usable snapshot arrives.
func (a *Aggregator) TopOfBook() (bid, ask float64, ok bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.bookAt.IsZero() {
		return 0, 0, false
	}
	return a.bestBid, a.bestAsk, true
}

// bestFromSnapshot picks the highest non-zero-size bid and the lowest
// non-zero-size ask. Messages with an empty usable side are dropped whole so
// a one-sided book never clobbers the previous top.
func bestFromSnapshot(bids, asks []PriceLevel) (float64, float64, bool) {
	bestBid := 0.0
	for _, level := range bids {
		if level.Size == 0 {
			continue
		}
		if level.Price > bestBid {
			bestBid = level.Price
		}
	}
	bestAsk := 0.0
	for _, level := range asks {
		if level.Size == 0 {
			continue
		}
		if bestAsk == 0 || level.Price < bestAsk {
			bestAsk = level.Price
		}
	}
	if bestBid == 0 || bestAsk == 0 {
		return 0, 0, false
	}
	return bestBid, bestAsk, true
}
