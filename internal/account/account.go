package account

import (
	"sync"
	"time"

	"hubble-mm-bot/internal/strategy"
)

// Snapshot is one margin-and-positions response from the maker venue. It is
// replaced wholesale on every poll; readers never see a partially updated
// view.
type Snapshot struct {
	Margin         float64
	ReservedMargin float64
	Positions      []strategy.Position
	Time           time.Time
}

// Tracker holds the latest position snapshot for the ladder generator. The
// polling loop is the only writer.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot

	now func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

func (t *Tracker) Update(snap Snapshot) {
	if snap.Time.IsZero() {
		snap.Time = t.now()
	}
	t.mu.Lock()
	t.snap = snap
	t.mu.Unlock()
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := t.snap
	out.Positions = append([]strategy.Position(nil), t.snap.Positions...)
	return out
}

func (t *Tracker) Age() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.snap.Time.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return t.now().Sub(t.snap.Time)
}

func (t *Tracker) Stale(threshold time.Duration) bool {
	return t.Age() > threshold
}

// AccountState projects the snapshot into the sizing inputs used by ladder
// generation, taken as one consistent view.
func (t *Tracker) AccountState() strategy.AccountState {
	snap := t.Snapshot()
	return strategy.AccountState{
		Margin:         snap.Margin,
		ReservedMargin: snap.ReservedMargin,
		Positions:      snap.Positions,
	}
}
