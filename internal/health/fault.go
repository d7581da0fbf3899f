package health

import "sync"

// Fault is the process-wide fatal channel. Any supervised loop that exhausts
// its retry budget, and any failed hedge, trips it; the app watches Done and
// shuts the process down. Tripping is one-way.
type Fault struct {
	mu      sync.Mutex
	tripped bool
	reason  string
	ch      chan struct{}
}

func NewFault() *Fault {
	return &Fault{ch: make(chan struct{})}
}

func (f *Fault) Trip(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tripped {
		return
	}
	f.tripped = true
	f.reason = reason
	close(f.ch)
}

func (f *Fault) Tripped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tripped
}

func (f *Fault) Reason() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reason
}

func (f *Fault) Done() <-chan struct{} {
	return f.ch
}
