package health

import (
	"context"
	"sync"
)

// Signal is a broadcast readiness flag. Set releases every current and
// future waiter; Clear arms it again so waiters block until the next Set.
type Signal struct {
	mu  sync.Mutex
	set bool
	ch  chan struct{}
}

func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

func (s *Signal) Set() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set {
		return
	}
	s.set = true
	close(s.ch)
}

func (s *Signal) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return
	}
	s.set = false
	s.ch = make(chan struct{})
}

func (s *Signal) IsSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

func (s *Signal) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.set {
			s.mu.Unlock()
			return nil
		}
		ch := s.ch
		s.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Gate blocks until every required signal is set. A signal clearing while a
// later one is awaited is caught by the re-check pass.
type Gate struct {
	signals []*Signal
}

func NewGate(signals ...*Signal) *Gate {
	return &Gate{signals: signals}
}

func (g *Gate) Wait(ctx context.Context) error {
	for {
		for _, sig := range g.signals {
			if err := sig.Wait(ctx); err != nil {
				return err
			}
		}
		if g.allSet() {
			return nil
		}
	}
}

func (g *Gate) allSet() bool {
	for _, sig := range g.signals {
		if !sig.IsSet() {
			return false
		}
	}
	return true
}
