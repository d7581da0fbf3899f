package retry

import (
	"context"
	"fmt"
	"time"

	"hubble-mm-bot/internal/health"

	"go.uber.org/zap"
)

const (
	DefaultInitialDelay = 2 * time.Second
	DefaultMaxDelay     = 64 * time.Second
	DefaultMaxRetries   = 5
)

// Policy is the shared backoff schedule for supervised loops: sleep, double,
// cap, and escalate once the failure count passes MaxRetries.
type Policy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxRetries   int
}

func (p Policy) withDefaults() Policy {
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultInitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.MaxRetries <= 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	return p
}

// Delay returns the sleep before retry number attempt (attempt starts at 1).
func (p Policy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	delay := p.InitialDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Run supervises fn as a long-running loop. fn performs one session (one
// connection lifetime, one poll pass); returning nil resets the failure
// counter and re-enters immediately, returning an error sleeps per the
// policy. When the failure count exceeds MaxRetries the fault signal is
// tripped and Run returns the last error. The loop will not be restarted by
// Run itself after escalation.
func Run(ctx context.Context, log *zap.Logger, name string, p Policy, fault *health.Fault, fn func(context.Context) error) error {
	p = p.withDefaults()
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			attempts = 0
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempts >= p.MaxRetries {
			log.Error("retry budget exhausted", zap.String("loop", name), zap.Error(err))
			if fault != nil {
				fault.Trip(fmt.Sprintf("%s: retry budget exhausted: %v", name, err))
			}
			return err
		}
		attempts++
		delay := p.Delay(attempts)
		log.Warn("loop failed, backing off",
			zap.String("loop", name),
			zap.Int("attempt", attempts),
			zap.Int("max_retries", p.MaxRetries),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
