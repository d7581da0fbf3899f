package account

import (
	"context"
	"time"

	"hubble-mm-bot/internal/health"
	"hubble-mm-bot/internal/retry"

	"go.uber.org/zap"
)

// Source fetches the current margin-and-positions view from the maker venue.
type Source interface {
	MarginAndPositions(ctx context.Context) (Snapshot, error)
}

// RunPoller supervises the position poll. Each successful fetch replaces the
// tracker snapshot and sets the readiness signal; a fetch error ends the
// session, clears the signal, and hands control to the retry policy. Polls
// align to interval boundaries so restarts keep the same cadence.
func RunPoller(ctx context.Context, log *zap.Logger, src Source, tracker *Tracker, interval time.Duration, sig *health.Signal, fault *health.Fault, policy retry.Policy) error {
	return retry.Run(ctx, log, "position-poll", policy, fault, func(ctx context.Context) error {
		err := pollLoop(ctx, src, tracker, interval, sig)
		sig.Clear()
		return err
	})
}

func pollLoop(ctx context.Context, src Source, tracker *Tracker, interval time.Duration, sig *health.Signal) error {
	for {
		snap, err := src.MarginAndPositions(ctx)
		if err != nil {
			return err
		}
		tracker.Update(snap)
		sig.Set()

		timer := time.NewTimer(untilNextBoundary(tracker.now(), interval))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// untilNextBoundary returns the delay to the next multiple of interval on
// the wall clock.
func untilNextBoundary(now time.Time, interval time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}
	elapsed := time.Duration(now.UnixNano()) % interval
	return interval - elapsed
}
