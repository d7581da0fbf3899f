package feed

import (
	"context"

	"hubble-mm-bot/internal/health"
	"hubble-mm-bot/internal/retry"

	"go.uber.org/zap"
)

// BookSource is one session of the maker venue's order-book stream: it
// blocks delivering snapshots to the callback until the connection drops.
type BookSource interface {
	StreamOrderBook(ctx context.Context, fn func(BookUpdate)) error
}

// MidSource is one session of the hedge venue's reference-price stream.
type MidSource interface {
	StreamMid(ctx context.Context, fn func(MidTick)) error
}

// RunBookFeed supervises the maker book stream. The readiness signal is set
// on the first usable snapshot of each session and cleared on every failure,
// so downstream order generation blocks through reconnects.
func RunBookFeed(ctx context.Context, log *zap.Logger, src BookSource, agg *Aggregator, sig *health.Signal, fault *health.Fault, policy retry.Policy) error {
	return retry.Run(ctx, log, "maker-book-feed", policy, fault, func(ctx context.Context) error {
		err := src.StreamOrderBook(ctx, func(update BookUpdate) {
			if agg.ApplyBook(update) {
				sig.Set()
			}
		})
		sig.Clear()
		return err
	})
}

// RunMidFeed supervises the hedge venue mid-price stream.
func RunMidFeed(ctx context.Context, log *zap.Logger, src MidSource, agg *Aggregator, sig *health.Signal, fault *health.Fault, policy retry.Policy) error {
	return retry.Run(ctx, log, "mid-price-feed", policy, fault, func(ctx context.Context) error {
		err := src.StreamMid(ctx, func(tick MidTick) {
			agg.SetMid(tick.Price, tick.Time)
			sig.Set()
		})
		sig.Clear()
		return err
	})
}
