package mm

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

// monitorBatch cancels a placed batch if the mid price drifts past the
// configured threshold before the batch expires. It wakes on every mid
// update; each batch runs its own monitor against its own placement mid, so
// overlapping batches never share state. Fire-once: after issuing the cancel
// the monitor exits whether or not the venue accepted it.
func (m *Manager) monitorBatch(ctx context.Context, batchMid float64, expiresAt time.Time, orderIDs []string) {
	if batchMid <= 0 {
		return
	}
	for {
		updated := m.agg.MidUpdated()
		remaining := expiresAt.Sub(m.now())
		if remaining <= 0 {
			return
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			return
		case <-updated:
			timer.Stop()
		}

		mid, _ := m.agg.MidPrice()
		if mid <= 0 {
			continue
		}
		drift := math.Abs(mid-batchMid) / batchMid * 100
		if drift < m.cfg.CancellationPct {
			continue
		}
		m.log.Info("price drift, cancelling batch",
			zap.Float64("batch_mid", batchMid),
			zap.Float64("mid", mid),
			zap.Float64("drift_pct", drift),
			zap.Int("orders", len(orderIDs)),
		)
		if err := m.placer.CancelBatch(ctx, orderIDs); err != nil {
			m.log.Warn("batch cancel failed", zap.Error(err))
			return
		}
		for _, id := range orderIDs {
			m.tracker.Remove(id)
			m.metrics.OrdersCancelled.Inc()
		}
		m.perf.AddCancelled(len(orderIDs))
		return
	}
}
