package mm

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

// Fill is one maker fill notification. Quantity is the filled amount,
// always positive; direction comes from the tracked order.
type Fill struct {
	OrderID  string
	Quantity float64
	Price    float64
	Time     time.Time
}

// FillRecord is the processed fill handed to the optional sink.
type FillRecord struct {
	Time       time.Time
	Market     string
	OrderID    string
	Quantity   float64
	Price      float64
	HedgePrice float64
	SpreadPnL  float64
	Hedged     bool
}

type FillSink interface {
	RecordFill(rec FillRecord)
}

// HandleFill routes one fill notification: counters, hedge, P&L, cooldown.
// A fill with no tracked order is logged and dropped; the hedge direction
// cannot be inferred, and a race between table eviction and the fill message
// is possible. A failed hedge trips the fault but the quoting loop keeps
// running until the supervisor reacts. The fill time anchors the cooldown in
// every path.
func (m *Manager) HandleFill(ctx context.Context, fill Fill) {
	at := fill.Time
	if at.IsZero() {
		at = m.now()
	}
	m.mu.Lock()
	m.lastFill = at
	m.mu.Unlock()

	order, ok := m.tracker.Lookup(fill.OrderID)
	if !ok {
		m.metrics.FillsUnmatched.Inc()
		m.log.Warn("fill for unknown order, dropping",
			zap.String("order_id", fill.OrderID),
			zap.Float64("quantity", fill.Quantity),
			zap.Float64("price", fill.Price),
		)
		return
	}

	m.metrics.OrdersFilled.Inc()
	m.metrics.VolumeTraded.Add(fill.Quantity)
	m.perf.RecordFill(fill.Quantity)
	if fill.Quantity >= math.Abs(order.Quantity) {
		m.tracker.Remove(fill.OrderID)
	}

	record := FillRecord{
		Time:     at,
		Market:   order.Market,
		OrderID:  fill.OrderID,
		Quantity: fill.Quantity,
		Price:    fill.Price,
	}

	if m.hedger != nil {
		// opposite sign of the maker order, to flatten exposure
		signed := -order.Direction() * fill.Quantity
		hedgePrice, err := m.hedger.OnFill(ctx, signed, fill.Price)
		if err != nil {
			m.metrics.HedgesFailed.Inc()
			m.perf.HedgeFailed()
			m.log.Error("hedge failed, position exposed", zap.Error(err))
			m.fault.Trip("hedge failed: " + err.Error())
		} else {
			pnl := fill.Quantity * (hedgePrice - fill.Price)
			if order.Quantity < 0 {
				pnl = fill.Quantity * (fill.Price - hedgePrice)
			}
			m.metrics.HedgesPlaced.Inc()
			m.metrics.SpreadPnL.Add(pnl)
			m.perf.HedgePlaced()
			m.perf.AddSpreadPnL(pnl)
			record.HedgePrice = hedgePrice
			record.SpreadPnL = pnl
			record.Hedged = true
			m.log.Info("fill hedged",
				zap.String("order_id", fill.OrderID),
				zap.Float64("quantity", signed),
				zap.Float64("fill_price", fill.Price),
				zap.Float64("hedge_price", hedgePrice),
				zap.Float64("spread_pnl", pnl),
			)
		}
	}

	if m.fillSink != nil {
		m.fillSink.RecordFill(record)
	}
}
