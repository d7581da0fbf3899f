package mm

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"hubble-mm-bot/internal/account"
	"hubble-mm-bot/internal/config"
	"hubble-mm-bot/internal/exec"
	"hubble-mm-bot/internal/feed"
	"hubble-mm-bot/internal/health"
	"hubble-mm-bot/internal/metrics"
	"hubble-mm-bot/internal/perf"
	"hubble-mm-bot/internal/retry"
	"hubble-mm-bot/internal/strategy"

	"go.uber.org/zap"
)

// trackerGrace keeps evicted-order lookups working slightly past the order's
// own expiry, covering fills reported just after it lapsed.
const trackerGrace = 2 * time.Second

// OrderPlacer submits and cancels ladder batches on the maker venue.
type OrderPlacer interface {
	PlaceBatch(ctx context.Context, orders []exec.Order) ([]exec.Result, error)
	CancelBatch(ctx context.Context, orderIDs []string) error
}

// Hedger flattens maker fills and pre-approves quotable size.
type Hedger interface {
	strategy.FeasibilityChecker
	OnFill(ctx context.Context, quantity, price float64) (float64, error)
}

// Manager runs the quoting loop: gate on feed health, generate the ladder
// from one consistent margin/price view, place it, track what the venue
// accepted, and react to fills and price drift.
type Manager struct {
	cfg      config.MarketConfig
	log      *zap.Logger
	agg      *feed.Aggregator
	account  *account.Tracker
	placer   OrderPlacer
	hedger   Hedger
	gate     *health.Gate
	fault    *health.Fault
	metrics  *metrics.Metrics
	perf     *perf.Counters
	tracker  *OrderTracker
	policy   retry.Policy
	fillSink FillSink

	mu       sync.Mutex
	lastFill time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Deps carries the manager's collaborators. Hedger and FillSink may be nil.
type Deps struct {
	Config   config.MarketConfig
	Log      *zap.Logger
	Agg      *feed.Aggregator
	Account  *account.Tracker
	Placer   OrderPlacer
	Hedger   Hedger
	Gate     *health.Gate
	Fault    *health.Fault
	Metrics  *metrics.Metrics
	Perf     *perf.Counters
	Policy   retry.Policy
	FillSink FillSink
}

func NewManager(deps Deps) *Manager {
	m := &Manager{
		cfg:      deps.Config,
		log:      deps.Log,
		agg:      deps.Agg,
		account:  deps.Account,
		placer:   deps.Placer,
		hedger:   deps.Hedger,
		gate:     deps.Gate,
		fault:    deps.Fault,
		metrics:  deps.Metrics,
		perf:     deps.Perf,
		tracker:  NewOrderTracker(defaultTrackerCapacity),
		policy:   deps.Policy,
		fillSink: deps.FillSink,
		now:      time.Now,
		sleep:    sleepCtx,
	}
	if m.metrics == nil {
		m.metrics = metrics.NewNoop()
	}
	return m
}

// Run drives generation cycles until the context ends or the cycle retry
// budget is exhausted, which trips the fault.
func (m *Manager) Run(ctx context.Context) error {
	return retry.Run(ctx, m.log, "order-loop", m.policy, m.fault, m.cycle)
}

// cycle is one full pass: wait for readiness, honor the post-fill cooldown
// and staleness checks, generate and place the ladder, then sleep to the
// next cadence boundary. Skipped cycles still sleep so quoting stays
// boundary-aligned.
func (m *Manager) cycle(ctx context.Context) error {
	if err := m.gate.Wait(ctx); err != nil {
		return err
	}

	now := m.now()
	if cooldown := m.cfg.FillCooldown; cooldown > 0 {
		if last := m.lastFillTime(); !last.IsZero() && now.Sub(last) < cooldown {
			m.log.Debug("in post-fill cooldown, skipping cycle")
			return m.sleepToBoundary(ctx)
		}
	}
	if m.agg.MidStale(m.cfg.MidPriceExpiry) {
		m.log.Warn("mid price stale, skipping cycle",
			zap.Duration("age", m.agg.MidPriceAge()),
			zap.Duration("threshold", m.cfg.MidPriceExpiry),
		)
		return m.sleepToBoundary(ctx)
	}
	if m.account.Stale(m.cfg.PositionDataExpiry) {
		m.log.Warn("position data stale, skipping cycle",
			zap.Duration("age", m.account.Age()),
			zap.Duration("threshold", m.cfg.PositionDataExpiry),
		)
		return m.sleepToBoundary(ctx)
	}

	// margin, skew and mid are read once and used as one consistent view
	mid, _ := m.agg.MidPrice()
	acct := m.account.AccountState()
	alloc := strategy.ComputeAllocation(m.cfg, acct)
	book := topOfBook(m.agg)

	var check strategy.FeasibilityChecker
	if m.hedger != nil {
		check = m.hedger
	}
	candidates := strategy.GenerateLadder(m.cfg, mid, alloc, book, check)
	if len(candidates) == 0 {
		return m.sleepToBoundary(ctx)
	}

	expiresAt := now.Add(m.cfg.OrderLifetime)
	batch := make([]exec.Order, len(candidates))
	for i, c := range candidates {
		batch[i] = exec.Order{
			Market:        c.Market,
			Quantity:      c.Quantity,
			Price:         c.Price,
			ReduceOnly:    c.ReduceOnly,
			ClientOrderID: newClientOrderID(),
			ExpiresAt:     expiresAt,
		}
	}
	results, err := m.placer.PlaceBatch(ctx, batch)
	if err != nil {
		return err
	}

	var placedIDs []string
	for i, res := range results {
		m.metrics.OrdersAttempted.Inc()
		m.perf.AddAttempted(1)
		if !res.Success() {
			m.metrics.OrdersFailed.Inc()
			m.perf.AddFailed(1)
			m.log.Warn("order rejected",
				zap.Float64("quantity", batch[i].Quantity),
				zap.Float64("price", batch[i].Price),
				zap.String("error", res.Err),
			)
			continue
		}
		m.metrics.OrdersPlaced.Inc()
		m.perf.AddPlaced(1)
		m.tracker.Insert(PlacedOrder{
			OrderID:       res.OrderID,
			ClientOrderID: res.ClientOrderID,
			Market:        batch[i].Market,
			Quantity:      batch[i].Quantity,
			Price:         batch[i].Price,
			PlacedAt:      now,
			ExpiresAt:     expiresAt,
		}, trackerGrace)
		placedIDs = append(placedIDs, res.OrderID)
	}
	m.log.Info("ladder placed",
		zap.Float64("mid", mid),
		zap.Int("attempted", len(results)),
		zap.Int("placed", len(placedIDs)),
	)

	if m.cfg.CancelOnPriceDrift && len(placedIDs) > 0 {
		go m.monitorBatch(ctx, mid, expiresAt, placedIDs)
	}
	return m.sleepToBoundary(ctx)
}

func (m *Manager) lastFillTime() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastFill
}

// sleepToBoundary aligns the next cycle to the start of the next
// order-frequency window, keeping quoting cadence stable across restarts.
func (m *Manager) sleepToBoundary(ctx context.Context) error {
	freq := m.cfg.OrderFrequency
	if freq <= 0 {
		return nil
	}
	elapsed := time.Duration(m.now().UnixNano()) % freq
	return m.sleep(ctx, freq-elapsed)
}

func topOfBook(agg *feed.Aggregator) strategy.TopOfBook {
	bid, ask, ok := agg.TopOfBook()
	return strategy.TopOfBook{Bid: bid, Ask: ask, OK: ok}
}

func newClientOrderID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return hex.EncodeToString([]byte(time.Now().String()))
	}
	return hex.EncodeToString(buf[:])
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
