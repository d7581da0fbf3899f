package hedge

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

const (
	fillAttempts = 4
	attemptDelay = time.Second
)

// Execution is the venue's response to one IOC order.
type Execution struct {
	OrderID        string
	FilledQuantity float64
	AvgPrice       float64
	Complete       bool
}

// AccountState is the hedge venue's margin view, used for the pre-trade
// feasibility check.
type AccountState struct {
	AvailableMargin float64
	Leverage        float64
}

// Client is the hedge venue connector. PlaceIOC submits a signed-quantity
// immediate-or-cancel limit order; the limit price is already
// slippage-adjusted by the executor.
type Client interface {
	PlaceIOC(ctx context.Context, symbol string, quantity, price float64) (Execution, error)
	AccountState() (AccountState, bool)
}

// Executor flattens maker fills on the hedge venue. It also serves as the
// ladder generator's feasibility check so the maker never quotes size the
// hedge account cannot absorb.
type Executor struct {
	client      Client
	symbol      string
	slippagePct float64
	log         *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func NewExecutor(client Client, symbol string, slippagePct float64, log *zap.Logger) *Executor {
	return &Executor{
		client:      client,
		symbol:      symbol,
		slippagePct: slippagePct,
		log:         log,
		sleep:       sleepCtx,
	}
}

// CanOpen reports whether the hedge account's free margin covers a position
// of the given signed quantity at the slippage-adjusted price. An unknown
// account state rejects: quoting unhedgeable size is worse than quoting
// nothing.
func (e *Executor) CanOpen(quantity, price float64) bool {
	state, ok := e.client.AccountState()
	if !ok {
		return false
	}
	if state.Leverage <= 0 {
		return false
	}
	adjusted := withSlippage(price, e.slippagePct/100, quantity > 0)
	return state.AvailableMargin >= math.Abs(quantity*adjusted)/state.Leverage
}

// OnFill places an IOC order for the signed quantity, retrying up to four
// times one second apart. The limit price is computed once from the maker
// fill price so slippage tolerance holds across partial fills. Returns the
// average fill price on completion; exhausting attempts returns the last
// error.
func (e *Executor) OnFill(ctx context.Context, quantity, price float64) (float64, error) {
	if quantity == 0 {
		return 0, fmt.Errorf("hedge: zero quantity")
	}
	limit := withSlippage(price, e.slippagePct/100, quantity > 0)
	total := math.Abs(quantity)
	sign := quantity / total
	remaining := total
	avgPrice := 0.0

	var lastErr error
	for attempt := 1; attempt <= fillAttempts; attempt++ {
		exec, err := e.client.PlaceIOC(ctx, e.symbol, sign*remaining, limit)
		if err != nil {
			lastErr = err
			e.log.Warn("hedge order failed",
				zap.String("symbol", e.symbol),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			if attempt == fillAttempts {
				break
			}
			if err := e.sleep(ctx, attemptDelay); err != nil {
				return 0, err
			}
			continue
		}
		filled := math.Abs(exec.FilledQuantity)
		avgPrice += exec.AvgPrice * (filled / total)
		if exec.Complete || filled >= remaining {
			e.log.Info("hedge placed",
				zap.String("symbol", e.symbol),
				zap.String("order_id", exec.OrderID),
				zap.Float64("quantity", quantity),
				zap.Float64("avg_price", avgPrice),
			)
			return avgPrice, nil
		}
		remaining -= filled
		lastErr = fmt.Errorf("hedge: partial fill, %v remaining", remaining)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("hedge: order not filled")
	}
	return 0, fmt.Errorf("hedge after %d attempts: %w", fillAttempts, lastErr)
}

// withSlippage worsens the limit price in the taker's direction so the IOC
// order crosses the book: buys pay up, sells give in.
func withSlippage(price, slippage float64, isBuy bool) float64 {
	if isBuy {
		return price * (1 + slippage)
	}
	return price * (1 - slippage)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
