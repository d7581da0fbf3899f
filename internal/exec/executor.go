package exec

import (
	"context"
	"fmt"
	"sync"
	"time"

	"hubble-mm-bot/internal/state"

	"go.uber.org/zap"
)

// Order is one ladder rung ready for submission. Quantity is signed. The
// client order id makes placement idempotent across transport retries.
type Order struct {
	Market        string
	Quantity      float64
	Price         float64
	ReduceOnly    bool
	ClientOrderID string
	ExpiresAt     time.Time
}

// Result is the venue's per-order placement outcome. A batch call can
// succeed at the transport level while individual orders are rejected.
type Result struct {
	ClientOrderID string
	OrderID       string
	Err           string
}

func (r Result) Success() bool {
	return r.Err == ""
}

// Venue places and cancels orders on the maker exchange.
type Venue interface {
	PlaceOrders(ctx context.Context, orders []Order) ([]Result, error)
	CancelOrders(ctx context.Context, orderIDs []string) error
}

// Executor wraps the maker venue with transport retries and client-order-id
// deduplication, so a batch retried after a connection error does not double
// an order the venue already accepted.
type Executor struct {
	venue Venue
	store state.Store
	log   *zap.Logger

	mu    sync.Mutex
	cache map[string]string
}

func New(venue Venue, store state.Store, log *zap.Logger) *Executor {
	return &Executor{
		venue: venue,
		store: store,
		log:   log,
		cache: make(map[string]string),
	}
}

// PlaceBatch submits the batch and returns one result per input order, in
// input order. Orders whose client id was already accepted are answered from
// the dedup cache without another venue call.
func (e *Executor) PlaceBatch(ctx context.Context, orders []Order) ([]Result, error) {
	results := make([]Result, len(orders))
	var pending []Order
	var pendingIdx []int
	for i, order := range orders {
		if order.ClientOrderID != "" {
			if oid, ok, err := e.lookup(ctx, order.ClientOrderID); err != nil {
				return nil, err
			} else if ok {
				results[i] = Result{ClientOrderID: order.ClientOrderID, OrderID: oid}
				continue
			}
		}
		pending = append(pending, order)
		pendingIdx = append(pendingIdx, i)
	}
	if len(pending) == 0 {
		return results, nil
	}

	var placed []Result
	err := e.retry(ctx, func() error {
		var err error
		placed, err = e.venue.PlaceOrders(ctx, pending)
		return err
	})
	if err != nil {
		return nil, err
	}
	// venue results mirror the request order
	if len(placed) != len(pending) {
		return nil, fmt.Errorf("exec: %d results for %d orders", len(placed), len(pending))
	}

	for i, res := range placed {
		results[pendingIdx[i]] = res
		if res.Success() && res.ClientOrderID != "" {
			e.remember(ctx, res.ClientOrderID, res.OrderID)
		}
	}
	return results, nil
}

// CancelBatch cancels the given venue order ids, retrying transport errors.
func (e *Executor) CancelBatch(ctx context.Context, orderIDs []string) error {
	if len(orderIDs) == 0 {
		return nil
	}
	return e.retry(ctx, func() error {
		return e.venue.CancelOrders(ctx, orderIDs)
	})
}

func (e *Executor) lookup(ctx context.Context, clientOrderID string) (string, bool, error) {
	key := "cloid:" + clientOrderID
	e.mu.Lock()
	if oid, ok := e.cache[key]; ok {
		e.mu.Unlock()
		return oid, true, nil
	}
	e.mu.Unlock()
	if e.store == nil {
		return "", false, nil
	}
	oid, ok, err := e.store.Get(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	e.mu.Lock()
	e.cache[key] = oid
	e.mu.Unlock()
	return oid, true, nil
}

func (e *Executor) remember(ctx context.Context, clientOrderID, orderID string) {
	key := "cloid:" + clientOrderID
	e.mu.Lock()
	e.cache[key] = orderID
	e.mu.Unlock()
	if e.store == nil {
		return
	}
	if err := e.store.Set(ctx, key, orderID); err != nil {
		e.log.Warn("failed to persist order id", zap.Error(err))
	}
}

func (e *Executor) retry(ctx context.Context, fn func() error) error {
	backoff := 200 * time.Millisecond
	for attempt := 0; attempt < 5; attempt++ {
		if err := fn(); err != nil {
			if attempt == 4 {
				return fmt.Errorf("retry failed: %w", err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
			continue
		}
		return nil
	}
	return nil
}
