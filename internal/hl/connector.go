package hl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"hubble-mm-bot/internal/feed"
	"hubble-mm-bot/internal/health"
	"hubble-mm-bot/internal/hedge"
	"hubble-mm-bot/internal/hl/exchange"
	"hubble-mm-bot/internal/hl/rest"
	"hubble-mm-bot/internal/retry"
	"hubble-mm-bot/internal/ws"

	"go.uber.org/zap"
)

// priceDecimals is the venue's max decimal places for perp limit prices.
const priceDecimals = 6

// Connector binds the hedge venue's info, exchange and stream endpoints
// behind the executor's Client interface plus the mid-price feed source.
type Connector struct {
	rest     *rest.Client
	ex       *exchange.Client
	ws       *ws.Client
	user     string
	symbol   string
	leverage float64
	log      *zap.Logger

	assetMu    sync.Mutex
	assetIndex int
	assetOK    bool

	stateMu sync.RWMutex
	state   hedge.AccountState
	stateOK bool

	midSub sync.Once
}

func NewConnector(restClient *rest.Client, exClient *exchange.Client, wsClient *ws.Client, user, symbol string, leverage float64, log *zap.Logger) *Connector {
	return &Connector{
		rest:     restClient,
		ex:       exClient,
		ws:       wsClient,
		user:     user,
		symbol:   symbol,
		leverage: leverage,
		log:      log,
	}
}

// ResolveAsset looks up the symbol's index in the venue's perp universe. The
// index is what order wires carry; it is fetched once and cached.
func (c *Connector) ResolveAsset(ctx context.Context) (int, error) {
	c.assetMu.Lock()
	defer c.assetMu.Unlock()
	if c.assetOK {
		return c.assetIndex, nil
	}
	resp, err := c.rest.Info(ctx, rest.InfoRequest{Type: "meta"})
	if err != nil {
		return 0, err
	}
	universe, _ := resp["universe"].([]any)
	if len(universe) == 0 {
		return 0, errors.New("meta response missing universe")
	}
	for i, entry := range universe {
		meta, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if name, _ := meta["name"].(string); name == c.symbol {
			c.assetIndex = i
			c.assetOK = true
			return i, nil
		}
	}
	return 0, fmt.Errorf("symbol %q not in perp universe", c.symbol)
}

// PlaceIOC implements hedge.Client. The signed quantity picks the side; the
// unfilled remainder of an IOC order is cancelled by the venue, so the
// returned execution reflects exactly what matched.
func (c *Connector) PlaceIOC(ctx context.Context, symbol string, quantity, price float64) (hedge.Execution, error) {
	if quantity == 0 {
		return hedge.Execution{}, errors.New("quantity must be non-zero")
	}
	asset, err := c.ResolveAsset(ctx)
	if err != nil {
		return hedge.Execution{}, err
	}
	size := math.Abs(quantity)
	limit := roundToDecimals(price, priceDecimals)
	wire, err := exchange.LimitOrderWire(asset, quantity > 0, size, limit, false, exchange.TifIoc, "")
	if err != nil {
		return hedge.Execution{}, err
	}
	status, err := c.ex.PlaceOrder(ctx, wire)
	if err != nil {
		return hedge.Execution{}, err
	}
	if status.Error != "" {
		return hedge.Execution{}, fmt.Errorf("order rejected: %s", status.Error)
	}
	return hedge.Execution{
		OrderID:        strconv.FormatInt(status.OrderID, 10),
		FilledQuantity: status.FilledSize,
		AvgPrice:       status.AvgPrice,
		Complete:       status.FilledSize >= size-1e-9,
	}, nil
}

// AccountState implements hedge.Client from the latest poll.
func (c *Connector) AccountState() (hedge.AccountState, bool) {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state, c.stateOK
}

// PollState fetches the account's withdrawable margin once.
func (c *Connector) PollState(ctx context.Context) error {
	resp, err := c.rest.Info(ctx, rest.InfoRequest{Type: "clearinghouseState", User: c.user})
	if err != nil {
		return err
	}
	withdrawable, ok := floatField(resp, "withdrawable")
	if !ok {
		return errors.New("clearinghouseState missing withdrawable")
	}
	c.stateMu.Lock()
	c.state = hedge.AccountState{AvailableMargin: withdrawable, Leverage: c.leverage}
	c.stateOK = true
	c.stateMu.Unlock()
	return nil
}

// RunStatePoll supervises the margin poll. The signal gates order generation
// on a current hedge-account view; it is cleared whenever a poll session
// fails so quoting pauses until the view recovers.
func (c *Connector) RunStatePoll(ctx context.Context, interval time.Duration, sig *health.Signal, fault *health.Fault, policy retry.Policy) error {
	return retry.Run(ctx, c.log, "hedge-state-poll", policy, fault, func(ctx context.Context) error {
		err := c.pollLoop(ctx, interval, sig)
		sig.Clear()
		c.invalidateState()
		return err
	})
}

func (c *Connector) pollLoop(ctx context.Context, interval time.Duration, sig *health.Signal) error {
	for {
		if err := c.PollState(ctx); err != nil {
			return err
		}
		sig.Set()

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Connector) invalidateState() {
	c.stateMu.Lock()
	c.stateOK = false
	c.stateMu.Unlock()
}

type allMidsFrame struct {
	Channel string `json:"channel"`
	Data    struct {
		Mids map[string]string `json:"mids"`
	} `json:"data"`
}

// StreamMid implements feed.MidSource over the allMids subscription. One call
// is one connection lifetime; the supervising feed loop handles reconnects.
func (c *Connector) StreamMid(ctx context.Context, fn func(feed.MidTick)) error {
	c.midSub.Do(func() {
		sub := map[string]any{
			"method":       "subscribe",
			"subscription": map[string]any{"type": "allMids"},
		}
		// Registration only; the session replays it once connected.
		_ = c.ws.Subscribe(ctx, sub)
	})
	return c.ws.Session(ctx, func(raw json.RawMessage) {
		var frame allMidsFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			return
		}
		if frame.Channel != "allMids" {
			return
		}
		rawMid, ok := frame.Data.Mids[c.symbol]
		if !ok {
			return
		}
		price, err := strconv.ParseFloat(rawMid, 64)
		if err != nil || price <= 0 {
			return
		}
		fn(feed.MidTick{Price: price, Time: time.Now()})
	})
}

func roundToDecimals(v float64, decimals int) float64 {
	scale := math.Pow10(decimals)
	return math.Round(v*scale) / scale
}

func floatField(m map[string]any, key string) (float64, bool) {
	switch val := m[key].(type) {
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
