package hubble

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"hubble-mm-bot/internal/feed"
	"hubble-mm-bot/internal/health"
	"hubble-mm-bot/internal/retry"
	"hubble-mm-bot/internal/ws"

	"go.uber.org/zap"
)

// BookStream delivers maker orderbook snapshots. It implements
// feed.BookSource; one StreamOrderBook call is one connection lifetime.
type BookStream struct {
	ws     *ws.Client
	market string
	depth  int

	sub sync.Once
}

func NewBookStream(wsClient *ws.Client, market string, depth int) *BookStream {
	return &BookStream{ws: wsClient, market: market, depth: depth}
}

type bookFrame struct {
	Channel string `json:"channel"`
	Data    struct {
		Market    string      `json:"market"`
		Bids      [][2]string `json:"bids"`
		Asks      [][2]string `json:"asks"`
		Timestamp int64       `json:"timestamp"`
	} `json:"data"`
}

func (s *BookStream) StreamOrderBook(ctx context.Context, fn func(feed.BookUpdate)) error {
	s.sub.Do(func() {
		sub := map[string]any{
			"method": "subscribe",
			"subscription": map[string]any{
				"type":   "orderbook",
				"market": s.market,
				"depth":  s.depth,
			},
		}
		// Registration only; the session replays it once connected.
		_ = s.ws.Subscribe(ctx, sub)
	})
	return s.ws.Session(ctx, func(raw json.RawMessage) {
		var frame bookFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			return
		}
		if frame.Channel != "orderbook" || frame.Data.Market != s.market {
			return
		}
		update := feed.BookUpdate{
			Bids: parseLevels(frame.Data.Bids),
			Asks: parseLevels(frame.Data.Asks),
			Time: timeFromMillis(frame.Data.Timestamp),
		}
		fn(update)
	})
}

func parseLevels(raw [][2]string) []feed.PriceLevel {
	levels := make([]feed.PriceLevel, 0, len(raw))
	for _, entry := range raw {
		price, err := strconv.ParseFloat(entry[0], 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseFloat(entry[1], 64)
		if err != nil {
			continue
		}
		levels = append(levels, feed.PriceLevel{Price: price, Size: size})
	}
	return levels
}

func timeFromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Now()
	}
	return time.UnixMilli(ms)
}

// FillEvent is one OrderMatched notification from the trader update stream.
// FillAmount is always positive; the order's own side decides direction.
type FillEvent struct {
	OrderID    string
	FillAmount float64
	Price      float64
	Time       time.Time
}

// FillStream delivers the trader's fill events. Events other than
// OrderMatched are ignored.
type FillStream struct {
	ws     *ws.Client
	trader string

	sub sync.Once
}

func NewFillStream(wsClient *ws.Client, trader string) *FillStream {
	return &FillStream{ws: wsClient, trader: trader}
}

type traderFrame struct {
	Channel string `json:"channel"`
	Data    struct {
		Event   string `json:"event"`
		OrderID string `json:"order_id"`
		Args    struct {
			FillAmount string `json:"fillAmount"`
			Price      string `json:"price"`
		} `json:"args"`
		Timestamp int64 `json:"timestamp"`
	} `json:"data"`
}

func (s *FillStream) StreamFills(ctx context.Context, fn func(FillEvent)) error {
	s.sub.Do(func() {
		sub := map[string]any{
			"method": "subscribe",
			"subscription": map[string]any{
				"type":   "traderUpdates",
				"trader": s.trader,
			},
		}
		_ = s.ws.Subscribe(ctx, sub)
	})
	return s.ws.Session(ctx, func(raw json.RawMessage) {
		var frame traderFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			return
		}
		if frame.Channel != "traderUpdates" || frame.Data.Event != "OrderMatched" {
			return
		}
		amount, err := strconv.ParseFloat(frame.Data.Args.FillAmount, 64)
		if err != nil || amount <= 0 {
			return
		}
		price, err := strconv.ParseFloat(frame.Data.Args.Price, 64)
		if err != nil || price <= 0 {
			return
		}
		fn(FillEvent{
			OrderID:    frame.Data.OrderID,
			FillAmount: amount,
			Price:      price,
			Time:       timeFromMillis(frame.Data.Timestamp),
		})
	})
}

// RunFillFeed supervises the fill stream. Unlike the price feeds there is no
// readiness signal to set: fills are events, not state. A dropped stream
// still counts against the retry budget because missed fills mean unhedged
// inventory.
func RunFillFeed(ctx context.Context, log *zap.Logger, stream *FillStream, fn func(FillEvent), fault *health.Fault, policy retry.Policy) error {
	return retry.Run(ctx, log, "maker-fill-feed", policy, fault, func(ctx context.Context) error {
		return stream.StreamFills(ctx, fn)
	})
}
