package strategy

import (
	"math"
	"testing"

	"hubble-mm-bot/internal/config"
)

func ladderCfg(levels ...config.OrderLevel) config.MarketConfig {
	return config.MarketConfig{
		Name:           "ETH-Perp",
		PricePrecision: 2,
		MinQuantity:    0.01,
		Leverage:       5,
		OrderLevels:    levels,
	}
}

func findByPrice(t *testing.T, orders []CandidateOrder, price float64) CandidateOrder {
	t.Helper()
	for _, o := range orders {
		if o.Price == price {
			return o
		}
	}
	t.Fatalf("no order at price %v in %+v", price, orders)
	return CandidateOrder{}
}

func TestGenerateLadderPrices(t *testing.T) {
	cfg := ladderCfg(config.OrderLevel{Quantity: 1, SpreadPct: 1})
	alloc := Allocation{MarginBids: 1000, MarginAsks: 1000}
	orders := GenerateLadder(cfg, 100, alloc, TopOfBook{}, nil)
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
	bid := findByPrice(t, orders, 99.00)
	if bid.Quantity != 1 {
		t.Fatalf("expected bid quantity 1, got %v", bid.Quantity)
	}
	ask := findByPrice(t, orders, 101.00)
	if ask.Quantity != -1 {
		t.Fatalf("expected ask quantity -1, got %v", ask.Quantity)
	}
}

func TestGenerateLadderSkewWidensOneSide(t *testing.T) {
	cfg := ladderCfg(config.OrderLevel{Quantity: 1, SpreadPct: 1})
	alloc := Allocation{MarginBids: 1000, MarginAsks: 1000, SkewBids: 0.01}
	orders := GenerateLadder(cfg, 100, alloc, TopOfBook{}, nil)
	bid := findByPrice(t, orders, 98.00) // spread 1% + 1% skew
	if !bid.IsBuy() {
		t.Fatalf("expected a bid at 98.00")
	}
	findByPrice(t, orders, 101.00) // ask side unskewed
}

func TestGenerateLadderMarginDebitAcrossLevels(t *testing.T) {
	cfg := ladderCfg(
		config.OrderLevel{Quantity: 4, SpreadPct: 1},
		config.OrderLevel{Quantity: 4, SpreadPct: 2},
	)
	// Bid side only: 100 margin buys 100*5/99 ≈ 5.05 at level one, capped at
	// 4; debit leaves 100-4*99/5 = 20.8, affording 20.8*5/98 ≈ 1.06 at level
	// two, quantized down to 1.06.
	alloc := Allocation{MarginBids: 100}
	orders := GenerateLadder(cfg, 100, alloc, TopOfBook{}, nil)
	if len(orders) != 2 {
		t.Fatalf("expected 2 bids, got %+v", orders)
	}
	first := findByPrice(t, orders, 99.00)
	if first.Quantity != 4 {
		t.Fatalf("expected level one capped at 4, got %v", first.Quantity)
	}
	second := findByPrice(t, orders, 98.00)
	if math.Abs(second.Quantity-1.06) > 1e-9 {
		t.Fatalf("expected level two quantity 1.06, got %v", second.Quantity)
	}
	spent := first.Quantity*first.Price/cfg.Leverage + second.Quantity*second.Price/cfg.Leverage
	if spent > alloc.MarginBids {
		t.Fatalf("ladder overspent side margin: %v > %v", spent, alloc.MarginBids)
	}
}

func TestGenerateLadderMinQuantityFloor(t *testing.T) {
	cfg := ladderCfg(config.OrderLevel{Quantity: 1, SpreadPct: 1})
	cfg.MinQuantity = 0.5
	// 0.2 margin affords 0.2*5/99 ≈ 0.0101, below the 0.5 minimum.
	orders := GenerateLadder(cfg, 100, Allocation{MarginBids: 0.2, MarginAsks: 1000}, TopOfBook{}, nil)
	if len(orders) != 1 {
		t.Fatalf("expected bid level skipped, got %+v", orders)
	}
	if orders[0].Quantity != -1 {
		t.Fatalf("expected surviving ask, got %+v", orders[0])
	}
}

func TestGenerateLadderAvoidCrossing(t *testing.T) {
	cfg := ladderCfg(config.OrderLevel{Quantity: 1, SpreadPct: 0.1})
	cfg.AvoidCrossing = true
	// Raw bid 100*(1-0.001)=99.90 would cross the 99.50 best ask, so the bid
	// re-anchors: 99.50*(1-0.001)=99.40.
	book := TopOfBook{Bid: 99.40, Ask: 99.50, OK: true}
	orders := GenerateLadder(cfg, 100, Allocation{MarginBids: 1000}, book, nil)
	if len(orders) != 1 {
		t.Fatalf("expected 1 bid, got %+v", orders)
	}
	if orders[0].Price != 99.40 {
		t.Fatalf("expected re-anchored bid 99.40, got %v", orders[0].Price)
	}
}

func TestGenerateLadderCrossingAllowedWhenDisabled(t *testing.T) {
	cfg := ladderCfg(config.OrderLevel{Quantity: 1, SpreadPct: 0.1})
	book := TopOfBook{Bid: 99.40, Ask: 99.50, OK: true}
	orders := GenerateLadder(cfg, 100, Allocation{MarginBids: 1000}, book, nil)
	if orders[0].Price != 99.90 {
		t.Fatalf("expected raw bid 99.90 with crossing allowed, got %v", orders[0].Price)
	}
}

type approveShorts struct{}

func (approveShorts) CanOpen(quantity, price float64) bool { return quantity < 0 }

func TestGenerateLadderHedgeRejectionSkipsLevel(t *testing.T) {
	cfg := ladderCfg(
		config.OrderLevel{Quantity: 4, SpreadPct: 1},
		config.OrderLevel{Quantity: 4, SpreadPct: 2},
	)
	alloc := Allocation{MarginBids: 100, MarginAsks: 100}
	orders := GenerateLadder(cfg, 100, alloc, TopOfBook{}, approveShorts{})
	for _, o := range orders {
		if o.IsBuy() {
			t.Fatalf("expected all bids rejected by hedge check, got %+v", o)
		}
	}
	// Rejected bids must not have consumed bid margin; the ask side is the
	// control: it still quotes both levels.
	if len(orders) != 2 {
		t.Fatalf("expected 2 asks, got %+v", orders)
	}
}

func TestGenerateLadderZeroMid(t *testing.T) {
	cfg := ladderCfg(config.OrderLevel{Quantity: 1, SpreadPct: 1})
	if orders := GenerateLadder(cfg, 0, Allocation{MarginBids: 100, MarginAsks: 100}, TopOfBook{}, nil); orders != nil {
		t.Fatalf("expected no orders without a mid price, got %+v", orders)
	}
}

func TestQuantizeQty(t *testing.T) {
	if got := quantizeQty(2, 5, 0.1); got != 2 {
		t.Fatalf("expected cap at level quantity, got %v", got)
	}
	if got := quantizeQty(5, 1.2345, 0.01); math.Abs(got-1.23) > 1e-9 {
		t.Fatalf("expected quantize down to 1.23, got %v", got)
	}
	if got := quantizeQty(5, 0.004, 0.01); got != 0 {
		t.Fatalf("expected floor to zero below minimum, got %v", got)
	}
	if got := quantizeQty(0.05, 10, 0.1); got != 0 {
		t.Fatalf("expected sub-minimum level quantity floored to zero, got %v", got)
	}
}

func TestGenerateLadderSkipsSubMinimumLevel(t *testing.T) {
	cfg := ladderCfg(
		config.OrderLevel{Quantity: 0.05, SpreadPct: 1},
		config.OrderLevel{Quantity: 1, SpreadPct: 2},
	)
	cfg.MinQuantity = 0.1
	// Ample margin: the first level must still be dropped, not emitted below
	// the venue minimum.
	orders := GenerateLadder(cfg, 100, Allocation{MarginBids: 1000, MarginAsks: 1000}, TopOfBook{}, nil)
	for _, o := range orders {
		if math.Abs(o.Quantity) < cfg.MinQuantity {
			t.Fatalf("emitted quantity %v below venue minimum %v", o.Quantity, cfg.MinQuantity)
		}
	}
	if len(orders) != 2 {
		t.Fatalf("expected only the second level on each side, got %+v", orders)
	}
}
