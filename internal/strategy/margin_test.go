package strategy

import (
	"math"
	"testing"

	"hubble-mm-bot/internal/config"
)

func marketCfg() config.MarketConfig {
	return config.MarketConfig{
		Name:             "ETH-Perp",
		PricePrecision:   2,
		MinQuantity:      0.01,
		Leverage:         5,
		MarginShare:      0.5,
		DefensiveSkewPct: 10,
	}
}

func TestComputeAllocationFlat(t *testing.T) {
	alloc := ComputeAllocation(marketCfg(), AccountState{Margin: 1000})
	if alloc.MarginBids != 500 || alloc.MarginAsks != 500 {
		t.Fatalf("expected 500 per side, got %+v", alloc)
	}
	if alloc.SkewBids != 0 || alloc.SkewAsks != 0 {
		t.Fatalf("expected no skew when flat, got %+v", alloc)
	}
}

func TestComputeAllocationFreeMargin(t *testing.T) {
	acct := AccountState{
		Margin:         1000,
		ReservedMargin: 100,
		Positions: []Position{
			{Market: "BTC-Perp", Notional: 500, UnrealizedPnL: -50},
		},
	}
	// free = 1000 - 500/5 - 50 - 100 = 750
	alloc := ComputeAllocation(marketCfg(), acct)
	if alloc.MarginBids != 375 || alloc.MarginAsks != 375 {
		t.Fatalf("expected 375 per side, got %+v", alloc)
	}
}

func TestComputeAllocationLongPosition(t *testing.T) {
	cfg := marketCfg()
	acct := AccountState{
		Margin: 550,
		Positions: []Position{
			{Market: "ETH-Perp", Size: 2.5, Notional: 250},
		},
	}
	// free = 550 - 250/5 = 500, position margin 50, multiple 0.1
	alloc := ComputeAllocation(cfg, acct)
	if alloc.SkewBids != 0.1 {
		t.Fatalf("expected bid skew 0.1, got %v", alloc.SkewBids)
	}
	if alloc.SkewAsks != 0 {
		t.Fatalf("expected no ask skew when long, got %v", alloc.SkewAsks)
	}
	if alloc.MarginBids != 250 {
		t.Fatalf("expected growing side untouched at 250, got %v", alloc.MarginBids)
	}
	if math.Abs(alloc.MarginAsks-275) > 1e-9 {
		t.Fatalf("expected reducing side scaled to 275, got %v", alloc.MarginAsks)
	}
}

func TestComputeAllocationShortPosition(t *testing.T) {
	acct := AccountState{
		Margin: 550,
		Positions: []Position{
			{Market: "ETH-Perp", Size: -2.5, Notional: 250},
		},
	}
	alloc := ComputeAllocation(marketCfg(), acct)
	if alloc.SkewAsks != 0.1 || alloc.SkewBids != 0 {
		t.Fatalf("expected ask skew only when short, got %+v", alloc)
	}
	if math.Abs(alloc.MarginBids-275) > 1e-9 {
		t.Fatalf("expected reducing side scaled to 275, got %v", alloc.MarginBids)
	}
}

func TestComputeAllocationExhaustedMargin(t *testing.T) {
	acct := AccountState{
		Margin: 100,
		Positions: []Position{
			{Market: "ETH-Perp", Size: 10, Notional: 1000, UnrealizedPnL: -20},
		},
	}
	alloc := ComputeAllocation(marketCfg(), acct)
	if alloc != (Allocation{}) {
		t.Fatalf("expected zero allocation when free margin is non-positive, got %+v", alloc)
	}
}
