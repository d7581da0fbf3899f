package strategy

import "hubble-mm-bot/internal/config"

// ComputeAllocation derives per-side buying power and defensive skew from an
// account snapshot.
//
// Free margin is account margin minus margin consumed by open positions,
// plus unrealized PnL, minus margin reserved by resting orders. Each side
// gets free_margin * margin_share to spend. When this market already carries
// a position, the side that would shrink it gets the position's own margin
// added back pro rata, and the side that would grow it gets a spread skew
// proportional to how much of free margin the position consumes.
func ComputeAllocation(cfg config.MarketConfig, acct AccountState) Allocation {
	used := 0.0
	upnl := 0.0
	for _, p := range acct.Positions {
		used += p.Notional / cfg.Leverage
		upnl += p.UnrealizedPnL
	}
	free := acct.Margin - used + upnl - acct.ReservedMargin
	if free <= 0 {
		// Fully utilized account: quote nothing rather than divide by a
		// non-positive free margin.
		return Allocation{}
	}

	alloc := free * cfg.MarginShare
	out := Allocation{MarginBids: alloc, MarginAsks: alloc}

	pos := acct.PositionFor(cfg.Name)
	if pos.Size == 0 {
		return out
	}

	posMargin := pos.Notional / cfg.Leverage
	multiple := posMargin / free
	scale := 1 + multiple
	skew := multiple * 10 * cfg.DefensiveSkewPct / 100
	if pos.Size > 0 {
		out.MarginAsks = alloc * scale
		out.SkewBids = skew
	} else {
		out.MarginBids = alloc * scale
		out.SkewAsks = skew
	}
	return out
}
