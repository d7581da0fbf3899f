package strategy

import (
	"math"

	"hubble-mm-bot/internal/config"
)

// GenerateLadder prices and sizes every configured level on both sides and
// merges the survivors into one placement batch. Levels that round to zero
// quantity or fail the hedge feasibility check are skipped individually; a
// skipped level does not consume its side's margin.
func GenerateLadder(cfg config.MarketConfig, mid float64, alloc Allocation, book TopOfBook, hedge FeasibilityChecker) []CandidateOrder {
	if mid <= 0 {
		return nil
	}
	bids := generateSide(cfg, mid, alloc.MarginBids, alloc.SkewBids, book, hedge, 1)
	asks := generateSide(cfg, mid, alloc.MarginAsks, alloc.SkewAsks, book, hedge, -1)
	return append(bids, asks...)
}

// generateSide walks the configured levels for one side, debiting the side's
// margin as each level is accepted so later levels see reduced buying power.
// direction is +1 for bids and -1 for asks.
func generateSide(cfg config.MarketConfig, mid, margin, skew float64, book TopOfBook, hedge FeasibilityChecker, direction float64) []CandidateOrder {
	var orders []CandidateOrder
	for _, level := range cfg.OrderLevels {
		spread := level.SpreadPct/100 + skew
		price := roundPrice(mid*(1-direction*spread), cfg.PricePrecision)
		if cfg.AvoidCrossing && book.OK {
			// Re-anchor on the venue's own top of book instead of mid when
			// the rounded price would cross it.
			if direction > 0 && price >= book.Ask {
				price = roundPrice(book.Ask*(1-spread), cfg.PricePrecision)
			} else if direction < 0 && price <= book.Bid {
				price = roundPrice(book.Bid*(1+spread), cfg.PricePrecision)
			}
		}
		if price <= 0 {
			continue
		}

		affordable := margin * cfg.Leverage / price
		qty := quantizeQty(level.Quantity, affordable, cfg.MinQuantity)
		if qty == 0 {
			continue
		}
		signed := direction * qty
		if hedge != nil && !hedge.CanOpen(signed, price) {
			continue
		}

		margin -= qty * price / cfg.Leverage
		orders = append(orders, CandidateOrder{
			Market:   cfg.Name,
			Quantity: signed,
			Price:    price,
		})
	}
	return orders
}

// quantizeQty caps the affordable size at the level's configured quantity,
// floors it to zero below the venue minimum, and otherwise rounds it down to
// the minimum-quantity granularity. Config validation rejects levels sized
// below the venue minimum, but the guard holds here too so no caller can
// produce an unplaceable quantity.
func quantizeQty(levelQty, affordable, minQty float64) float64 {
	if levelQty < minQty {
		return 0
	}
	if levelQty <= affordable {
		return levelQty
	}
	if minQty <= 0 || affordable < minQty {
		return 0
	}
	return math.Floor(affordable/minQty) * minQty
}

func roundPrice(price float64, precision int) float64 {
	pow := math.Pow(10, float64(precision))
	return math.Round(price*pow) / pow
}
