package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"
	"strings"

	"hubble-mm-bot/internal/config"
	"hubble-mm-bot/internal/hubble"
	"hubble-mm-bot/internal/logging"
	"hubble-mm-bot/internal/strategy"

	"go.uber.org/zap"
)

// verify previews the ladder the bot would quote for a given mid price and
// margin view, without touching any venue. With -sign it also produces one
// signed order so key material can be checked before going live.
func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	mid := flag.Float64("mid", 0, "reference mid price")
	margin := flag.Float64("margin", 0, "account margin")
	positionSize := flag.Float64("position", 0, "current signed position size")
	bestBid := flag.Float64("best-bid", 0, "maker best bid (0 to skip crossing check)")
	bestAsk := flag.Float64("best-ask", 0, "maker best ask (0 to skip crossing check)")
	sign := flag.Bool("sign", false, "sign the first candidate with MAKER_PRIVATE_KEY")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fatal(err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	if *mid <= 0 {
		fatal(fmt.Errorf("-mid must be > 0"))
	}
	if *margin <= 0 {
		fatal(fmt.Errorf("-margin must be > 0"))
	}

	acct := strategy.AccountState{Margin: *margin}
	if *positionSize != 0 {
		acct.Positions = []strategy.Position{{
			Market:   cfg.Market.Name,
			Size:     *positionSize,
			Notional: *positionSize * *mid,
		}}
		if acct.Positions[0].Notional < 0 {
			acct.Positions[0].Notional = -acct.Positions[0].Notional
		}
	}

	alloc := strategy.ComputeAllocation(cfg.Market, acct)
	book := strategy.TopOfBook{Bid: *bestBid, Ask: *bestAsk, OK: *bestBid > 0 && *bestAsk > 0}
	ladder := strategy.GenerateLadder(cfg.Market, *mid, alloc, book, nil)

	log.Info("allocation computed",
		zap.Float64("margin_bids", alloc.MarginBids),
		zap.Float64("margin_asks", alloc.MarginAsks),
		zap.Float64("skew_bids", alloc.SkewBids),
		zap.Float64("skew_asks", alloc.SkewAsks),
	)
	printJSON(map[string]any{"mid": *mid, "orders": ladder})

	if !*sign {
		return
	}
	if len(ladder) == 0 {
		fatal(fmt.Errorf("nothing to sign: ladder is empty"))
	}
	key := strings.TrimSpace(os.Getenv("MAKER_PRIVATE_KEY"))
	if key == "" {
		fatal(fmt.Errorf("MAKER_PRIVATE_KEY is required with -sign"))
	}
	signer, err := hubble.NewSigner(key, cfg.Maker.ChainID, cfg.Maker.OrderBookAddress)
	if err != nil {
		fatal(err)
	}
	first := ladder[0]
	order, err := signer.SignOrder(cfg.Maker.AMMIndex, first.Quantity, first.Price, first.ReduceOnly, big.NewInt(1))
	if err != nil {
		fatal(err)
	}
	printJSON(map[string]any{
		"trader":              order.Trader.Hex(),
		"amm_index":           order.AMMIndex,
		"base_asset_quantity": order.BaseAssetQuantity.String(),
		"price":               order.Price.String(),
		"signature":           order.Signature,
	})
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(out))
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
