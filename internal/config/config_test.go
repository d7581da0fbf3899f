package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseConfig() *Config {
	return &Config{
		Market: MarketConfig{
			Name:           "ETH-Perp",
			PricePrecision: 2,
			MinQuantity:    0.01,
			OrderLevels: []OrderLevel{
				{Quantity: 0.08, SpreadPct: 0.03},
				{Quantity: 0.09, SpreadPct: 0.04},
			},
		},
		Maker: MakerConfig{
			RESTURL: "https://maker.example",
			WSURL:   "wss://maker.example/ws",
		},
		Hedge: HedgeConfig{
			RESTURL: "https://hedge.example",
			WSURL:   "wss://hedge.example/ws",
		},
	}
}

func TestMarketDefaults(t *testing.T) {
	cfg := baseConfig()
	applyDefaults(cfg)
	if cfg.Market.Leverage != 5 {
		t.Fatalf("expected leverage default 5, got %v", cfg.Market.Leverage)
	}
	if cfg.Market.MarginShare != 0.33 {
		t.Fatalf("expected margin share default, got %v", cfg.Market.MarginShare)
	}
	if cfg.Market.OrderFrequency != 2*time.Second {
		t.Fatalf("expected order frequency default, got %v", cfg.Market.OrderFrequency)
	}
	if cfg.Market.FillCooldown != 20*time.Second {
		t.Fatalf("expected fill cooldown default, got %v", cfg.Market.FillCooldown)
	}
	if cfg.Market.PositionDataExpiry != 10*time.Second {
		t.Fatalf("expected position data expiry default, got %v", cfg.Market.PositionDataExpiry)
	}
}

func TestHedgeSymbolDerivedFromMarket(t *testing.T) {
	cfg := baseConfig()
	applyDefaults(cfg)
	if cfg.Hedge.Symbol != "ETH" {
		t.Fatalf("expected derived hedge symbol ETH, got %q", cfg.Hedge.Symbol)
	}
}

func TestHedgeSymbolRespectsExplicitValue(t *testing.T) {
	cfg := baseConfig()
	cfg.Hedge.Symbol = "kPEPE"
	applyDefaults(cfg)
	if cfg.Hedge.Symbol != "kPEPE" {
		t.Fatalf("expected explicit hedge symbol, got %q", cfg.Hedge.Symbol)
	}
}

func TestValidateRequiresMarketName(t *testing.T) {
	cfg := baseConfig()
	cfg.Market.Name = ""
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for missing market name")
	}
}

func TestValidateRequiresOrderLevels(t *testing.T) {
	cfg := baseConfig()
	cfg.Market.OrderLevels = nil
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for missing order levels")
	}
}

func TestValidateRejectsZeroLevelQuantity(t *testing.T) {
	cfg := baseConfig()
	cfg.Market.OrderLevels = []OrderLevel{{Quantity: 0, SpreadPct: 0.03}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for zero level quantity")
	}
}

func TestValidateRejectsPollIntervalAboveExpiry(t *testing.T) {
	cfg := baseConfig()
	cfg.Market.PositionDataExpiry = time.Second
	cfg.Market.PositionPollInterval = 5 * time.Second
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for poll interval above expiry")
	}
}

func TestValidateRejectsSubMinimumLevelQuantity(t *testing.T) {
	cfg := baseConfig()
	cfg.Market.MinQuantity = 0.1
	cfg.Market.OrderLevels = []OrderLevel{{Quantity: 0.05, SpreadPct: 0.03}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for level quantity below min_quantity")
	}
}

// The hedge venue feeds the reference mid price even with hedging off, so
// its endpoints must be rejected at load whenever they are missing.
func TestValidateHedgeRequiresURLs(t *testing.T) {
	cfg := baseConfig()
	cfg.Hedge.RESTURL = ""
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for missing hedge rest url")
	}
	cfg = baseConfig()
	cfg.Hedge.WSURL = ""
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for missing hedge ws url")
	}
	cfg = baseConfig()
	cfg.Hedge.Enabled = true
	cfg.Hedge.RESTURL = ""
	cfg.Hedge.WSURL = ""
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for hedge enabled without urls")
	}
}

func TestValidateTelegramRequiresToken(t *testing.T) {
	cfg := baseConfig()
	cfg.Telegram.Enabled = true
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for telegram enabled without token")
	}
}

func TestTelegramEnvOverride(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "env-token")
	t.Setenv("TELEGRAM_CHAT_ID", "123")
	cfg := baseConfig()
	cfg.Telegram.Enabled = true
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	if cfg.Telegram.Token != "env-token" || cfg.Telegram.ChatID != "123" {
		t.Fatalf("expected env overrides, got %q/%q", cfg.Telegram.Token, cfg.Telegram.ChatID)
	}
	if err := validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
market:
  name: AVAX-Perp
  price_precision: 3
  min_quantity: 0.1
  margin_share: 0.25
  order_levels:
    - {qty: 3, spread_pct: 0.02}
    - {qty: 4, spread_pct: 0.03}
maker:
  rest_url: https://maker.example
  ws_url: wss://maker.example/ws
hedge:
  rest_url: https://hedge.example
  ws_url: wss://hedge.example/ws
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Market.Name != "AVAX-Perp" {
		t.Fatalf("expected market name, got %q", cfg.Market.Name)
	}
	if cfg.Market.MarginShare != 0.25 {
		t.Fatalf("expected margin share 0.25, got %v", cfg.Market.MarginShare)
	}
	if len(cfg.Market.OrderLevels) != 2 {
		t.Fatalf("expected 2 levels, got %d", len(cfg.Market.OrderLevels))
	}
	if cfg.Market.OrderFrequency != 2*time.Second {
		t.Fatalf("expected defaulted order frequency, got %v", cfg.Market.OrderFrequency)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
