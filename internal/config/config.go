package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	Market    MarketConfig    `yaml:"market"`
	Maker     MakerConfig     `yaml:"maker"`
	Hedge     HedgeConfig     `yaml:"hedge"`
	Perf      PerfConfig      `yaml:"perf"`
	Timescale TimescaleConfig `yaml:"timescale"`
	State     StateConfig     `yaml:"state"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telegram  TelegramConfig  `yaml:"telegram"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// OrderLevel is one rung of the quoting ladder, mirrored on both sides.
// SpreadPct is a percentage of mid price (0.05 means 0.05%).
type OrderLevel struct {
	Quantity  float64 `yaml:"qty"`
	SpreadPct float64 `yaml:"spread_pct"`
}

type MarketConfig struct {
	Name                 string        `yaml:"name"`
	PricePrecision       int           `yaml:"price_precision"`
	MinQuantity          float64       `yaml:"min_quantity"`
	Leverage             float64       `yaml:"leverage"`
	MarginShare          float64       `yaml:"margin_share"`
	DefensiveSkewPct     float64       `yaml:"defensive_skew_pct"`
	OrderLevels          []OrderLevel  `yaml:"order_levels"`
	OrderFrequency       time.Duration `yaml:"order_frequency"`
	OrderLifetime        time.Duration `yaml:"order_lifetime"`
	CancelOnPriceDrift   bool          `yaml:"cancel_on_price_drift"`
	CancellationPct      float64       `yaml:"cancellation_threshold_pct"`
	AvoidCrossing        bool          `yaml:"avoid_crossing"`
	FillCooldown         time.Duration `yaml:"fill_cooldown"`
	MidPriceExpiry       time.Duration `yaml:"mid_price_expiry"`
	PositionDataExpiry   time.Duration `yaml:"position_data_expiry"`
	PositionPollInterval time.Duration `yaml:"position_poll_interval"`
}

type MakerConfig struct {
	RESTURL          string        `yaml:"rest_url"`
	WSURL            string        `yaml:"ws_url"`
	Timeout          time.Duration `yaml:"timeout"`
	ReconnectDelay   time.Duration `yaml:"reconnect_delay"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	BookDepth        int           `yaml:"book_depth"`
	AMMIndex         int64         `yaml:"amm_index"`
	ChainID          int64         `yaml:"chain_id"`
	OrderBookAddress string        `yaml:"order_book_address"`
}

type HedgeConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Symbol            string        `yaml:"symbol"`
	RESTURL           string        `yaml:"rest_url"`
	WSURL             string        `yaml:"ws_url"`
	Timeout           time.Duration `yaml:"timeout"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	SlippagePct       float64       `yaml:"slippage_pct"`
	Leverage          float64       `yaml:"leverage"`
	StatePollInterval time.Duration `yaml:"state_poll_interval"`
}

type PerfConfig struct {
	Dir           string        `yaml:"dir"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Market.Leverage == 0 {
		cfg.Market.Leverage = 5
	}
	if cfg.Market.MarginShare == 0 {
		cfg.Market.MarginShare = 0.33
	}
	if cfg.Market.OrderFrequency == 0 {
		cfg.Market.OrderFrequency = 2 * time.Second
	}
	if cfg.Market.OrderLifetime == 0 {
		cfg.Market.OrderLifetime = 2 * time.Second
	}
	if cfg.Market.CancellationPct == 0 {
		cfg.Market.CancellationPct = 0.05
	}
	if cfg.Market.FillCooldown == 0 {
		cfg.Market.FillCooldown = 20 * time.Second
	}
	if cfg.Market.MidPriceExpiry == 0 {
		cfg.Market.MidPriceExpiry = time.Second
	}
	if cfg.Market.PositionDataExpiry == 0 {
		cfg.Market.PositionDataExpiry = 10 * time.Second
	}
	if cfg.Market.PositionPollInterval == 0 {
		cfg.Market.PositionPollInterval = 5 * time.Second
	}
	if cfg.Maker.Timeout == 0 {
		cfg.Maker.Timeout = 10 * time.Second
	}
	if cfg.Maker.ReconnectDelay == 0 {
		cfg.Maker.ReconnectDelay = 3 * time.Second
	}
	if cfg.Maker.PingInterval == 0 {
		cfg.Maker.PingInterval = 30 * time.Second
	}
	if cfg.Maker.BookDepth == 0 {
		cfg.Maker.BookDepth = 10
	}
	if cfg.Maker.ChainID == 0 {
		cfg.Maker.ChainID = 1992
	}
	if cfg.Maker.OrderBookAddress == "" {
		cfg.Maker.OrderBookAddress = "0x0300000000000000000000000000000000000000"
	}
	if cfg.Hedge.Timeout == 0 {
		cfg.Hedge.Timeout = 10 * time.Second
	}
	if cfg.Hedge.ReconnectDelay == 0 {
		cfg.Hedge.ReconnectDelay = 3 * time.Second
	}
	if cfg.Hedge.PingInterval == 0 {
		cfg.Hedge.PingInterval = 30 * time.Second
	}
	if cfg.Hedge.SlippagePct == 0 {
		cfg.Hedge.SlippagePct = 0.01
	}
	if cfg.Hedge.Leverage == 0 {
		cfg.Hedge.Leverage = 5
	}
	if cfg.Hedge.StatePollInterval == 0 {
		cfg.Hedge.StatePollInterval = 5 * time.Second
	}
	if cfg.Hedge.Symbol == "" && cfg.Market.Name != "" {
		cfg.Hedge.Symbol = strings.Split(cfg.Market.Name, "-")[0]
	}
	if cfg.Perf.Dir == "" {
		cfg.Perf.Dir = "performance"
	}
	if cfg.Perf.FlushInterval == 0 {
		cfg.Perf.FlushInterval = 30 * time.Minute
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
	if cfg.Timescale.QueueSize == 0 {
		cfg.Timescale.QueueSize = 256
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/hubble-mm-bot.db"
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "127.0.0.1:9001"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func applyEnvOverrides(cfg *Config) {
	if token := strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")); token != "" {
		cfg.Telegram.Token = token
	}
	if chatID := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")); chatID != "" {
		cfg.Telegram.ChatID = chatID
	}
	if dsn := strings.TrimSpace(os.Getenv("TIMESCALE_DSN")); dsn != "" {
		cfg.Timescale.DSN = dsn
	}
}

func validate(cfg *Config) error {
	if cfg.Market.Name == "" {
		return errors.New("market.name is required")
	}
	if cfg.Market.PricePrecision < 0 {
		return errors.New("market.price_precision must be >= 0")
	}
	if cfg.Market.MinQuantity <= 0 {
		return errors.New("market.min_quantity must be > 0")
	}
	if cfg.Market.Leverage <= 0 {
		return errors.New("market.leverage must be > 0")
	}
	if cfg.Market.MarginShare <= 0 || cfg.Market.MarginShare > 1 {
		return errors.New("market.margin_share must be in (0, 1]")
	}
	if len(cfg.Market.OrderLevels) == 0 {
		return errors.New("market.order_levels is required")
	}
	for i, level := range cfg.Market.OrderLevels {
		if level.Quantity <= 0 {
			return fmt.Errorf("market.order_levels[%d].qty must be > 0", i)
		}
		if level.Quantity < cfg.Market.MinQuantity {
			return fmt.Errorf("market.order_levels[%d].qty must be >= market.min_quantity", i)
		}
		if level.SpreadPct <= 0 {
			return fmt.Errorf("market.order_levels[%d].spread_pct must be > 0", i)
		}
	}
	if cfg.Market.MidPriceExpiry <= 0 {
		return errors.New("market.mid_price_expiry must be > 0")
	}
	if cfg.Market.PositionDataExpiry < cfg.Market.PositionPollInterval {
		return errors.New("market.position_data_expiry must be >= position_poll_interval")
	}
	if cfg.Market.CancelOnPriceDrift && cfg.Market.CancellationPct <= 0 {
		return errors.New("market.cancellation_threshold_pct must be > 0 when drift cancellation is enabled")
	}
	if cfg.Maker.RESTURL == "" {
		return errors.New("maker.rest_url is required")
	}
	if cfg.Maker.WSURL == "" {
		return errors.New("maker.ws_url is required")
	}
	// The hedge venue carries the reference mid price even when hedging is
	// off, so its endpoints are always required.
	if cfg.Hedge.RESTURL == "" {
		return errors.New("hedge.rest_url is required")
	}
	if cfg.Hedge.WSURL == "" {
		return errors.New("hedge.ws_url is required")
	}
	if cfg.Hedge.Enabled && cfg.Hedge.SlippagePct < 0 {
		return errors.New("hedge.slippage_pct must be >= 0")
	}
	if cfg.Timescale.Enabled && strings.TrimSpace(cfg.Timescale.DSN) == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	if cfg.Telegram.Enabled && (cfg.Telegram.Token == "" || cfg.Telegram.ChatID == "") {
		return errors.New("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	return nil
}
