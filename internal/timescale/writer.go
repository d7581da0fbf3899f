package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"hubble-mm-bot/internal/config"
	"hubble-mm-bot/internal/perf"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// Fill is one maker fill with its hedge outcome, for post-hoc spread
// analysis.
type Fill struct {
	Time       time.Time
	Market     string
	OrderID    string
	Quantity   float64
	Price      float64
	HedgePrice float64
	SpreadPnL  float64
	Hedged     bool
}

// Writer persists performance periods and fills to TimescaleDB off the hot
// path. Enqueue methods never block; rows are dropped with a warning when
// the queue is full.
type Writer struct {
	db        *sql.DB
	log       *zap.Logger
	schema    string
	periods   chan perf.Record
	fills     chan Fill
	started   atomic.Bool
	dropPerf  atomic.Uint64
	dropFills atomic.Uint64
}

func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:      db,
		log:     log,
		schema:  schema,
		periods: make(chan perf.Record, queueSize),
		fills:   make(chan Fill, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

// Enqueue implements perf.Sink.
func (w *Writer) Enqueue(rec perf.Record) {
	if w == nil {
		return
	}
	select {
	case w.periods <- rec:
		return
	default:
		if w.dropPerf.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale performance queue full")
		}
	}
}

func (w *Writer) EnqueueFill(fill Fill) {
	if w == nil {
		return
	}
	select {
	case w.fills <- fill:
		return
	default:
		if w.dropFills.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale fill queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-w.periods:
			w.writePeriod(ctx, rec)
		case fill := <-w.fills:
			w.writeFill(ctx, fill)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		market TEXT NOT NULL,
		cumulative_volume DOUBLE PRECISION NOT NULL,
		period_volume DOUBLE PRECISION NOT NULL,
		orders_attempted INTEGER NOT NULL,
		orders_placed INTEGER NOT NULL,
		orders_filled INTEGER NOT NULL,
		orders_failed INTEGER NOT NULL,
		orders_cancelled INTEGER NOT NULL,
		orders_hedged INTEGER NOT NULL,
		hedges_failed INTEGER NOT NULL,
		spread_pnl DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (ts, market)
	)`, w.table("performance_periods"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		market TEXT NOT NULL,
		order_id TEXT NOT NULL,
		quantity DOUBLE PRECISION NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		hedge_price DOUBLE PRECISION NOT NULL,
		spread_pnl DOUBLE PRECISION NOT NULL,
		hedged BOOLEAN NOT NULL
	)`, w.table("fills"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("performance_periods"))); err != nil && w.log != nil {
		w.log.Warn("timescale performance_periods hypertable create failed", zap.Error(err))
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("fills"))); err != nil && w.log != nil {
		w.log.Warn("timescale fills hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) writePeriod(ctx context.Context, rec perf.Record) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, market, cumulative_volume, period_volume, orders_attempted, orders_placed,
		orders_filled, orders_failed, orders_cancelled, orders_hedged, hedges_failed, spread_pnl
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
	)
	ON CONFLICT (ts, market) DO NOTHING`, w.table("performance_periods"))
	if _, err := w.db.ExecContext(ctx, query,
		rec.Period.End,
		rec.Market,
		rec.Cumulative,
		rec.Period.Volume,
		rec.Period.Attempted,
		rec.Period.Placed,
		rec.Period.Filled,
		rec.Period.Failed,
		rec.Period.Cancelled,
		rec.Period.Hedged,
		rec.Period.HedgeFailed,
		rec.Period.SpreadPnL,
	); err != nil && w.log != nil {
		w.log.Warn("timescale performance insert failed", zap.Error(err))
	}
}

func (w *Writer) writeFill(ctx context.Context, fill Fill) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, market, order_id, quantity, price, hedge_price, spread_pnl, hedged
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8
	)`, w.table("fills"))
	if _, err := w.db.ExecContext(ctx, query,
		fill.Time,
		fill.Market,
		fill.OrderID,
		fill.Quantity,
		fill.Price,
		fill.HedgePrice,
		fill.SpreadPnL,
		fill.Hedged,
	); err != nil && w.log != nil {
		w.log.Warn("timescale fill insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
