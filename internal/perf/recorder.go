package perf

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"hubble-mm-bot/internal/state"

	"go.uber.org/zap"
)

var header = []string{
	"start_time",
	"end_time",
	"cumulative_trade_volume",
	"trade_volume_in_period",
	"orders_attempted",
	"orders_placed",
	"orders_filled",
	"orders_failed",
	"orders_cancelled",
	"orders_hedged",
	"hedges_failed",
	"hedge_spread_pnl",
}

const cumulativeColumn = 2

// Record is one flushed row, handed to the optional sink alongside the CSV.
type Record struct {
	Market     string
	Cumulative float64
	Period     Period
}

// Sink receives flushed records for out-of-process storage. Enqueue must not
// block the flush loop.
type Sink interface {
	Enqueue(rec Record)
}

// Recorder appends one CSV row per flush interval and carries the cumulative
// traded volume across process restarts: seeded from the last row of the
// existing file, falling back to the kv store when the file is missing.
type Recorder struct {
	market   string
	path     string
	counters *Counters
	store    state.Store
	sink     Sink
	log      *zap.Logger

	cumulative float64
}

func NewRecorder(dir, market string, counters *Counters, store state.Store, sink Sink, log *zap.Logger) *Recorder {
	return &Recorder{
		market:   market,
		path:     filepath.Join(dir, fmt.Sprintf("performance_%s.csv", market)),
		counters: counters,
		store:    store,
		sink:     sink,
		log:      log,
	}
}

func (r *Recorder) seedKey() string {
	return "perf:cumulative_volume:" + r.market
}

// Seed restores the cumulative volume from the prior run.
func (r *Recorder) Seed(ctx context.Context) error {
	if v, ok, err := lastCumulative(r.path); err != nil {
		return err
	} else if ok {
		r.cumulative = v
		return nil
	}
	if r.store == nil {
		return nil
	}
	raw, ok, err := r.store.Get(ctx, r.seedKey())
	if err != nil || !ok {
		return err
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("perf: corrupt volume seed %q: %w", raw, err)
	}
	r.cumulative = v
	return nil
}

// Flush drains the counters, appends one row, and forwards the record.
func (r *Recorder) Flush(ctx context.Context) error {
	period := r.counters.Drain()
	r.cumulative += period.Volume
	if err := r.appendRow(period); err != nil {
		return err
	}
	if r.store != nil {
		if err := r.store.Set(ctx, r.seedKey(), strconv.FormatFloat(r.cumulative, 'f', -1, 64)); err != nil {
			r.log.Warn("failed to persist volume seed", zap.Error(err))
		}
	}
	if r.sink != nil {
		r.sink.Enqueue(Record{Market: r.market, Cumulative: r.cumulative, Period: period})
	}
	return nil
}

// Run flushes on the configured interval until the context ends, writing one
// final row on the way out.
func (r *Recorder) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := r.Flush(context.Background()); err != nil {
				r.log.Warn("final performance flush failed", zap.Error(err))
			}
			return ctx.Err()
		case <-ticker.C:
			if err := r.Flush(ctx); err != nil {
				r.log.Warn("performance flush failed", zap.Error(err))
			}
		}
	}
}

func (r *Recorder) appendRow(period Period) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			return err
		}
	}
	row := []string{
		period.Start.Format(time.RFC3339),
		period.End.Format(time.RFC3339),
		strconv.FormatFloat(r.cumulative, 'f', -1, 64),
		strconv.FormatFloat(period.Volume, 'f', -1, 64),
		strconv.Itoa(period.Attempted),
		strconv.Itoa(period.Placed),
		strconv.Itoa(period.Filled),
		strconv.Itoa(period.Failed),
		strconv.Itoa(period.Cancelled),
		strconv.Itoa(period.Hedged),
		strconv.Itoa(period.HedgeFailed),
		strconv.FormatFloat(period.SpreadPnL, 'f', -1, 64),
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// lastCumulative reads the cumulative-volume column of the file's last row.
func lastCumulative(path string) (float64, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	defer f.Close()
	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		return 0, false, err
	}
	if len(rows) < 2 {
		return 0, false, nil
	}
	last := rows[len(rows)-1]
	if len(last) <= cumulativeColumn {
		return 0, false, fmt.Errorf("perf: malformed row in %s", path)
	}
	v, err := strconv.ParseFloat(last[cumulativeColumn], 64)
	if err != nil {
		return 0, false, fmt.Errorf("perf: corrupt cumulative volume in %s: %w", path, err)
	}
	return v, true, nil
}
