package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"hubble-mm-bot/internal/account"
	"hubble-mm-bot/internal/alerts"
	"hubble-mm-bot/internal/config"
	"hubble-mm-bot/internal/exec"
	"hubble-mm-bot/internal/feed"
	"hubble-mm-bot/internal/health"
	"hubble-mm-bot/internal/hedge"
	"hubble-mm-bot/internal/hl"
	"hubble-mm-bot/internal/hl/exchange"
	"hubble-mm-bot/internal/hl/rest"
	"hubble-mm-bot/internal/hubble"
	"hubble-mm-bot/internal/metrics"
	"hubble-mm-bot/internal/mm"
	"hubble-mm-bot/internal/perf"
	"hubble-mm-bot/internal/retry"
	"hubble-mm-bot/internal/state/sqlite"
	"hubble-mm-bot/internal/timescale"
	"hubble-mm-bot/internal/ws"

	"go.uber.org/zap"
)

// App assembles the bot: maker connector, hedge connector, feeds, quoting
// loop, and the recording/alerting periphery.
type App struct {
	cfg   *config.Config
	log   *zap.Logger
	store *sqlite.Store

	maker      *hubble.Client
	bookStream *hubble.BookStream
	fillStream *hubble.FillStream

	hedgeConn *hl.Connector
	hedgeExec *hedge.Executor
	hedgeEx   *exchange.Client

	agg     *feed.Aggregator
	tracker *account.Tracker
	manager *mm.Manager

	counters  *perf.Counters
	recorder  *perf.Recorder
	timescale *timescale.Writer

	prom    *metrics.Prometheus
	alerts  *alerts.Telegram
	fault   *health.Fault
	hedgeOn bool
	signals appSignals
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}

	m := metrics.NewNoop()
	var prom *metrics.Prometheus
	if cfg.Metrics.Enabled {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	}

	makerKey := strings.TrimSpace(os.Getenv("MAKER_PRIVATE_KEY"))
	if makerKey == "" {
		return nil, errors.New("MAKER_PRIVATE_KEY is required")
	}
	makerSigner, err := hubble.NewSigner(makerKey, cfg.Maker.ChainID, cfg.Maker.OrderBookAddress)
	if err != nil {
		return nil, err
	}
	maker, err := hubble.NewClient(cfg.Maker.RESTURL, cfg.Maker.Timeout, makerSigner, cfg.Maker.AMMIndex, log)
	if err != nil {
		return nil, err
	}
	bookWS := ws.New(cfg.Maker.WSURL, cfg.Maker.ReconnectDelay, cfg.Maker.PingInterval, nil, log)
	fillWS := ws.New(cfg.Maker.WSURL, cfg.Maker.ReconnectDelay, cfg.Maker.PingInterval, nil, log)
	bookStream := hubble.NewBookStream(bookWS, cfg.Market.Name, cfg.Maker.BookDepth)
	fillStream := hubble.NewFillStream(fillWS, makerSigner.Address().Hex())

	// The hedge venue's rest and ws endpoints also carry the reference
	// price, so they are wired even when hedging itself is off.
	hedgeRest := rest.New(cfg.Hedge.RESTURL, cfg.Hedge.Timeout, log)
	hedgeWS := ws.New(cfg.Hedge.WSURL, cfg.Hedge.ReconnectDelay, cfg.Hedge.PingInterval, map[string]any{"method": "ping"}, log)

	var hedgeEx *exchange.Client
	var hedgeExec *hedge.Executor
	hedgeUser := ""
	if cfg.Hedge.Enabled {
		hedgeKey := strings.TrimSpace(os.Getenv("HEDGE_PRIVATE_KEY"))
		if hedgeKey == "" {
			return nil, errors.New("HEDGE_PRIVATE_KEY is required when hedging is enabled")
		}
		isMainnet := !strings.Contains(strings.ToLower(cfg.Hedge.RESTURL), "testnet")
		hedgeSigner, err := exchange.NewSigner(hedgeKey, isMainnet)
		if err != nil {
			return nil, err
		}
		hedgeEx, err = exchange.NewClient(cfg.Hedge.RESTURL, cfg.Hedge.Timeout, hedgeSigner)
		if err != nil {
			return nil, err
		}
		hedgeEx.SetLogger(log)
		hedgeUser = hedgeSigner.Address().Hex()
	}
	hedgeConn := hl.NewConnector(hedgeRest, hedgeEx, hedgeWS, hedgeUser, cfg.Hedge.Symbol, cfg.Hedge.Leverage, log)
	if cfg.Hedge.Enabled {
		hedgeExec = hedge.NewExecutor(hedgeConn, cfg.Hedge.Symbol, cfg.Hedge.SlippagePct, log)
	}

	tsWriter, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		return nil, err
	}

	agg := feed.NewAggregator()
	tracker := account.NewTracker()
	counters := perf.NewCounters()

	var perfSink perf.Sink
	var fillSink mm.FillSink
	if tsWriter != nil {
		perfSink = tsWriter
		fillSink = timescaleFillSink{w: tsWriter}
	}
	recorder := perf.NewRecorder(cfg.Perf.Dir, cfg.Market.Name, counters, store, perfSink, log)

	fault := health.NewFault()
	midSig := health.NewSignal()
	bookSig := health.NewSignal()
	posSig := health.NewSignal()
	hedgeSig := health.NewSignal()
	gateSignals := []*health.Signal{midSig, bookSig, posSig}
	if cfg.Hedge.Enabled {
		gateSignals = append(gateSignals, hedgeSig)
	}

	executor := exec.New(maker, store, log)
	deps := mm.Deps{
		Config:   cfg.Market,
		Log:      log,
		Agg:      agg,
		Account:  tracker,
		Placer:   executor,
		Gate:     health.NewGate(gateSignals...),
		Fault:    fault,
		Metrics:  m,
		Perf:     counters,
		Policy:   retry.Policy{},
		FillSink: fillSink,
	}
	if hedgeExec != nil {
		deps.Hedger = hedgeExec
	}
	manager := mm.NewManager(deps)

	app := &App{
		cfg:        cfg,
		log:        log,
		store:      store,
		maker:      maker,
		bookStream: bookStream,
		fillStream: fillStream,
		hedgeConn:  hedgeConn,
		hedgeExec:  hedgeExec,
		hedgeEx:    hedgeEx,
		agg:        agg,
		tracker:    tracker,
		manager:    manager,
		counters:   counters,
		recorder:   recorder,
		timescale:  tsWriter,
		prom:       prom,
		alerts:     alerts.NewTelegram(cfg.Telegram, log),
		fault:      fault,
		hedgeOn:    cfg.Hedge.Enabled,
	}
	app.signals.mid = midSig
	app.signals.book = bookSig
	app.signals.positions = posSig
	app.signals.hedge = hedgeSig
	return app, nil
}

type appSignals struct {
	mid       *health.Signal
	book      *health.Signal
	positions *health.Signal
	hedge     *health.Signal
}

// Run starts every supervised loop and blocks until the context ends or a
// fault trips. A tripped fault cancels everything, flushes the performance
// recorder, and fires a telegram alert before returning.
func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.hedgeEx != nil {
		if err := a.hedgeEx.InitNonceStore(ctx, a.store); err != nil {
			a.log.Warn("nonce store init failed", zap.Error(err))
		}
	}
	if a.timescale != nil {
		a.timescale.Start(ctx)
		defer a.timescale.Close()
	}
	if err := a.recorder.Seed(ctx); err != nil {
		a.log.Warn("performance seed failed", zap.Error(err))
	}
	a.startMetricsServer(ctx)

	policy := retry.Policy{}
	var wg sync.WaitGroup
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("loop ended", zap.String("loop", name), zap.Error(err))
			}
		}()
	}

	start("mid-feed", func(ctx context.Context) error {
		return feed.RunMidFeed(ctx, a.log, a.hedgeConn, a.agg, a.signals.mid, a.fault, policy)
	})
	start("book-feed", func(ctx context.Context) error {
		return feed.RunBookFeed(ctx, a.log, a.bookStream, a.agg, a.signals.book, a.fault, policy)
	})
	start("position-poll", func(ctx context.Context) error {
		return account.RunPoller(ctx, a.log, a.maker, a.tracker, a.cfg.Market.PositionPollInterval, a.signals.positions, a.fault, policy)
	})
	if a.hedgeOn {
		start("hedge-state-poll", func(ctx context.Context) error {
			return a.hedgeConn.RunStatePoll(ctx, a.cfg.Hedge.StatePollInterval, a.signals.hedge, a.fault, policy)
		})
	}
	start("fill-feed", func(ctx context.Context) error {
		return hubble.RunFillFeed(ctx, a.log, a.fillStream, func(ev hubble.FillEvent) {
			a.manager.HandleFill(ctx, mm.Fill{
				OrderID:  ev.OrderID,
				Quantity: ev.FillAmount,
				Price:    ev.Price,
				Time:     ev.Time,
			})
		}, a.fault, policy)
	})
	start("order-loop", a.manager.Run)
	start("perf-recorder", func(ctx context.Context) error {
		return a.recorder.Run(ctx, a.cfg.Perf.FlushInterval)
	})

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case <-a.fault.Done():
		reason := a.fault.Reason()
		a.log.Error("fault tripped, shutting down", zap.String("reason", reason))
		a.sendAlert("hubble-mm-bot halted: " + reason)
		runErr = errors.New("halted: " + reason)
	}
	cancel()
	wg.Wait()
	return runErr
}

func (a *App) startMetricsServer(ctx context.Context) {
	if a.prom == nil {
		return
	}
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, a.prom.Handler())
	server := &http.Server{Addr: a.cfg.Metrics.Address, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	a.log.Info("metrics server listening", zap.String("address", a.cfg.Metrics.Address), zap.String("path", a.cfg.Metrics.Path))
}

func (a *App) sendAlert(message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.alerts.Send(ctx, message); err != nil {
		a.log.Warn("alert send failed", zap.Error(err))
	}
}

// timescaleFillSink adapts the writer to the quoting loop's fill sink.
type timescaleFillSink struct {
	w *timescale.Writer
}

func (s timescaleFillSink) RecordFill(rec mm.FillRecord) {
	s.w.EnqueueFill(timescale.Fill{
		Time:       rec.Time,
		Market:     rec.Market,
		OrderID:    rec.OrderID,
		Quantity:   rec.Quantity,
		Price:      rec.Price,
		HedgePrice: rec.HedgePrice,
		SpreadPnL:  rec.SpreadPnL,
		Hedged:     rec.Hedged,
	})
}
