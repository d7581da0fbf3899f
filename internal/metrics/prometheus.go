package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "hubble_mm_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type promAdder struct {
	counter prometheus.Counter
}

func (p promAdder) Add(v float64) {
	p.counter.Add(v)
}

type promGaugeAdder struct {
	gauge prometheus.Gauge
}

func (p promGaugeAdder) Add(v float64) {
	p.gauge.Add(v)
}

type Prometheus struct {
	Metrics *Metrics

	registry        *prometheus.Registry
	ordersAttempted prometheus.Counter
	ordersPlaced    prometheus.Counter
	ordersFailed    prometheus.Counter
	ordersCancelled prometheus.Counter
	ordersFilled    prometheus.Counter
	fillsUnmatched  prometheus.Counter
	hedgesPlaced    prometheus.Counter
	hedgesFailed    prometheus.Counter
	volumeTraded    prometheus.Counter
	spreadPnL       prometheus.Gauge
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	ordersAttempted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_attempted_total",
		Help:      "Total number of ladder orders submitted for placement.",
	})
	ordersPlaced := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_placed_total",
		Help:      "Total number of orders accepted by the maker venue.",
	})
	ordersFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_failed_total",
		Help:      "Total number of order placement failures.",
	})
	ordersCancelled := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_cancelled_total",
		Help:      "Total number of orders cancelled on price drift.",
	})
	ordersFilled := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_filled_total",
		Help:      "Total number of maker fills.",
	})
	fillsUnmatched := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "fills_unmatched_total",
		Help:      "Total number of fill notifications with no tracked order.",
	})
	hedgesPlaced := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "hedges_placed_total",
		Help:      "Total number of successful hedge orders.",
	})
	hedgesFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "hedges_failed_total",
		Help:      "Total number of hedge attempts that exhausted retries.",
	})
	volumeTraded := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "volume_traded_total",
		Help:      "Cumulative filled quantity.",
	})
	spreadPnL := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      "spread_pnl",
		Help:      "Running maker-vs-hedge spread P&L.",
	})

	registry.MustRegister(ordersAttempted, ordersPlaced, ordersFailed, ordersCancelled,
		ordersFilled, fillsUnmatched, hedgesPlaced, hedgesFailed, volumeTraded, spreadPnL)

	m := &Metrics{
		OrdersAttempted: promCounter{ordersAttempted},
		OrdersPlaced:    promCounter{ordersPlaced},
		OrdersFailed:    promCounter{ordersFailed},
		OrdersCancelled: promCounter{ordersCancelled},
		OrdersFilled:    promCounter{ordersFilled},
		FillsUnmatched:  promCounter{fillsUnmatched},
		HedgesPlaced:    promCounter{hedgesPlaced},
		HedgesFailed:    promCounter{hedgesFailed},
		VolumeTraded:    promAdder{volumeTraded},
		SpreadPnL:       promGaugeAdder{spreadPnL},
	}

	return &Prometheus{
		Metrics:         m,
		registry:        registry,
		ordersAttempted: ordersAttempted,
		ordersPlaced:    ordersPlaced,
		ordersFailed:    ordersFailed,
		ordersCancelled: ordersCancelled,
		ordersFilled:    ordersFilled,
		fillsUnmatched:  fillsUnmatched,
		hedgesPlaced:    hedgesPlaced,
		hedgesFailed:    hedgesFailed,
		volumeTraded:    volumeTraded,
		spreadPnL:       spreadPnL,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
