package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder publishes pipeline and monitor metrics. A nil *Recorder is valid
// and records nothing, so components can run without metrics in tests.
type Recorder struct {
	registry *prometheus.Registry

	taskRuns       *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	candidates     *prometheus.GaugeVec
	scanSymbols    *prometheus.GaugeVec
	orders         *prometheus.CounterVec
	exits          *prometheus.CounterVec
	heldPositions  prometheus.Gauge
	priceUpdates   prometheus.Counter
	reconnects     prometheus.Counter
	staleFallbacks prometheus.Counter
	gapDecisions   *prometheus.CounterVec
}

// New creates a recorder backed by its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		taskRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "argo_batch_task_runs_total",
				Help: "Scheduled task runs by outcome",
			},
			[]string{"task", "outcome"},
		),
		taskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "argo_batch_task_duration_seconds",
				Help:    "Duration of scheduled task runs in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"task"},
		),
		candidates: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "argo_batch_candidates",
				Help: "Candidates left after each stage of the latest run",
			},
			[]string{"stage"},
		),
		scanSymbols: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "argo_batch_scan_symbols",
				Help: "Symbols in the latest nightly scan by state",
			},
			[]string{"state"},
		),
		orders: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "argo_batch_orders_total",
				Help: "Settled orders by purpose and status",
			},
			[]string{"purpose", "status"},
		),
		exits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "argo_batch_exits_total",
				Help: "Exit decisions that fired, by reason",
			},
			[]string{"reason"},
		),
		heldPositions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "argo_batch_held_positions",
			Help: "Positions under live monitoring",
		}),
		priceUpdates: factory.NewCounter(prometheus.CounterOpts{
			Name: "argo_batch_price_updates_total",
			Help: "Live price updates processed by the position monitor",
		}),
		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "argo_batch_stream_reconnects_total",
			Help: "Price stream reconnect attempts",
		}),
		staleFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "argo_batch_stale_fallbacks_total",
			Help: "Nightly scans that fell back to an earlier batch",
		}),
		gapDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "argo_batch_gap_decisions_total",
				Help: "Gap filter decisions by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// Handler serves the recorder's registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}

	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}

	return r.registry
}

func (r *Recorder) RecordTask(task, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}

	r.taskRuns.WithLabelValues(task, outcome).Inc()
	r.taskDuration.WithLabelValues(task).Observe(elapsed.Seconds())
}

func (r *Recorder) RecordCandidates(stage string, n int) {
	if r == nil {
		return
	}

	r.candidates.WithLabelValues(stage).Set(float64(n))
}

func (r *Recorder) RecordScan(universe, failed int) {
	if r == nil {
		return
	}

	r.scanSymbols.WithLabelValues("universe").Set(float64(universe))
	r.scanSymbols.WithLabelValues("failed").Set(float64(failed))
}

func (r *Recorder) RecordOrder(purpose, status string) {
	if r == nil {
		return
	}

	r.orders.WithLabelValues(purpose, status).Inc()
}

func (r *Recorder) RecordExit(reason string) {
	if r == nil {
		return
	}

	r.exits.WithLabelValues(reason).Inc()
}

func (r *Recorder) SetHeldPositions(n int) {
	if r == nil {
		return
	}

	r.heldPositions.Set(float64(n))
}

func (r *Recorder) RecordPriceUpdate() {
	if r == nil {
		return
	}

	r.priceUpdates.Inc()
}

func (r *Recorder) RecordReconnect() {
	if r == nil {
		return
	}

	r.reconnects.Inc()
}

func (r *Recorder) RecordStaleFallback() {
	if r == nil {
		return
	}

	r.staleFallbacks.Inc()
}

func (r *Recorder) RecordGapDecision(outcome string) {
	if r == nil {
		return
	}

	r.gapDecisions.WithLabelValues(outcome).Inc()
}
