// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trader.
// All Record methods are safe on a nil *Metrics.
type Metrics struct {
	// Discovery and queue metrics
	CandidatesDiscovered *prometheus.CounterVec
	CandidatesQueued     prometheus.Counter
	CandidatesDropped    *prometheus.CounterVec
	QueueSize            prometheus.Gauge
	ActiveRejections     prometheus.Gauge

	// Pipeline metrics
	PipelineOutcomes *prometheus.CounterVec
	PipelineDuration *prometheus.HistogramVec
	TranchesExecuted *prometheus.CounterVec

	// Position metrics
	OpenPositions prometheus.Gauge
	ExitsTotal    *prometheus.CounterVec
	RealizedPnl   *prometheus.HistogramVec
	PnlToday      prometheus.Gauge
	PnlThisWeek   prometheus.Gauge
	TradesToday   prometheus.Gauge

	// External call metrics
	ExternalCallLatency *prometheus.HistogramVec
	ExternalCallErrors  *prometheus.CounterVec

	// Health metrics
	LastMonitorTick prometheus.Gauge
	UptimeSeconds   prometheus.Counter
}

// NewMetrics creates a Metrics instance registered on reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_token_trader"
	}
	f := promauto.With(reg)

	return &Metrics{
		CandidatesDiscovered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "candidates_discovered_total",
			Help:      "Total number of candidates received by source",
		}, []string{"source"}),
		CandidatesQueued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "candidates_queued_total",
			Help:      "Total number of candidates inserted into the queue",
		}),
		CandidatesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "candidates_dropped_total",
			Help:      "Total number of candidates not queued by reason",
		}, []string{"reason"}),
		QueueSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "size",
			Help:      "Current number of queued candidates",
		}),
		ActiveRejections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "active_rejections",
			Help:      "Current number of mints in cooldown",
		}),

		PipelineOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "outcomes_total",
			Help:      "Total number of pipeline results by outcome and reason",
		}, []string{"outcome", "reason"}),
		PipelineDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Per-candidate pipeline duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"outcome"}),
		TranchesExecuted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "tranches_total",
			Help:      "Total number of entry tranches by index and status",
		}, []string{"tranche", "status"}),

		OpenPositions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "open",
			Help:      "Current number of open positions",
		}),
		ExitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "exits_total",
			Help:      "Total number of full and partial exits by reason",
		}, []string{"reason", "action"}),
		RealizedPnl: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "realized_pnl_sol",
			Help:      "Realized P&L per close in SOL",
			Buckets:   []float64{-0.5, -0.2, -0.1, -0.05, 0, 0.05, 0.1, 0.2, 0.5, 1},
		}, []string{"reason"}),
		PnlToday: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "pnl_today_sol",
			Help:      "Realized P&L for the current day in SOL",
		}),
		PnlThisWeek: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "pnl_week_sol",
			Help:      "Realized P&L for the current week in SOL",
		}),
		TradesToday: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "trades_today",
			Help:      "Positions opened in the current day",
		}),

		ExternalCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "external",
			Name:      "call_latency_seconds",
			Help:      "Latency of calls to external collaborators",
			Buckets:   prometheus.DefBuckets,
		}, []string{"adapter", "operation"}),
		ExternalCallErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "external",
			Name:      "call_errors_total",
			Help:      "Total number of failed calls to external collaborators",
		}, []string{"adapter", "operation"}),

		LastMonitorTick: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_monitor_tick_timestamp",
			Help:      "Unix timestamp of the last completed monitor iteration",
		}),
		UptimeSeconds: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint of g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordDiscovered counts a candidate received from a discovery source.
func (m *Metrics) RecordDiscovered(source string) {
	if m == nil {
		return
	}
	m.CandidatesDiscovered.WithLabelValues(source).Inc()
}

// RecordQueueAdd counts a queue insertion attempt.
func (m *Metrics) RecordQueueAdd(inserted bool, dropReason string) {
	if m == nil {
		return
	}
	if inserted {
		m.CandidatesQueued.Inc()
		return
	}
	m.CandidatesDropped.WithLabelValues(dropReason).Inc()
}

// UpdateQueue sets the queue gauges.
func (m *Metrics) UpdateQueue(queued, activeRejections int) {
	if m == nil {
		return
	}
	m.QueueSize.Set(float64(queued))
	m.ActiveRejections.Set(float64(activeRejections))
}

// RecordPipeline records one pipeline result.
func (m *Metrics) RecordPipeline(outcome, reason string, d time.Duration) {
	if m == nil {
		return
	}
	m.PipelineOutcomes.WithLabelValues(outcome, reason).Inc()
	m.PipelineDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordTranche records an entry tranche attempt.
func (m *Metrics) RecordTranche(index int, status string) {
	if m == nil {
		return
	}
	label := "1"
	if index == 2 {
		label = "2"
	}
	m.TranchesExecuted.WithLabelValues(label, status).Inc()
}

// RecordExit records a full or partial exit.
func (m *Metrics) RecordExit(reason, action string, realizedPnl float64) {
	if m == nil {
		return
	}
	m.ExitsTotal.WithLabelValues(reason, action).Inc()
	m.RealizedPnl.WithLabelValues(reason).Observe(realizedPnl)
}

// SetOpenPositions sets the open positions gauge.
func (m *Metrics) SetOpenPositions(n int) {
	if m == nil {
		return
	}
	m.OpenPositions.Set(float64(n))
}

// UpdateRisk sets the risk gauges.
func (m *Metrics) UpdateRisk(tradesToday int, pnlToday, pnlWeek float64) {
	if m == nil {
		return
	}
	m.TradesToday.Set(float64(tradesToday))
	m.PnlToday.Set(pnlToday)
	m.PnlThisWeek.Set(pnlWeek)
}

// RecordExternalCall records latency and failure of a collaborator call.
func (m *Metrics) RecordExternalCall(adapter, operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.ExternalCallLatency.WithLabelValues(adapter, operation).Observe(d.Seconds())
	if err != nil {
		m.ExternalCallErrors.WithLabelValues(adapter, operation).Inc()
	}
}

// MarkMonitorTick records a completed monitor iteration.
func (m *Metrics) MarkMonitorTick(t time.Time) {
	if m == nil {
		return
	}
	m.LastMonitorTick.Set(float64(t.Unix()))
}

// AddUptime adds d to the uptime counter.
func (m *Metrics) AddUptime(d time.Duration) {
	if m == nil {
		return
	}
	m.UptimeSeconds.Add(d.Seconds())
}
