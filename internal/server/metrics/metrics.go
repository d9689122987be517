// Package metrics exposes Prometheus collectors for context switching,
// isolation and session housekeeping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Switch results used as the "result" label.
const (
	ResultOK        = "ok"
	ResultConflict  = "conflict"
	ResultForbidden = "forbidden"
	ResultNotFound  = "not_found"
	ResultAborted   = "aborted"
	ResultFailed    = "failed"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// Switch metrics
	SwitchesTotal  *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec
	LoadRetries    prometheus.Counter
	ActiveContexts prometheus.Gauge

	// Isolation metrics
	IsolationViolations *prometheus.CounterVec

	// Housekeeping metrics
	SessionsPurged prometheus.Counter
	DeletesTotal   *prometheus.CounterVec

	// Transport metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New registers every collector on reg, or on a fresh registry when reg is
// nil.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		SwitchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acctx_switches_total",
				Help: "Account context switches by result",
			},
			[]string{"result"},
		),
		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "acctx_switch_stage_duration_seconds",
				Help:    "Duration of each switch stage in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"stage"},
		),
		LoadRetries: f.NewCounter(
			prometheus.CounterOpts{
				Name: "acctx_switch_load_retries_total",
				Help: "Retried Loading attempts",
			},
		),
		ActiveContexts: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "acctx_active_contexts",
				Help: "Users with an active account context on this instance",
			},
		),
		IsolationViolations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acctx_isolation_violations_total",
				Help: "Storage calls rejected for naming a foreign namespace",
			},
			[]string{"op"},
		),
		SessionsPurged: f.NewCounter(
			prometheus.CounterOpts{
				Name: "acctx_sessions_purged_total",
				Help: "Sessions destroyed by expiry or sweep",
			},
		),
		DeletesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acctx_account_deletes_total",
				Help: "Account delete cascades by result",
			},
			[]string{"result"},
		),
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acctx_requests_total",
				Help: "API requests by transport, method and error code",
			},
			[]string{"transport", "method", "code"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "acctx_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"transport", "method"},
		),
	}
}

// ObserveStage records how long a switch stage took.
func (m *Metrics) ObserveStage(stage string, started time.Time) {
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}

// ObserveRequest records one API call.
func (m *Metrics) ObserveRequest(transport, method, code string, started time.Time) {
	m.RequestsTotal.WithLabelValues(transport, method, code).Inc()
	m.RequestDuration.WithLabelValues(transport, method).Observe(time.Since(started).Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
