// Package metrics exposes Prometheus collectors for the server. Collectors
// live on a private registry owned by the server instance rather than the
// package-global default.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the server collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	registry *prometheus.Registry

	openSessions     prometheus.Gauge
	sendsTotal       *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		openSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mcp_telegram_open_sessions",
			Help: "Number of currently open SSE sessions",
		}),
		sendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_telegram_dispatches_total",
			Help: "Total capability dispatches by outcome",
		}, []string{"capability", "outcome"}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "mcp_telegram_dispatch_duration_seconds",
			Help: "Duration of capability dispatches",
		}, []string{"capability"}),
	}
	m.registry.MustRegister(m.openSessions, m.sendsTotal, m.dispatchDuration)
	return m
}

// Handler serves the collected metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SessionOpened records a new open session.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.openSessions.Inc()
}

// SessionClosed records a session teardown.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.openSessions.Dec()
}

// ObserveDispatch records one capability dispatch.
func (m *Metrics) ObserveDispatch(capability string, d time.Duration, ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "error"
	}
	m.sendsTotal.WithLabelValues(capability, outcome).Inc()
	m.dispatchDuration.WithLabelValues(capability).Observe(d.Seconds())
}
