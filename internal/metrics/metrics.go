// Package metrics exposes Prometheus counters for authentication outcomes.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by callers.
const (
	OutcomeSuccess  = "success"
	OutcomeInvalid  = "invalid"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
	OutcomeNone     = "none"
)

// Metrics holds the collectors on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	AuthTotal     *prometheus.CounterVec
	SessionReads  *prometheus.CounterVec
	RequestsTotal *prometheus.CounterVec
}

// New creates a registry with the Go and process collectors plus the
// fridge counters.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		AuthTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fridge_auth_attempts_total",
				Help: "Total number of register and login attempts by outcome",
			},
			[]string{"op", "outcome"},
		),
		SessionReads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fridge_session_reads_total",
				Help: "Total number of session cookie reads by outcome",
			},
			[]string{"outcome"},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fridge_http_requests_total",
				Help: "Total number of HTTP requests by method and status",
			},
			[]string{"method", "status"},
		),
	}
	registry.MustRegister(m.AuthTotal, m.SessionReads, m.RequestsTotal)
	return m
}

// ObserveAuth counts one register or login attempt.
func (m *Metrics) ObserveAuth(op, outcome string) {
	if m == nil {
		return
	}
	m.AuthTotal.WithLabelValues(op, outcome).Inc()
}

// ObserveSession counts one session cookie read.
func (m *Metrics) ObserveSession(outcome string) {
	if m == nil {
		return
	}
	m.SessionReads.WithLabelValues(outcome).Inc()
}

// ObserveRequest counts one served HTTP request.
func (m *Metrics) ObserveRequest(method string, status int) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
