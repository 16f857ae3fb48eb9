// Package metrics provides Prometheus metrics for the scouting engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	StepsTotal           *prometheus.CounterVec
	StepDuration         prometheus.Histogram
	ItemsTotal           *prometheus.CounterVec
	RiskAssessmentsTotal *prometheus.CounterVec
	RiskLevel            prometheus.Gauge
	CaptureFailuresTotal prometheus.Counter
	PersistErrorsTotal   prometheus.Counter
	NotificationsTotal   *prometheus.CounterVec
	CommandsTotal        *prometheus.CounterVec
	RequestsTotal        *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		StepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scout_steps_total",
				Help: "Total session steps by outcome.",
			},
			[]string{"outcome"},
		),
		StepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scout_step_duration_seconds",
				Help:    "Wall time of one session step, including device pauses.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		),
		ItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scout_items_total",
				Help: "Items written by resulting status.",
			},
			[]string{"status"},
		),
		RiskAssessmentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scout_risk_assessments_total",
				Help: "Risk assessments by level.",
			},
			[]string{"level"},
		),
		RiskLevel: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "scout_risk_level",
				Help: "Last assessed risk level (0 safe, 1 warning, 2 high risk).",
			},
		),
		CaptureFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "scout_capture_failures_total",
				Help: "Kept items whose external reference could not be captured.",
			},
		),
		PersistErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "scout_persist_errors_total",
				Help: "Failed state commits.",
			},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scout_notifications_total",
				Help: "Outbound notifications by kind and result.",
			},
			[]string{"kind", "result"},
		),
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scout_commands_total",
				Help: "Operator commands handled.",
			},
			[]string{"command"},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scout_mgmt_requests_total",
				Help: "Management API requests by route and status class.",
			},
			[]string{"route", "status"},
		),
		registry: reg,
	}

	reg.MustRegister(m.StepsTotal)
	reg.MustRegister(m.StepDuration)
	reg.MustRegister(m.ItemsTotal)
	reg.MustRegister(m.RiskAssessmentsTotal)
	reg.MustRegister(m.RiskLevel)
	reg.MustRegister(m.CaptureFailuresTotal)
	reg.MustRegister(m.PersistErrorsTotal)
	reg.MustRegister(m.NotificationsTotal)
	reg.MustRegister(m.CommandsTotal)
	reg.MustRegister(m.RequestsTotal)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordStep counts one step and its duration.
func (m *Metrics) RecordStep(outcome string, seconds float64) {
	m.StepsTotal.WithLabelValues(outcome).Inc()
	m.StepDuration.Observe(seconds)
}

// RecordItem counts an item write.
func (m *Metrics) RecordItem(status string) {
	m.ItemsTotal.WithLabelValues(status).Inc()
}

// RecordRisk counts an assessment and updates the level gauge.
func (m *Metrics) RecordRisk(level string) {
	m.RiskAssessmentsTotal.WithLabelValues(level).Inc()
	switch level {
	case "HIGH_RISK":
		m.RiskLevel.Set(2)
	case "WARNING":
		m.RiskLevel.Set(1)
	default:
		m.RiskLevel.Set(0)
	}
}

// RecordCaptureFailure increments the capture failure counter.
func (m *Metrics) RecordCaptureFailure() {
	m.CaptureFailuresTotal.Inc()
}

// RecordPersistError increments the persistence error counter.
func (m *Metrics) RecordPersistError() {
	m.PersistErrorsTotal.Inc()
}

// RecordNotification counts an outbound notification attempt.
func (m *Metrics) RecordNotification(kind, result string) {
	m.NotificationsTotal.WithLabelValues(kind, result).Inc()
}

// RecordCommand counts an operator command.
func (m *Metrics) RecordCommand(command string) {
	m.CommandsTotal.WithLabelValues(command).Inc()
}

// RecordRequest counts a management API request.
func (m *Metrics) RecordRequest(route, status string) {
	m.RequestsTotal.WithLabelValues(route, status).Inc()
}
