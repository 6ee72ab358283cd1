// Package metrics holds the Prometheus instruments of the analysis pipeline.
//
// All methods are safe on a nil *Metrics so callers can run without instrumentation.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sentinel"

// Metrics groups the pipeline counters and histograms.
type Metrics struct {
	// RunsTotal counts completed analyses. Labels: status (GO, NO-GO), risk
	RunsTotal *prometheus.CounterVec

	// RunDurationSeconds measures a full pipeline run.
	RunDurationSeconds prometheus.Histogram

	// CapabilityCallsTotal counts capability calls. Labels: capability, outcome (ok, error)
	CapabilityCallsTotal *prometheus.CounterVec

	// CapabilityDurationSeconds measures single capability calls. Labels: capability
	CapabilityDurationSeconds *prometheus.HistogramVec

	// FindingsTotal counts findings by capability and severity.
	FindingsTotal *prometheus.CounterVec

	// SignalsTotal counts local signals by type.
	SignalsTotal *prometheus.CounterVec

	// EscalationsTotal counts escalation decisions. Labels: risk, notify (true, false)
	EscalationsTotal *prometheus.CounterVec

	// AlertsTotal counts alert deliveries. Labels: outcome (sent, failed)
	AlertsTotal *prometheus.CounterVec

	// IngestErrorsTotal counts rejected submissions. Labels: source (text, pdf, github)
	IngestErrorsTotal *prometheus.CounterVec
}

// New registers the instruments on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed pipeline runs by status and risk level.",
		}, []string{"status", "risk"}),
		RunDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of full pipeline runs.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		CapabilityCallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capability",
			Name:      "calls_total",
			Help:      "Capability calls by outcome.",
		}, []string{"capability", "outcome"}),
		CapabilityDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "capability",
			Name:      "duration_seconds",
			Help:      "Duration of single capability calls.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"capability"}),
		FindingsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "findings_total",
			Help:      "Findings by capability and severity.",
		}, []string{"capability", "severity"}),
		SignalsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Local signals by type.",
		}, []string{"type"}),
		EscalationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Escalation decisions by risk level and outcome.",
		}, []string{"risk", "notify"}),
		AlertsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alert deliveries by outcome.",
		}, []string{"outcome"}),
		IngestErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_errors_total",
			Help:      "Rejected submissions by source.",
		}, []string{"source"}),
	}
}

func (m *Metrics) ObserveRun(status, risk string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status, risk).Inc()
	m.RunDurationSeconds.Observe(d.Seconds())
}

func (m *Metrics) ObserveCapability(capability string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.CapabilityCallsTotal.WithLabelValues(capability, outcome).Inc()
	m.CapabilityDurationSeconds.WithLabelValues(capability).Observe(d.Seconds())
}

func (m *Metrics) AddFinding(capability, severity string) {
	if m == nil {
		return
	}
	m.FindingsTotal.WithLabelValues(capability, severity).Inc()
}

func (m *Metrics) AddSignal(signalType string) {
	if m == nil {
		return
	}
	m.SignalsTotal.WithLabelValues(signalType).Inc()
}

func (m *Metrics) ObserveEscalation(risk string, notify bool) {
	if m == nil {
		return
	}
	m.EscalationsTotal.WithLabelValues(risk, strconv.FormatBool(notify)).Inc()
}

func (m *Metrics) ObserveAlert(sent bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if sent {
		outcome = "sent"
	}
	m.AlertsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IngestError(source string) {
	if m == nil {
		return
	}
	m.IngestErrorsTotal.WithLabelValues(source).Inc()
}
