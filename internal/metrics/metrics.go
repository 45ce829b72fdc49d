// Package metrics provides Prometheus instrumentation for the risk scorer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensource-finance/riskscore/internal/circuit"
	"github.com/opensource-finance/riskscore/internal/domain"
)

const namespace = "riskscore"

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ScoreCalculations  *prometheus.CounterVec
	ScoreDuration      prometheus.Histogram
	RuleSignals        *prometheus.CounterVec
	RuleFallbacks      *prometheus.CounterVec
	CircuitTransitions *prometheus.CounterVec
	AuditFailures      prometheus.Counter
	ScoreAlerts        *prometheus.CounterVec
}

// New creates the collectors on a dedicated registry, so tests can build
// as many instances as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ScoreCalculations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_calculations_total",
			Help:      "Total risk scores calculated by risk level.",
		}, []string{"level"}),
		ScoreDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "score_calculation_seconds",
			Help:      "Time spent calculating a risk score.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		RuleSignals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_signals_total",
			Help:      "Rule signals emitted by reason code and outcome.",
		}, []string{"reason_code", "triggered"}),
		RuleFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_fallbacks_total",
			Help:      "Rule evaluations answered by a fallback signal.",
		}, []string{"reason_code"}),
		CircuitTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_transitions_total",
			Help:      "Circuit breaker state transitions.",
		}, []string{"name", "from", "to"}),
		AuditFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_failures_total",
			Help:      "Audit records that could not be persisted.",
		}),
		ScoreAlerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_alerts_total",
			Help:      "Alert events consumed from the event bus by risk level.",
		}, []string{"level"}),
	}
}

// ObserveScore records a completed calculation.
func (m *Metrics) ObserveScore(level domain.RiskLevel, d time.Duration) {
	if m == nil {
		return
	}
	m.ScoreCalculations.WithLabelValues(string(level)).Inc()
	m.ScoreDuration.Observe(d.Seconds())
}

// ObserveSignal records a single rule outcome.
func (m *Metrics) ObserveSignal(sig domain.RiskSignal) {
	if m == nil {
		return
	}
	m.RuleSignals.WithLabelValues(sig.ReasonCode, strconv.FormatBool(sig.Triggered)).Inc()
}

// RuleFallback records a rule answered by its fallback.
func (m *Metrics) RuleFallback(reasonCode string, _ error) {
	if m == nil {
		return
	}
	m.RuleFallbacks.WithLabelValues(reasonCode).Inc()
}

// CircuitTransition matches circuit.TransitionFunc.
func (m *Metrics) CircuitTransition(name string, from, to circuit.State) {
	if m == nil {
		return
	}
	m.CircuitTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
}

// AuditFailure records a failed audit write.
func (m *Metrics) AuditFailure() {
	if m == nil {
		return
	}
	m.AuditFailures.Inc()
}

// ScoreAlert counts a consumed alert event.
func (m *Metrics) ScoreAlert(level domain.RiskLevel) {
	if m == nil {
		return
	}
	m.ScoreAlerts.WithLabelValues(string(level)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
