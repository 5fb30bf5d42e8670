package prommetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements genai.Metrics using Prometheus.
type Metrics struct {
	generationsTotal    *prometheus.CounterVec
	generationDuration  *prometheus.HistogramVec
	fallbacksTotal      *prometheus.CounterVec
	promptTokensTotal   *prometheus.CounterVec
	responseTokensTotal *prometheus.CounterVec
	creditsDebitedTotal *prometheus.CounterVec
	debitFailuresTotal  *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		generationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Total number of completed generation requests.",
		}, []string{"feature", "source", "success"}),

		generationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "End-to-end latency of generation requests.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"feature", "source"}),

		fallbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Total number of fallback substitutions.",
		}, []string{"feature", "trigger"}),

		promptTokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prompt_tokens_total",
			Help:      "Total prompt tokens sent to the provider.",
		}, []string{"feature"}),

		responseTokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_tokens_total",
			Help:      "Total completion tokens returned by the provider.",
		}, []string{"feature"}),

		creditsDebitedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_debited_total",
			Help:      "Total credits debited for committed generations.",
		}, []string{"feature"}),

		debitFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "debit_failures_total",
			Help:      "Total debit attempts rejected or failed at commit time.",
		}, []string{"feature"}),
	}
}

func (m *Metrics) RecordGeneration(feature, source string, duration time.Duration, err error) {
	m.generationsTotal.WithLabelValues(feature, source, strconv.FormatBool(err == nil)).Inc()
	m.generationDuration.WithLabelValues(feature, source).Observe(duration.Seconds())
}

func (m *Metrics) RecordFallback(feature, trigger string) {
	m.fallbacksTotal.WithLabelValues(feature, trigger).Inc()
}

func (m *Metrics) RecordTokens(feature string, promptTokens, completionTokens int) {
	m.promptTokensTotal.WithLabelValues(feature).Add(float64(promptTokens))
	m.responseTokensTotal.WithLabelValues(feature).Add(float64(completionTokens))
}

func (m *Metrics) RecordDebit(feature string, amount int, success bool) {
	if success {
		m.creditsDebitedTotal.WithLabelValues(feature).Add(float64(amount))
		return
	}
	m.debitFailuresTotal.WithLabelValues(feature).Inc()
}

// DefaultMetrics returns a Metrics implementation using the default Prometheus registerer.
func DefaultMetrics(namespace string) *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}
