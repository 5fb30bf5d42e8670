package genai

import "time"

// Metrics defines the interface for tracking pipeline operations.
type Metrics interface {
	// RecordGeneration records one completed pipeline run.
	RecordGeneration(feature, source string, duration time.Duration, err error)

	// RecordFallback records a fallback substitution and its trigger
	// ("provider_error", "malformed_response", "incomplete_response").
	RecordFallback(feature, trigger string)

	// RecordTokens records provider-reported token usage.
	RecordTokens(feature string, promptTokens, completionTokens int)

	// RecordDebit records a credit debit attempt.
	RecordDebit(feature string, amount int, success bool)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordGeneration(feature, source string, duration time.Duration, err error) {}
func (n *NoopMetrics) RecordFallback(feature, trigger string)                                     {}
func (n *NoopMetrics) RecordTokens(feature string, promptTokens, completionTokens int)            {}
func (n *NoopMetrics) RecordDebit(feature string, amount int, success bool)                       {}
