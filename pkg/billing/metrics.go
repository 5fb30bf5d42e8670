package billing

import "time"

// Metrics defines the interface for tracking billing provider operations.
// All methods are optional; providers handle a nil Metrics by substituting
// NoopMetrics.
type Metrics interface {
	// RecordWebhookEvent records a webhook event received from the provider.
	// status: "success" or "error"
	RecordWebhookEvent(provider, eventType, status string)

	// RecordWebhookProcessingDuration records how long a webhook took to process.
	RecordWebhookProcessingDuration(provider, eventType string, duration time.Duration)

	// RecordWebhookError records a webhook processing error.
	// errorType: e.g. "auth_failed", "invalid_payload", "processing_error"
	RecordWebhookError(provider, errorType string)

	// RecordGrant records credits granted from a completed purchase.
	RecordGrant(provider, pack string, credits int)

	// RecordAPICall records an outbound API call to the provider.
	// status: e.g. "success", "error"
	RecordAPICall(provider, endpoint, status string)

	// RecordAPICallDuration records how long an API call took.
	RecordAPICallDuration(provider, endpoint string, duration time.Duration)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordWebhookEvent(_, _, _ string)                            {}
func (n *NoopMetrics) RecordWebhookProcessingDuration(_, _ string, _ time.Duration) {}
func (n *NoopMetrics) RecordWebhookError(_, _ string)                               {}
func (n *NoopMetrics) RecordGrant(_, _ string, _ int)                               {}
func (n *NoopMetrics) RecordAPICall(_, _, _ string)                                 {}
func (n *NoopMetrics) RecordAPICallDuration(_, _ string, _ time.Duration)           {}
