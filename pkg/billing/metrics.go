package billing

import "time"

// Metrics tracks billing provider operations.
type Metrics interface {
	// RecordWebhookEvent records a webhook event. status: "handled", "ignored" or "error"
	RecordWebhookEvent(provider, eventType, status string)

	// RecordWebhookProcessingDuration records how long it took to process a webhook.
	RecordWebhookProcessingDuration(provider, eventType string, duration time.Duration)

	// RecordWebhookError records a webhook failure.
	// errorType: e.g. "invalid_signature", "invalid_payload", "missing_type", "processing_error"
	RecordWebhookError(provider, errorType string)

	// RecordAccountSync records an account synchronization. status: "success" or "error"
	RecordAccountSync(provider, status string)

	// RecordAccountSyncDuration records how long an account sync took.
	RecordAccountSyncDuration(provider string, duration time.Duration)

	// RecordPlanChange records an account moving between plans.
	RecordPlanChange(provider, fromPlan, toPlan string)

	// RecordAPICall records an API call to the billing provider. status: "success" or "error"
	RecordAPICall(provider, endpoint, status string)

	// RecordAPICallDuration records how long an API call took.
	RecordAPICallDuration(provider, endpoint string, duration time.Duration)

	// RecordNotification records an owner email attempt.
	// kind: e.g. "welcome", "renewal"; status: "sent", "rate_limited" or "failed"
	RecordNotification(kind, status string)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordWebhookEvent(_, _, _ string)                            {}
func (n *NoopMetrics) RecordWebhookProcessingDuration(_, _ string, _ time.Duration) {}
func (n *NoopMetrics) RecordWebhookError(_, _ string)                               {}
func (n *NoopMetrics) RecordAccountSync(_, _ string)                                {}
func (n *NoopMetrics) RecordAccountSyncDuration(_ string, _ time.Duration)          {}
func (n *NoopMetrics) RecordPlanChange(_, _, _ string)                              {}
func (n *NoopMetrics) RecordAPICall(_, _, _ string)                                 {}
func (n *NoopMetrics) RecordAPICallDuration(_, _ string, _ time.Duration)           {}
func (n *NoopMetrics) RecordNotification(_, _ string)                               {}
