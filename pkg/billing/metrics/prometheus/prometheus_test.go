package prommetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "menuqr")

	m.RecordWebhookEvent("stripe", "customer.subscription.deleted", "handled")
	m.RecordWebhookEvent("stripe", "customer.subscription.deleted", "handled")
	m.RecordWebhookError("stripe", "invalid_signature")
	m.RecordPlanChange("stripe", "pro", "free")
	m.RecordNotification("subscription_ended", "rate_limited")
	m.RecordWebhookProcessingDuration("stripe", "invoice.payment_succeeded", 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.webhookEventsTotal.WithLabelValues("stripe", "customer.subscription.deleted", "handled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhookErrorsTotal.WithLabelValues("stripe", "invalid_signature")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.planChangesTotal.WithLabelValues("stripe", "pro", "free")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notificationsTotal.WithLabelValues("subscription_ended", "rate_limited")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.webhookProcessingDuration))
}
