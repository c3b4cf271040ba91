package stripe

import (
	"errors"
	"net/http"
	"time"

	"github.com/mihaimyh/menuqr/pkg/billing"
	"github.com/mihaimyh/menuqr/pkg/billing/internal"
	"github.com/mihaimyh/menuqr/pkg/menuqr"
)

// Response bodies of the webhook endpoint.
const (
	bodyHandled          = "Webhook handled"
	bodyInvalidPayload   = "Invalid payload"
	bodyInvalidSignature = "Invalid signature"
	bodyMissingType      = "Missing event type"
	bodyProcessingFailed = "Webhook processing failed"
)

// handleWebhook verifies, decodes and reconciles one Stripe delivery.
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		internal.WriteText(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	body, err := internal.ReadBodyStrict(w, r, internal.MaxWebhookBody)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			p.metrics.RecordWebhookError(providerName, "payload_too_large")
			internal.WriteText(w, http.StatusRequestEntityTooLarge, "Payload too large")
			return
		}
		p.metrics.RecordWebhookError(providerName, "invalid_payload")
		internal.WriteText(w, http.StatusBadRequest, bodyInvalidPayload)
		return
	}

	event, err := p.verifier.Verify(body, r.Header.Get(SignatureHeader))
	if err != nil {
		p.rejectEvent(w, err)
		return
	}

	outcome, err := p.reconciler.Reconcile(r.Context(), event)
	p.metrics.RecordWebhookProcessingDuration(providerName, event.Type, time.Since(startTime))
	if err != nil {
		p.logger.Error("stripe webhook processing failed",
			menuqr.F("event_id", event.ID),
			menuqr.F("event_type", event.Type),
			menuqr.F("customer_id", event.CustomerID()),
			menuqr.Err(err),
		)
		p.metrics.RecordWebhookEvent(providerName, event.Type, "error")
		p.metrics.RecordWebhookError(providerName, "processing_error")
		internal.WriteText(w, http.StatusInternalServerError, bodyProcessingFailed)
		return
	}

	status := "handled"
	if !outcome.Handled {
		status = "ignored"
	}
	p.metrics.RecordWebhookEvent(providerName, event.Type, status)
	internal.WriteText(w, http.StatusOK, bodyHandled)
}

func (p *Provider) rejectEvent(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, billing.ErrInvalidSignature):
		p.logger.Warn("stripe webhook signature rejected", menuqr.Err(err))
		p.metrics.RecordWebhookError(providerName, "invalid_signature")
		internal.WriteText(w, http.StatusBadRequest, bodyInvalidSignature)
	case errors.Is(err, billing.ErrMissingEventType):
		p.metrics.RecordWebhookError(providerName, "missing_type")
		internal.WriteText(w, http.StatusBadRequest, bodyMissingType)
	default:
		p.logger.Warn("stripe webhook payload rejected", menuqr.Err(err))
		p.metrics.RecordWebhookError(providerName, "invalid_payload")
		internal.WriteText(w, http.StatusBadRequest, bodyInvalidPayload)
	}
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
