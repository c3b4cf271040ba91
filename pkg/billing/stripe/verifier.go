package stripe

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mihaimyh/menuqr/pkg/billing"
)

// SignatureHeader is the request header carrying the Stripe signature.
const SignatureHeader = "Stripe-Signature"

// Verifier authenticates raw webhook payloads and decodes them into Events.
type Verifier struct {
	Secret string

	// AllowUnsigned accepts payloads without a signature header (local testing only).
	// A present but invalid signature is always rejected.
	AllowUnsigned bool

	// Tolerance is the maximum signature age (default: 5 minutes)
	Tolerance time.Duration
}

// Verify checks the signature over the exact payload bytes, then decodes the event.
// It returns billing.ErrInvalidSignature, billing.ErrInvalidWebhookPayload or
// billing.ErrMissingEventType on failure. It has no side effects.
func (v *Verifier) Verify(payload []byte, signature string) (*Event, error) {
	if signature == "" {
		if !v.AllowUnsigned {
			return nil, fmt.Errorf("%w: missing %s header", billing.ErrInvalidSignature, SignatureHeader)
		}
	} else {
		tolerance := v.Tolerance
		if tolerance <= 0 {
			tolerance = webhook.DefaultTolerance
		}
		if err := webhook.ValidatePayloadWithTolerance(payload, signature, v.Secret, tolerance); err != nil {
			return nil, fmt.Errorf("%w: %v", billing.ErrInvalidSignature, err)
		}
	}
	return Decode(payload)
}

// Decode parses an already authenticated payload.
func Decode(payload []byte) (*Event, error) {
	var envelope stripe.Event
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", billing.ErrInvalidWebhookPayload, err)
	}
	if envelope.Type == "" {
		return nil, billing.ErrMissingEventType
	}

	ev := &Event{
		ID:         envelope.ID,
		Type:       string(envelope.Type),
		Kind:       kindOf(string(envelope.Type)),
		Created:    time.Unix(envelope.Created, 0).UTC(),
		APIVersion: envelope.APIVersion,
		Livemode:   envelope.Livemode,
	}
	if ev.Kind == KindUnhandled {
		return ev, nil
	}
	if envelope.Data == nil || len(envelope.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: %s without data.object", billing.ErrInvalidWebhookPayload, ev.Type)
	}

	switch ev.Kind {
	case KindInvoicePaymentSucceeded:
		var in Invoice
		if err := json.Unmarshal(envelope.Data.Raw, &in); err != nil {
			return nil, fmt.Errorf("%w: invoice: %v", billing.ErrInvalidWebhookPayload, err)
		}
		ev.Invoice = &in
	default:
		var sub Subscription
		if err := json.Unmarshal(envelope.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: subscription: %v", billing.ErrInvalidWebhookPayload, err)
		}
		ev.Subscription = &sub
	}
	return ev, nil
}
