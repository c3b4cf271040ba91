package stripe

import (
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mihaimyh/menuqr/pkg/billing"
)

func sign(t *testing.T, payload []byte, secret string, at time.Time) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: at,
	})
	return signed.Header
}

func TestVerifier_Verify(t *testing.T) {
	payload := eventPayload(t, EventSubscriptionUpdated, subscriptionObject(testCustomerID, 1700000000, true, ""))
	now := time.Now()

	tests := []struct {
		name      string
		verifier  Verifier
		payload   []byte
		signature string
		wantErr   error
	}{
		{
			name:      "valid signature",
			verifier:  Verifier{Secret: testWebhookSecret},
			payload:   payload,
			signature: sign(t, payload, testWebhookSecret, now),
		},
		{
			name:      "wrong secret",
			verifier:  Verifier{Secret: testWebhookSecret},
			payload:   payload,
			signature: sign(t, payload, "whsec_other", now),
			wantErr:   billing.ErrInvalidSignature,
		},
		{
			name:      "expired signature",
			verifier:  Verifier{Secret: testWebhookSecret, Tolerance: time.Minute},
			payload:   payload,
			signature: sign(t, payload, testWebhookSecret, now.Add(-time.Hour)),
			wantErr:   billing.ErrInvalidSignature,
		},
		{
			name:      "tampered payload",
			verifier:  Verifier{Secret: testWebhookSecret},
			payload:   append([]byte(" "), payload...),
			signature: sign(t, payload, testWebhookSecret, now),
			wantErr:   billing.ErrInvalidSignature,
		},
		{
			name:     "missing signature",
			verifier: Verifier{Secret: testWebhookSecret},
			payload:  payload,
			wantErr:  billing.ErrInvalidSignature,
		},
		{
			name:     "missing signature allowed",
			verifier: Verifier{Secret: testWebhookSecret, AllowUnsigned: true},
			payload:  payload,
		},
		{
			name:      "bad signature rejected even when unsigned allowed",
			verifier:  Verifier{Secret: testWebhookSecret, AllowUnsigned: true},
			payload:   payload,
			signature: "t=1,v1=deadbeef",
			wantErr:   billing.ErrInvalidSignature,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := tt.verifier.Verify(tt.payload, tt.signature)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Verify() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify() unexpected error: %v", err)
			}
			if ev.Kind != KindSubscriptionUpdated {
				t.Errorf("Kind = %v, want %v", ev.Kind, KindSubscriptionUpdated)
			}
			if ev.CustomerID() != testCustomerID {
				t.Errorf("CustomerID() = %q, want %q", ev.CustomerID(), testCustomerID)
			}
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{"malformed json", `{"type":`, billing.ErrInvalidWebhookPayload},
		{"missing type", `{"id":"evt_1","data":{"object":{}}}`, billing.ErrMissingEventType},
		{"handled type without object", `{"id":"evt_1","type":"customer.subscription.created"}`, billing.ErrInvalidWebhookPayload},
		{"object of wrong shape", `{"id":"evt_1","type":"invoice.payment_succeeded","data":{"object":{"lines":"x"}}}`, billing.ErrInvalidWebhookPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.payload))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Decode() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecode_UnhandledType(t *testing.T) {
	ev, err := Decode([]byte(`{"id":"evt_1","type":"charge.refunded","data":{"object":{"id":"ch_1"}}}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if ev.Kind != KindUnhandled || ev.Subscription != nil || ev.Invoice != nil {
		t.Errorf("unexpected decode result: %+v", ev)
	}
}

func TestDecode_ExpandedReferences(t *testing.T) {
	payload := `{"id":"evt_1","type":"invoice.payment_succeeded","data":{"object":{
		"customer":{"id":"cus_9","object":"customer"},
		"parent":{"subscription_details":{"subscription":"sub_9"}},
		"payments":{"data":[{"payment":{"payment_intent":{"id":"pi_9"}}}]},
		"default_payment_method":"card_legacy",
		"payment_method":"pm_9",
		"lines":{"data":[{"period":{"end":1700000000}}]}
	}}}`
	ev, err := Decode([]byte(payload))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	in := ev.Invoice
	if ev.CustomerID() != "cus_9" {
		t.Errorf("CustomerID() = %q", ev.CustomerID())
	}
	if in.SubscriptionID() != "sub_9" {
		t.Errorf("SubscriptionID() = %q", in.SubscriptionID())
	}
	if in.PaymentIntentID() != "pi_9" {
		t.Errorf("PaymentIntentID() = %q", in.PaymentIntentID())
	}
	if in.OwnPaymentMethod() != "pm_9" {
		t.Errorf("OwnPaymentMethod() = %q", in.OwnPaymentMethod())
	}
	if end, ok := in.PeriodEnd(); !ok || end != 1700000000 {
		t.Errorf("PeriodEnd() = %d, %v", end, ok)
	}
}

func TestSubscription_PeriodEndFallbacks(t *testing.T) {
	tests := []struct {
		name string
		sub  Subscription
		want int64
		ok   bool
	}{
		{"item period", Subscription{CurrentPeriodEnd: 2, Items: itemsWithEnd(1)}, 1, true},
		{"top level", Subscription{CurrentPeriodEnd: 2, EndedAt: 3}, 2, true},
		{"ended at", Subscription{EndedAt: 3}, 3, true},
		{"absent", Subscription{}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.sub.PeriodEnd()
			if got != tt.want || ok != tt.ok {
				t.Errorf("PeriodEnd() = %d, %v; want %d, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func itemsWithEnd(end int64) struct {
	Data []SubscriptionItem `json:"data"`
} {
	return struct {
		Data []SubscriptionItem `json:"data"`
	}{Data: []SubscriptionItem{{CurrentPeriodEnd: end}}}
}
