package stripe

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mihaimyh/menuqr/pkg/billing"
	"github.com/mihaimyh/menuqr/pkg/menuqr"
	"github.com/mihaimyh/menuqr/pkg/notify"
	"github.com/mihaimyh/menuqr/storage/memory"
)

func newTestProvider(t *testing.T, notifier notify.Sender, mutate ...func(*Config)) (*Provider, *memory.Storage, *fakeAPI) {
	t.Helper()
	store := memory.New()
	api := newFakeAPI()
	cfg := Config{
		Config: billing.Config{
			Accounts:       store,
			Events:         store,
			Notifier:       notifier,
			WebhookSecret:  testWebhookSecret,
			CheckoutPrices: map[string]string{"pro_monthly": testProPriceID},
		},
		ProPriceID: testProPriceID,
		API:        api,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	p, err := NewProvider(cfg)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if err := store.SaveAccount(context.Background(), &menuqr.Account{
		ID: testAccountID, Email: testEmail, BillingCustomerID: testCustomerID, Plan: menuqr.PlanPro,
	}); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return p, store, api
}

func postWebhook(t *testing.T, h http.Handler, payload []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/billing/webhook", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewProvider_Validation(t *testing.T) {
	store := memory.New()
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing accounts", Config{Config: billing.Config{WebhookSecret: testWebhookSecret}, API: newFakeAPI()}},
		{"missing secret", Config{Config: billing.Config{Accounts: store}, API: newFakeAPI()}},
		{"missing api key", Config{Config: billing.Config{Accounts: store, WebhookSecret: testWebhookSecret}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewProvider(tt.cfg); err != billing.ErrProviderNotConfigured {
				t.Errorf("NewProvider() error = %v, want ErrProviderNotConfigured", err)
			}
		})
	}

	p, err := NewProvider(Config{Config: billing.Config{Accounts: store, WebhookSecret: testWebhookSecret, APIKey: "sk_test_123"}})
	if err != nil {
		t.Fatalf("NewProvider() with api key error = %v", err)
	}
	if p.Name() != "stripe" {
		t.Errorf("Name() = %q", p.Name())
	}
}

func TestWebhookHandler_Responses(t *testing.T) {
	updated := eventPayload(t, EventSubscriptionUpdated, subscriptionObject(testCustomerID, 1700000000, true, testProPriceID))
	unknownCustomer := eventPayload(t, EventSubscriptionUpdated, subscriptionObject("cus_other", 1700000000, true, testProPriceID))
	unhandled := eventPayload(t, "customer.created", map[string]interface{}{"id": "cus_1"})
	missingType := []byte(`{"id":"evt_x","data":{"object":{}}}`)
	now := time.Now()

	tests := []struct {
		name      string
		payload   []byte
		signature string
		notifier  notify.Sender
		wantCode  int
		wantBody  string
	}{
		{"handled", updated, sign(t, updated, testWebhookSecret, now), nil, http.StatusOK, bodyHandled},
		{"unknown customer", unknownCustomer, sign(t, unknownCustomer, testWebhookSecret, now), nil, http.StatusOK, bodyHandled},
		{"unhandled type", unhandled, sign(t, unhandled, testWebhookSecret, now), nil, http.StatusOK, bodyHandled},
		{"bad signature", updated, sign(t, updated, "whsec_wrong", now), nil, http.StatusBadRequest, bodyInvalidSignature},
		{"missing signature", updated, "", nil, http.StatusBadRequest, bodyInvalidSignature},
		{"malformed json", []byte(`{"type":`), sign(t, []byte(`{"type":`), testWebhookSecret, now), nil, http.StatusBadRequest, bodyInvalidPayload},
		{"missing type", missingType, sign(t, missingType, testWebhookSecret, now), nil, http.StatusBadRequest, bodyMissingType},
		{"empty body", nil, "", nil, http.StatusBadRequest, bodyInvalidPayload},
		{
			"notification failure", updated, sign(t, updated, testWebhookSecret, now),
			notify.NewRecorder(notify.Failed(context.DeadlineExceeded)),
			http.StatusInternalServerError, bodyProcessingFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _, _ := newTestProvider(t, tt.notifier)
			rec := postWebhook(t, p.WebhookHandler(), tt.payload, tt.signature)
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if got := strings.TrimSpace(rec.Body.String()); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
			if rec.Header().Get("Cache-Control") != "no-store" {
				t.Error("missing Cache-Control header")
			}
		})
	}
}

func TestWebhookHandler_MethodAndSize(t *testing.T) {
	p, _, _ := newTestProvider(t, nil)
	h := p.WebhookHandler()

	req := httptest.NewRequest(http.MethodGet, "/billing/webhook", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", rec.Code)
	}

	big := bytes.Repeat([]byte("a"), 300<<10)
	rec = postWebhook(t, h, big, "t=1,v1=x")
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized status = %d, want 413", rec.Code)
	}
}

func TestWebhookHandler_AppliesEvent(t *testing.T) {
	recorder := notify.NewRecorder()
	p, store, _ := newTestProvider(t, recorder)
	payload := eventPayload(t, EventSubscriptionUpdated, subscriptionObject(testCustomerID, 1700000000, true, testProPriceID))

	rec := postWebhook(t, p.WebhookHandler(), payload, sign(t, payload, testWebhookSecret, time.Now()))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	acc, err := store.GetAccount(context.Background(), testAccountID)
	if err != nil {
		t.Fatal(err)
	}
	if !acc.IsCancellationPending || acc.PeriodEndsAt == nil {
		t.Errorf("account not updated: %+v", acc)
	}
	if len(recorder.Messages()) != 1 {
		t.Errorf("sent %d notifications", len(recorder.Messages()))
	}
}

func TestWebhookHandler_AllowUnsigned(t *testing.T) {
	p, _, _ := newTestProvider(t, nil, func(c *Config) { c.AllowUnsigned = true })
	payload := eventPayload(t, EventSubscriptionUpdated, subscriptionObject(testCustomerID, 1700000000, false, testProPriceID))

	if rec := postWebhook(t, p.WebhookHandler(), payload, ""); rec.Code != http.StatusOK {
		t.Errorf("unsigned status = %d, want 200", rec.Code)
	}
	if rec := postWebhook(t, p.WebhookHandler(), payload, "t=1,v1=bad"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad signature status = %d, want 400", rec.Code)
	}
}

func TestWebhookHandler_RateLimited(t *testing.T) {
	p, _, _ := newTestProvider(t, nil, func(c *Config) {
		c.RateLimitRequests = 2
		c.RateLimitWindow = time.Hour
	})
	h := p.WebhookHandler()
	payload := eventPayload(t, "customer.created", map[string]interface{}{"id": "cus_1"})

	var last int
	for i := 0; i < 3; i++ {
		last = postWebhook(t, h, payload, sign(t, payload, testWebhookSecret, time.Now())).Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", last)
	}
}

func TestWebhookHandler_NotRateLimitedByDefault(t *testing.T) {
	p, _, _ := newTestProvider(t, nil)
	h := p.WebhookHandler()

	for i := 0; i < 300; i++ {
		payload := eventPayload(t, "customer.created", map[string]interface{}{"id": "cus_1"})
		if code := postWebhook(t, h, payload, sign(t, payload, testWebhookSecret, time.Now())).Code; code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, code)
		}
	}
}
