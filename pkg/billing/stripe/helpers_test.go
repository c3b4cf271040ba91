package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mihaimyh/menuqr/pkg/billing"
	"github.com/mihaimyh/menuqr/pkg/menuqr"
	"github.com/mihaimyh/menuqr/pkg/notify"
	"github.com/mihaimyh/menuqr/storage/memory"
)

const (
	testWebhookSecret = "whsec_test_secret"
	testProPriceID    = "price_pro_monthly"
	testCustomerID    = "cus_1"
	testAccountID     = "acc_1"
	testEmail         = "owner@example.com"
)

var errLookup = errors.New("stripe unavailable")

// fakeAPI is an in-memory BillingAPI.
type fakeAPI struct {
	mu sync.Mutex

	subscriptionPM map[string]string
	intentPM       map[string]string
	lookupErr      error
	subscriptions  map[string][]SubscriptionSummary

	lookups   []string
	customers []string
	checkouts []CheckoutRequest
	canceled  []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		subscriptionPM: map[string]string{},
		intentPM:       map[string]string{},
		subscriptions:  map[string][]SubscriptionSummary{},
	}
}

func (f *fakeAPI) SubscriptionPaymentMethod(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, id)
	if f.lookupErr != nil {
		return "", f.lookupErr
	}
	return f.subscriptionPM[id], nil
}

func (f *fakeAPI) PaymentIntentPaymentMethod(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, id)
	if f.lookupErr != nil {
		return "", f.lookupErr
	}
	return f.intentPM[id], nil
}

func (f *fakeAPI) Subscriptions(_ context.Context, customerID string) ([]SubscriptionSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscriptions[customerID], nil
}

func (f *fakeAPI) CreateCustomer(_ context.Context, accountID, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customers = append(f.customers, accountID)
	return "cus_new_" + accountID, nil
}

func (f *fakeAPI) CreateCheckoutSession(_ context.Context, req CheckoutRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkouts = append(f.checkouts, req)
	return "https://checkout.stripe.test/" + req.PriceID, nil
}

func (f *fakeAPI) CreatePortalSession(_ context.Context, customerID, _ string) (string, error) {
	return "https://billing.stripe.test/" + customerID, nil
}

func (f *fakeAPI) CancelSubscription(_ context.Context, subscriptionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, subscriptionID)
	return nil
}

// countingStore counts SaveAccount calls on top of memory storage.
type countingStore struct {
	*memory.Storage
	mu    sync.Mutex
	saves int
}

func (s *countingStore) SaveAccount(ctx context.Context, acc *menuqr.Account) error {
	s.mu.Lock()
	s.saves++
	s.mu.Unlock()
	return s.Storage.SaveAccount(ctx, acc)
}

func (s *countingStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type fixture struct {
	store    *countingStore
	api      *fakeAPI
	notifier *notify.Recorder
	rec      *Reconciler
}

func newFixture(t *testing.T, results ...notify.Result) *fixture {
	t.Helper()
	f := &fixture{
		store:    &countingStore{Storage: memory.New()},
		api:      newFakeAPI(),
		notifier: notify.NewRecorder(results...),
	}
	rec, err := NewReconciler(billing.Config{
		Accounts: f.store,
		Events:   f.store.Storage,
		Notifier: f.notifier,
		PlanMapping: map[string]menuqr.Plan{
			testProPriceID: menuqr.PlanPro,
		},
	}, f.api)
	if err != nil {
		t.Fatalf("NewReconciler: %v", err)
	}
	f.rec = rec
	return f
}

func (f *fixture) seed(t *testing.T, acc *menuqr.Account) {
	t.Helper()
	if acc.ID == "" {
		acc.ID = testAccountID
	}
	if acc.Email == "" {
		acc.Email = testEmail
	}
	if acc.BillingCustomerID == "" {
		acc.BillingCustomerID = testCustomerID
	}
	if acc.Plan == "" {
		acc.Plan = menuqr.PlanFree
	}
	if err := f.store.Storage.SaveAccount(context.Background(), acc); err != nil {
		t.Fatalf("seed account: %v", err)
	}
}

func (f *fixture) account(t *testing.T) *menuqr.Account {
	t.Helper()
	acc, err := f.store.GetAccount(context.Background(), testAccountID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return acc
}

func (f *fixture) reconcile(t *testing.T, payload []byte) (Outcome, error) {
	t.Helper()
	ev, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return f.rec.Reconcile(context.Background(), ev)
}

var eventSeq int

func eventPayload(t *testing.T, eventType string, object map[string]interface{}) []byte {
	t.Helper()
	eventSeq++
	body, err := json.Marshal(map[string]interface{}{
		"id":          fmt.Sprintf("evt_%d", eventSeq),
		"object":      "event",
		"type":        eventType,
		"created":     1700000000 + eventSeq,
		"api_version": "2025-03-31.basil",
		"data":        map[string]interface{}{"object": object},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return body
}

func subscriptionObject(customerID string, periodEnd int64, cancelAtPeriodEnd bool, priceID string) map[string]interface{} {
	item := map[string]interface{}{"current_period_end": periodEnd}
	if priceID != "" {
		item["price"] = map[string]interface{}{"id": priceID}
	}
	return map[string]interface{}{
		"id":                   "sub_1",
		"object":               "subscription",
		"customer":             customerID,
		"status":               "active",
		"cancel_at_period_end": cancelAtPeriodEnd,
		"items":                map[string]interface{}{"data": []interface{}{item}},
	}
}

func invoiceObject(customerID, billingReason string, periodEnd int64) map[string]interface{} {
	lines := []interface{}{}
	if periodEnd > 0 {
		lines = append(lines, map[string]interface{}{"period": map[string]interface{}{"end": periodEnd}})
	}
	return map[string]interface{}{
		"id":             "in_1",
		"object":         "invoice",
		"customer":       customerID,
		"billing_reason": billingReason,
		"subscription":   "sub_1",
		"lines":          map[string]interface{}{"data": lines},
	}
}

func timePtr(t time.Time) *time.Time { return &t }
