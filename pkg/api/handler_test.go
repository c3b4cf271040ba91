package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mihaimyh/menuqr/pkg/billing"
	"github.com/mihaimyh/menuqr/pkg/menuqr"
	"github.com/mihaimyh/menuqr/storage/memory"
)

const (
	testProID  = "owner_pro"
	testFreeID = "owner_free"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeBilling struct {
	checkoutKey string
	canceled    []string
	syncPlan    menuqr.Plan
	err         error
	webhookHits int
}

func (f *fakeBilling) Name() string { return "fake" }

func (f *fakeBilling) WebhookHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.webhookHits++
		_, _ = w.Write([]byte("Webhook handled"))
	})
}

func (f *fakeBilling) SyncAccount(context.Context, string) (menuqr.Plan, error) {
	return f.syncPlan, f.err
}

func (f *fakeBilling) CheckoutURL(_ context.Context, accountID, lookupKey, _, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.checkoutKey = lookupKey
	return "https://checkout.test/" + accountID, nil
}

func (f *fakeBilling) PortalURL(_ context.Context, accountID, _ string) (string, error) {
	return "https://portal.test/" + accountID, f.err
}

func (f *fakeBilling) CancelSubscription(_ context.Context, accountID string) error {
	if f.err != nil {
		return f.err
	}
	f.canceled = append(f.canceled, accountID)
	return nil
}

type testServer struct {
	handler http.Handler
	billing *fakeBilling
	manager *menuqr.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New()
	ids := 0
	manager, err := menuqr.NewManager(store, store, menuqr.Config{
		Now: func() time.Time { return testNow },
		NewID: func() string {
			ids++
			return "id" + string(rune('0'+ids))
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	ends := testNow.Add(30 * 24 * time.Hour)
	ctx := context.Background()
	if err := store.SaveAccount(ctx, &menuqr.Account{ID: testProID, Plan: menuqr.PlanPro, PeriodEndsAt: &ends}); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveAccount(ctx, &menuqr.Account{ID: testFreeID, Plan: menuqr.PlanFree}); err != nil {
		t.Fatal(err)
	}

	fb := &fakeBilling{syncPlan: menuqr.PlanPro}
	h, err := NewHandler(Config{
		Manager:        manager,
		Billing:        fb,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) }),
	})
	if err != nil {
		t.Fatal(err)
	}
	return &testServer{handler: h.Routes(), billing: fb, manager: manager}
}

func (s *testServer) do(t *testing.T, method, path, accountID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if accountID != "" {
		req.Header.Set("X-Account-ID", accountID)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode %q: %v", rec.Body.String(), err)
	}
}

func TestNewHandler_RequiresManager(t *testing.T) {
	if _, err := NewHandler(Config{}); err == nil {
		t.Error("expected error without manager")
	}
}

func TestHandler_GetSubscription(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/account/subscription", testProID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp SubscriptionResponse
	decodeBody(t, rec, &resp)
	if resp.Plan != "pro" || !resp.Entitled || resp.EndsAt == nil {
		t.Errorf("response = %+v", resp)
	}

	if rec := s.do(t, http.MethodGet, "/api/account/subscription", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("missing account status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/api/account/subscription", "ghost", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown account status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/api/account/subscription", strings.Repeat("a", 300), ""); rec.Code != http.StatusBadRequest {
		t.Errorf("oversized account id status = %d", rec.Code)
	}
}

func TestHandler_BillingRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/billing/checkout", testFreeID, `{"lookup_key":"pro_monthly"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("checkout status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var url URLResponse
	decodeBody(t, rec, &url)
	if url.URL != "https://checkout.test/"+testFreeID || s.billing.checkoutKey != "pro_monthly" {
		t.Errorf("checkout = %+v, key = %q", url, s.billing.checkoutKey)
	}

	if rec := s.do(t, http.MethodPost, "/api/billing/checkout", testFreeID, `{`); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/billing/portal", testProID, "")
	decodeBody(t, rec, &url)
	if url.URL != "https://portal.test/"+testProID {
		t.Errorf("portal = %+v", url)
	}

	if rec := s.do(t, http.MethodPost, "/api/billing/cancel", testProID, ""); rec.Code != http.StatusNoContent {
		t.Errorf("cancel status = %d", rec.Code)
	}
	if len(s.billing.canceled) != 1 || s.billing.canceled[0] != testProID {
		t.Errorf("canceled = %v", s.billing.canceled)
	}

	rec = s.do(t, http.MethodPost, "/api/billing/restore", testProID, "")
	var plan PlanResponse
	decodeBody(t, rec, &plan)
	if plan.Plan != "pro" {
		t.Errorf("restore = %+v", plan)
	}
}

func TestHandler_BillingErrors(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
	}{
		{billing.ErrUnknownPrice, http.StatusBadRequest},
		{billing.ErrAlreadySubscribed, http.StatusConflict},
		{billing.ErrCustomerNotFound, http.StatusNotFound},
		{billing.ErrNoSubscription, http.StatusNotFound},
		{billing.ErrProviderAPIError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			s := newTestServer(t)
			s.billing.err = tt.err
			rec := s.do(t, http.MethodPost, "/api/billing/checkout", testFreeID, `{"lookup_key":"x"}`)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body map[string]string
			decodeBody(t, rec, &body)
			if body["error"] == "" {
				t.Error("missing error message")
			}
		})
	}
}

func TestHandler_CatalogFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/restaurants", testProID, `{"name":"Chez Nous"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create restaurant status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var rest RestaurantResponse
	decodeBody(t, rec, &rest)

	rec = s.do(t, http.MethodPost, "/api/restaurants/"+rest.ID+"/categories", testProID, `{"name":"Starters"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create category status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var cat CategoryResponse
	decodeBody(t, rec, &cat)

	rec = s.do(t, http.MethodPost, "/api/categories/"+cat.ID+"/items", testProID,
		`{"name":"Soup","description":"Daily","price_cents":850}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create item status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var item ItemResponse
	decodeBody(t, rec, &item)

	rec = s.do(t, http.MethodPost, "/api/restaurants/"+rest.ID+"/menus", testProID, `{"name":"Lunch"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create menu status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var menu MenuResponse
	decodeBody(t, rec, &menu)

	rec = s.do(t, http.MethodPost, "/api/menus/"+menu.ID+"/items", testProID, `{"item_ids":["`+item.ID+`"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("add items status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/menu/"+rest.ID, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("public menu status = %d", rec.Code)
	}
	var pm PublicMenuResponse
	decodeBody(t, rec, &pm)
	if len(pm.Menus) != 1 || len(pm.Menus[0].Categories) != 1 || len(pm.Menus[0].Categories[0].Items) != 1 {
		t.Fatalf("public menu = %+v", pm)
	}
	if got := pm.Menus[0].Categories[0].Items[0]; got.Name != "Soup" || got.PriceCents != 850 {
		t.Errorf("item = %+v", got)
	}

	rec = s.do(t, http.MethodGet, "/api/restaurants", testProID, "")
	var list []RestaurantResponse
	decodeBody(t, rec, &list)
	if len(list) != 1 {
		t.Errorf("restaurants = %+v", list)
	}

	if rec := s.do(t, http.MethodDelete, "/api/menus/"+menu.ID, testFreeID, ""); rec.Code != http.StatusForbidden {
		t.Errorf("foreign delete status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodDelete, "/api/menus/"+menu.ID, testProID, ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete menu status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodDelete, "/api/restaurants/"+rest.ID, testProID, ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete restaurant status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/menu/"+rest.ID, "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("deleted public menu status = %d", rec.Code)
	}
}

func TestHandler_CatalogRequiresSubscription(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/restaurants", testFreeID, `{"name":"Chez Nous"}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "active subscription required") {
		t.Errorf("body = %s", rec.Body.String())
	}

	if rec := s.do(t, http.MethodPost, "/api/restaurants", testProID, `{"name":"  "}`); rec.Code != http.StatusBadRequest {
		t.Errorf("blank name status = %d", rec.Code)
	}
}

func TestHandler_WebhookAndMetricsMounted(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/billing/webhook", "", `{}`)
	if rec.Code != http.StatusOK || s.billing.webhookHits != 1 {
		t.Errorf("webhook status = %d, hits = %d", rec.Code, s.billing.webhookHits)
	}
	rec = s.do(t, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "# metrics") {
		t.Errorf("metrics status = %d", rec.Code)
	}
}

func TestHandler_WithoutBilling(t *testing.T) {
	store := memory.New()
	manager, _ := menuqr.NewManager(store, store, menuqr.Config{})
	h, err := NewHandler(Config{Manager: manager, GetAccountID: FromContext(struct{}{})})
	if err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/billing/checkout", nil))
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("billing route without provider status = %d", rec.Code)
	}
}

func TestHandler_CustomOnError(t *testing.T) {
	store := memory.New()
	manager, _ := menuqr.NewManager(store, store, menuqr.Config{})
	var got error
	h, _ := NewHandler(Config{
		Manager: manager,
		OnError: func(w http.ResponseWriter, _ *http.Request, err error) {
			got = err
			w.WriteHeader(http.StatusTeapot)
		},
	})
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/account/subscription", nil))
	if rec.Code != http.StatusTeapot || got == nil {
		t.Errorf("status = %d, err = %v", rec.Code, got)
	}
}
