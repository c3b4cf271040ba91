package stripe

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/menuqr/pkg/billing"
)

// SubscriptionSummary is the part of a live subscription used for account sync.
type SubscriptionSummary struct {
	ID                string
	Status            string
	PriceID           string
	LookupKey         string
	CurrentPeriodEnd  int64
	CancelAtPeriodEnd bool
	PaymentMethodID   string
}

// CheckoutRequest describes a subscription checkout session.
type CheckoutRequest struct {
	CustomerID string
	AccountID  string
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// BillingAPI is the subset of the Stripe API used by the reconciler and checkout flows.
type BillingAPI interface {
	// SubscriptionPaymentMethod returns the subscription's default payment method id ("" if none).
	SubscriptionPaymentMethod(ctx context.Context, subscriptionID string) (string, error)
	// PaymentIntentPaymentMethod returns the payment intent's payment method id ("" if none).
	PaymentIntentPaymentMethod(ctx context.Context, paymentIntentID string) (string, error)
	// Subscriptions lists the customer's subscriptions that are not canceled.
	Subscriptions(ctx context.Context, customerID string) ([]SubscriptionSummary, error)

	CreateCustomer(ctx context.Context, accountID, email string) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
}

// API implements BillingAPI with the stripe-go client.
type API struct {
	client  *stripe.Client
	metrics billing.Metrics
}

// NewAPI creates an API for the given secret key. Options are passed to stripe.NewClient,
// e.g. stripe.WithBackends to point the client at a test server.
func NewAPI(apiKey string, metrics billing.Metrics, opts ...stripe.ClientOption) *API {
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}
	return &API{client: stripe.NewClient(apiKey, opts...), metrics: metrics}
}

func (a *API) record(endpoint string, start time.Time, err error) error {
	status := "success"
	if err != nil {
		status = "error"
	}
	a.metrics.RecordAPICall(providerName, endpoint, status)
	a.metrics.RecordAPICallDuration(providerName, endpoint, time.Since(start))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", billing.ErrProviderAPIError, endpoint, err)
	}
	return nil
}

func (a *API) SubscriptionPaymentMethod(ctx context.Context, subscriptionID string) (string, error) {
	start := time.Now()
	sub, err := a.client.V1Subscriptions.Retrieve(ctx, subscriptionID, nil)
	if err := a.record("/subscriptions/{id}", start, err); err != nil {
		return "", err
	}
	if sub.DefaultPaymentMethod == nil {
		return "", nil
	}
	return sub.DefaultPaymentMethod.ID, nil
}

func (a *API) PaymentIntentPaymentMethod(ctx context.Context, paymentIntentID string) (string, error) {
	start := time.Now()
	pi, err := a.client.V1PaymentIntents.Retrieve(ctx, paymentIntentID, nil)
	if err := a.record("/payment_intents/{id}", start, err); err != nil {
		return "", err
	}
	if pi.PaymentMethod == nil {
		return "", nil
	}
	return pi.PaymentMethod.ID, nil
}

func (a *API) Subscriptions(ctx context.Context, customerID string) ([]SubscriptionSummary, error) {
	start := time.Now()
	params := &stripe.SubscriptionListParams{}
	params.Customer = stripe.String(customerID)
	params.Limit = stripe.Int64(20)

	var out []SubscriptionSummary
	var listErr error
	for sub, err := range a.client.V1Subscriptions.List(ctx, params) {
		if err != nil {
			listErr = err
			break
		}
		out = append(out, summarize(sub))
	}
	if err := a.record("/subscriptions", start, listErr); err != nil {
		return nil, err
	}
	return out, nil
}

func summarize(sub *stripe.Subscription) SubscriptionSummary {
	s := SubscriptionSummary{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.DefaultPaymentMethod != nil {
		s.PaymentMethodID = sub.DefaultPaymentMethod.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		s.CurrentPeriodEnd = item.CurrentPeriodEnd
		if item.Price != nil {
			s.PriceID = item.Price.ID
			s.LookupKey = item.Price.LookupKey
		}
	}
	return s
}

func (a *API) CreateCustomer(ctx context.Context, accountID, email string) (string, error) {
	start := time.Now()
	params := &stripe.CustomerCreateParams{Email: stripe.String(email)}
	params.AddMetadata("account_id", accountID)
	cust, err := a.client.V1Customers.Create(ctx, params)
	if err := a.record("/customers", start, err); err != nil {
		return "", err
	}
	return cust.ID, nil
}

func (a *API) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error) {
	start := time.Now()
	params := &stripe.CheckoutSessionCreateParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(req.CustomerID),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.AccountID),
	}
	session, err := a.client.V1CheckoutSessions.Create(ctx, params)
	if err := a.record("/checkout/sessions", start, err); err != nil {
		return "", err
	}
	return session.URL, nil
}

func (a *API) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	start := time.Now()
	params := &stripe.BillingPortalSessionCreateParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	session, err := a.client.V1BillingPortalSessions.Create(ctx, params)
	if err := a.record("/billing_portal/sessions", start, err); err != nil {
		return "", err
	}
	return session.URL, nil
}

func (a *API) CancelSubscription(ctx context.Context, subscriptionID string) error {
	start := time.Now()
	_, err := a.client.V1Subscriptions.Cancel(ctx, subscriptionID, nil)
	return a.record("/subscriptions/{id}/cancel", start, err)
}
