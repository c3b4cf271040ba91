package billing

import (
	"context"
	"net/http"

	"github.com/mihaimyh/menuqr/pkg/menuqr"
)

// Provider is implemented by billing backends.
type Provider interface {
	// Name returns the provider name (e.g. "stripe")
	Name() string

	// WebhookHandler returns the HTTP handler that verifies and reconciles provider events.
	WebhookHandler() http.Handler

	// SyncAccount pulls the account's subscription state from the provider and persists it.
	// Used for "restore" requests and manual reconciliation. Returns the resulting plan.
	SyncAccount(ctx context.Context, accountID string) (menuqr.Plan, error)
}

// CheckoutProvider is implemented by providers that host checkout and self-service pages.
type CheckoutProvider interface {
	// CheckoutURL returns a hosted checkout page for the plan identified by lookupKey.
	CheckoutURL(ctx context.Context, accountID, lookupKey, successURL, cancelURL string) (string, error)

	// PortalURL returns a hosted billing portal page.
	PortalURL(ctx context.Context, accountID, returnURL string) (string, error)

	// CancelSubscription cancels the account's subscription immediately.
	CancelSubscription(ctx context.Context, accountID string) error
}
