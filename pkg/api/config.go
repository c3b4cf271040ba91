package api

import (
	"fmt"
	"net/http"

	"github.com/mihaimyh/menuqr/pkg/billing"
	"github.com/mihaimyh/menuqr/pkg/menuqr"
)

// Billing is the provider surface the API drives for checkout, portal, cancellation
// and restore. The Stripe provider implements it.
type Billing interface {
	billing.Provider
	billing.CheckoutProvider
}

// Config holds configuration for the API handler
type Config struct {
	// Manager serves accounts and the menu catalog (required)
	Manager *menuqr.Manager

	// Billing enables the /api/billing routes and the webhook endpoint (optional)
	Billing Billing

	// GetAccountID extracts the authenticated account ID from a request
	// Default: the X-Account-ID header
	GetAccountID func(*http.Request) string

	// CheckoutSuccessURL and CheckoutCancelURL are where hosted checkout returns the owner
	CheckoutSuccessURL string
	CheckoutCancelURL  string

	// PortalReturnURL is where the hosted billing portal returns the owner
	PortalReturnURL string

	// MetricsHandler is mounted at GET /metrics when set (e.g. promhttp.Handler())
	MetricsHandler http.Handler

	// OnError handles errors (auth, internal, etc.)
	// If nil, uses default JSON error handling
	OnError func(http.ResponseWriter, *http.Request, error)

	Logger menuqr.Logger
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Manager == nil {
		return fmt.Errorf("manager is required")
	}
	return nil
}

// NewHandler creates a new API handler with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.GetAccountID == nil {
		config.GetAccountID = FromHeader("X-Account-ID")
	}
	return &Handler{
		config: config,
		logger: menuqr.OrNoop(config.Logger),
	}, nil
}

// Helper functions for common account ID extraction patterns

// FromHeader returns a GetAccountID function that extracts the account ID from a header
func FromHeader(headerName string) func(*http.Request) string {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// FromContext returns a GetAccountID function that extracts the account ID from request context
// Uses the same context key pattern as middleware/http
func FromContext(key interface{}) func(*http.Request) string {
	return func(r *http.Request) string {
		if id, ok := r.Context().Value(key).(string); ok {
			return id
		}
		return ""
	}
}
