package stripe

import (
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/menuqr/pkg/billing"
	"github.com/mihaimyh/menuqr/pkg/billing/internal"
	"github.com/mihaimyh/menuqr/pkg/menuqr"
)

const (
	providerName           = "stripe"
	defaultRateLimitWindow = time.Minute
)

// Config extends billing.Config with Stripe-specific options
type Config struct {
	billing.Config // Base config (Accounts, PlanMapping, etc.)

	// ProPriceID is shorthand for a PlanMapping entry resolving to the pro plan
	ProPriceID string

	// API overrides the stripe-go backed client, mostly for tests
	API BillingAPI

	// RateLimitRequests enables per client IP webhook rate limiting when positive.
	// Stripe delivers bursts from a few addresses, so it is off by default.
	RateLimitRequests int
	// RateLimitWindow defaults to one minute when limiting is enabled
	RateLimitWindow   time.Duration
	// TrustProxies identifies clients by X-Forwarded-For
	TrustProxies bool
}

// Provider implements billing.Provider and billing.CheckoutProvider for Stripe
type Provider struct {
	config      billing.Config
	api         BillingAPI
	verifier    *Verifier
	reconciler  *Reconciler
	rateLimiter *internal.RateLimiter
	metrics     billing.Metrics
	logger      menuqr.Logger
}

var (
	_ billing.Provider         = (*Provider)(nil)
	_ billing.CheckoutProvider = (*Provider)(nil)
)

// NewProvider creates a new Stripe billing provider
func NewProvider(config Config) (*Provider, error) {
	if config.Accounts == nil {
		return nil, billing.ErrProviderNotConfigured
	}

	base := config.Config.WithDefaults()
	base.WebhookSecret = strings.TrimSpace(base.WebhookSecret)
	if base.WebhookSecret == "" && !base.AllowUnsigned {
		return nil, billing.ErrProviderNotConfigured
	}

	mapping := make(map[string]menuqr.Plan, len(base.PlanMapping)+1)
	for k, v := range base.PlanMapping {
		mapping[strings.TrimSpace(k)] = v
	}
	if id := strings.TrimSpace(config.ProPriceID); id != "" {
		mapping[id] = menuqr.PlanPro
	}
	base.PlanMapping = mapping

	api := config.API
	if api == nil {
		apiKey := strings.TrimSpace(base.APIKey)
		if apiKey == "" {
			return nil, billing.ErrProviderNotConfigured
		}
		var opts []stripe.ClientOption
		if base.HTTPClient != nil {
			opts = append(opts, stripe.WithBackends(stripe.NewBackendsWithConfig(&stripe.BackendConfig{
				HTTPClient: base.HTTPClient,
			})))
		}
		api = NewAPI(apiKey, base.Metrics, opts...)
	}

	reconciler, err := NewReconciler(base, api)
	if err != nil {
		return nil, err
	}

	var limiter *internal.RateLimiter
	if config.RateLimitRequests > 0 {
		window := config.RateLimitWindow
		if window <= 0 {
			window = defaultRateLimitWindow
		}
		limiter = internal.NewRateLimiter(config.RateLimitRequests, window, config.TrustProxies)
	}

	return &Provider{
		config: base,
		api:    api,
		verifier: &Verifier{
			Secret:        base.WebhookSecret,
			AllowUnsigned: base.AllowUnsigned,
			Tolerance:     base.SignatureTolerance,
		},
		reconciler:  reconciler,
		rateLimiter: limiter,
		metrics:     base.Metrics,
		logger:      base.Logger,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler returns the HTTP handler for Stripe webhooks
func (p *Provider) WebhookHandler() http.Handler {
	if p.rateLimiter == nil {
		return http.HandlerFunc(p.handleWebhook)
	}
	return p.rateLimiter.Middleware(http.HandlerFunc(p.handleWebhook))
}

// Reconciler exposes the event reconciler, e.g. for replaying stored events.
func (p *Provider) Reconciler() *Reconciler {
	return p.reconciler
}
