package billing

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/mihaimyh/menuqr/pkg/menuqr"
	"github.com/mihaimyh/menuqr/pkg/notify"
)

// DefaultLocation is the time zone used for dates shown to owners.
const DefaultLocation = "Europe/Paris"

// Config defines the configuration billing providers accept.
type Config struct {
	// Accounts is the account store updated by reconciliation, usually a *menuqr.Manager
	Accounts menuqr.AccountStore

	// Locker serializes handlers per billing customer id (default: in-memory keyed mutex)
	Locker menuqr.Locker

	// Events deduplicates redelivered events (optional)
	Events menuqr.EventLog

	// Notifier sends owner emails (default: discards messages)
	Notifier notify.Sender

	// PlanMapping maps provider price ids or price lookup keys to plans.
	// Keys are matched case-insensitively. Reserved keys:
	//   - "*" or "default": plan for unknown prices (otherwise free)
	PlanMapping map[string]menuqr.Plan

	// CheckoutPrices maps lookup keys accepted by checkout to provider price ids
	CheckoutPrices map[string]string

	// WebhookSecret verifies incoming webhook signatures.
	WebhookSecret string

	// AllowUnsigned accepts webhook payloads without a signature header.
	// Must never be enabled in production.
	AllowUnsigned bool

	// SignatureTolerance is the maximum signature age (default: 5 minutes)
	SignatureTolerance time.Duration

	// APIKey is used for outbound API calls to the billing provider.
	APIKey string

	// HTTPClient is an optional HTTP client for API calls.
	HTTPClient *http.Client

	// Location is the time zone for dates in notifications (default: Europe/Paris)
	Location *time.Location

	// Metrics is an optional metrics collector.
	// Use billing/metrics/prometheus.NewMetrics for Prometheus metrics.
	Metrics Metrics

	Logger menuqr.Logger

	// OnReconciled is called after an account change has been persisted.
	// A returned error fails the webhook delivery so the provider retries it.
	OnReconciled func(ctx context.Context, event WebhookEvent) error

	// Now is the clock (default: time.Now)
	Now func() time.Time
}

// ResolvePlan returns the plan mapped to the first key found in PlanMapping,
// then the "*"/"default" entry, then free.
func (c *Config) ResolvePlan(keys ...string) menuqr.Plan {
	for _, k := range keys {
		if k == "" {
			continue
		}
		if plan, ok := c.lookupPlan(k); ok {
			return plan
		}
	}
	if plan, ok := c.lookupPlan("*"); ok {
		return plan
	}
	if plan, ok := c.lookupPlan("default"); ok {
		return plan
	}
	return menuqr.PlanFree
}

func (c *Config) lookupPlan(key string) (menuqr.Plan, bool) {
	if plan, ok := c.PlanMapping[key]; ok {
		return plan, true
	}
	for k, plan := range c.PlanMapping {
		if strings.EqualFold(k, key) {
			return plan, true
		}
	}
	return "", false
}

// WithDefaults returns a copy of c with unset optional fields filled in.
func (c Config) WithDefaults() Config {
	if c.Locker == nil {
		c.Locker = menuqr.NewMemoryLocker()
	}
	if c.Notifier == nil {
		c.Notifier = notify.SenderFunc(func(context.Context, notify.Message) notify.Result {
			return notify.Sent("")
		})
	}
	if c.SignatureTolerance <= 0 {
		c.SignatureTolerance = 5 * time.Minute
	}
	if c.Location == nil {
		loc, err := time.LoadLocation(DefaultLocation)
		if err != nil {
			loc = time.UTC
		}
		c.Location = loc
	}
	if c.Metrics == nil {
		c.Metrics = &NoopMetrics{}
	}
	c.Logger = menuqr.OrNoop(c.Logger)
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}
