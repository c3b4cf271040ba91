package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("STRIPE_CHECKOUT_PRICES", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "Europe/Paris", cfg.Location().String())
	assert.Empty(t, cfg.Stripe.CheckoutPrices)
	assert.Zero(t, cfg.Stripe.WebhookRateLimit)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_1")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_1")
	t.Setenv("STRIPE_PRO_PRICE_ID", "price_pro")
	t.Setenv("STRIPE_CHECKOUT_PRICES", "pro_monthly=price_pro, pro_yearly = price_pro_y")
	t.Setenv("BILLING_TIMEZONE", "UTC")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, map[string]string{"pro_monthly": "price_pro", "pro_yearly": "price_pro_y"}, cfg.Stripe.CheckoutPrices)
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MAILGUN_DOMAIN=mg.example.com\nREDIS_ADDR=localhost:6379\n"), 0o600))
	// godotenv never overrides set variables; t.Setenv restores them afterwards
	for _, k := range []string{"MAILGUN_DOMAIN", "REDIS_ADDR"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mg.example.com", cfg.Mailgun.Domain)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestLoad_Rejections(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unsigned in production", map[string]string{
			"APP_ENV": "prod", "STRIPE_ALLOW_UNSIGNED": "true",
			"STRIPE_SECRET_KEY": "sk", "STRIPE_WEBHOOK_SECRET": "wh",
		}},
		{"production without secrets", map[string]string{"APP_ENV": "prod"}},
		{"unknown env", map[string]string{"APP_ENV": "staging"}},
		{"bad log level", map[string]string{"LOG_LEVEL": "verbose"}},
		{"bad timezone", map[string]string{"BILLING_TIMEZONE": "Mars/Olympus"}},
		{"bad price list", map[string]string{"STRIPE_CHECKOUT_PRICES": "pro_monthly"}},
		{"negative webhook rate limit", map[string]string{"STRIPE_WEBHOOK_RATE_LIMIT": "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			assert.Error(t, err)
		})
	}
}

func TestValidate_UnsignedAllowedOutsideProduction(t *testing.T) {
	cfg := &Configuration{
		Env: EnvDevelopment, HTTPAddr: ":8080", LogLevel: "info", BillingTimezone: "UTC",
		Stripe: StripeConfig{AllowUnsigned: true},
	}
	assert.NoError(t, cfg.Validate())

	cfg.Env = EnvProduction
	cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret = "sk", "wh"
	assert.ErrorIs(t, cfg.Validate(), ErrUnsignedInProduction)
}
