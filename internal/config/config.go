// Package config loads process configuration for the menuqr binaries from the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "dev"
	EnvTest        = "test"
	EnvProduction  = "prod"
)

// ErrUnsignedInProduction is returned when unsigned webhooks are enabled in production
var ErrUnsignedInProduction = errors.New("STRIPE_ALLOW_UNSIGNED must not be set in production")

// Configuration is the full process configuration
type Configuration struct {
	Env      string `validate:"required,oneof=dev test prod"`
	HTTPAddr string `validate:"required"`
	LogLevel string `validate:"required,oneof=debug info warn error"`

	Stripe  StripeConfig
	Mailgun MailgunConfig

	DatabaseURL string
	RedisAddr   string

	// Return URLs for hosted checkout and the billing portal
	CheckoutSuccessURL string
	CheckoutCancelURL  string
	PortalReturnURL    string

	// BillingTimezone is the IANA zone for dates in owner emails
	BillingTimezone string `validate:"required"`
}

// StripeConfig holds Stripe credentials and price wiring
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	ProPriceID    string

	// CheckoutPrices maps checkout lookup keys to price ids
	CheckoutPrices map[string]string

	AllowUnsigned bool

	// WebhookRateLimit caps webhook requests per client IP per minute; 0 disables it
	WebhookRateLimit int `validate:"gte=0"`
}

// MailgunConfig holds transactional email settings. Empty APIKey selects the logging sender.
type MailgunConfig struct {
	APIKey   string
	Domain   string
	APIBase  string
	FromName string
}

// Load reads an optional .env file, then the environment.
// Variables already present in the environment win over .env entries.
func Load(envFiles ...string) (*Configuration, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", f, err)
			}
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("APP_ENV", EnvDevelopment)
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("BILLING_TIMEZONE", "Europe/Paris")
	v.SetDefault("MAIL_FROM_NAME", "MenuQR")
	v.SetDefault("STRIPE_ALLOW_UNSIGNED", false)

	prices, err := parsePrices(v.GetString("STRIPE_CHECKOUT_PRICES"))
	if err != nil {
		return nil, err
	}

	cfg := &Configuration{
		Env:      strings.ToLower(v.GetString("APP_ENV")),
		HTTPAddr: v.GetString("HTTP_ADDR"),
		LogLevel: strings.ToLower(v.GetString("LOG_LEVEL")),
		Stripe: StripeConfig{
			SecretKey:        v.GetString("STRIPE_SECRET_KEY"),
			WebhookSecret:    v.GetString("STRIPE_WEBHOOK_SECRET"),
			ProPriceID:       v.GetString("STRIPE_PRO_PRICE_ID"),
			CheckoutPrices:   prices,
			AllowUnsigned:    v.GetBool("STRIPE_ALLOW_UNSIGNED"),
			WebhookRateLimit: v.GetInt("STRIPE_WEBHOOK_RATE_LIMIT"),
		},
		Mailgun: MailgunConfig{
			APIKey:   v.GetString("MAILGUN_API_KEY"),
			Domain:   v.GetString("MAILGUN_DOMAIN"),
			APIBase:  v.GetString("MAILGUN_API_BASE"),
			FromName: v.GetString("MAIL_FROM_NAME"),
		},
		DatabaseURL:     v.GetString("DATABASE_URL"),
		RedisAddr:       v.GetString("REDIS_ADDR"),
		BillingTimezone: v.GetString("BILLING_TIMEZONE"),

		CheckoutSuccessURL: v.GetString("CHECKOUT_SUCCESS_URL"),
		CheckoutCancelURL:  v.GetString("CHECKOUT_CANCEL_URL"),
		PortalReturnURL:    v.GetString("PORTAL_RETURN_URL"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and the production rules
func (c *Configuration) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := time.LoadLocation(c.BillingTimezone); err != nil {
		return fmt.Errorf("invalid BILLING_TIMEZONE: %w", err)
	}
	if c.IsProduction() {
		if c.Stripe.AllowUnsigned {
			return ErrUnsignedInProduction
		}
		if c.Stripe.SecretKey == "" || c.Stripe.WebhookSecret == "" {
			return errors.New("STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET are required in production")
		}
	}
	return nil
}

// IsProduction reports whether APP_ENV is prod
func (c *Configuration) IsProduction() bool {
	return c.Env == EnvProduction
}

// Location returns the billing time zone. Validate guarantees it loads.
func (c *Configuration) Location() *time.Location {
	loc, err := time.LoadLocation(c.BillingTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// parsePrices parses "lookup_key=price_id" pairs separated by commas
func parsePrices(raw string) (map[string]string, error) {
	prices := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, price, ok := strings.Cut(pair, "=")
		key, price = strings.TrimSpace(key), strings.TrimSpace(price)
		if !ok || key == "" || price == "" {
			return nil, fmt.Errorf("invalid STRIPE_CHECKOUT_PRICES entry %q", pair)
		}
		prices[key] = price
	}
	return prices, nil
}
