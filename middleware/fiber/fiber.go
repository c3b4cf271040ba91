// Package fiber provides Fiber middleware that gates routes behind an active subscription
package fiber

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mihaimyh/menuqr/pkg/menuqr"
)

// AccountIDKey is the Locals key holding the entitled account ID
const AccountIDKey = "menuqr:accountID"

// AccountIDExtractor extracts the account ID from a Fiber context
// Return empty string if the caller is not authenticated
type AccountIDExtractor func(c *fiber.Ctx) string

// Config holds middleware configuration
type Config struct {
	// Manager answers entitlement checks (required)
	Manager menuqr.EntitlementChecker

	// GetAccountID extracts account ID from context (required)
	GetAccountID AccountIDExtractor

	// NotEntitledStatusCode is returned when the account has no active subscription
	// Default: 402 (Payment Required)
	NotEntitledStatusCode int

	// OnNotEntitled is called when the account is not entitled
	// If nil, uses default response: NotEntitledStatusCode JSON
	OnNotEntitled func(c *fiber.Ctx) error

	// OnUnauthorized is called when the caller is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *fiber.Ctx) error

	// OnError is called when the entitlement check fails
	// If nil, returns 500 Internal Server Error
	OnError func(c *fiber.Ctx, err error) error
}

// Middleware creates a Fiber middleware that only lets entitled accounts through
func Middleware(cfg Config) fiber.Handler {
	// Validate required configuration at startup (fail fast)
	if cfg.Manager == nil {
		panic("menuqr/fiber: Config.Manager is required")
	}
	if cfg.GetAccountID == nil {
		panic("menuqr/fiber: Config.GetAccountID is required")
	}
	if cfg.NotEntitledStatusCode == 0 {
		cfg.NotEntitledStatusCode = fiber.StatusPaymentRequired
	}

	return func(c *fiber.Ctx) error {
		accountID := cfg.GetAccountID(c)
		if accountID == "" {
			if cfg.OnUnauthorized != nil {
				return cfg.OnUnauthorized(c)
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
		}

		entitled, err := cfg.Manager.CheckEntitlement(c.UserContext(), accountID)
		if err != nil {
			if cfg.OnError != nil {
				return cfg.OnError(c, err)
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
		}
		if !entitled {
			if cfg.OnNotEntitled != nil {
				return cfg.OnNotEntitled(c)
			}
			return c.Status(cfg.NotEntitledStatusCode).JSON(fiber.Map{"error": menuqr.ErrNotEntitled.Error()})
		}

		c.Locals(AccountIDKey, accountID)
		return c.Next()
	}
}

// Convenience extractors for Account ID

// FromContext returns an AccountIDExtractor that gets the account ID from Locals
//
// Example:
//
//	GetAccountID: fiber.FromContext("AccountID")
func FromContext(key string) AccountIDExtractor {
	return func(c *fiber.Ctx) string {
		if val := c.Locals(key); val != nil {
			if str, ok := val.(string); ok {
				return str
			}
		}
		return ""
	}
}

// FromHeader returns an AccountIDExtractor that gets the account ID from a header
// Fiber v2 uses c.Get() for headers (not c.GetHeader())
func FromHeader(headerName string) AccountIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Get(headerName)
	}
}

// FromParam returns an AccountIDExtractor that gets the account ID from a route parameter
func FromParam(paramName string) AccountIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Params(paramName)
	}
}
