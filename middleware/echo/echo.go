// Package echo provides Echo middleware that gates routes behind an active subscription
package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mihaimyh/menuqr/pkg/menuqr"
)

// AccountIDKey is the echo context key holding the entitled account ID
const AccountIDKey = "menuqr:accountID"

// AccountIDExtractor extracts the account ID from an Echo context
// Return empty string if the caller is not authenticated
type AccountIDExtractor func(c echo.Context) string

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
	OnNotEntitled func(c echo.Context) error

	// OnUnauthorized is called when the caller is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c echo.Context) error

	// OnError is called when the entitlement check fails
	// If nil, returns 500 Internal Server Error
	OnError func(c echo.Context, err error) error
}

// Middleware creates an Echo middleware that only lets entitled accounts through
func Middleware(cfg Config) echo.MiddlewareFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Manager == nil {
		panic("menuqr/echo: Config.Manager is required")
	}
	if cfg.GetAccountID == nil {
		panic("menuqr/echo: Config.GetAccountID is required")
	}
	if cfg.NotEntitledStatusCode == 0 {
		cfg.NotEntitledStatusCode = http.StatusPaymentRequired
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			accountID := cfg.GetAccountID(c)
			if accountID == "" {
				if cfg.OnUnauthorized != nil {
					return cfg.OnUnauthorized(c)
				}
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}

			entitled, err := cfg.Manager.CheckEntitlement(c.Request().Context(), accountID)
			if err != nil {
				if cfg.OnError != nil {
					return cfg.OnError(c, err)
				}
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
			}
			if !entitled {
				if cfg.OnNotEntitled != nil {
					return cfg.OnNotEntitled(c)
				}
				return c.JSON(cfg.NotEntitledStatusCode, map[string]string{"error": menuqr.ErrNotEntitled.Error()})
			}

			c.Set(AccountIDKey, accountID)
			return next(c)
		}
	}
}

// Convenience extractors for Account ID

// FromContext returns an AccountIDExtractor that gets the account ID from context values
func FromContext(key string) AccountIDExtractor {
	return func(c echo.Context) string {
		if val := c.Get(key); val != nil {
			if str, ok := val.(string); ok {
				return str
			}
		}
		return ""
	}
}

// FromHeader returns an AccountIDExtractor that gets the account ID from a header
func FromHeader(headerName string) AccountIDExtractor {
	return func(c echo.Context) string {
		return c.Request().Header.Get(headerName)
	}
}

// FromParam returns an AccountIDExtractor that gets the account ID from a route parameter
func FromParam(paramName string) AccountIDExtractor {
	return func(c echo.Context) string {
		return c.Param(paramName)
	}
}
