// Package gin provides Gin middleware that gates routes behind an active subscription
package gin

import (
	"net/http"

	gongin "github.com/gin-gonic/gin"

	"github.com/mihaimyh/menuqr/pkg/menuqr"
)

// AccountIDKey is the gin context key holding the entitled account ID
const AccountIDKey = "menuqr:accountID"

// AccountIDExtractor extracts the account ID from a Gin context
// Return empty string if the caller is not authenticated
type AccountIDExtractor func(c *gongin.Context) string

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
	OnNotEntitled func(c *gongin.Context)

	// OnUnauthorized is called when the caller is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *gongin.Context)

	// OnError is called when the entitlement check fails
	// If nil, returns 500 Internal Server Error
	OnError func(c *gongin.Context, err error)
}

// Middleware creates a Gin middleware that only lets entitled accounts through
func Middleware(cfg Config) gongin.HandlerFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Manager == nil {
		panic("menuqr/gin: Config.Manager is required")
	}
	if cfg.GetAccountID == nil {
		panic("menuqr/gin: Config.GetAccountID is required")
	}
	if cfg.NotEntitledStatusCode == 0 {
		cfg.NotEntitledStatusCode = http.StatusPaymentRequired
	}

	return func(c *gongin.Context) {
		accountID := cfg.GetAccountID(c)
		if accountID == "" {
			if cfg.OnUnauthorized != nil {
				cfg.OnUnauthorized(c)
			} else {
				c.JSON(http.StatusUnauthorized, gongin.H{"error": "Unauthorized"})
			}
			c.Abort()
			return
		}

		entitled, err := cfg.Manager.CheckEntitlement(c.Request.Context(), accountID)
		if err != nil {
			if cfg.OnError != nil {
				cfg.OnError(c, err)
			} else {
				c.JSON(http.StatusInternalServerError, gongin.H{"error": "Internal Server Error"})
			}
			c.Abort()
			return
		}
		if !entitled {
			if cfg.OnNotEntitled != nil {
				cfg.OnNotEntitled(c)
			} else {
				c.JSON(cfg.NotEntitledStatusCode, gongin.H{"error": menuqr.ErrNotEntitled.Error()})
			}
			c.Abort()
			return
		}

		c.Set(AccountIDKey, accountID)
		c.Next()
	}
}

// Convenience extractors for Account ID

// FromContext returns an AccountIDExtractor that gets the account ID from gin context values
func FromContext(key string) AccountIDExtractor {
	return func(c *gongin.Context) string {
		return c.GetString(key)
	}
}

// FromHeader returns an AccountIDExtractor that gets the account ID from a header
func FromHeader(headerName string) AccountIDExtractor {
	return func(c *gongin.Context) string {
		return c.GetHeader(headerName)
	}
}

// FromParam returns an AccountIDExtractor that gets the account ID from a route parameter
func FromParam(paramName string) AccountIDExtractor {
	return func(c *gongin.Context) string {
		return c.Param(paramName)
	}
}
