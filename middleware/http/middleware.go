// Package http provides HTTP middleware that gates handlers behind an active subscription
package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mihaimyh/menuqr/pkg/menuqr"
)

// AccountIDExtractor extracts the account ID from an HTTP request
// Return empty string if the caller is not authenticated
type AccountIDExtractor func(r *http.Request) string

// Config holds middleware configuration
type Config struct {
	// Manager answers entitlement checks (required)
	Manager menuqr.EntitlementChecker

	// GetAccountID extracts account ID from request (required)
	GetAccountID AccountIDExtractor

	// NotEntitledStatusCode is returned when the account has no active subscription
	// Default: 402 (Payment Required)
	NotEntitledStatusCode int

	// OnNotEntitled is called when the account is not entitled
	// If nil, returns NotEntitledStatusCode with a JSON error
	OnNotEntitled func(w http.ResponseWriter, r *http.Request)

	// OnUnauthorized is called when the caller is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(w http.ResponseWriter, r *http.Request)

	// OnError is called when the entitlement check fails
	// If nil, returns 500 Internal Server Error
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// Middleware creates an HTTP middleware that only lets entitled accounts through
func Middleware(config Config) func(http.Handler) http.Handler {
	if config.Manager == nil {
		panic("menuqr/http: Config.Manager is required")
	}
	if config.GetAccountID == nil {
		panic("menuqr/http: Config.GetAccountID is required")
	}
	if config.NotEntitledStatusCode == 0 {
		config.NotEntitledStatusCode = http.StatusPaymentRequired
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID := config.GetAccountID(r)
			if accountID == "" {
				if config.OnUnauthorized != nil {
					config.OnUnauthorized(w, r)
				} else {
					writeError(w, http.StatusUnauthorized, "Unauthorized")
				}
				return
			}

			entitled, err := config.Manager.CheckEntitlement(r.Context(), accountID)
			if err != nil {
				if config.OnError != nil {
					config.OnError(w, r, err)
				} else {
					writeError(w, http.StatusInternalServerError, "Internal Server Error")
				}
				return
			}
			if !entitled {
				if config.OnNotEntitled != nil {
					config.OnNotEntitled(w, r)
				} else {
					writeError(w, config.NotEntitledStatusCode, menuqr.ErrNotEntitled.Error())
				}
				return
			}

			next.ServeHTTP(w, WithAccountID(r, accountID))
		})
	}
}

// HandlerFunc creates the middleware in HandlerFunc form
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := Middleware(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			middleware(next).ServeHTTP(w, r)
		}
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// ContextKey is a type for context keys
type ContextKey string

const (
	// AccountIDKey is the context key for the account ID
	AccountIDKey ContextKey = "menuqr:accountID"
)

// WithAccountID returns the request with the account ID stored in its context
func WithAccountID(r *http.Request, accountID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), AccountIDKey, accountID))
}

// AccountIDFromContext returns the account ID stored by the middleware
func AccountIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(AccountIDKey).(string)
	return id
}

// FromContext returns an AccountIDExtractor that reads the account ID from request context
func FromContext(key ContextKey) AccountIDExtractor {
	return func(r *http.Request) string {
		if id, ok := r.Context().Value(key).(string); ok {
			return id
		}
		return ""
	}
}

// FromHeader returns an AccountIDExtractor that reads the account ID from a header
func FromHeader(headerName string) AccountIDExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}
