package billing

import "errors"

var (
	// ErrProviderNotConfigured is returned when a provider is not properly configured
	ErrProviderNotConfigured = errors.New("billing provider not configured")

	// ErrInvalidSignature is returned when webhook signature validation fails
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrInvalidWebhookPayload is returned when webhook payload cannot be parsed
	ErrInvalidWebhookPayload = errors.New("invalid webhook payload")

	// ErrMissingEventType is returned when a parsed event carries no type
	ErrMissingEventType = errors.New("missing event type")

	// ErrNotificationFailed is returned when an owner email could not be sent for a reason
	// other than rate limiting
	ErrNotificationFailed = errors.New("notification failed")

	// ErrProviderAPIError is returned when the provider's API returns an error
	ErrProviderAPIError = errors.New("billing provider API error")

	// ErrCustomerNotFound is returned when an account has no billing customer
	ErrCustomerNotFound = errors.New("customer not found in billing provider")

	// ErrAlreadySubscribed is returned when checkout is requested while a subscription is active
	ErrAlreadySubscribed = errors.New("account already has an active subscription")

	// ErrUnknownPrice is returned when a checkout lookup key is not configured
	ErrUnknownPrice = errors.New("unknown price lookup key")

	// ErrNoSubscription is returned when cancelling an account without a subscription
	ErrNoSubscription = errors.New("account has no subscription")
)
