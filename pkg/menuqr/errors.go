package menuqr

import "errors"

var (
	// ErrAccountNotFound is returned when no account matches the lookup key
	ErrAccountNotFound = errors.New("account not found")

	// ErrCustomerIDImmutable is returned when saving an account would change its billing customer id
	ErrCustomerIDImmutable = errors.New("billing customer id is immutable")

	// ErrDuplicateCustomerID is returned when another account already owns the billing customer id
	ErrDuplicateCustomerID = errors.New("billing customer id already assigned")

	// ErrInvalidPlan is returned for unknown plan names
	ErrInvalidPlan = errors.New("invalid plan")

	// ErrNotFound is returned when a restaurant, category, item or menu does not exist
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when an account mutates a restaurant it does not own
	ErrForbidden = errors.New("forbidden")

	// ErrNotEntitled is returned when a mutation requires an active pro subscription
	ErrNotEntitled = errors.New("active subscription required")

	// ErrInvalidInput is returned for empty names or negative prices
	ErrInvalidInput = errors.New("invalid input")

	// ErrStorageUnavailable is returned when storage is unavailable
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrLockTimeout is returned when an account lock cannot be acquired in time
	ErrLockTimeout = errors.New("account lock timeout")
)
