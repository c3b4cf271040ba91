// Package notify sends transactional email to account owners.
//
// Senders report delivery as a Result instead of an error so callers can apply
// their own policy to provider rate limiting.
package notify

import (
	"context"
	"errors"
	"fmt"
)

// Status is the outcome of a send attempt.
type Status int

const (
	// StatusSent means the provider accepted the message
	StatusSent Status = iota
	// StatusRateLimited means the provider throttled the request
	StatusRateLimited
	// StatusFailed covers every other failure
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusRateLimited:
		return "rate_limited"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ErrRateLimited wraps provider throttling errors.
var ErrRateLimited = errors.New("notification rate limited")

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Result is returned by Sender.Send.
type Result struct {
	Status Status
	// ID is the provider message id when Status is StatusSent
	ID  string
	Err error
}

// Sent builds a successful Result.
func Sent(id string) Result { return Result{Status: StatusSent, ID: id} }

// RateLimited builds a throttled Result.
func RateLimited(err error) Result {
	return Result{Status: StatusRateLimited, Err: fmt.Errorf("%w: %v", ErrRateLimited, err)}
}

// Failed builds a failed Result.
func Failed(err error) Result { return Result{Status: StatusFailed, Err: err} }

// OK reports whether the message was accepted.
func (r Result) OK() bool { return r.Status == StatusSent }

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) Result
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) Result

func (f SenderFunc) Send(ctx context.Context, msg Message) Result { return f(ctx, msg) }
