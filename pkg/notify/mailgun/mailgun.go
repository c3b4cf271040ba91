// Package mailgun implements notify.Sender on the Mailgun HTTP API.
package mailgun

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mailgun/mailgun-go/v4"

	"github.com/mihaimyh/menuqr/pkg/notify"
)

// Config holds Mailgun sender configuration.
type Config struct {
	Domain string
	APIKey string

	// APIBase defaults to the EU region endpoint
	APIBase string

	// FromName is the display name of the sender; the address is postmaster@Domain
	FromName string

	// Timeout bounds a single send (default: 10 seconds)
	Timeout time.Duration

	// HTTPClient is optional
	HTTPClient *http.Client
}

// Sender delivers messages through Mailgun.
type Sender struct {
	mg      mailgun.Mailgun
	from    string
	timeout time.Duration
}

// New creates a Mailgun sender.
func New(cfg Config) (*Sender, error) {
	if cfg.Domain == "" || cfg.APIKey == "" {
		return nil, errors.New("mailgun: domain and api key are required")
	}
	if cfg.APIBase == "" {
		cfg.APIBase = mailgun.APIBaseEU
	}
	if cfg.FromName == "" {
		cfg.FromName = "MenuQR"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	mg := mailgun.NewMailgun(cfg.Domain, cfg.APIKey)
	mg.SetAPIBase(cfg.APIBase)
	if cfg.HTTPClient != nil {
		mg.SetClient(cfg.HTTPClient)
	}

	return &Sender{
		mg:      mg,
		from:    fmt.Sprintf("%s <postmaster@%s>", cfg.FromName, cfg.Domain),
		timeout: cfg.Timeout,
	}, nil
}

// Send implements notify.Sender. HTTP 429 answers are reported as notify.StatusRateLimited.
func (s *Sender) Send(ctx context.Context, msg notify.Message) notify.Result {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	m := s.mg.NewMessage(s.from, msg.Subject, msg.Body, msg.To)
	_, id, err := s.mg.Send(ctx, m)
	if err != nil {
		var unexpected *mailgun.UnexpectedResponseError
		if errors.As(err, &unexpected) && unexpected.Actual == http.StatusTooManyRequests {
			return notify.RateLimited(err)
		}
		return notify.Failed(fmt.Errorf("mailgun send: %w", err))
	}
	return notify.Sent(id)
}
