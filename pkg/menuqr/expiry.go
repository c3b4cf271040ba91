package menuqr

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/mihaimyh/menuqr/pkg/notify"
)

// SweepConfig configures the expired subscription sweep.
type SweepConfig struct {
	// BatchSize is the maximum number of accounts listed per run (default: 500)
	BatchSize int
	// Concurrency bounds parallel downgrades (default: 4)
	Concurrency int
}

// SweepReport summarizes a sweep run.
type SweepReport struct {
	Downgraded  int
	Notified    int
	RateLimited int
	Failed      int
}

// Sweeper downgrades pro accounts whose paid period has ended without a
// deletion event being received, and tells their owners.
type Sweeper struct {
	manager *Manager
	sender  notify.Sender
	cfg     SweepConfig
}

// NewSweeper creates a Sweeper.
func NewSweeper(manager *Manager, sender notify.Sender, cfg SweepConfig) *Sweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Sweeper{manager: manager, sender: sender, cfg: cfg}
}

// Run performs one sweep. Notification failures are counted, not returned;
// storage errors abort the run.
func (s *Sweeper) Run(ctx context.Context) (SweepReport, error) {
	now := s.manager.now()
	expired, err := s.manager.ListExpired(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return SweepReport{}, fmt.Errorf("list expired accounts: %w", err)
	}

	var downgraded, notified, rateLimited, failed int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for _, acc := range expired {
		g.Go(func() error {
			changed, err := s.downgrade(gctx, acc.ID, acc.BillingCustomerID)
			if err != nil {
				return err
			}
			if changed == nil {
				return nil
			}
			atomic.AddInt64(&downgraded, 1)

			res := s.sender.Send(gctx, notify.SubscriptionExpired(changed.Email))
			switch res.Status {
			case notify.StatusSent:
				atomic.AddInt64(&notified, 1)
			case notify.StatusRateLimited:
				atomic.AddInt64(&rateLimited, 1)
				s.manager.logger.Warn("expiry notice rate limited", F("account_id", changed.ID), Err(res.Err))
			default:
				atomic.AddInt64(&failed, 1)
				s.manager.logger.Error("expiry notice failed", F("account_id", changed.ID), Err(res.Err))
			}
			s.manager.metrics.RecordExpiredDowngrade(res.OK())
			return nil
		})
	}
	err = g.Wait()

	report := SweepReport{
		Downgraded:  int(downgraded),
		Notified:    int(notified),
		RateLimited: int(rateLimited),
		Failed:      int(failed),
	}
	s.manager.logger.Info("expiry sweep finished",
		F("candidates", len(expired)),
		F("downgraded", report.Downgraded),
		F("notified", report.Notified),
	)
	return report, err
}

// downgrade re-reads the account under its lock and reverts it to free if it is still expired.
// It returns nil when nothing changed.
func (s *Sweeper) downgrade(ctx context.Context, accountID, customerID string) (*Account, error) {
	key := customerID
	if key == "" {
		key = "account:" + accountID
	}
	unlock, err := s.manager.locker.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	acc, err := s.manager.accounts.GetAccount(ctx, accountID)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	now := s.manager.now()
	if acc.Plan != PlanPro || acc.PeriodEndsAt == nil || now.Before(*acc.PeriodEndsAt) {
		return nil, nil
	}

	acc.Plan = PlanFree
	acc.PeriodEndsAt = nil
	if err := s.manager.SaveAccount(ctx, acc); err != nil {
		return nil, fmt.Errorf("downgrade account %s: %w", accountID, err)
	}
	s.manager.logger.Info("expired subscription downgraded", F("account_id", accountID))
	return acc, nil
}
