// Package scheduler promotes due scheduled campaigns into active
// dispatch on a fixed polling interval.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"wacast/internal/gateway"
	"wacast/internal/models"
)

// Store lists due campaigns and moves them between statuses.
type Store interface {
	ListDue(now time.Time) ([]models.Campaign, error)
	UpdateStatus(id string, status models.CampaignStatus) error
}

// Accounts resolves the sending account for a due campaign.
type Accounts interface {
	GetByID(id string) (*models.Account, error)
}

// Dispatcher starts a dispatch run for a campaign.
type Dispatcher interface {
	Trigger(ctx context.Context, campaignID string, creds gateway.Credentials) bool
}

// Scheduler runs a single polling loop.
type Scheduler struct {
	store    Store
	accounts Accounts
	engine   Dispatcher
	interval time.Duration
	logger   *slog.Logger

	// now is overridable in tests.
	now func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a scheduler. A non-positive interval falls back to one
// minute, the resolution scheduled start times are honored at.
func New(store Store, accounts Accounts, engine Dispatcher, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		store:    store,
		accounts: accounts,
		engine:   engine,
		interval: interval,
		logger:   logger.With("component", "scheduler"),
		now:      func() time.Time { return time.Now().UTC() },
		stopCh:   make(chan struct{}),
	}
}

// Start launches the polling loop. An immediate first scan picks up
// campaigns that came due while the process was down.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("starting scheduler", "interval", s.interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.Tick(ctx)

		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("scheduler stopped by context")
				return
			case <-s.stopCh:
				s.logger.Debug("scheduler stopped by signal")
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Stop stops the scheduler gracefully.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Tick scans for due campaigns and hands each one to the dispatcher.
// A failure on one campaign never aborts the rest of the scan.
func (s *Scheduler) Tick(ctx context.Context) {
	due, err := s.store.ListDue(s.now())
	if err != nil {
		s.logger.Error("failed to list due campaigns", "error", err)
		return
	}

	for i := range due {
		s.promote(ctx, &due[i])
	}
}

func (s *Scheduler) promote(ctx context.Context, c *models.Campaign) {
	log := s.logger.With("campaign", c.ID, "account", c.AccountID)

	account, err := s.accounts.GetByID(c.AccountID)
	if err != nil {
		log.Error("failed to load account", "error", err)
		return
	}

	// A due campaign whose account can no longer send is closed out
	// rather than retried forever. The credentials were present at
	// submission, so their absence now is a permanent precondition
	// failure.
	if account == nil || !account.Credentials.Configured() {
		log.Warn("scheduled campaign has no usable gateway credentials, closing")
		if err := s.store.UpdateStatus(c.ID, models.StatusCompleted); err != nil {
			log.Error("failed to close campaign", "error", err)
		}
		return
	}

	if account.IsPaused {
		// Left scheduled so it dispatches once the account is unpaused.
		log.Info("account paused, deferring scheduled campaign")
		return
	}

	if err := s.store.UpdateStatus(c.ID, models.StatusProcessing); err != nil {
		log.Error("failed to mark campaign processing", "error", err)
		return
	}

	if s.engine.Trigger(ctx, c.ID, gateway.Credentials(account.Credentials)) {
		log.Info("scheduled campaign dispatched", "scheduled_at", c.ScheduledAt)
	} else {
		log.Warn("dispatch already in flight for campaign")
	}
}
