// Package dispatch drives rate-limited, batched delivery of a
// campaign's recipients against the gateway, persisting progress after
// every batch and honoring pause/cancel requests observed through the
// campaign's stored status.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"wacast/internal/gateway"
	"wacast/internal/metrics"
	"wacast/internal/models"
)

// Store is the slice of the campaign state store the engine needs.
type Store interface {
	GetByID(id string) (*models.Campaign, error)
	GetStatus(id string) (models.CampaignStatus, error)
	ApplyProgress(id string, updates []models.RecipientUpdate, sent, failed, pending int) error
	UpdateStatus(id string, status models.CampaignStatus) error
}

// Quota debits confirmed successful sends against the owning account.
type Quota interface {
	Commit(accountID string, n int)
}

// Sender delivers one templated message. gateway.Client satisfies this.
type Sender interface {
	SendTemplate(ctx context.Context, creds gateway.Credentials, msg gateway.Message) (gateway.Result, error)
}

// Config tunes the dispatch loop.
type Config struct {
	// BatchSize bounds concurrent outbound calls per batch.
	BatchSize int
	// RatePerSecond caps overall gateway throughput.
	RatePerSecond int
	// ProgressRetries is how many times a failed progress write is
	// retried before the run halts.
	ProgressRetries int
	// ProgressRetryDelay is the base backoff between retries.
	ProgressRetryDelay time.Duration
}

// DefaultConfig returns the production dispatch configuration. The
// gateway enforces a ceiling of roughly 29 messages per second.
func DefaultConfig() Config {
	return Config{
		BatchSize:          25,
		RatePerSecond:      29,
		ProgressRetries:    3,
		ProgressRetryDelay: 500 * time.Millisecond,
	}
}

// Engine runs at most one dispatch task per campaign id at a time.
type Engine struct {
	store   Store
	quota   Quota
	sender  Sender
	logger  *slog.Logger
	cfg     Config
	limiter *rate.Limiter

	mu     sync.Mutex
	active map[string]struct{}
	wg     sync.WaitGroup
}

// New creates a dispatch engine.
func New(store Store, quota Quota, sender Sender, logger *slog.Logger, cfg Config) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = DefaultConfig().RatePerSecond
	}
	if cfg.ProgressRetries <= 0 {
		cfg.ProgressRetries = DefaultConfig().ProgressRetries
	}
	if cfg.ProgressRetryDelay <= 0 {
		cfg.ProgressRetryDelay = DefaultConfig().ProgressRetryDelay
	}

	return &Engine{
		store:   store,
		quota:   quota,
		sender:  sender,
		logger:  logger.With("component", "dispatch"),
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RatePerSecond),
		active:  make(map[string]struct{}),
	}
}

// Trigger starts an asynchronous dispatch run for the campaign. It is a
// no-op returning false when a run for that id is already in flight, so
// a resume or scheduler tick can never start a second concurrent run.
func (e *Engine) Trigger(ctx context.Context, campaignID string, creds gateway.Credentials) bool {
	e.mu.Lock()
	if _, running := e.active[campaignID]; running {
		e.mu.Unlock()
		return false
	}
	e.active[campaignID] = struct{}{}
	e.mu.Unlock()

	e.wg.Add(1)
	metrics.DispatchStarted()
	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			delete(e.active, campaignID)
			e.mu.Unlock()
		}()
		e.run(ctx, campaignID, creds)
	}()

	return true
}

// Running reports whether a dispatch run for the campaign is in flight.
func (e *Engine) Running(campaignID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.active[campaignID]
	return ok
}

// Wait blocks until all in-flight runs have exited.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// outcome of one recipient's delivery attempt, paired with its position.
// skipped marks a recipient that was never attempted because the run
// context was cancelled; it carries no update and stays pending.
type sendOutcome struct {
	update  models.RecipientUpdate
	ok      bool
	skipped bool
}

func (e *Engine) run(ctx context.Context, campaignID string, creds gateway.Credentials) {
	log := e.logger.With("campaign", campaignID)
	start := time.Now()

	c, err := e.store.GetByID(campaignID)
	if err != nil {
		log.Error("failed to load campaign", "error", err)
		metrics.DispatchFinished("error")
		return
	}
	if c == nil {
		log.Error("campaign not found")
		metrics.DispatchFinished("error")
		return
	}

	log.Info("dispatch run started", "total", c.TotalCount, "sent", c.SentCount, "failed", c.FailedCount)

	sent := c.SentCount
	failed := c.FailedCount
	succeededThisRun := 0

	// Recipients are walked in stored order; already-settled ones are
	// skipped so a resumed or restarted run never re-sends.
	remaining := make([]*models.Recipient, 0, len(c.Recipients))
	for i := range c.Recipients {
		if c.Recipients[i].Status == models.RecipientPending {
			remaining = append(remaining, &c.Recipients[i])
		}
	}

	for off := 0; off < len(remaining); off += e.cfg.BatchSize {
		end := min(off+e.cfg.BatchSize, len(remaining))
		batch := remaining[off:end]

		outcomes := e.sendBatch(ctx, c, creds, batch)

		updates := make([]models.RecipientUpdate, 0, len(outcomes))
		batchSent := 0
		interrupted := false
		for _, o := range outcomes {
			if o.skipped {
				// Never attempted; the recipient stays pending so a
				// resumed run picks it up.
				interrupted = true
				continue
			}
			updates = append(updates, o.update)
			if o.ok {
				sent++
				batchSent++
			} else {
				failed++
			}
		}
		pending := c.TotalCount - sent - failed

		if len(updates) > 0 {
			if err := e.persistProgress(ctx, campaignID, updates, sent, failed, pending); err != nil {
				// Progress already computed for this batch could not be
				// written; halt leaving the campaign processing so a later
				// resume re-drives the unsettled recipients.
				log.Error("failed to persist progress, halting run", "error", err)
				metrics.DispatchFinished("error")
				return
			}

			// Successes consume quota as they are confirmed, so partial and
			// paused runs are accounted for exactly once.
			e.quota.Commit(c.AccountID, batchSent)
			succeededThisRun += batchSent
			metrics.IncMessagesSent(c.AccountID, batchSent)
			metrics.IncMessagesFailed(c.AccountID, len(updates)-batchSent)
		}

		if interrupted {
			// Shutdown mid-batch. The campaign stays processing, like a
			// pause, and a later trigger resumes the untouched recipients.
			log.Info("dispatch run interrupted by shutdown", "sent", sent, "failed", failed, "pending", pending)
			metrics.DispatchFinished("interrupted")
			return
		}

		if end == len(remaining) {
			break
		}

		// Coarse status poll between batches. Pause and cancel arrive
		// through the persisted status because the requesting actor may
		// be another process.
		status, err := e.store.GetStatus(campaignID)
		if err != nil {
			log.Error("failed to read campaign status", "error", err)
			metrics.DispatchFinished("error")
			return
		}
		switch status {
		case models.StatusPaused:
			log.Info("dispatch run paused", "sent", sent, "failed", failed, "dur", time.Since(start))
			metrics.DispatchFinished("paused")
			return
		case models.StatusCancelled:
			log.Info("dispatch run cancelled", "sent", sent, "failed", failed, "dur", time.Since(start))
			metrics.DispatchFinished("cancelled")
			return
		}

		select {
		case <-ctx.Done():
			log.Info("dispatch run stopped by shutdown", "sent", sent, "failed", failed)
			metrics.DispatchFinished("interrupted")
			return
		default:
		}
	}

	// A cancel that landed during the final batch still wins over
	// completion.
	status, err := e.store.GetStatus(campaignID)
	if err == nil && status == models.StatusCancelled {
		log.Info("dispatch run cancelled at finish", "sent", sent, "failed", failed)
		metrics.DispatchFinished("cancelled")
		return
	}

	if err := e.store.UpdateStatus(campaignID, models.StatusCompleted); err != nil {
		log.Error("failed to mark campaign completed", "error", err)
		metrics.DispatchFinished("error")
		return
	}

	log.Info("dispatch run completed",
		"sent", sent, "failed", failed, "succeeded_this_run", succeededThisRun,
		"dur", time.Since(start))
	metrics.DispatchFinished("completed")
}

// sendBatch issues every send in the batch concurrently and waits for
// all of them. One slow call delays only its own slot, bounded by the
// client timeout.
func (e *Engine) sendBatch(ctx context.Context, c *models.Campaign, creds gateway.Credentials, batch []*models.Recipient) []sendOutcome {
	outcomes := make([]sendOutcome, len(batch))
	var wg sync.WaitGroup

	for i, r := range batch {
		wg.Add(1)
		go func(i int, r *models.Recipient) {
			defer wg.Done()
			outcomes[i] = e.sendOne(ctx, c, creds, r)
		}(i, r)
	}

	wg.Wait()
	return outcomes
}

func (e *Engine) sendOne(ctx context.Context, c *models.Campaign, creds gateway.Credentials, r *models.Recipient) sendOutcome {
	// A limiter error means the run context was cancelled before this
	// recipient was attempted. Failed status is reserved for delivery
	// faults, so the recipient is left pending for the next run.
	if err := e.limiter.Wait(ctx); err != nil {
		return sendOutcome{skipped: true}
	}

	res, err := e.sender.SendTemplate(ctx, creds, gateway.Message{
		Phone:        r.Phone,
		TemplateName: c.TemplateName,
		Language:     c.Language,
		Fields:       r.Fields,
	})
	if err != nil {
		// Misconfiguration, not a delivery fault; recorded the same way
		// so the run can continue.
		res = gateway.Result{OK: false, Error: err.Error()}
	}

	if !res.OK {
		r.Status = models.RecipientFailed
		r.Error = res.Error
		return sendOutcome{update: models.RecipientUpdate{
			Position: r.Position,
			Status:   models.RecipientFailed,
			Error:    res.Error,
		}}
	}

	now := time.Now().UTC()
	r.Status = models.RecipientSent
	r.MessageID = res.MessageID
	r.SentAt = &now
	return sendOutcome{
		ok: true,
		update: models.RecipientUpdate{
			Position:  r.Position,
			Status:    models.RecipientSent,
			MessageID: res.MessageID,
			SentAt:    &now,
		},
	}
}

// persistProgress retries transient store failures with linear backoff.
func (e *Engine) persistProgress(ctx context.Context, id string, updates []models.RecipientUpdate, sent, failed, pending int) error {
	var err error
	for attempt := 0; attempt <= e.cfg.ProgressRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * e.cfg.ProgressRetryDelay
			e.logger.Warn("retrying progress write", "campaign", id, "attempt", attempt, "delay", delay, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		if err = e.store.ApplyProgress(id, updates, sent, failed, pending); err == nil {
			return nil
		}
	}
	return err
}
