// Package quota tracks each account's daily message consumption. Usage
// is debited post-send, for confirmed successes only, so failed or
// undeliverable numbers never starve an account's allowance. Counters
// live in memory and are flushed to bolt on an interval so a restart
// resumes with today's consumption intact.
package quota

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketUsage = []byte("quota_usage")

// dayFormat is the reference-timezone (UTC) calendar date.
const dayFormat = "2006-01-02"

// Counter tracks one account's consumption for a calendar day.
type Counter struct {
	Used int    `json:"used"`
	Date string `json:"date"`
}

// Result is the outcome of a capacity check.
type Result struct {
	Allowed   bool
	Used      int
	Remaining int
}

// Config contains ledger settings.
type Config struct {
	FlushInterval time.Duration
}

// Ledger enforces per-account daily send quotas.
type Ledger struct {
	db       *bolt.DB
	counters map[string]*Counter
	mu       sync.RWMutex
	stopCh   chan struct{}

	now func() time.Time
}

// NewLedger creates a ledger backed by the given bolt database, loads
// persisted counters and starts the flush loop.
func NewLedger(db *bolt.DB, cfg Config) (*Ledger, error) {
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketUsage)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create quota bucket: %w", err)
	}

	l := &Ledger{
		db:       db,
		counters: make(map[string]*Counter),
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}

	if err := l.loadCounters(); err != nil {
		return nil, fmt.Errorf("failed to load counters: %w", err)
	}

	go l.persistLoop(cfg.FlushInterval)

	return l, nil
}

// CheckAndReserve evaluates whether requested messages fit in the
// account's remaining allowance for the day they will be sent.
//
// Immediate and same-day scheduled sends are checked against today's
// remaining capacity. A send scheduled for a later calendar day is
// allowed unconditionally: its quota is evaluated on the day it actually
// executes, via the per-run Commit debit.
//
// No usage is consumed here; Commit debits confirmed successes after
// dispatch.
func (l *Ledger) CheckAndReserve(accountID string, limit, requested int, scheduledAt *time.Time) *Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	counter := l.getOrCreateCounter(accountID, now)
	l.resetExpired(counter, now)

	if scheduledAt != nil && scheduledAt.UTC().Format(dayFormat) > now.Format(dayFormat) {
		return &Result{Allowed: true, Used: counter.Used, Remaining: limit - counter.Used}
	}

	remaining := limit - counter.Used
	if counter.Used+requested > limit {
		return &Result{Allowed: false, Used: counter.Used, Remaining: remaining}
	}
	return &Result{Allowed: true, Used: counter.Used, Remaining: remaining}
}

// Commit debits n confirmed successful sends against today's counter.
// Safe for concurrent dispatch runs of the same account.
func (l *Ledger) Commit(accountID string, n int) {
	if n <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	counter := l.getOrCreateCounter(accountID, now)
	l.resetExpired(counter, now)
	counter.Used += n
}

// Usage returns the account's consumption for the current UTC day.
func (l *Ledger) Usage(accountID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	counter, ok := l.counters[accountID]
	if !ok {
		return 0
	}
	if counter.Date != l.now().UTC().Format(dayFormat) {
		return 0
	}
	return counter.Used
}

// Stop halts the flush loop and persists counters one last time.
func (l *Ledger) Stop() error {
	close(l.stopCh)
	return l.persistCounters()
}

func (l *Ledger) getOrCreateCounter(accountID string, now time.Time) *Counter {
	counter, ok := l.counters[accountID]
	if !ok {
		counter = &Counter{Date: now.Format(dayFormat)}
		l.counters[accountID] = counter
	}
	return counter
}

// resetExpired zeroes the counter exactly once when the stored date is
// no longer today.
func (l *Ledger) resetExpired(counter *Counter, now time.Time) {
	today := now.Format(dayFormat)
	if counter.Date != today {
		counter.Used = 0
		counter.Date = today
	}
}

func (l *Ledger) loadCounters() error {
	return l.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketUsage)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var counter Counter
			if err := json.Unmarshal(v, &counter); err != nil {
				return nil // skip invalid entries
			}
			l.counters[string(k)] = &counter
			return nil
		})
	})
}

func (l *Ledger) persistCounters() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketUsage)
		if bucket == nil {
			return nil
		}

		for key, counter := range l.counters {
			data, err := json.Marshal(counter)
			if err != nil {
				continue
			}
			if err := bucket.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (l *Ledger) persistLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.persistCounters()
		}
	}
}
