package dispatch

import (
	"context"
	"errors"
	"io"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"wacast/internal/gateway"
	"wacast/internal/models"
)

// fakeStore is an in-memory campaign state store.
type fakeStore struct {
	mu       sync.Mutex
	campaign *models.Campaign

	// statusAfterBatches flips the stored status once this many
	// progress writes have landed, simulating a pause/cancel request
	// arriving mid-run.
	statusAfterBatches int
	statusToSet        models.CampaignStatus

	progressWrites int
	failWrites     int // fail this many ApplyProgress calls
}

func (s *fakeStore) GetByID(id string) (*models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.campaign == nil || s.campaign.ID != id {
		return nil, nil
	}
	cp := *s.campaign
	cp.Recipients = make([]models.Recipient, len(s.campaign.Recipients))
	copy(cp.Recipients, s.campaign.Recipients)
	return &cp, nil
}

func (s *fakeStore) GetStatus(id string) (models.CampaignStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.campaign.Status, nil
}

func (s *fakeStore) ApplyProgress(id string, updates []models.RecipientUpdate, sent, failed, pending int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWrites > 0 {
		s.failWrites--
		return errors.New("disk full")
	}

	for _, u := range updates {
		r := &s.campaign.Recipients[u.Position]
		r.Status = u.Status
		r.MessageID = u.MessageID
		r.Error = u.Error
		r.SentAt = u.SentAt
	}
	s.campaign.SentCount = sent
	s.campaign.FailedCount = failed
	s.campaign.PendingCount = pending

	s.progressWrites++
	if s.statusAfterBatches > 0 && s.progressWrites >= s.statusAfterBatches && s.statusToSet != "" {
		s.campaign.Status = s.statusToSet
		s.statusToSet = ""
	}
	return nil
}

func (s *fakeStore) UpdateStatus(id string, status models.CampaignStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaign.Status = status
	return nil
}

func (s *fakeStore) snapshot() models.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.campaign
	cp.Recipients = make([]models.Recipient, len(s.campaign.Recipients))
	copy(cp.Recipients, s.campaign.Recipients)
	return cp
}

type fakeQuota struct {
	mu        sync.Mutex
	committed map[string]int
}

func (q *fakeQuota) Commit(accountID string, n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.committed == nil {
		q.committed = make(map[string]int)
	}
	q.committed[accountID] += n
}

func (q *fakeQuota) total(accountID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.committed[accountID]
}

// fakeSender fails any phone containing "fail" and records every call.
type fakeSender struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeSender) SendTemplate(ctx context.Context, creds gateway.Credentials, msg gateway.Message) (gateway.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, msg.Phone)
	f.mu.Unlock()

	if strings.Contains(msg.Phone, "fail") {
		return gateway.Result{OK: false, Error: "HTTP 422: invalid number"}, nil
	}
	return gateway.Result{OK: true, MessageID: "m-" + msg.Phone}, nil
}

func (f *fakeSender) sentTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func makeCampaign(n int) *models.Campaign {
	c := &models.Campaign{
		ID:           "camp-1",
		AccountID:    "acc-1",
		Name:         "launch",
		TemplateName: "welcome",
		Language:     "en",
		Status:       models.StatusProcessing,
		TotalCount:   n,
		PendingCount: n,
	}
	for i := 0; i < n; i++ {
		c.Recipients = append(c.Recipients, models.Recipient{
			CampaignID: c.ID,
			Position:   i,
			Phone:      fmt.Sprintf("+1555000%04d", i),
			Status:     models.RecipientPending,
		})
	}
	return c
}

func testEngine(store Store, quota Quota, sender Sender, cfg Config) *Engine {
	// High rate so tests are not paced by the limiter.
	if cfg.RatePerSecond == 0 {
		cfg.RatePerSecond = 100000
	}
	if cfg.ProgressRetryDelay == 0 {
		cfg.ProgressRetryDelay = time.Millisecond
	}
	return New(store, quota, sender, slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
}

func runAndWait(t *testing.T, e *Engine, id string) {
	t.Helper()
	if !e.Trigger(context.Background(), id, gateway.Credentials{Token: "t", VendorUID: "v"}) {
		t.Fatal("trigger refused")
	}
	e.Wait()
}

func TestRunCompletesCampaign(t *testing.T) {
	store := &fakeStore{campaign: makeCampaign(12)}
	quota := &fakeQuota{}
	sender := &fakeSender{}
	e := testEngine(store, quota, sender, Config{BatchSize: 5})

	runAndWait(t, e, "camp-1")

	got := store.snapshot()
	if got.Status != models.StatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if got.SentCount != 12 || got.FailedCount != 0 || got.PendingCount != 0 {
		t.Errorf("counters = %d/%d/%d", got.SentCount, got.FailedCount, got.PendingCount)
	}
	if got.SentCount+got.FailedCount+got.PendingCount != got.TotalCount {
		t.Error("counter invariant violated")
	}
	for i, r := range got.Recipients {
		if r.Status != models.RecipientSent || r.MessageID == "" || r.SentAt == nil {
			t.Errorf("recipient %d not settled: %+v", i, r)
		}
	}
	if quota.total("acc-1") != 12 {
		t.Errorf("quota committed = %d, want 12", quota.total("acc-1"))
	}
	// 12 recipients at batch size 5 -> 3 progress writes.
	if store.progressWrites != 3 {
		t.Errorf("progress writes = %d, want 3", store.progressWrites)
	}
}

func TestFailuresDoNotConsumeQuota(t *testing.T) {
	c := makeCampaign(5)
	c.Recipients[1].Phone = "+fail-1"
	c.Recipients[3].Phone = "+fail-3"
	store := &fakeStore{campaign: c}
	quota := &fakeQuota{}
	e := testEngine(store, quota, &fakeSender{}, Config{BatchSize: 5})

	runAndWait(t, e, "camp-1")

	got := store.snapshot()
	if got.SentCount != 3 || got.FailedCount != 2 || got.PendingCount != 0 {
		t.Errorf("counters = %d/%d/%d, want 3/2/0", got.SentCount, got.FailedCount, got.PendingCount)
	}
	if got.Recipients[1].Error == "" {
		t.Error("failed recipient missing error detail")
	}
	if quota.total("acc-1") != 3 {
		t.Errorf("quota committed = %d, want 3 (failures never debit)", quota.total("acc-1"))
	}
	if got.Status != models.StatusCompleted {
		t.Errorf("partial failure must still complete, status = %q", got.Status)
	}
}

func TestResumeSkipsSettledRecipients(t *testing.T) {
	c := makeCampaign(6)
	now := time.Now().UTC()
	c.Recipients[0].Status = models.RecipientSent
	c.Recipients[0].MessageID = "m-old"
	c.Recipients[0].SentAt = &now
	c.Recipients[1].Status = models.RecipientFailed
	c.Recipients[1].Error = "HTTP 500"
	c.SentCount = 1
	c.FailedCount = 1
	c.PendingCount = 4

	store := &fakeStore{campaign: c}
	quota := &fakeQuota{}
	sender := &fakeSender{}
	e := testEngine(store, quota, sender, Config{BatchSize: 3})

	runAndWait(t, e, "camp-1")

	for _, phone := range sender.sentTo() {
		if phone == c.Recipients[0].Phone || phone == c.Recipients[1].Phone {
			t.Errorf("settled recipient re-sent: %s", phone)
		}
	}
	if len(sender.sentTo()) != 4 {
		t.Errorf("sends = %d, want 4", len(sender.sentTo()))
	}

	got := store.snapshot()
	if got.SentCount != 5 || got.FailedCount != 1 || got.PendingCount != 0 {
		t.Errorf("counters = %d/%d/%d, want 5/1/0", got.SentCount, got.FailedCount, got.PendingCount)
	}
	// Only this run's successes are debited, never the prior run's.
	if quota.total("acc-1") != 4 {
		t.Errorf("quota committed = %d, want 4", quota.total("acc-1"))
	}
}

func TestPauseStopsRunAndPreservesProgress(t *testing.T) {
	store := &fakeStore{
		campaign:           makeCampaign(10),
		statusAfterBatches: 1,
		statusToSet:        models.StatusPaused,
	}
	quota := &fakeQuota{}
	sender := &fakeSender{}
	e := testEngine(store, quota, sender, Config{BatchSize: 3})

	runAndWait(t, e, "camp-1")

	got := store.snapshot()
	if got.Status != models.StatusPaused {
		t.Errorf("status = %q, want paused", got.Status)
	}
	if got.SentCount != 3 {
		t.Errorf("sent = %d, want exactly the first batch", got.SentCount)
	}
	if got.PendingCount != 7 {
		t.Errorf("pending = %d, want 7", got.PendingCount)
	}
	if len(sender.sentTo()) != 3 {
		t.Errorf("sends = %d, pause must stop before the next batch", len(sender.sentTo()))
	}
	if quota.total("acc-1") != 3 {
		t.Errorf("quota committed = %d, want 3", quota.total("acc-1"))
	}
}

func TestCancelStopsRun(t *testing.T) {
	store := &fakeStore{
		campaign:           makeCampaign(10),
		statusAfterBatches: 1,
		statusToSet:        models.StatusCancelled,
	}
	e := testEngine(store, &fakeQuota{}, &fakeSender{}, Config{BatchSize: 3})

	runAndWait(t, e, "camp-1")

	got := store.snapshot()
	if got.Status != models.StatusCancelled {
		t.Errorf("status = %q, want cancelled (never completed)", got.Status)
	}
	if got.SentCount != 3 {
		t.Errorf("sent = %d, want 3", got.SentCount)
	}
}

func TestCancelDuringFinalBatchWins(t *testing.T) {
	store := &fakeStore{
		campaign:           makeCampaign(3),
		statusAfterBatches: 1,
		statusToSet:        models.StatusCancelled,
	}
	e := testEngine(store, &fakeQuota{}, &fakeSender{}, Config{BatchSize: 5})

	runAndWait(t, e, "camp-1")

	if got := store.snapshot(); got.Status != models.StatusCancelled {
		t.Errorf("status = %q, cancel during final batch must not be overwritten", got.Status)
	}
}

// blockingSender holds every send until release is closed, pinning the
// run in flight for as long as the test needs.
type blockingSender struct {
	fakeSender
	release chan struct{}
}

func (b *blockingSender) SendTemplate(ctx context.Context, creds gateway.Credentials, msg gateway.Message) (gateway.Result, error) {
	<-b.release
	return b.fakeSender.SendTemplate(ctx, creds, msg)
}

func TestTriggerIsExclusivePerCampaign(t *testing.T) {
	store := &fakeStore{campaign: makeCampaign(5)}
	sender := &blockingSender{release: make(chan struct{})}
	e := testEngine(store, &fakeQuota{}, sender, Config{BatchSize: 5})

	creds := gateway.Credentials{Token: "t", VendorUID: "v"}
	if !e.Trigger(context.Background(), "camp-1", creds) {
		t.Fatal("first trigger refused")
	}
	if e.Trigger(context.Background(), "camp-1", creds) {
		t.Error("second trigger for an in-flight campaign must be a no-op")
	}
	if !e.Running("camp-1") {
		t.Error("Running must report the in-flight campaign")
	}

	// Let it finish, then a new trigger is accepted again.
	close(sender.release)
	e.Wait()
	if e.Running("camp-1") {
		t.Error("Running must clear after the run exits")
	}
	if !e.Trigger(context.Background(), "camp-1", creds) {
		t.Error("trigger after completion refused")
	}
	e.Wait()
}

func TestShutdownLeavesUnattemptedRecipientsPending(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := &fakeStore{campaign: makeCampaign(5)}
	quota := &fakeQuota{}
	sender := &fakeSender{}
	e := testEngine(store, quota, sender, Config{BatchSize: 5})

	if !e.Trigger(ctx, "camp-1", gateway.Credentials{Token: "t", VendorUID: "v"}) {
		t.Fatal("trigger refused")
	}
	e.Wait()

	got := store.snapshot()
	if got.Status != models.StatusProcessing {
		t.Errorf("status = %q, an interrupted run must stay processing for resume", got.Status)
	}
	for i, r := range got.Recipients {
		if r.Status != models.RecipientPending {
			t.Errorf("recipient %d = %q, never-attempted recipients must stay pending", i, r.Status)
		}
	}
	if got.FailedCount != 0 || got.PendingCount != 5 {
		t.Errorf("counters = %d/%d/%d, want 0/0/5", got.SentCount, got.FailedCount, got.PendingCount)
	}
	if store.progressWrites != 0 {
		t.Errorf("progress writes = %d, nothing was attempted", store.progressWrites)
	}
	if len(sender.sentTo()) != 0 {
		t.Errorf("sends = %d, want 0", len(sender.sentTo()))
	}
	if quota.total("acc-1") != 0 {
		t.Errorf("quota committed = %d, want 0", quota.total("acc-1"))
	}
}

// cancelStore cancels the run context once the first progress write
// lands, simulating a shutdown that arrives between batches.
type cancelStore struct {
	*fakeStore
	cancel context.CancelFunc
}

func (s *cancelStore) ApplyProgress(id string, updates []models.RecipientUpdate, sent, failed, pending int) error {
	err := s.fakeStore.ApplyProgress(id, updates, sent, failed, pending)
	s.cancel()
	return err
}

func TestShutdownBetweenBatchesIsResumable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := &cancelStore{fakeStore: &fakeStore{campaign: makeCampaign(7)}, cancel: cancel}
	quota := &fakeQuota{}
	sender := &fakeSender{}
	e := testEngine(store, quota, sender, Config{BatchSize: 3})

	creds := gateway.Credentials{Token: "t", VendorUID: "v"}
	if !e.Trigger(ctx, "camp-1", creds) {
		t.Fatal("trigger refused")
	}
	e.Wait()

	got := store.snapshot()
	if got.Status != models.StatusProcessing {
		t.Errorf("status = %q, want processing", got.Status)
	}
	if got.SentCount != 3 || got.FailedCount != 0 || got.PendingCount != 4 {
		t.Errorf("counters = %d/%d/%d, want 3/0/4", got.SentCount, got.FailedCount, got.PendingCount)
	}

	// A fresh trigger picks up exactly the untouched recipients.
	if !e.Trigger(context.Background(), "camp-1", creds) {
		t.Fatal("resume trigger refused")
	}
	e.Wait()

	got = store.snapshot()
	if got.Status != models.StatusCompleted {
		t.Errorf("status = %q, want completed after resume", got.Status)
	}
	if got.SentCount != 7 || got.PendingCount != 0 {
		t.Errorf("counters = %d/%d/%d, want 7/0/0", got.SentCount, got.FailedCount, got.PendingCount)
	}
	if quota.total("acc-1") != 7 {
		t.Errorf("quota committed = %d, want 7", quota.total("acc-1"))
	}
	if len(sender.sentTo()) != 7 {
		t.Errorf("sends = %d, no recipient may be re-sent", len(sender.sentTo()))
	}
}

func TestTransientProgressFailureIsRetried(t *testing.T) {
	store := &fakeStore{campaign: makeCampaign(4), failWrites: 2}
	quota := &fakeQuota{}
	e := testEngine(store, quota, &fakeSender{}, Config{BatchSize: 4})

	runAndWait(t, e, "camp-1")

	got := store.snapshot()
	if got.Status != models.StatusCompleted {
		t.Errorf("status = %q, transient write failures must be absorbed", got.Status)
	}
	if got.SentCount != 4 {
		t.Errorf("sent = %d, want 4", got.SentCount)
	}
}

func TestExhaustedProgressRetriesHaltRun(t *testing.T) {
	store := &fakeStore{campaign: makeCampaign(4), failWrites: 10}
	quota := &fakeQuota{}
	e := testEngine(store, quota, &fakeSender{}, Config{BatchSize: 4, ProgressRetries: 2})

	runAndWait(t, e, "camp-1")

	got := store.snapshot()
	if got.Status != models.StatusProcessing {
		t.Errorf("status = %q, a halted run must stay processing for resume", got.Status)
	}
	if quota.total("acc-1") != 0 {
		t.Errorf("quota committed = %d for unpersisted progress", quota.total("acc-1"))
	}
}
