// Package campaign implements the campaign lifecycle operations on top
// of the store, quota ledger and dispatch engine.
package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"wacast/internal/gateway"
	"wacast/internal/metrics"
	"wacast/internal/models"
	"wacast/internal/phone"
	"wacast/internal/quota"
)

// Campaigns is the slice of the campaign store the service needs.
type Campaigns interface {
	Create(c *models.Campaign) error
	GetByID(id string) (*models.Campaign, error)
	List(filter models.CampaignListFilter) ([]models.Campaign, error)
	UpdateStatus(id string, status models.CampaignStatus) error
	Delete(id string) error
}

// Accounts resolves the acting account and its gateway credentials.
type Accounts interface {
	GetByID(id string) (*models.Account, error)
}

// Quota answers whether an account has headroom for a send.
type Quota interface {
	CheckAndReserve(accountID string, limit, requested int, scheduledAt *time.Time) *quota.Result
	Usage(accountID string) int
}

// Dispatcher starts dispatch runs.
type Dispatcher interface {
	Trigger(ctx context.Context, campaignID string, creds gateway.Credentials) bool
}

// Actor identifies the authenticated caller of an operation.
type Actor struct {
	AccountID string
	Role      models.Role
}

func (a Actor) admin() bool { return a.Role == models.RoleAdmin }

// RecipientInput is one delivery target in a submit request.
type RecipientInput struct {
	Phone  string            `json:"phone"`
	Name   string            `json:"name,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// SubmitRequest describes a new campaign.
type SubmitRequest struct {
	Name         string           `json:"name"`
	TemplateName string           `json:"template_name"`
	Language     string           `json:"language,omitempty"`
	CountryCode  string           `json:"country_code,omitempty"`
	ScheduledAt  *time.Time       `json:"scheduled_at,omitempty"`
	Recipients   []RecipientInput `json:"recipients"`
}

// Service wires the campaign operations together.
type Service struct {
	campaigns Campaigns
	accounts  Accounts
	quota     Quota
	engine    Dispatcher
	logger    *slog.Logger

	now func() time.Time
}

// NewService creates the campaign service.
func NewService(campaigns Campaigns, accounts Accounts, q Quota, engine Dispatcher, logger *slog.Logger) *Service {
	return &Service{
		campaigns: campaigns,
		accounts:  accounts,
		quota:     q,
		engine:    engine,
		logger:    logger.With("component", "campaign"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit validates and persists a new campaign. Immediate campaigns
// start dispatching before Submit returns; scheduled ones wait for the
// scheduler. Quota is only checked here, never debited: usage grows as
// sends are confirmed.
func (s *Service) Submit(ctx context.Context, actor Actor, req SubmitRequest) (*models.Campaign, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if req.TemplateName == "" {
		return nil, fmt.Errorf("%w: template_name is required", ErrValidation)
	}
	if len(req.Recipients) == 0 {
		return nil, fmt.Errorf("%w: at least one recipient is required", ErrValidation)
	}
	// A scheduled time that is not in the future means "send now".
	scheduled := req.ScheduledAt != nil && req.ScheduledAt.After(s.now())

	account, err := s.accounts.GetByID(actor.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if account == nil {
		return nil, ErrAuthorization
	}
	if account.IsPaused {
		return nil, ErrAccountPaused
	}
	if !account.Credentials.Configured() {
		return nil, ErrCredentialsMissing
	}

	recipients := make([]models.Recipient, 0, len(req.Recipients))
	for i, in := range req.Recipients {
		normalized := phone.Normalize(in.Phone, req.CountryCode)
		if len(normalized) < 2 {
			return nil, fmt.Errorf("%w: recipient %d has no dialable phone number", ErrValidation, i)
		}
		recipients = append(recipients, models.Recipient{
			Phone:  normalized,
			Name:   in.Name,
			Fields: in.Fields,
			Status: models.RecipientPending,
		})
	}

	res := s.quota.CheckAndReserve(actor.AccountID, account.DailyLimit, len(recipients), req.ScheduledAt)
	if !res.Allowed {
		metrics.IncQuotaDenied(actor.AccountID)
		return nil, fmt.Errorf("%w: %d of %d messages used today, %d remaining",
			ErrQuotaExceeded, res.Used, account.DailyLimit, res.Remaining)
	}

	language := req.Language
	if language == "" {
		language = "en"
	}

	c := &models.Campaign{
		AccountID:    actor.AccountID,
		Name:         req.Name,
		TemplateName: req.TemplateName,
		Language:     language,
		Status:       models.StatusPending,
		ScheduledAt:  req.ScheduledAt,
		Recipients:   recipients,
	}
	if scheduled {
		c.Status = models.StatusScheduled
	}

	if err := s.campaigns.Create(c); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	log := s.logger.With("campaign", c.ID, "account", actor.AccountID)
	log.Info("campaign submitted",
		"name", c.Name, "template", c.TemplateName,
		"recipients", c.TotalCount, "scheduled", scheduled)

	if c.Status == models.StatusScheduled {
		return c, nil
	}

	if err := s.campaigns.UpdateStatus(c.ID, models.StatusProcessing); err != nil {
		return nil, fmt.Errorf("failed to start campaign: %w", err)
	}
	c.Status = models.StatusProcessing
	s.engine.Trigger(ctx, c.ID, gateway.Credentials(account.Credentials))

	return c, nil
}

// Get returns a campaign with recipients, enforcing ownership.
func (s *Service) Get(actor Actor, id string) (*models.Campaign, error) {
	return s.owned(actor, id)
}

// List returns the caller's campaigns, newest first. Admins see every
// account's campaigns.
func (s *Service) List(actor Actor, filter models.CampaignListFilter) ([]models.Campaign, error) {
	if !actor.admin() {
		filter.AccountID = actor.AccountID
	}
	return s.campaigns.List(filter)
}

// Pause requests a stop at the next batch boundary. Only an actively
// processing campaign can be paused.
func (s *Service) Pause(actor Actor, id string) error {
	c, err := s.owned(actor, id)
	if err != nil {
		return err
	}
	if c.Status != models.StatusProcessing {
		return fmt.Errorf("%w: only processing campaigns can be paused, status is %s", ErrPreconditionFailed, c.Status)
	}
	if err := s.campaigns.UpdateStatus(id, models.StatusPaused); err != nil {
		return fmt.Errorf("failed to pause campaign: %w", err)
	}
	s.logger.Info("campaign paused", "campaign", id)
	return nil
}

// Resume restarts a paused campaign. Already-settled recipients are
// never re-sent.
func (s *Service) Resume(ctx context.Context, actor Actor, id string) error {
	c, err := s.owned(actor, id)
	if err != nil {
		return err
	}
	if c.Status != models.StatusPaused {
		return fmt.Errorf("%w: only paused campaigns can be resumed, status is %s", ErrPreconditionFailed, c.Status)
	}

	account, err := s.accounts.GetByID(c.AccountID)
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}
	if account == nil || !account.Credentials.Configured() {
		return ErrCredentialsMissing
	}
	if account.IsPaused {
		return ErrAccountPaused
	}

	if err := s.campaigns.UpdateStatus(id, models.StatusProcessing); err != nil {
		return fmt.Errorf("failed to resume campaign: %w", err)
	}
	s.engine.Trigger(ctx, id, gateway.Credentials(account.Credentials))
	s.logger.Info("campaign resumed", "campaign", id, "pending", c.PendingCount)
	return nil
}

// Cancel terminally stops a campaign. Works from any non-terminal
// status; an in-flight run stops at its next batch boundary.
func (s *Service) Cancel(actor Actor, id string) error {
	c, err := s.owned(actor, id)
	if err != nil {
		return err
	}
	if c.Status.Terminal() {
		return fmt.Errorf("%w: campaign is already %s", ErrPreconditionFailed, c.Status)
	}
	if err := s.campaigns.UpdateStatus(id, models.StatusCancelled); err != nil {
		return fmt.Errorf("failed to cancel campaign: %w", err)
	}
	s.logger.Info("campaign cancelled", "campaign", id, "sent", c.SentCount, "pending", c.PendingCount)
	return nil
}

// Delete removes a campaign and its recipients. A processing campaign
// must be paused or cancelled first. Quota consumed by the campaign is
// not reclaimed.
func (s *Service) Delete(actor Actor, id string) error {
	c, err := s.owned(actor, id)
	if err != nil {
		return err
	}
	if c.Status == models.StatusProcessing {
		return fmt.Errorf("%w: cannot delete a processing campaign", ErrPreconditionFailed)
	}
	if err := s.campaigns.Delete(id); err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}
	s.logger.Info("campaign deleted", "campaign", id)
	return nil
}

// Stats returns the campaign's aggregate delivery counters.
func (s *Service) Stats(actor Actor, id string) (*models.CampaignStats, error) {
	c, err := s.owned(actor, id)
	if err != nil {
		return nil, err
	}
	return &models.CampaignStats{
		CampaignID:   c.ID,
		Name:         c.Name,
		TotalCount:   c.TotalCount,
		SentCount:    c.SentCount,
		FailedCount:  c.FailedCount,
		PendingCount: c.PendingCount,
		Status:       c.Status,
	}, nil
}

// Usage reports the account's consumed daily quota alongside its limit.
func (s *Service) Usage(actor Actor) (used, limit int, err error) {
	account, err := s.accounts.GetByID(actor.AccountID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load account: %w", err)
	}
	if account == nil {
		return 0, 0, ErrAuthorization
	}
	return s.quota.Usage(actor.AccountID), account.DailyLimit, nil
}

// owned loads a campaign and verifies the actor may act on it. A
// foreign campaign reads as not found so ids are not probeable.
func (s *Service) owned(actor Actor, id string) (*models.Campaign, error) {
	c, err := s.campaigns.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	if c == nil {
		return nil, ErrNotFound
	}
	if !actor.admin() && c.AccountID != actor.AccountID {
		return nil, ErrNotFound
	}
	return c, nil
}
