package models

import "time"

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	StatusPending    CampaignStatus = "pending"
	StatusScheduled  CampaignStatus = "scheduled"
	StatusProcessing CampaignStatus = "processing"
	StatusPaused     CampaignStatus = "paused"
	StatusCompleted  CampaignStatus = "completed"
	StatusCancelled  CampaignStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s CampaignStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// RecipientStatus is the per-recipient delivery state.
type RecipientStatus string

const (
	RecipientPending   RecipientStatus = "pending"
	RecipientSent      RecipientStatus = "sent"
	RecipientFailed    RecipientStatus = "failed"
	RecipientDelivered RecipientStatus = "delivered"
)

// Campaign represents one bulk-send job
type Campaign struct {
	ID           string         `json:"id"`
	AccountID    string         `json:"account_id"`
	Name         string         `json:"name"`
	TemplateName string         `json:"template_name"`
	Language     string         `json:"language"`
	TotalCount   int            `json:"total_count"`
	SentCount    int            `json:"sent_count"`
	FailedCount  int            `json:"failed_count"`
	PendingCount int            `json:"pending_count"`
	Status       CampaignStatus `json:"status"`
	ScheduledAt  *time.Time     `json:"scheduled_at,omitempty"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`

	// Recipients is populated on detail reads, not on list queries.
	Recipients []Recipient `json:"recipients,omitempty"`
}

// Recipient is a single delivery target within a campaign. Position is
// its stable identity inside the campaign's ordered list.
type Recipient struct {
	CampaignID string          `json:"campaign_id"`
	Position   int             `json:"position"`
	Phone      string          `json:"phone"`
	Name       string          `json:"name"`
	// Fields holds arbitrary template parameters passed verbatim to the
	// gateway payload (body slots, media URLs, location fields).
	Fields    map[string]string `json:"fields,omitempty"`
	Status    RecipientStatus   `json:"status"`
	MessageID string            `json:"message_id,omitempty"`
	Error     string            `json:"error,omitempty"`
	SentAt    *time.Time        `json:"sent_at,omitempty"`
}

// RecipientUpdate carries the outcome of one delivery attempt back to
// the store.
type RecipientUpdate struct {
	Position  int
	Status    RecipientStatus
	MessageID string
	Error     string
	SentAt    *time.Time
}

// CampaignStats holds the aggregate counters exposed by the stats
// endpoint. The invariant Sent+Failed+Pending == Total holds at every
// committed state.
type CampaignStats struct {
	CampaignID   string         `json:"campaign_id"`
	Name         string         `json:"name"`
	TotalCount   int            `json:"total_count"`
	SentCount    int            `json:"sent_count"`
	FailedCount  int            `json:"failed_count"`
	PendingCount int            `json:"pending_count"`
	Status       CampaignStatus `json:"status"`
}

// CampaignListFilter for filtering campaign lists
type CampaignListFilter struct {
	AccountID string
	Status    CampaignStatus
	Limit     int
	Offset    int
}
