package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"wacast/internal/models"
)

type CampaignStore struct {
	db *sql.DB
}

func NewCampaignStore(db *sql.DB) *CampaignStore {
	return &CampaignStore{db: db}
}

// Create persists a campaign and its full recipient list in one
// transaction. Recipient positions are their index in the given slice.
func (s *CampaignStore) Create(c *models.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	c.TotalCount = len(c.Recipients)
	c.PendingCount = c.TotalCount

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO campaigns (id, account_id, name, template_name, language, total_count,
			sent_count, failed_count, pending_count, status, scheduled_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, 0, ?, ?, ?, ?, ?)`,
		c.ID, c.AccountID, c.Name, c.TemplateName, c.Language, c.TotalCount,
		c.PendingCount, c.Status, c.ScheduledAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO recipients (campaign_id, position, phone, name, fields, status)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range c.Recipients {
		r := &c.Recipients[i]
		r.CampaignID = c.ID
		r.Position = i
		if r.Status == "" {
			r.Status = models.RecipientPending
		}

		var fieldsJSON []byte
		if len(r.Fields) > 0 {
			fieldsJSON, err = json.Marshal(r.Fields)
			if err != nil {
				return fmt.Errorf("failed to encode recipient fields: %w", err)
			}
		}

		if _, err := stmt.Exec(c.ID, r.Position, r.Phone, r.Name, nullableJSON(fieldsJSON), r.Status); err != nil {
			return fmt.Errorf("failed to insert recipient %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// GetByID returns a campaign with its recipient list in stored order.
func (s *CampaignStore) GetByID(id string) (*models.Campaign, error) {
	c, err := s.scanCampaign(s.db.QueryRow(selectCampaign+" WHERE id = ?", id))
	if err != nil || c == nil {
		return c, err
	}

	rows, err := s.db.Query(`
		SELECT campaign_id, position, phone, name, fields, status, message_id, error, sent_at
		FROM recipients WHERE campaign_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var r models.Recipient
		var fieldsJSON sql.NullString
		var sentAt sql.NullTime

		if err := rows.Scan(&r.CampaignID, &r.Position, &r.Phone, &r.Name, &fieldsJSON,
			&r.Status, &r.MessageID, &r.Error, &sentAt); err != nil {
			return nil, err
		}
		if fieldsJSON.Valid && fieldsJSON.String != "" {
			if err := json.Unmarshal([]byte(fieldsJSON.String), &r.Fields); err != nil {
				return nil, fmt.Errorf("failed to decode recipient fields: %w", err)
			}
		}
		if sentAt.Valid {
			r.SentAt = &sentAt.Time
		}
		c.Recipients = append(c.Recipients, r)
	}

	return c, rows.Err()
}

// List returns campaigns without recipients, newest first.
func (s *CampaignStore) List(filter models.CampaignListFilter) ([]models.Campaign, error) {
	query := selectCampaign + " WHERE 1=1"
	args := []any{}

	if filter.AccountID != "" {
		query += " AND account_id = ?"
		args = append(args, filter.AccountID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []models.Campaign{}
	for rows.Next() {
		c, err := s.scanCampaignRows(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}

	return campaigns, rows.Err()
}

// ListDue returns scheduled campaigns whose scheduled time has passed.
func (s *CampaignStore) ListDue(now time.Time) ([]models.Campaign, error) {
	rows, err := s.db.Query(selectCampaign+`
		WHERE status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?
		ORDER BY scheduled_at`, models.StatusScheduled, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []models.Campaign{}
	for rows.Next() {
		c, err := s.scanCampaignRows(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}

	return campaigns, rows.Err()
}

// GetStatus reads only the persisted status. The dispatch engine polls
// this between batches to observe pause and cancel requests.
func (s *CampaignStore) GetStatus(id string) (models.CampaignStatus, error) {
	var status models.CampaignStatus
	err := s.db.QueryRow("SELECT status FROM campaigns WHERE id = ?", id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("campaign %s not found", id)
	}
	return status, err
}

// UpdateStatus transitions the campaign, stamping started_at on the
// first move to processing and completed_at on terminal states.
func (s *CampaignStore) UpdateStatus(id string, status models.CampaignStatus) error {
	now := time.Now().UTC()
	var startedAt, completedAt *time.Time

	switch status {
	case models.StatusProcessing:
		startedAt = &now
	case models.StatusCompleted, models.StatusCancelled:
		completedAt = &now
	}

	res, err := s.db.Exec(`
		UPDATE campaigns SET status = ?, started_at = COALESCE(started_at, ?),
			completed_at = COALESCE(?, completed_at), updated_at = ?
		WHERE id = ?`,
		status, startedAt, completedAt, now, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("campaign %s not found", id)
	}
	return err
}

// ApplyProgress writes a batch of recipient outcomes and the recomputed
// aggregate counters in one transaction. Counters are absolute values,
// so replaying the same update is harmless. It deliberately does not
// touch status: a concurrent pause or cancel must not be overwritten.
func (s *CampaignStore) ApplyProgress(id string, updates []models.RecipientUpdate, sent, failed, pending int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		UPDATE recipients SET status = ?, message_id = ?, error = ?, sent_at = ?
		WHERE campaign_id = ? AND position = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, u := range updates {
		if _, err := stmt.Exec(u.Status, u.MessageID, u.Error, u.SentAt, id, u.Position); err != nil {
			return fmt.Errorf("failed to update recipient %d: %w", u.Position, err)
		}
	}

	_, err = tx.Exec(`
		UPDATE campaigns SET sent_count = ?, failed_count = ?, pending_count = ?, updated_at = ?
		WHERE id = ?`,
		sent, failed, pending, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update counters: %w", err)
	}

	return tx.Commit()
}

// Delete removes a campaign and, via cascade, its recipients. Consumed
// quota is never reclaimed.
func (s *CampaignStore) Delete(id string) error {
	_, err := s.db.Exec("DELETE FROM campaigns WHERE id = ?", id)
	return err
}

const selectCampaign = `
	SELECT id, account_id, name, template_name, language, total_count,
		sent_count, failed_count, pending_count, status, scheduled_at,
		started_at, completed_at, created_at, updated_at
	FROM campaigns`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *CampaignStore) scanCampaign(row *sql.Row) (*models.Campaign, error) {
	c, err := scanInto(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (s *CampaignStore) scanCampaignRows(rows *sql.Rows) (*models.Campaign, error) {
	return scanInto(rows)
}

func scanInto(row rowScanner) (*models.Campaign, error) {
	c := &models.Campaign{}
	var scheduledAt, startedAt, completedAt sql.NullTime

	err := row.Scan(&c.ID, &c.AccountID, &c.Name, &c.TemplateName, &c.Language, &c.TotalCount,
		&c.SentCount, &c.FailedCount, &c.PendingCount, &c.Status, &scheduledAt,
		&startedAt, &completedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if scheduledAt.Valid {
		c.ScheduledAt = &scheduledAt.Time
	}
	if startedAt.Valid {
		c.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		c.CompletedAt = &completedAt.Time
	}

	return c, nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
