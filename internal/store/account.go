package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"wacast/internal/models"
)

type AccountStore struct {
	db *sql.DB
}

func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) Create(a *models.Account) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Role == "" {
		a.Role = models.RoleUser
	}
	if a.DailyLimit == 0 {
		a.DailyLimit = 1000
	}
	a.CreatedAt = time.Now().UTC()
	a.UpdatedAt = a.CreatedAt

	_, err := s.db.Exec(`
		INSERT INTO accounts (id, email, name, role, daily_limit, is_paused,
			gateway_token, gateway_vendor_uid, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Email, a.Name, a.Role, a.DailyLimit, a.IsPaused,
		a.Credentials.Token, a.Credentials.VendorUID, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (s *AccountStore) GetByID(id string) (*models.Account, error) {
	return s.get("id = ?", id)
}

func (s *AccountStore) GetByEmail(email string) (*models.Account, error) {
	return s.get("email = ?", email)
}

func (s *AccountStore) get(where string, arg any) (*models.Account, error) {
	a := &models.Account{}
	err := s.db.QueryRow(`
		SELECT id, email, name, role, daily_limit, is_paused,
			gateway_token, gateway_vendor_uid, created_at, updated_at
		FROM accounts WHERE `+where, arg,
	).Scan(&a.ID, &a.Email, &a.Name, &a.Role, &a.DailyLimit, &a.IsPaused,
		&a.Credentials.Token, &a.Credentials.VendorUID, &a.CreatedAt, &a.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *AccountStore) List() ([]models.Account, error) {
	rows, err := s.db.Query(`
		SELECT id, email, name, role, daily_limit, is_paused,
			gateway_token, gateway_vendor_uid, created_at, updated_at
		FROM accounts ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.Email, &a.Name, &a.Role, &a.DailyLimit, &a.IsPaused,
			&a.Credentials.Token, &a.Credentials.VendorUID, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}

	return accounts, rows.Err()
}

// UpdateCredentials replaces the account's gateway credentials.
func (s *AccountStore) UpdateCredentials(id string, creds models.GatewayCredentials) error {
	return s.update(id, "gateway_token = ?, gateway_vendor_uid = ?", creds.Token, creds.VendorUID)
}

// SetDailyLimit is an administrative override of the daily allowance.
func (s *AccountStore) SetDailyLimit(id string, limit int) error {
	return s.update(id, "daily_limit = ?", limit)
}

// SetPaused toggles the account-level kill switch.
func (s *AccountStore) SetPaused(id string, paused bool) error {
	return s.update(id, "is_paused = ?", paused)
}

func (s *AccountStore) update(id, set string, args ...any) error {
	args = append(args, time.Now().UTC(), id)
	res, err := s.db.Exec("UPDATE accounts SET "+set+", updated_at = ? WHERE id = ?", args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("account %s not found", id)
	}
	return err
}
