package store

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"wacast/internal/models"
)

type APIKeyStore struct {
	db *sql.DB
}

func NewAPIKeyStore(db *sql.DB) *APIKeyStore {
	return &APIKeyStore{db: db}
}

// Create issues a new API key for the account. The full key is returned
// exactly once; only its hash is stored.
func (s *APIKeyStore) Create(accountID, name string) (*models.APIKeyCreateResult, error) {
	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	key := "wa_" + hex.EncodeToString(keyBytes)

	hash := sha256.Sum256([]byte(key))
	keyHash := hex.EncodeToString(hash[:])
	keyPrefix := key[:11] // "wa_" + first 8 chars, for display

	apiKey := models.APIKey{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Name:      name,
		KeyHash:   keyHash,
		KeyPrefix: keyPrefix,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(`
		INSERT INTO api_keys (id, account_id, name, key_hash, key_prefix, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		apiKey.ID, apiKey.AccountID, apiKey.Name, apiKey.KeyHash, apiKey.KeyPrefix, apiKey.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to store api key: %w", err)
	}

	return &models.APIKeyCreateResult{APIKey: apiKey, Key: key}, nil
}

// Authenticate resolves a presented key to its account id, updating the
// key's last-used timestamp. Returns empty id when the key is unknown.
func (s *APIKeyStore) Authenticate(key string) (string, error) {
	hash := sha256.Sum256([]byte(key))
	keyHash := hex.EncodeToString(hash[:])

	var id, accountID string
	err := s.db.QueryRow("SELECT id, account_id FROM api_keys WHERE key_hash = ?", keyHash).
		Scan(&id, &accountID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	// Best effort; auth must not fail on a bookkeeping write.
	s.db.Exec("UPDATE api_keys SET last_used = ? WHERE id = ?", time.Now().UTC(), id)

	return accountID, nil
}

// ListForAccount returns the account's keys without hashes exposed.
func (s *APIKeyStore) ListForAccount(accountID string) ([]models.APIKey, error) {
	rows, err := s.db.Query(`
		SELECT id, account_id, name, key_prefix, last_used, created_at
		FROM api_keys WHERE account_id = ? ORDER BY created_at`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := []models.APIKey{}
	for rows.Next() {
		var k models.APIKey
		var lastUsed sql.NullTime
		if err := rows.Scan(&k.ID, &k.AccountID, &k.Name, &k.KeyPrefix, &lastUsed, &k.CreatedAt); err != nil {
			return nil, err
		}
		if lastUsed.Valid {
			k.LastUsed = &lastUsed.Time
		}
		keys = append(keys, k)
	}

	return keys, rows.Err()
}

// Delete revokes a key.
func (s *APIKeyStore) Delete(id string) error {
	_, err := s.db.Exec("DELETE FROM api_keys WHERE id = ?", id)
	return err
}
