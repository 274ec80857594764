package models

import "time"

// Role controls what an authenticated caller may see and mutate.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Account is an operator identity with gateway credentials and a daily
// send allowance. Daily usage itself lives in the quota ledger, keyed by
// account id; the account row only carries the limit.
type Account struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Role       Role      `json:"role"`
	DailyLimit int       `json:"daily_limit"`
	IsPaused   bool      `json:"is_paused"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Credentials GatewayCredentials `json:"credentials"`
}

// GatewayCredentials identify the account against the messaging gateway.
type GatewayCredentials struct {
	Token     string `json:"token,omitempty"`
	VendorUID string `json:"vendor_uid,omitempty"`
}

// Configured reports whether the account can reach the gateway at all.
func (c GatewayCredentials) Configured() bool {
	return c.Token != "" && c.VendorUID != ""
}

// APIKey is a hashed bearer credential mapped to an account.
type APIKey struct {
	ID        string     `json:"id"`
	AccountID string     `json:"account_id"`
	Name      string     `json:"name"`
	KeyHash   string     `json:"-"`
	KeyPrefix string     `json:"key_prefix"`
	LastUsed  *time.Time `json:"last_used,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// APIKeyCreateResult carries the full key back to the caller exactly
// once; only the hash is stored.
type APIKeyCreateResult struct {
	APIKey
	Key string `json:"key"`
}
