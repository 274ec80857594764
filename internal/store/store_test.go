package store

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"wacast/internal/db"
	"wacast/internal/models"
)

// setupTestDB creates an in-memory SQLite database with all migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	d, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	if _, err := d.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	for _, m := range db.Migrations() {
		if _, err := d.Exec(m); err != nil {
			t.Fatalf("migration failed: %v", err)
		}
	}

	return d
}

func createTestAccount(t *testing.T, d *sql.DB) *models.Account {
	t.Helper()

	accounts := NewAccountStore(d)
	a := &models.Account{
		Email:      "ops@example.com",
		Name:       "Ops",
		DailyLimit: 1000,
		Credentials: models.GatewayCredentials{
			Token:     "tok",
			VendorUID: "vendor",
		},
	}
	if err := accounts.Create(a); err != nil {
		t.Fatalf("failed to create account: %v", err)
	}
	return a
}

func testCampaign(accountID string, n int) *models.Campaign {
	c := &models.Campaign{
		AccountID:    accountID,
		Name:         "launch",
		TemplateName: "welcome_offer",
		Language:     "en",
		Status:       models.StatusPending,
	}
	for i := 0; i < n; i++ {
		c.Recipients = append(c.Recipients, models.Recipient{
			Phone: "+100000000" + string(rune('0'+i%10)),
			Name:  "r",
			Fields: map[string]string{
				"field_1": "hello",
			},
		})
	}
	return c
}
