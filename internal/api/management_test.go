package api

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestAccountShowsUsage(t *testing.T) {
	a := newTestAPI()

	w := a.request(t, http.MethodGet, "/api/v1/account", "user-key", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp AccountResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.ID != "acc-1" || resp.UsedToday != 10 || resp.DailyLimit != 100 {
		t.Errorf("account = %+v", resp)
	}
	if resp.HasGateway {
		t.Error("account without credentials must report has_gateway_credentials=false")
	}
}

func TestUpdateCredentials(t *testing.T) {
	a := newTestAPI()

	w := a.request(t, http.MethodPut, "/api/v1/account/credentials", "user-key",
		`{"token":"tok","vendor_uid":"vendor"}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !a.accounts.byID["acc-1"].Credentials.Configured() {
		t.Error("credentials not stored")
	}

	w = a.request(t, http.MethodPut, "/api/v1/account/credentials", "user-key", `{"token":"only"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("partial credentials: status = %d, want 400", w.Code)
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	a := newTestAPI()

	if w := a.request(t, http.MethodGet, "/api/v1/accounts", "user-key", ""); w.Code != http.StatusForbidden {
		t.Errorf("user: status = %d, want 403", w.Code)
	}
	if w := a.request(t, http.MethodGet, "/api/v1/accounts", "admin-key", ""); w.Code != http.StatusOK {
		t.Errorf("admin: status = %d, want 200", w.Code)
	}
}

func TestSetLimit(t *testing.T) {
	a := newTestAPI()

	w := a.request(t, http.MethodPut, "/api/v1/accounts/acc-1/limit", "admin-key", `{"daily_limit":500}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	if a.accounts.byID["acc-1"].DailyLimit != 500 {
		t.Error("limit not applied")
	}

	w = a.request(t, http.MethodPut, "/api/v1/accounts/acc-1/limit", "admin-key", `{"daily_limit":0}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("zero limit: status = %d, want 400", w.Code)
	}
}

func TestSetPaused(t *testing.T) {
	a := newTestAPI()

	w := a.request(t, http.MethodPut, "/api/v1/accounts/acc-1/pause", "admin-key", `{"paused":true}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	if !a.accounts.byID["acc-1"].IsPaused {
		t.Error("pause not applied")
	}
}
