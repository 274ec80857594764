package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"wacast/internal/models"
)

// AccountResponse is the response for GET /account
type AccountResponse struct {
	ID         string      `json:"id"`
	Email      string      `json:"email"`
	Role       models.Role `json:"role"`
	DailyLimit int         `json:"daily_limit"`
	UsedToday  int         `json:"used_today"`
	IsPaused   bool        `json:"is_paused"`
	HasGateway bool        `json:"has_gateway_credentials"`
}

// CredentialsRequest is the request body for PUT /account/credentials
type CredentialsRequest struct {
	Token     string `json:"token"`
	VendorUID string `json:"vendor_uid"`
}

// LimitRequest is the request body for PUT /accounts/{id}/limit
type LimitRequest struct {
	DailyLimit int `json:"daily_limit"`
}

// PauseRequest is the request body for PUT /accounts/{id}/pause
type PauseRequest struct {
	Paused bool `json:"paused"`
}

// handleAccount handles GET /api/v1/account
func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)

	account, err := s.accounts.GetByID(actor.AccountID)
	if err != nil || account == nil {
		s.logger.Error("failed to load account", "account", actor.AccountID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	used, _, err := s.service.Usage(actor)
	if err != nil {
		s.serviceError(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, AccountResponse{
		ID:         account.ID,
		Email:      account.Email,
		Role:       account.Role,
		DailyLimit: account.DailyLimit,
		UsedToday:  used,
		IsPaused:   account.IsPaused,
		HasGateway: account.Credentials.Configured(),
	})
}

// handleUpdateCredentials handles PUT /api/v1/account/credentials
func (s *Server) handleUpdateCredentials(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Token == "" || req.VendorUID == "" {
		s.sendError(w, http.StatusBadRequest, "token and vendor_uid are required")
		return
	}

	actor := actorFrom(r)
	creds := models.GatewayCredentials{Token: req.Token, VendorUID: req.VendorUID}
	if err := s.accounts.UpdateCredentials(actor.AccountID, creds); err != nil {
		s.logger.Error("failed to update credentials", "account", actor.AccountID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.logger.Info("gateway credentials updated", "account", actor.AccountID)
	w.WriteHeader(http.StatusNoContent)
}

// handleListAccounts handles GET /api/v1/accounts (admin)
func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.accounts.List()
	if err != nil {
		s.logger.Error("failed to list accounts", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if accounts == nil {
		accounts = []models.Account{}
	}
	s.sendJSON(w, http.StatusOK, accounts)
}

// handleSetLimit handles PUT /api/v1/accounts/{id}/limit (admin)
func (s *Server) handleSetLimit(w http.ResponseWriter, r *http.Request) {
	var req LimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.DailyLimit <= 0 {
		s.sendError(w, http.StatusBadRequest, "daily_limit must be positive")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.accounts.SetDailyLimit(id, req.DailyLimit); err != nil {
		s.sendError(w, http.StatusNotFound, "Account not found")
		return
	}

	s.logger.Info("daily limit updated", "account", id, "limit", req.DailyLimit)
	w.WriteHeader(http.StatusNoContent)
}

// handleSetPaused handles PUT /api/v1/accounts/{id}/pause (admin)
func (s *Server) handleSetPaused(w http.ResponseWriter, r *http.Request) {
	var req PauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.accounts.SetPaused(id, req.Paused); err != nil {
		s.sendError(w, http.StatusNotFound, "Account not found")
		return
	}

	s.logger.Info("account pause state updated", "account", id, "paused", req.Paused)
	w.WriteHeader(http.StatusNoContent)
}
