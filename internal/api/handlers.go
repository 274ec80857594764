package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"wacast/internal/campaign"
	"wacast/internal/models"
)

// SubmitResponse is the response for POST /messages/send
type SubmitResponse struct {
	ID          string                `json:"id"`
	Status      models.CampaignStatus `json:"status"`
	TotalCount  int                   `json:"total_count"`
	ScheduledAt *time.Time            `json:"scheduled_at,omitempty"`
}

// ListResponse is the response for GET /campaigns
type ListResponse struct {
	Campaigns []models.Campaign `json:"campaigns"`
	Count     int               `json:"count"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleSubmit handles POST /api/v1/messages/send
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req campaign.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	c, err := s.service.Submit(r.Context(), actorFrom(r), req)
	if err != nil {
		s.serviceError(w, err)
		return
	}

	s.sendJSON(w, http.StatusCreated, SubmitResponse{
		ID:          c.ID,
		Status:      c.Status,
		TotalCount:  c.TotalCount,
		ScheduledAt: c.ScheduledAt,
	})
}

// handleList handles GET /api/v1/campaigns
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	filter := models.CampaignListFilter{
		Status: models.CampaignStatus(r.URL.Query().Get("status")),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}

	campaigns, err := s.service.List(actorFrom(r), filter)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	if campaigns == nil {
		campaigns = []models.Campaign{}
	}

	s.sendJSON(w, http.StatusOK, ListResponse{Campaigns: campaigns, Count: len(campaigns)})
}

// handleGet handles GET /api/v1/campaigns/{id}
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	c, err := s.service.Get(actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, c)
}

// handleStats handles GET /api/v1/campaigns/{id}/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, stats)
}

// handlePause handles POST /api/v1/campaigns/{id}/pause
func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Pause(actorFrom(r), chi.URLParam(r, "id")); err != nil {
		s.serviceError(w, err)
		return
	}
	s.sendStatus(w, chi.URLParam(r, "id"), models.StatusPaused)
}

// handleResume handles POST /api/v1/campaigns/{id}/resume
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Resume(r.Context(), actorFrom(r), chi.URLParam(r, "id")); err != nil {
		s.serviceError(w, err)
		return
	}
	s.sendStatus(w, chi.URLParam(r, "id"), models.StatusProcessing)
}

// handleCancel handles POST /api/v1/campaigns/{id}/cancel
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Cancel(actorFrom(r), chi.URLParam(r, "id")); err != nil {
		s.serviceError(w, err)
		return
	}
	s.sendStatus(w, chi.URLParam(r, "id"), models.StatusCancelled)
}

// handleDelete handles DELETE /api/v1/campaigns/{id}
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Delete(actorFrom(r), chi.URLParam(r, "id")); err != nil {
		s.serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: time.Since(s.startTime).Round(time.Second).String(),
	})
}

// sendStatus writes the campaign id and its new status.
func (s *Server) sendStatus(w http.ResponseWriter, id string, status models.CampaignStatus) {
	s.sendJSON(w, http.StatusOK, map[string]string{
		"id":     id,
		"status": string(status),
	})
}

// sendJSON writes a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// sendError writes a JSON error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}

// serviceError maps service errors onto HTTP statuses.
func (s *Server) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, campaign.ErrValidation),
		errors.Is(err, campaign.ErrCredentialsMissing):
		s.sendError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, campaign.ErrAuthorization),
		errors.Is(err, campaign.ErrAccountPaused):
		s.sendError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, campaign.ErrNotFound):
		s.sendError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, campaign.ErrPreconditionFailed):
		s.sendError(w, http.StatusConflict, err.Error())
	case errors.Is(err, campaign.ErrQuotaExceeded):
		s.sendError(w, http.StatusTooManyRequests, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Internal server error")
	}
}
