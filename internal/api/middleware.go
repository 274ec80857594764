package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"wacast/internal/campaign"
	"wacast/internal/metrics"
	"wacast/internal/models"
)

type contextKey string

const actorKey contextKey = "actor"

// actorFrom returns the authenticated actor stored by authMiddleware.
func actorFrom(r *http.Request) campaign.Actor {
	actor, _ := r.Context().Value(actorKey).(campaign.Actor)
	return actor
}

// loggingMiddleware logs HTTP requests and records request metrics
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", elapsed,
			"bytes", ww.BytesWritten(),
			"remote_addr", r.RemoteAddr,
		)
		metrics.ObserveAPIRequest(r.Method, routePattern(r), strconv.Itoa(ww.Status()), elapsed.Seconds())
	})
}

// routePattern returns the chi route template so metrics are not split
// per campaign id. Falls back to the raw path for unrouted requests.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// authMiddleware resolves the API key to an account and stores the
// actor in the request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Authorization")
		if key == "" {
			key = r.Header.Get("X-API-Key")
		}
		key = strings.TrimPrefix(key, "Bearer ")

		if key == "" {
			s.sendError(w, http.StatusUnauthorized, "API key required")
			return
		}

		accountID, err := s.auth.Authenticate(key)
		if err != nil {
			s.logger.Error("authentication failed", "error", err)
			s.sendError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		if accountID == "" {
			s.logger.Warn("unauthorized API request",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			s.sendError(w, http.StatusUnauthorized, "Invalid API key")
			return
		}

		account, err := s.accounts.GetByID(accountID)
		if err != nil || account == nil {
			s.logger.Error("failed to load authenticated account", "account", accountID, "error", err)
			s.sendError(w, http.StatusUnauthorized, "Invalid API key")
			return
		}

		actor := campaign.Actor{AccountID: account.ID, Role: account.Role}
		ctx := context.WithValue(r.Context(), actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// adminMiddleware rejects non-admin actors.
func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := actorFrom(r)
		if actor.Role != models.RoleAdmin {
			s.sendError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
