// Package api exposes the campaign operations over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wacast/internal/campaign"
	"wacast/internal/config"
	"wacast/internal/models"
)

// Service is the campaign service surface the handlers call.
type Service interface {
	Submit(ctx context.Context, actor campaign.Actor, req campaign.SubmitRequest) (*models.Campaign, error)
	Get(actor campaign.Actor, id string) (*models.Campaign, error)
	List(actor campaign.Actor, filter models.CampaignListFilter) ([]models.Campaign, error)
	Pause(actor campaign.Actor, id string) error
	Resume(ctx context.Context, actor campaign.Actor, id string) error
	Cancel(actor campaign.Actor, id string) error
	Delete(actor campaign.Actor, id string) error
	Stats(actor campaign.Actor, id string) (*models.CampaignStats, error)
	Usage(actor campaign.Actor) (used, limit int, err error)
}

// Authenticator resolves an API key to an account id. Unknown keys
// resolve to the empty string.
type Authenticator interface {
	Authenticate(key string) (string, error)
}

// Accounts is the account store surface the handlers need.
type Accounts interface {
	GetByID(id string) (*models.Account, error)
	List() ([]models.Account, error)
	UpdateCredentials(id string, creds models.GatewayCredentials) error
	SetDailyLimit(id string, limit int) error
	SetPaused(id string, paused bool) error
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	service    Service
	accounts   Accounts
	auth       Authenticator
	registry   *prometheus.Registry
	config     *config.ServerConfig
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new API server
func NewServer(svc Service, accounts Accounts, auth Authenticator, registry *prometheus.Registry, cfg *config.ServerConfig, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		service:   svc,
		accounts:  accounts,
		auth:      auth,
		registry:  registry,
		config:    cfg,
		logger:    logger.With("component", "api"),
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)

	// No auth required
	s.router.Get("/health", s.handleHealth)
	if s.registry != nil {
		s.router.Method(http.MethodGet, "/metrics",
			promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/messages/send", s.handleSubmit)

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", s.handleList)
			r.Get("/{id}", s.handleGet)
			r.Get("/{id}/stats", s.handleStats)
			r.Post("/{id}/pause", s.handlePause)
			r.Post("/{id}/resume", s.handleResume)
			r.Post("/{id}/cancel", s.handleCancel)
			r.Delete("/{id}", s.handleDelete)
		})

		r.Get("/account", s.handleAccount)
		r.Put("/account/credentials", s.handleUpdateCredentials)

		r.Route("/accounts", func(r chi.Router) {
			r.Use(s.adminMiddleware)

			r.Get("/", s.handleListAccounts)
			r.Put("/{id}/limit", s.handleSetLimit)
			r.Put("/{id}/pause", s.handleSetPaused)
		})
	})
}

// Handler returns the server's HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
