// Package http exposes the orchestration API: connection lifecycle,
// manual trigger fires and the provider webhook callback route.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
	"github.com/custodia-labs/syncflow-core/internal/core/services"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectionService is the connection lifecycle surface the API exposes.
type ConnectionService interface {
	Create(ctx context.Context, sourceID string) (*domain.SyncConnection, error)
	Get(ctx context.Context, id string) (*domain.SyncConnection, error)
	Delete(ctx context.Context, id string) error
}

// TriggerService is the trigger surface the API exposes.
type TriggerService interface {
	FireManual(ctx context.Context, triggerID string) error
	FireWebhook(ctx context.Context, triggerID string, delivery services.WebhookDelivery) (domain.Outcome, error)
	Unschedule(ctx context.Context, triggerID string) error
}

// SyncflowReader reads syncflow state for the API.
type SyncflowReader interface {
	Get(ctx context.Context, id string) (*domain.Syncflow, error)
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	logger     *slog.Logger

	// Services
	connections ConnectionService
	triggers    TriggerService
	syncflows   SyncflowReader

	// Infrastructure health
	db  Pinger
	bus Pinger
}

// Config holds server configuration
type Config struct {
	Host    string
	Port    int
	Version string

	Connections ConnectionService
	Triggers    TriggerService
	Syncflows   SyncflowReader

	// DB and Bus are pinged by the readiness probe
	DB  Pinger
	Bus Pinger

	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:    "0.0.0.0",
		Port:    8080,
		Version: "dev",
	}
}

// NewServer creates a new HTTP server
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:      http.NewServeMux(),
		version:     cfg.Version,
		logger:      logger,
		connections: cfg.Connections,
		triggers:    cfg.Triggers,
		syncflows:   cfg.Syncflows,
		db:          cfg.DB,
		bus:         cfg.Bus,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health endpoints
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)

	// Connection endpoints
	s.router.HandleFunc("POST /api/v1/connections", s.handleCreateConnection)
	s.router.HandleFunc("GET /api/v1/connections/{id}", s.handleGetConnection)
	s.router.HandleFunc("DELETE /api/v1/connections/{id}", s.handleDeleteConnection)

	// Syncflow endpoints
	s.router.HandleFunc("GET /api/v1/syncflows/{id}", s.handleGetSyncflow)

	// Trigger endpoints
	s.router.HandleFunc("POST /api/v1/triggers/{id}/manual", s.handleFireManual)
	s.router.HandleFunc("DELETE /api/v1/triggers/{id}/schedule", s.handleUnscheduleTrigger)

	// Provider webhook callback - public; the address is registered with the
	// provider when the channel is opened, and deliveries authenticate via
	// the signed channel token
	s.router.HandleFunc("POST /triggers/google-sheets/{id}", s.handleGoogleSheetsWebhook)
}

// Handler returns the request handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server. Blocks until the listener fails or is shut
// down.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
