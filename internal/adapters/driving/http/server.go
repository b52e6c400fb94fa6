package http

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/custodia-labs/persona-core/internal/core/ports/driven"
	"github.com/custodia-labs/persona-core/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	logger     *slog.Logger

	// Services
	authService     driving.AuthService
	ingestService   driving.IngestService
	queryService    driving.QueryService
	docService      driving.DocumentService
	adminService    driving.AdminService
	settingsService driving.SettingsService

	// Infrastructure
	taskQueue driven.TaskQueue // optional, nil when queue backend is "none"
	db        Pinger           // PostgreSQL health check
	redis     Pinger           // Redis health check (optional)
}

// Config holds server configuration
type Config struct {
	Host    string
	Port    int
	Version string
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
func NewServer(
	cfg Config,
	authService driving.AuthService,
	ingestService driving.IngestService,
	queryService driving.QueryService,
	docService driving.DocumentService,
	adminService driving.AdminService,
	settingsService driving.SettingsService,
	taskQueue driven.TaskQueue, // can be nil
	db Pinger,
	redis Pinger, // can be nil
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:          http.NewServeMux(),
		version:         cfg.Version,
		logger:          logger,
		authService:     authService,
		ingestService:   ingestService,
		queryService:    queryService,
		docService:      docService,
		adminService:    adminService,
		settingsService: settingsService,
		taskQueue:       taskQueue,
		db:              db,
		redis:           redis,
	}

	recovery := NewRecoveryMiddleware(logger)
	logging := NewLoggingMiddleware(logger)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      recovery.Handler(logging.Handler(s.router)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	authMiddleware := NewAuthMiddleware(s.authService)

	// Health endpoints (no auth)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)

	// Token issuance (public; credentials in the body)
	s.router.HandleFunc("POST /api/v1/auth/token", s.handleIssueToken)

	// Ingestion endpoints (connector or admin)
	s.router.Handle("POST /api/v1/ingest",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleIngest)))
	s.router.Handle("POST /api/v1/ingest/delete",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleIngestDelete)))

	// Query endpoints
	s.router.Handle("POST /api/v1/ask",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleAsk)))
	s.router.Handle("POST /api/v1/retrieve",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleRetrieve)))

	// Document endpoints
	s.router.Handle("GET /api/v1/documents",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleListDocuments)))
	s.router.Handle("GET /api/v1/documents/{id}",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleGetDocument)))
	s.router.Handle("GET /api/v1/documents/{id}/passages",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleGetDocumentPassages)))
	s.router.Handle("GET /api/v1/stats",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleStats)))

	// Reindex endpoints (admin-only)
	s.router.Handle("POST /api/v1/admin/reindex",
		authMiddleware.Authenticate(
			authMiddleware.RequireAdmin(http.HandlerFunc(s.handleReindex))))
	s.router.Handle("POST /api/v1/admin/reindex/cancel",
		authMiddleware.Authenticate(
			authMiddleware.RequireAdmin(http.HandlerFunc(s.handleCancelReindex))))
	s.router.Handle("GET /api/v1/admin/reindex/status",
		authMiddleware.Authenticate(
			authMiddleware.RequireAdmin(http.HandlerFunc(s.handleReindexStatus))))
	s.router.Handle("POST /api/v1/admin/retry-embeddings",
		authMiddleware.Authenticate(
			authMiddleware.RequireAdmin(http.HandlerFunc(s.handleRetryEmbeddings))))

	// Settings endpoints (admin-only)
	s.router.Handle("GET /api/v1/settings/ai",
		authMiddleware.Authenticate(
			authMiddleware.RequireAdmin(http.HandlerFunc(s.handleGetAISettings))))
	s.router.Handle("PUT /api/v1/settings/ai",
		authMiddleware.Authenticate(
			authMiddleware.RequireAdmin(http.HandlerFunc(s.handleUpdateAISettings))))
	s.router.Handle("GET /api/v1/settings/persona",
		authMiddleware.Authenticate(
			authMiddleware.RequireAdmin(http.HandlerFunc(s.handleGetPersona))))
	s.router.Handle("PUT /api/v1/settings/persona",
		authMiddleware.Authenticate(
			authMiddleware.RequireAdmin(http.HandlerFunc(s.handleUpdatePersona))))
}

// Start starts the HTTP server with graceful shutdown
func (s *Server) Start() error {
	// Channel to listen for OS signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		log.Printf("Starting server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Println("Server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
