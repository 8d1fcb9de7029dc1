// Package api is the HTTP surface over the receipt store and the reconcile
// service.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/receipts-reconciler/internal/adapters/statement"
	"github.com/eshaffer321/receipts-reconciler/internal/api/handlers"
	"github.com/eshaffer321/receipts-reconciler/internal/api/middleware"
	"github.com/eshaffer321/receipts-reconciler/internal/application/receipts"
	"github.com/eshaffer321/receipts-reconciler/internal/application/reconcile"
)

// Config holds API server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Port:           8085,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
	}
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     *gin.Engine
	httpServer *http.Server
	logger     *slog.Logger
	receipts   *receipts.Service
	reconcile  *reconcile.Service
	decoder    *statement.Decoder
}

// NewServer creates a new API server.
func NewServer(cfg Config, rs *receipts.Service, rc *reconcile.Service, decoder *statement.Decoder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:    cfg,
		router:    gin.New(),
		logger:    logger,
		receipts:  rs,
		reconcile: rc,
		decoder:   decoder,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	corsConfig := middleware.DefaultCORSConfig()
	if len(s.config.AllowedOrigins) > 0 {
		corsConfig.AllowedOrigins = s.config.AllowedOrigins
	}
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.CORS(corsConfig))
	s.router.Use(middleware.Logging(s.logger))
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check (no /api prefix - for load balancers)
	s.router.GET("/health", handlers.NewHealthHandler().Get)

	api := s.router.Group("/api")

	receiptsHandler := handlers.NewReceiptsHandler(s.receipts, s.logger)
	api.POST("/receipts/scan", receiptsHandler.Scan)
	api.GET("/receipts", receiptsHandler.List)
	api.GET("/receipts/:id", receiptsHandler.Get)
	api.POST("/receipts/:id/recover", receiptsHandler.Recover)

	statementsHandler := handlers.NewStatementsHandler(s.reconcile, s.decoder, s.logger)
	api.POST("/statements/reconcile", statementsHandler.Reconcile)

	matchesHandler := handlers.NewMatchesHandler(s.reconcile, s.logger)
	api.GET("/matches", matchesHandler.List)
	api.GET("/matches/:txid", matchesHandler.Get)
	api.PUT("/matches/:txid", matchesHandler.Link)
	api.DELETE("/matches/:txid", matchesHandler.Unlink)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// Router returns the gin engine for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}
