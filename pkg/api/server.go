// Package api exposes the engine over HTTP: synchronous event
// endpoints, their SSE streaming variants, reports, and health.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/airside-ops/apron/pkg/config"
	"github.com/airside-ops/apron/pkg/database"
	"github.com/airside-ops/apron/pkg/playbook"
	"github.com/airside-ops/apron/pkg/queue"
	"github.com/airside-ops/apron/pkg/services"
	"github.com/airside-ops/apron/pkg/session"
)

// Server is the HTTP front of the engine.
type Server struct {
	cfg       *config.ServerConfig
	events    *services.EventService
	store     session.Store
	pool      *queue.Pool
	db        *database.Client
	playbooks *playbook.Service
	logger    *slog.Logger

	engine *gin.Engine
	http   *http.Server
}

// NewServer wires routes and middleware. db is nil unless the SQL
// session backend is configured; health reporting adapts. playbooks is
// nil when no disposal-plan source is configured.
func NewServer(cfg *config.ServerConfig, events *services.EventService, store session.Store, pool *queue.Pool, db *database.Client, playbooks *playbook.Service, logger *slog.Logger) *Server {
	if cfg == nil {
		cfg = config.DefaultServerConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		events:    events,
		store:     store,
		pool:      pool,
		db:        db,
		playbooks: playbooks,
		logger:    logger.With("component", "api"),
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(requestLogger(s.logger), gin.Recovery(), securityHeaders())

	// Liveness stays reachable without credentials.
	engine.GET("/health", s.handleHealth)

	authed := engine.Group("/")
	if cfg.APIKey != "" {
		authed.Use(apiKeyAuth(cfg.APIKey))
	}
	if cfg.RateLimitRPS > 0 {
		authed.Use(rateLimit(newClientLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)))
	}

	authed.POST("/event/start", s.handleStart)
	authed.POST("/event/chat", s.handleChat)
	authed.POST("/event/parse", s.handleParse)
	authed.POST("/event/start/stream", s.handleStartStream)
	authed.POST("/event/chat/stream", s.handleChatStream)
	authed.GET("/event/:session_id", s.handleGet)
	authed.GET("/event/:session_id/report", s.handleReport)
	authed.GET("/event/:session_id/report/markdown", s.handleReportMarkdown)
	authed.DELETE("/event/:session_id", s.handleDelete)
	authed.GET("/playbooks", s.handleListPlaybooks)
	authed.GET("/playbooks/:scenario", s.handleGetPlaybook)

	s.engine = engine
	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the routed handler, used directly by tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
