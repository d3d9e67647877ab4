package slack

import (
	"context"
	"log/slog"
	"time"
)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	Channel      string
	DashboardURL string
}

// DepartmentNotification describes one coordination dispatch for the
// duty channel.
type DepartmentNotification struct {
	SessionID    string
	ScenarioType string
	Department   string
	Priority     string // immediate or normal
	Position     string
	RiskLevel    string
	ThreadTS     string // cached from an earlier post in the same turn
}

// TerminalNotification carries a session's terminal status: completed
// with the report summary, or halted for manual intervention.
type TerminalNotification struct {
	SessionID    string
	ScenarioType string
	Status       string // completed or halted
	RiskLevel    string
	Summary      string
	ThreadTS     string
}

// Service handles duty-channel delivery.
// Nil-safe: all methods are no-ops when service is nil.
type Service struct {
	client       *Client
	dashboardURL string
	logger       *slog.Logger
}

// NewService creates the duty-channel service.
// Returns nil if Token or Channel is empty.
func NewService(cfg ServiceConfig, logger *slog.Logger) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		client:       NewClient(cfg.Token, cfg.Channel, logger),
		dashboardURL: cfg.DashboardURL,
		logger:       logger.With("component", "slack_service"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client, dashboardURL string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		logger:       logger.With("component", "slack_service"),
	}
}

// NotifyDepartment posts one dispatch, threaded under the session's root
// message when one exists. Returns the resolved thread timestamp so a
// turn dispatching several departments keeps them in one thread.
// Fail-open: errors are logged, never returned.
func (s *Service) NotifyDepartment(ctx context.Context, input DepartmentNotification) string {
	if s == nil {
		return ""
	}
	threadTS := s.resolveThread(ctx, input.SessionID, input.ThreadTS)

	blocks := BuildDepartmentMessage(input, s.dashboardURL)
	ts, err := s.client.PostMessage(ctx, blocks, threadTS, 5*time.Second)
	if err != nil {
		s.logger.Error("Failed to send department notification",
			"session_id", input.SessionID,
			"department", input.Department,
			"error", err)
		return threadTS
	}

	// The first post of a session starts its thread.
	if threadTS == "" {
		threadTS = ts
	}
	return threadTS
}

// NotifyTerminal posts a terminal status notification.
// Fail-open: errors are logged, never returned.
func (s *Service) NotifyTerminal(ctx context.Context, input TerminalNotification) {
	if s == nil {
		return
	}
	threadTS := s.resolveThread(ctx, input.SessionID, input.ThreadTS)

	blocks := BuildTerminalMessage(input, s.dashboardURL)
	if _, err := s.client.PostMessage(ctx, blocks, threadTS, 10*time.Second); err != nil {
		s.logger.Error("Failed to send terminal notification",
			"session_id", input.SessionID,
			"status", input.Status,
			"error", err)
	}
}

// resolveThread returns the cached thread timestamp, or searches channel
// history for the session's root message.
func (s *Service) resolveThread(ctx context.Context, sessionID, cached string) string {
	if cached != "" {
		return cached
	}
	threadTS, err := s.client.FindSessionThread(ctx, sessionID)
	if err != nil {
		s.logger.Warn("Failed to locate session thread",
			"session_id", sessionID,
			"error", err)
		return ""
	}
	return threadTS
}
