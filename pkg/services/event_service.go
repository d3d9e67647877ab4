// Package services implements the use-case layer between the HTTP
// handlers and the engine: it opens sessions, runs turns under the
// per-session store lock, persists the outcome, and projects state into
// response shapes.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/airside-ops/apron/pkg/agent"
	"github.com/airside-ops/apron/pkg/events"
	"github.com/airside-ops/apron/pkg/models"
	"github.com/airside-ops/apron/pkg/parser"
	"github.com/airside-ops/apron/pkg/queue"
	"github.com/airside-ops/apron/pkg/scenario"
	"github.com/airside-ops/apron/pkg/session"
	"github.com/airside-ops/apron/pkg/slack"
)

// streamBuffer sizes the per-request frame buffer. It covers a
// worst-case turn at the default recursion limit with headroom, so
// frame drops only happen to pathologically slow consumers.
const streamBuffer = 128

// TurnRunner executes one agent turn against a session state.
type TurnRunner interface {
	RunTurn(ctx context.Context, state *models.State, message string, emit agent.EmitFunc) error
}

// MessageParser runs message extraction without the reasoning graph.
type MessageParser interface {
	Parse(ctx context.Context, state *models.State, message string)
}

// EventService manages incident sessions: start, chat, inspection,
// reports, and deletion. All turn execution goes through the worker
// pool while the session store lock is held.
type EventService struct {
	store     session.Store
	pool      *queue.Pool
	engine    TurnRunner
	parser    MessageParser
	scenarios *scenario.Registry
	notifier  *slack.Service
	logger    *slog.Logger
}

// NewEventService wires the service. The caller keeps ownership of the
// store and pool; Close releases them in shutdown order. notifier may be
// nil, which disables duty-channel delivery.
func NewEventService(store session.Store, pool *queue.Pool, engine TurnRunner, msgParser MessageParser, scenarios *scenario.Registry, notifier *slack.Service, logger *slog.Logger) *EventService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventService{
		store:     store,
		pool:      pool,
		engine:    engine,
		parser:    msgParser,
		scenarios: scenarios,
		notifier:  notifier,
		logger:    logger.With("component", "event_service"),
	}
}

// Start opens a session (or reopens an existing one) with an initial
// report and runs the first turn to completion.
func (s *EventService) Start(ctx context.Context, req *models.StartEventRequest) (*models.EventResponse, error) {
	if err := validateStart(req); err != nil {
		return nil, err
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	handle, state, err := s.open(ctx, sessionID, req.ScenarioType, req.Message, true)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, handle, state, req.Message, nil)
}

// Chat continues an existing session with a follow-up message.
func (s *EventService) Chat(ctx context.Context, req *models.ChatRequest) (*models.EventResponse, error) {
	if err := validateChat(req); err != nil {
		return nil, err
	}
	handle, state, err := s.open(ctx, req.SessionID, "", req.Message, false)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, handle, state, req.Message, nil)
}

// StartStream is Start with the turn's node updates delivered as SSE
// frames. Session errors surface synchronously before any frame flows.
func (s *EventService) StartStream(ctx context.Context, req *models.StartEventRequest) (*events.Stream, error) {
	if err := validateStart(req); err != nil {
		return nil, err
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	handle, state, err := s.open(ctx, sessionID, req.ScenarioType, req.Message, true)
	if err != nil {
		return nil, err
	}
	return s.streamTurn(ctx, handle, state, req.Message), nil
}

// ChatStream is Chat with the turn's node updates delivered as SSE
// frames.
func (s *EventService) ChatStream(ctx context.Context, req *models.ChatRequest) (*events.Stream, error) {
	if err := validateChat(req); err != nil {
		return nil, err
	}
	handle, state, err := s.open(ctx, req.SessionID, "", req.Message, false)
	if err != nil {
		return nil, err
	}
	return s.streamTurn(ctx, handle, state, req.Message), nil
}

// Get returns the current projection of a session without running a
// turn.
func (s *EventService) Get(ctx context.Context, sessionID string) (*models.EventResponse, error) {
	if sessionID == "" {
		return nil, NewValidationError("session_id", "required")
	}
	state, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return s.project(state, statusFor(state), turnMessage(state)), nil
}

// Report returns the structured final report, or ErrReportNotReady
// until the procedure has completed.
func (s *EventService) Report(ctx context.Context, sessionID string) (*models.FinalReport, error) {
	if sessionID == "" {
		return nil, NewValidationError("session_id", "required")
	}
	state, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !state.IsComplete || state.FinalReport == nil {
		return nil, ErrReportNotReady
	}
	return state.FinalReport, nil
}

// ReportMarkdown renders the final report as Markdown.
func (s *EventService) ReportMarkdown(ctx context.Context, sessionID string) (string, error) {
	report, err := s.Report(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return agent.RenderMarkdown(report), nil
}

// Delete closes and removes a session. A session whose turn is in
// flight is busy and cannot be deleted.
func (s *EventService) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return NewValidationError("session_id", "required")
	}
	handle, err := s.store.Lock(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("lock session: %w", err)
	}
	defer s.unlock(ctx, handle)

	// The lock alone does not prove the session exists: taking it on a
	// free id succeeds so that first turns can be created under it.
	if _, err := s.store.Get(ctx, sessionID); err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if err := s.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.logger.Info("Session deleted", "session_id", sessionID)
	return nil
}

// Parse runs scenario identification, extraction, and enrichment on a
// message without opening a session.
func (s *EventService) Parse(ctx context.Context, req *models.ParseRequest) (*models.ParseResponse, error) {
	if req == nil || strings.TrimSpace(req.Message) == "" {
		return nil, NewValidationError("message", "required")
	}
	state := models.NewState("", req.ScenarioType)
	s.parser.Parse(ctx, state, req.Message)
	return &models.ParseResponse{
		ScenarioType:          state.ScenarioType,
		Incident:              state.Incident,
		Checklist:             state.Checklist,
		EnrichmentObservation: parser.EnrichmentObservation(state),
	}, nil
}

// Close shuts the service down: the pool drains first so no turn holds
// a lock, then the store releases its background work.
func (s *EventService) Close() error {
	var errs []error
	if s.pool != nil {
		if err := s.pool.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// open takes the session lock, loads or creates the state, and records
// the user message. On error the lock is already released.
func (s *EventService) open(ctx context.Context, sessionID, scenarioType, message string, createIfMissing bool) (session.Handle, *models.State, error) {
	handle, err := s.store.Lock(ctx, sessionID)
	if err != nil {
		return session.Handle{}, nil, fmt.Errorf("lock session: %w", err)
	}

	state, err := s.store.Get(ctx, sessionID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		if !createIfMissing {
			s.unlock(ctx, handle)
			return session.Handle{}, nil, fmt.Errorf("load session: %w", err)
		}
		state = models.NewState(sessionID, scenarioType)
		s.logger.Info("Session opened", "session_id", sessionID, "scenario_type", scenarioType)
	case err != nil:
		s.unlock(ctx, handle)
		return session.Handle{}, nil, fmt.Errorf("load session: %w", err)
	}

	state.AppendMessage(models.RoleUser, message)
	return handle, state, nil
}

// execute runs one turn on the pool, persists the outcome, and releases
// the lock. A turn that hit the recursion bound is persisted and
// reported with status error; the session stays resumable. Any other
// turn failure discards the in-flight mutations, so releasing the lock
// restores the pre-turn state.
func (s *EventService) execute(ctx context.Context, handle session.Handle, state *models.State, message string, emit agent.EmitFunc) (*models.EventResponse, error) {
	sessionID := state.SessionID
	turnID := uuid.New().String()
	log := s.logger.With("session_id", sessionID, "turn_id", turnID)
	start := time.Now()

	// Snapshot before the turn mutates state in place, so dispatch can
	// tell this turn's outcomes from earlier ones.
	prevNotified := len(state.NotificationsSent)
	wasComplete := state.IsComplete

	turnErr := s.pool.Do(ctx, sessionID, func(turnCtx context.Context) error {
		return s.engine.RunTurn(turnCtx, state, message, emit)
	})

	recursion := errors.Is(turnErr, agent.ErrRecursionLimit)
	if turnErr == nil || recursion {
		// The turn's work happened; persist even if the caller has gone.
		if putErr := s.store.Put(context.WithoutCancel(ctx), sessionID, state); putErr != nil {
			s.unlock(ctx, handle)
			log.Error("Failed to persist session after turn", "error", putErr)
			return nil, fmt.Errorf("store session: %w", putErr)
		}
	}
	s.unlock(ctx, handle)

	if turnErr == nil || recursion {
		// Outbound delivery runs after the lock is released, so a turn
		// that failed to commit never pages a department.
		s.dispatchOutbound(context.WithoutCancel(ctx), state, prevNotified, wasComplete, recursion)
	}

	outcome := "ok"
	switch {
	case recursion:
		outcome = "recursion_limit"
	case turnErr != nil:
		outcome = "error"
	}
	log.Info("Turn completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"outcome", outcome,
		"fsm_state", state.FSMState,
		"is_complete", state.IsComplete)

	switch {
	case recursion:
		return s.project(state, models.StatusError, state.FinalAnswer), nil
	case turnErr != nil:
		return nil, fmt.Errorf("run turn: %w", turnErr)
	default:
		return s.project(state, statusFor(state), turnMessage(state)), nil
	}
}

// streamTurn runs the turn on its own goroutine, bridging node updates
// into a frame stream and closing it with the terminal frame.
func (s *EventService) streamTurn(ctx context.Context, handle session.Handle, state *models.State, message string) *events.Stream {
	stream := events.NewStream(streamBuffer)
	go func() {
		resp, err := s.execute(ctx, handle, state, message, func(u *events.NodeUpdate) {
			stream.Publish(events.EventNodeUpdate, u)
		})
		switch {
		case err != nil:
			frame := events.NewErrorFrame(state.SessionID, err.Error())
			frame.FSMState = state.FSMState
			stream.Close(events.EventError, frame)
		case resp.Status == models.StatusError:
			frame := events.NewErrorFrame(resp.SessionID, agent.ErrRecursionLimit.Error())
			frame.FSMState = resp.FSMState
			frame.FinalAnswer = resp.Message
			stream.Close(events.EventError, frame)
		default:
			stream.Close(events.EventComplete, resp)
		}
	}()
	return stream
}

// dispatchOutbound forwards a committed turn's outcomes to the duty
// channel: one post per department notified this turn, then the terminal
// status when the procedure finished or halted. Posts chain through one
// thread per session.
func (s *EventService) dispatchOutbound(ctx context.Context, state *models.State, prevNotified int, wasComplete, halted bool) {
	if s.notifier == nil {
		return
	}
	position, _ := state.Incident["position"].(string)
	risk := ""
	if state.RiskAssessment != nil {
		risk = state.RiskAssessment.Level
	}

	threadTS := ""
	for _, n := range state.NotificationsSent[prevNotified:] {
		threadTS = s.notifier.NotifyDepartment(ctx, slack.DepartmentNotification{
			SessionID:    state.SessionID,
			ScenarioType: state.ScenarioType,
			Department:   n.Department,
			Priority:     n.Priority,
			Position:     position,
			RiskLevel:    risk,
			ThreadTS:     threadTS,
		})
	}

	switch {
	case halted:
		s.notifier.NotifyTerminal(ctx, slack.TerminalNotification{
			SessionID:    state.SessionID,
			ScenarioType: state.ScenarioType,
			Status:       "halted",
			RiskLevel:    risk,
			Summary:      state.FinalAnswer,
			ThreadTS:     threadTS,
		})
	case state.IsComplete && !wasComplete:
		summary := state.FinalAnswer
		if state.FinalReport != nil && state.FinalReport.EventSummary != "" {
			summary = state.FinalReport.EventSummary
		}
		s.notifier.NotifyTerminal(ctx, slack.TerminalNotification{
			SessionID:    state.SessionID,
			ScenarioType: state.ScenarioType,
			Status:       "completed",
			RiskLevel:    risk,
			Summary:      summary,
			ThreadTS:     threadTS,
		})
	}
}

// unlock releases the session lock even when the request context has
// been cancelled.
func (s *EventService) unlock(ctx context.Context, h session.Handle) {
	if err := s.store.Unlock(context.WithoutCancel(ctx), h); err != nil {
		s.logger.Error("Failed to release session lock", "session_id", h.SessionID(), "error", err)
	}
}

// project builds the response shape for a state.
func (s *EventService) project(state *models.State, status, message string) *models.EventResponse {
	return models.NewEventResponse(state, s.fsmStateIDs(state.ScenarioType), status, message)
}

// fsmStateIDs lists the scenario's declared phases in procedure order.
func (s *EventService) fsmStateIDs(scenarioType string) []string {
	sc, err := s.scenarios.Get(scenarioType)
	if err != nil {
		return nil
	}
	ids := make([]string, len(sc.FSMStates))
	for i := range sc.FSMStates {
		ids[i] = sc.FSMStates[i].ID
	}
	return ids
}

// statusFor maps session state to the caller-facing status: completed
// once the procedure finished, processing while input is still needed.
func statusFor(state *models.State) string {
	if state.IsComplete {
		return models.StatusCompleted
	}
	return models.StatusProcessing
}

// turnMessage picks the operator-facing text for a turn: the pending
// question while the engine waits on the controller, otherwise the
// final answer.
func turnMessage(state *models.State) string {
	if state.AwaitingUser && state.NextQuestion != "" {
		return state.NextQuestion
	}
	return state.FinalAnswer
}

func validateStart(req *models.StartEventRequest) error {
	if req == nil || strings.TrimSpace(req.Message) == "" {
		return NewValidationError("message", "required")
	}
	return nil
}

func validateChat(req *models.ChatRequest) error {
	if req == nil {
		return NewValidationError("message", "required")
	}
	if req.SessionID == "" {
		return NewValidationError("session_id", "required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return NewValidationError("message", "required")
	}
	return nil
}
