// Package queue schedules agent turns on a fixed-size worker pool. A
// turn is a blocking computation; the submitting handler waits for its
// result, so the pool bounds concurrency rather than buffering work for
// later.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/airside-ops/apron/pkg/config"
)

var (
	// ErrSessionBusy is returned when a turn for the session is already
	// in flight on this pool.
	ErrSessionBusy = errors.New("session turn already in flight")

	// ErrQueueFull is returned when all workers are busy and the wait
	// room is at capacity.
	ErrQueueFull = errors.New("turn queue full")

	// ErrPoolStopped is returned for turns submitted after Stop.
	ErrPoolStopped = errors.New("worker pool stopped")
)

// drainGrace is how long Stop waits for cancelled turns to unwind.
const drainGrace = 5 * time.Second

// TurnFunc is one agent turn, run under the pool's turn timeout.
type TurnFunc func(ctx context.Context) error

// Pool runs turns on a bounded set of workers with an active-turn
// registry for cancellation and a bounded wait room for overflow.
type Pool struct {
	cfg    *config.QueueConfig
	logger *slog.Logger

	slots   chan struct{} // worker tokens
	pending chan struct{} // wait-room tokens, sized workers+depth

	mu      sync.Mutex
	active  map[string]context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

// NewPool creates a started pool.
func NewPool(cfg *config.QueueConfig, logger *slog.Logger) *Pool {
	if cfg == nil {
		cfg = config.DefaultQueueConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		cfg:     cfg,
		logger:  logger.With("component", "queue"),
		slots:   make(chan struct{}, cfg.WorkerCount),
		pending: make(chan struct{}, cfg.WorkerCount+cfg.QueueDepth),
		active:  make(map[string]context.CancelFunc),
	}
	for i := 0; i < cfg.WorkerCount; i++ {
		p.slots <- struct{}{}
	}
	return p
}

// Do runs one turn for the session, blocking the caller until the turn
// returns. A second turn for a session already in flight fails fast with
// ErrSessionBusy; a full wait room fails fast with ErrQueueFull.
func (p *Pool) Do(ctx context.Context, sessionID string, turn TurnFunc) error {
	turnCtx, cancel, err := p.admit(ctx, sessionID)
	if err != nil {
		return err
	}
	defer p.finish(sessionID, cancel)

	select {
	case p.pending <- struct{}{}:
	default:
		return ErrQueueFull
	}
	defer func() { <-p.pending }()

	select {
	case <-p.slots:
	case <-turnCtx.Done():
		return turnCtx.Err()
	}
	defer func() { p.slots <- struct{}{} }()

	start := time.Now()
	err = turn(turnCtx)
	p.logger.Info("Turn finished",
		"session_id", sessionID,
		"duration_ms", time.Since(start).Milliseconds(),
		"outcome", outcomeLabel(err))
	return err
}

// Cancel aborts the in-flight turn for the session, if any.
func (p *Pool) Cancel(sessionID string) bool {
	p.mu.Lock()
	cancel, ok := p.active[sessionID]
	p.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Active returns the session ids with a turn in flight.
func (p *Pool) Active() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.active))
	for id := range p.active {
		ids = append(ids, id)
	}
	return ids
}

// Health is the pool snapshot reported by the health endpoint.
type Health struct {
	Workers     int  `json:"workers"`
	ActiveTurns int  `json:"active_turns"`
	Stopped     bool `json:"stopped"`
}

// Snapshot returns the current pool health.
func (p *Pool) Snapshot() Health {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Health{
		Workers:     p.cfg.WorkerCount,
		ActiveTurns: len(p.active),
		Stopped:     p.stopped,
	}
}

// Stop rejects new turns and waits up to the configured shutdown timeout
// for in-flight turns to finish, then cancels stragglers and gives them
// a short grace period to unwind.
func (p *Pool) Stop() error {
	p.mu.Lock()
	p.stopped = true
	remaining := len(p.active)
	p.mu.Unlock()

	if remaining > 0 {
		p.logger.Info("Waiting for active turns to complete", "count", remaining)
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Worker pool stopped")
		return nil
	case <-time.After(p.cfg.GracefulShutdownTimeout):
	}

	p.mu.Lock()
	for id, cancel := range p.active {
		p.logger.Warn("Cancelling turn at shutdown", "session_id", id)
		cancel()
	}
	p.mu.Unlock()

	select {
	case <-done:
		p.logger.Info("Worker pool stopped")
		return nil
	case <-time.After(drainGrace):
		return fmt.Errorf("worker pool did not drain within %v", p.cfg.GracefulShutdownTimeout+drainGrace)
	}
}

func (p *Pool) admit(ctx context.Context, sessionID string) (context.Context, context.CancelFunc, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil, nil, ErrPoolStopped
	}
	if _, busy := p.active[sessionID]; busy {
		return nil, nil, ErrSessionBusy
	}

	turnCtx, cancel := context.WithTimeout(ctx, p.cfg.TurnTimeout)
	p.active[sessionID] = cancel
	p.wg.Add(1)
	return turnCtx, cancel, nil
}

func (p *Pool) finish(sessionID string, cancel context.CancelFunc) {
	cancel()
	p.mu.Lock()
	delete(p.active, sessionID)
	p.mu.Unlock()
	p.wg.Done()
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}
