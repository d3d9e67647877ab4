package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/airside-ops/apron/pkg/config"
	"github.com/airside-ops/apron/pkg/models"
)

type memoryEntry struct {
	state     *models.State
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory with per-entry TTL and a
// background janitor. It is the default backend and the one the test
// suites run against.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	locked  map[string]string // session id -> lease token

	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMemoryStore creates the store and starts its janitor.
func NewMemoryStore(cfg *config.SessionConfig, logger *slog.Logger) *MemoryStore {
	if cfg == nil {
		cfg = config.DefaultSessionConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		locked:  make(map[string]string),
		ttl:     cfg.TTL,
		now:     time.Now,
		logger:  logger.With("component", "session_store", "backend", "memory"),
		done:    make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go m.janitor(ctx, cfg.CleanupInterval)

	return m
}

// Get returns an isolated snapshot of the stored state.
func (m *MemoryStore) Get(_ context.Context, id string) (*models.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok || m.now().After(e.expiresAt) {
		return nil, ErrNotFound
	}
	return e.state.Clone()
}

// Put stores a snapshot of state and refreshes the entry TTL.
func (m *MemoryStore) Put(_ context.Context, id string, state *models.State) error {
	cp, err := state.Clone()
	if err != nil {
		return fmt.Errorf("snapshot state: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = &memoryEntry{state: cp, expiresAt: m.now().Add(m.ttl)}
	return nil
}

// Delete removes the session.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[id]; !ok {
		return ErrNotFound
	}
	delete(m.entries, id)
	return nil
}

// Lock acquires the per-session lock or fails with ErrSessionBusy.
func (m *MemoryStore) Lock(_ context.Context, id string) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.locked[id]; held {
		return Handle{}, ErrSessionBusy
	}
	token := uuid.NewString()
	m.locked[id] = token
	return Handle{sessionID: id, token: token}, nil
}

// Unlock releases the lock. A handle from a superseded acquisition is a
// no-op.
func (m *MemoryStore) Unlock(_ context.Context, h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if token, held := m.locked[h.sessionID]; held && token == h.token {
		delete(m.locked, h.sessionID)
	}
	return nil
}

// Ping always succeeds; the store has no external dependency.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Len reports the number of live entries, expired ones included until
// the next sweep.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close stops the janitor.
func (m *MemoryStore) Close() error {
	m.cancel()
	<-m.done
	return nil
}

func (m *MemoryStore) janitor(ctx context.Context, interval time.Duration) {
	defer close(m.done)

	if interval <= 0 {
		interval = config.DefaultSessionConfig().CleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.sweep(); n > 0 {
				m.logger.Info("Reaped expired sessions", "count", n)
			}
		}
	}
}

// sweep drops expired entries. Entries under an active lock are kept;
// the turn's Put refreshes their TTL.
func (m *MemoryStore) sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, e := range m.entries {
		if !now.After(e.expiresAt) {
			continue
		}
		if _, held := m.locked[id]; held {
			continue
		}
		delete(m.entries, id)
		n++
	}
	return n
}
