// Package session persists per-session agent state behind a single Store
// interface with memory, Redis, and SQL backends. A turn holds the
// per-session lock from open to close; concurrent turns on the same
// session fail fast instead of queueing.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/airside-ops/apron/pkg/config"
	"github.com/airside-ops/apron/pkg/models"
)

var (
	// ErrNotFound is returned when no live session exists under the id.
	ErrNotFound = errors.New("session not found")

	// ErrSessionBusy is returned when another turn holds the session lock.
	ErrSessionBusy = errors.New("session busy")
)

// Handle is a held per-session lock. It is only valid for the Unlock of
// the store that issued it.
type Handle struct {
	sessionID string
	token     string
}

// SessionID returns the session the handle locks.
func (h Handle) SessionID() string { return h.sessionID }

// Store keeps whole-session state keyed by session id.
//
// Put replaces the stored state all-or-nothing and refreshes the entry
// TTL. Lock is a try-lock: a second lock on a held session returns
// ErrSessionBusy immediately. Releasing a lock without an intervening
// Put leaves the stored entry as it was when the lock was taken.
type Store interface {
	Get(ctx context.Context, id string) (*models.State, error)
	Put(ctx context.Context, id string, state *models.State) error
	Delete(ctx context.Context, id string) error
	Lock(ctx context.Context, id string) (Handle, error)
	Unlock(ctx context.Context, h Handle) error

	// Ping reports backend reachability for health checks.
	Ping(ctx context.Context) error

	// Close stops background work owned by the store. It does not close
	// connections the caller handed in.
	Close() error
}

// New builds the store selected by cfg.Backend. The sql backend attaches
// to db, which the caller owns and closes.
func New(ctx context.Context, cfg *config.SessionConfig, db *sql.DB, logger *slog.Logger) (Store, error) {
	if cfg == nil {
		cfg = config.DefaultSessionConfig()
	}
	switch cfg.Backend {
	case config.SessionBackendMemory, "":
		return NewMemoryStore(cfg, logger), nil
	case config.SessionBackendRedis:
		return NewRedisStore(ctx, cfg, logger)
	case config.SessionBackendSQL:
		if db == nil {
			return nil, fmt.Errorf("sql session backend requires a database connection")
		}
		return NewSQLStore(db, cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown session store backend %q", cfg.Backend)
	}
}
