package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/airside-ops/apron/pkg/config"
	"github.com/airside-ops/apron/pkg/models"
)

// Postgres lock_not_available, raised by FOR UPDATE NOWAIT on a held row.
const pgCodeLockNotAvailable = "55P03"

const (
	sqlEnsureRow = `INSERT INTO sessions (session_id, state, expires_at)
VALUES ($1, '{}'::jsonb, $2)
ON CONFLICT (session_id) DO NOTHING`

	sqlLockRow = `SELECT session_id FROM sessions WHERE session_id = $1 FOR UPDATE NOWAIT`

	sqlGetState = `SELECT state FROM sessions WHERE session_id = $1 AND expires_at > now()`

	sqlPutState = `INSERT INTO sessions (session_id, scenario_type, state, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (session_id) DO UPDATE
SET scenario_type = EXCLUDED.scenario_type,
    state = EXCLUDED.state,
    updated_at = now(),
    expires_at = EXCLUDED.expires_at`

	sqlDeleteRow = `DELETE FROM sessions WHERE session_id = $1`

	sqlReapExpired = `DELETE FROM sessions WHERE expires_at <= now()`
)

// sqlLease is a turn-scoped transaction holding the row lock. The
// transaction commits only when the turn wrote through it; otherwise
// Unlock rolls back, which also undoes the stub row of a first turn
// that never completed.
type sqlLease struct {
	tx    *sql.Tx
	token string
	wrote bool
}

// SQLStore keeps sessions in a Postgres table with the state as a JSONB
// blob. The per-session lock is SELECT FOR UPDATE NOWAIT inside a
// turn-scoped transaction; writes during the turn go through that
// transaction so a cancelled turn leaves no trace.
type SQLStore struct {
	db     *sql.DB
	ttl    time.Duration
	logger *slog.Logger

	mu   sync.Mutex
	held map[string]*sqlLease

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSQLStore attaches to db and starts the janitor. The caller owns db.
func NewSQLStore(db *sql.DB, cfg *config.SessionConfig, logger *slog.Logger) *SQLStore {
	if cfg == nil {
		cfg = config.DefaultSessionConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &SQLStore{
		db:     db,
		ttl:    cfg.TTL,
		logger: logger.With("component", "session_store", "backend", "sql"),
		held:   make(map[string]*sqlLease),
		done:   make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.janitor(ctx, cfg.CleanupInterval)

	return s
}

// Get reads the committed state. During a turn it returns the pre-turn
// state; the turn's writes become visible at Unlock.
func (s *SQLStore) Get(ctx context.Context, id string) (*models.State, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, sqlGetState, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}

	var st models.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &st, nil
}

// Put upserts the state and refreshes expiry. Inside a held lock the
// write goes through the lease transaction.
func (s *SQLStore) Put(ctx context.Context, id string, state *models.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", id, err)
	}
	expiresAt := time.Now().Add(s.ttl)

	if lease := s.leaseFor(id); lease != nil {
		if _, err := lease.tx.ExecContext(ctx, sqlPutState, id, state.ScenarioType, data, expiresAt); err != nil {
			return fmt.Errorf("write session in turn: %w", err)
		}
		lease.wrote = true
		return nil
	}

	if _, err := s.db.ExecContext(ctx, sqlPutState, id, state.ScenarioType, data, expiresAt); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// Delete removes the row. Inside a held lock the delete goes through the
// lease transaction and is committed by Unlock.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	if lease := s.leaseFor(id); lease != nil {
		if _, err := lease.tx.ExecContext(ctx, sqlDeleteRow, id); err != nil {
			return fmt.Errorf("delete session in turn: %w", err)
		}
		lease.wrote = true
		return nil
	}

	res, err := s.db.ExecContext(ctx, sqlDeleteRow, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Lock opens the turn transaction and locks the session row, creating a
// stub row for a session's first turn. A row held elsewhere fails with
// ErrSessionBusy.
func (s *SQLStore) Lock(ctx context.Context, id string) (Handle, error) {
	s.mu.Lock()
	if _, busy := s.held[id]; busy {
		s.mu.Unlock()
		return Handle{}, ErrSessionBusy
	}
	s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Handle{}, fmt.Errorf("begin turn transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, sqlEnsureRow, id, time.Now().Add(s.ttl)); err != nil {
		_ = tx.Rollback()
		return Handle{}, fmt.Errorf("ensure session row: %w", err)
	}

	var locked string
	if err := tx.QueryRowContext(ctx, sqlLockRow, id).Scan(&locked); err != nil {
		_ = tx.Rollback()
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgCodeLockNotAvailable {
			return Handle{}, ErrSessionBusy
		}
		return Handle{}, fmt.Errorf("lock session row: %w", err)
	}

	token := uuid.NewString()
	s.mu.Lock()
	// Lost the in-process race while the transaction was opening.
	if _, busy := s.held[id]; busy {
		s.mu.Unlock()
		_ = tx.Rollback()
		return Handle{}, ErrSessionBusy
	}
	s.held[id] = &sqlLease{tx: tx, token: token}
	s.mu.Unlock()

	return Handle{sessionID: id, token: token}, nil
}

// Unlock ends the turn: commit when the turn wrote through the lease,
// rollback otherwise so an aborted turn leaves the row untouched.
func (s *SQLStore) Unlock(_ context.Context, h Handle) error {
	s.mu.Lock()
	lease, ok := s.held[h.sessionID]
	if ok && lease.token == h.token {
		delete(s.held, h.sessionID)
	} else {
		lease = nil
	}
	s.mu.Unlock()

	if lease == nil {
		return nil
	}
	if lease.wrote {
		if err := lease.tx.Commit(); err != nil {
			return fmt.Errorf("commit session turn: %w", err)
		}
		return nil
	}
	if err := lease.tx.Rollback(); err != nil {
		return fmt.Errorf("roll back session turn: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	return nil
}

// Close stops the janitor and rolls back any leases still open. The
// database handle stays open for its owner.
func (s *SQLStore) Close() error {
	s.cancel()
	<-s.done

	s.mu.Lock()
	leases := s.held
	s.held = make(map[string]*sqlLease)
	s.mu.Unlock()

	for _, lease := range leases {
		_ = lease.tx.Rollback()
	}
	return nil
}

func (s *SQLStore) leaseFor(id string) *sqlLease {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held[id]
}

func (s *SQLStore) janitor(ctx context.Context, interval time.Duration) {
	defer close(s.done)

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
			s.reapExpired(ctx)
		}
	}
}

func (s *SQLStore) reapExpired(ctx context.Context) {
	res, err := s.db.ExecContext(ctx, sqlReapExpired)
	if err != nil {
		s.logger.Error("Session cleanup failed", "error", err)
		return
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.logger.Info("Reaped expired sessions", "count", n)
	}
}
