package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/airside-ops/apron/pkg/config"
	"github.com/airside-ops/apron/pkg/models"
)

const (
	sessionKeyPrefix = "apron:session:"
	lockKeyPrefix    = "apron:lock:"
)

// unlockScript releases a lock lease only when the caller still owns it.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// RedisStore keeps sessions as JSON blobs with native TTL expiry. The
// per-session lock is a SET NX PX lease whose TTL bounds how long a
// crashed holder can block the session.
type RedisStore struct {
	client  *redis.Client
	ttl     time.Duration
	lockTTL time.Duration
	logger  *slog.Logger
}

// NewRedisStore dials the server and verifies connectivity.
func NewRedisStore(ctx context.Context, cfg *config.SessionConfig, logger *slog.Logger) (*RedisStore, error) {
	if cfg == nil {
		cfg = config.DefaultSessionConfig()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	return NewRedisStoreFromClient(client, cfg, logger), nil
}

// NewRedisStoreFromClient wraps an existing client (useful for testing).
// Close closes the client.
func NewRedisStoreFromClient(client *redis.Client, cfg *config.SessionConfig, logger *slog.Logger) *RedisStore {
	if cfg == nil {
		cfg = config.DefaultSessionConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{
		client:  client,
		ttl:     cfg.TTL,
		lockTTL: cfg.LockTTL,
		logger:  logger.With("component", "session_store", "backend", "redis"),
	}
}

func sessionKey(id string) string { return sessionKeyPrefix + id }
func lockKey(id string) string    { return lockKeyPrefix + id }

// Get fetches and decodes the session blob.
func (r *RedisStore) Get(ctx context.Context, id string) (*models.State, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var st models.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &st, nil
}

// Put stores the session blob and refreshes its TTL.
func (r *RedisStore) Put(ctx context.Context, id string, state *models.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", id, err)
	}
	if err := r.client.Set(ctx, sessionKey(id), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis put session: %w", err)
	}
	return nil
}

// Delete removes the session blob. The lock key, if any, stays with its
// holder until Unlock or lease expiry.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := r.client.Del(ctx, sessionKey(id)).Result()
	if err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Lock acquires the lease or fails with ErrSessionBusy.
func (r *RedisStore) Lock(ctx context.Context, id string) (Handle, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, lockKey(id), token, r.lockTTL).Result()
	if err != nil {
		return Handle{}, fmt.Errorf("acquire session lock: %w", err)
	}
	if !ok {
		return Handle{}, ErrSessionBusy
	}
	return Handle{sessionID: id, token: token}, nil
}

// Unlock releases the lease if the handle still owns it. A lease taken
// over after expiry is left untouched.
func (r *RedisStore) Unlock(ctx context.Context, h Handle) error {
	if err := unlockScript.Run(ctx, r.client, []string{lockKey(h.sessionID)}, h.token).Err(); err != nil {
		return fmt.Errorf("release session lock: %w", err)
	}
	return nil
}

// Ping checks server reachability.
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
