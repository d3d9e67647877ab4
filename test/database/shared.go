package database

import (
	"context"
	stdsql "database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/airside-ops/apron/pkg/database"
)

// SharedTestDB is a single schema shared by multiple clients. Each client
// gets its own connection pool, so tests can exercise cross-connection
// behavior such as row-lock contention between engine replicas.
type SharedTestDB struct {
	connStrWithSchema string
	baseConnStr       string
	schemaName        string
}

// NewSharedTestDB creates the schema, runs migrations once, and registers
// t.Cleanup to drop the schema after all clients have shut down (LIFO
// order guarantees client cleanups run first).
func NewSharedTestDB(t *testing.T) *SharedTestDB {
	t.Helper()
	ctx := context.Background()

	baseConnStr := getOrCreateSharedDatabase(t)
	schemaName := generateSchemaName(t)

	createSchema(t, baseConnStr, schemaName)

	connStrWithSchema := addSearchPathToConnString(baseConnStr, schemaName)

	// Run migrations once through a throwaway client.
	cfg := database.Config{
		URL:             connStrWithSchema,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
	migrator, err := database.NewClient(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, migrator.Close())

	t.Cleanup(func() {
		dropSchema(t, baseConnStr, schemaName)
	})

	return &SharedTestDB{
		connStrWithSchema: connStrWithSchema,
		baseConnStr:       baseConnStr,
		schemaName:        schemaName,
	}
}

// NewClient creates an independent client backed by a fresh pool to the
// shared schema. Migrations are already applied; the pool is closed via
// t.Cleanup.
func (s *SharedTestDB) NewClient(t *testing.T) *database.Client {
	t.Helper()

	db, err := stdsql.Open("pgx", s.connStrWithSchema)
	require.NoError(t, err)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	client := database.NewClientFromDB(db)

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}
