package migrate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formfill/internal/db"
	"formfill/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	applied, err := migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_init.sql"}, applied)

	applied, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	assert.Empty(t, applied)

	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n))
	assert.Equal(t, 1, n)
	for _, table := range []string{"documents", "events"} {
		var name string
		err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, "table %s", table)
	}
}

func TestMigrateHonorsCancelledContext(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = migrate.Migrate(ctx, conn)
	require.ErrorIs(t, err, context.Canceled)
}
