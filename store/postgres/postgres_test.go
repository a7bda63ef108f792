package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/postgres"
	"github.com/warp/leave-engine/store/storetest"
)

// Runs only when LEAVE_TEST_PGSQL_URL points at a disposable database.
func TestPostgresStore(t *testing.T) {
	url := os.Getenv("LEAVE_TEST_PGSQL_URL")
	if url == "" {
		t.Skip("LEAVE_TEST_PGSQL_URL not set")
	}
	require.NoError(t, postgres.Migrate(url))

	storetest.Run(t, func(t *testing.T) leave.Store {
		ctx := context.Background()
		truncate(t, url)
		store, err := postgres.New(ctx, url)
		require.NoError(t, err)
		t.Cleanup(store.Close)
		return store
	})
}

func truncate(t *testing.T, url string) {
	t.Helper()
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	defer pool.Close()
	_, err = pool.Exec(ctx, `TRUNCATE balance_entries, balances, requests, holidays, settings, employees`)
	require.NoError(t, err)
}
