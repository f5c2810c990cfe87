package assignments

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/hotelcms/hotelcms/internal/entries"
	"github.com/hotelcms/hotelcms/internal/platform/db"
	"github.com/hotelcms/hotelcms/migrations"
)

func pgRepo(t *testing.T) (*Repository, *pgxpool.Pool) {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	require.NoError(t, db.Migrate(ctx, dsn, migrations.FS))
	pool, err := db.New(ctx, dsn, 4)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `TRUNCATE entry_assignments RESTART IDENTITY`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `DELETE FROM users WHERE id IN (10, 11, 12)`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO users (id, email, name, password_hash) VALUES
		(10, 'assignee@example.com', 'Assignee', 'x'),
		(11, 'lead@example.com', 'Lead', 'x'),
		(12, 'manager@example.com', 'Manager', 'x')`)
	require.NoError(t, err)
	return NewRepository(pool), pool
}

func TestPGUpsertKeepsLatestAssigner(t *testing.T) {
	repo, _ := pgRepo(t)
	ctx := context.Background()
	hotel := entries.Entry{Type: entries.TypeHotel, ID: 42}

	first, err := repo.Upsert(ctx, 10, hotel, 11)
	require.NoError(t, err)
	second, err := repo.Upsert(ctx, 10, hotel, 12)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, int64(12), second.AssignedBy)

	list, err := repo.ListByEntry(ctx, hotel)
	require.NoError(t, err)
	require.Len(t, list, 1)

	ok, err := repo.IsAssigned(ctx, 10, hotel)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.IsAssigned(ctx, 10, entries.Entry{Type: entries.TypeRoom, ID: 42})
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, repo.Delete(ctx, 10, hotel))
	require.ErrorIs(t, repo.Delete(ctx, 10, hotel), ErrNotFound)
}

func TestPGUpsertUnknownUser(t *testing.T) {
	repo, _ := pgRepo(t)
	_, err := repo.Upsert(context.Background(), 999999, entries.Entry{Type: entries.TypeHotel, ID: 1}, 11)
	require.ErrorIs(t, err, ErrNotFound)
}
