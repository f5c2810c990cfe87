package changes

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/hotelcms/hotelcms/internal/entries"
	"github.com/hotelcms/hotelcms/internal/platform/db"
	"github.com/hotelcms/hotelcms/internal/rbac"
	"github.com/hotelcms/hotelcms/internal/shared"
	"github.com/hotelcms/hotelcms/migrations"
)

// pgPool connects to TEST_POSTGRES_DSN, migrates it and resets the tables
// this package touches. Tests skip when the variable is unset.
func pgPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	require.NoError(t, db.Migrate(ctx, dsn, migrations.FS))
	pool, err := db.New(ctx, dsn, 16)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `TRUNCATE pending_changes, idempotency_keys, audit_logs, hotels RESTART IDENTITY`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `DELETE FROM users WHERE id IN (100, 200)`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO users (id, email, name, password_hash) VALUES
		(100, 'proposer@example.com', 'Proposer', 'x'),
		(200, 'reviewer@example.com', 'Reviewer', 'x')`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO hotels (id, name, star_rating) VALUES (42, 'Old Name', 3)`)
	require.NoError(t, err)
	return pool
}

func newPGService(pool *pgxpool.Pool) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(
		NewRepository(pool, logger),
		rbac.NewResolver(stubAssignments{}, nil),
		logger,
		WithExistence(entries.NewChecker(pool, entries.NewExistencePolicy(entries.TypeHotel))),
	)
}

func hotelName(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()
	var name string
	require.NoError(t, pool.QueryRow(context.Background(), `SELECT name FROM hotels WHERE id = 42`).Scan(&name))
	return name
}

func TestPGApproveAppliesDiff(t *testing.T) {
	pool := pgPool(t)
	svc := newPGService(pool)
	ctx := context.Background()

	res, err := svc.Submit(ctx, proposer, SubmitInput{
		Entry:        hotel42,
		ChangeData:   map[string]any{"name": "New Hotel Name", "star_rating": 4},
		OriginalData: map[string]any{"name": "Old Name", "star_rating": 3},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, res.Change.Status)
	require.Equal(t, "Old Name", hotelName(t, pool))

	reviewed, err := svc.Review(ctx, reviewer, res.Change.ID, ReviewInput{Status: StatusApproved})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, reviewed.Status)
	require.Equal(t, "New Hotel Name", hotelName(t, pool))

	got, err := svc.Get(ctx, reviewer, res.Change.ID)
	require.NoError(t, err)
	require.Equal(t, int64(200), *got.ReviewedBy)
	require.NotNil(t, got.ReviewedAt)
}

func TestPGConcurrentReviewsHaveOneWinner(t *testing.T) {
	pool := pgPool(t)
	svc := newPGService(pool)
	ctx := context.Background()

	res, err := svc.Submit(ctx, proposer, SubmitInput{
		Entry:        hotel42,
		ChangeData:   map[string]any{"name": "Contested"},
		OriginalData: map[string]any{"name": "Old Name"},
	})
	require.NoError(t, err)

	const reviewers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  int
		conflict int
	)
	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := StatusApproved
			if i%2 == 1 {
				status = StatusRejected
			}
			_, err := svc.Review(ctx, reviewer, res.Change.ID, ReviewInput{Status: status})
			mu.Lock()
			defer mu.Unlock()
			var already *AlreadyReviewedError
			switch {
			case err == nil:
				winners++
			case errors.As(err, &already):
				conflict++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, 1, winners)
	require.Equal(t, reviewers-1, conflict)
}

func TestPGCorruptDiffRollsBack(t *testing.T) {
	pool := pgPool(t)
	svc := newPGService(pool)
	ctx := context.Background()

	var id int64
	err := pool.QueryRow(ctx, `INSERT INTO pending_changes (user_id, entry_type, entry_id, change_data, original_data, status)
		VALUES (100, 'hotel', 42, '"not an object"'::jsonb, '{}'::jsonb, 'pending') RETURNING id`).Scan(&id)
	require.NoError(t, err)

	_, err = svc.Review(ctx, reviewer, id, ReviewInput{Status: StatusApproved})
	require.ErrorIs(t, err, entries.ErrCorruptDiff)

	got, err := svc.Get(ctx, reviewer, id)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
	require.Nil(t, got.ChangeData)
	require.Equal(t, "Old Name", hotelName(t, pool))
}

func TestPGSubmitRequiresExistingHotel(t *testing.T) {
	pool := pgPool(t)
	svc := newPGService(pool)

	_, err := svc.Submit(context.Background(), proposer, SubmitInput{
		Entry:        entries.Entry{Type: entries.TypeHotel, ID: 9999},
		ChangeData:   map[string]any{"name": "Ghost"},
		OriginalData: map[string]any{},
	})
	require.ErrorIs(t, err, entries.ErrNotFound)
}

func TestPGIdempotencyKeyBoundWithInsert(t *testing.T) {
	pool := pgPool(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(NewRepository(pool, logger), rbac.NewResolver(stubAssignments{}, nil), logger,
		WithIdempotency(shared.NewIdempotencyStore(pool)))
	ctx := context.Background()
	in := SubmitInput{
		Entry:          hotel42,
		ChangeData:     map[string]any{"name": "Keyed"},
		OriginalData:   map[string]any{"name": "Old Name"},
		IdempotencyKey: "5c1d7e2f-3a4b-4c5d-9e6f-7a8b9c0d1e2f",
	}
	first, err := svc.Submit(ctx, proposer, in)
	require.NoError(t, err)

	var bound int64
	require.NoError(t, pool.QueryRow(ctx, `SELECT resource_id FROM idempotency_keys WHERE key = $1`, in.IdempotencyKey).Scan(&bound))
	require.Equal(t, first.Change.ID, bound)

	second, err := svc.Submit(ctx, proposer, in)
	require.NoError(t, err)
	require.True(t, second.Replayed)
	require.Equal(t, first.Change.ID, second.Change.ID)
}
