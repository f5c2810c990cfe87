package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hotelcms/hotelcms/internal/platform/httpx"
)

// IdempotencyHeader is the request header carrying a client supplied key.
const IdempotencyHeader = "Idempotency-Key"

// IdempotencyStore persists processed keys together with the resource they
// produced, so a replayed request can return the original result.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

var (
	// ErrIdempotencyConflict indicates a duplicate key.
	ErrIdempotencyConflict = errors.New("idempotent request already processed")
	// ErrIdempotencyPending indicates the original request has not finished.
	ErrIdempotencyPending = fmt.Errorf("idempotent request still in progress: %w", httpx.ErrConflict)
	// ErrIdempotencyKeyMissing indicates the reserved key disappeared before it
	// could be bound, e.g. removed by cleanup.
	ErrIdempotencyKeyMissing = errors.New("idempotency key not reserved")
)

// CheckAndInsert ensures key uniqueness per module.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)`, key, module, time.Now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

// BindIdempotencyKey records the resource produced for a reserved key. It runs
// on db so callers can bind in the transaction that created the resource.
func BindIdempotencyKey(ctx context.Context, db Execer, key, module string, resourceID int64) error {
	tag, err := db.Exec(ctx, `UPDATE idempotency_keys SET resource_id = $3 WHERE key = $1 AND module = $2`, key, module, resourceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyKeyMissing
	}
	return nil
}

// Resolve returns the resource bound to key. ErrIdempotencyPending is returned
// while the original request is still running.
func (s *IdempotencyStore) Resolve(ctx context.Context, key, module string) (int64, error) {
	var resourceID *int64
	err := s.pool.QueryRow(ctx, `SELECT resource_id FROM idempotency_keys WHERE key = $1 AND module = $2`, key, module).Scan(&resourceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrIdempotencyPending
		}
		return 0, err
	}
	if resourceID == nil {
		return 0, ErrIdempotencyPending
	}
	return *resourceID, nil
}

// Cleanup removes entries older than retention and reports how many were dropped.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Delete removes a key, typically used to roll back failed processing.
func (s *IdempotencyStore) Delete(ctx context.Context, key, module string) error {
	if s == nil {
		return nil
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1 AND module = $2`, key, module)
	return err
}
