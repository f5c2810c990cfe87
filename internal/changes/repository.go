package changes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hotelcms/hotelcms/internal/entries"
	"github.com/hotelcms/hotelcms/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{pool: pool, logger: logger}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	Insert(ctx context.Context, change NewChange) (PendingChange, error)
	// Transition moves a pending change to a terminal status. It fails with
	// *AlreadyReviewedError when the change is no longer pending.
	Transition(ctx context.Context, id int64, to Status, reviewerID int64, notes *string) (PendingChange, error)
	ApplyDiff(ctx context.Context, entry entries.Entry, raw []byte) (entries.Result, error)
	ApplyDirect(ctx context.Context, entry entries.Entry, data map[string]any) (entries.Result, error)
	// BindIdempotencyKey attaches changeID to a reserved key in the same
	// transaction as the insert.
	BindIdempotencyKey(ctx context.Context, key, module string, changeID int64) error
}

type txRepo struct {
	tx     pgx.Tx
	logger *slog.Logger
}

var changeColumns = []string{
	"id", "user_id", "entry_type", "entry_id", "change_data", "original_data", "status",
	"reviewed_by", "reviewed_at", "review_notes", "created_at", "updated_at",
}

const changeColumnList = `id, user_id, entry_type, entry_id, change_data, original_data, status, reviewed_by, reviewed_at, review_notes, created_at, updated_at`

// WithTx wraps callback in a read-committed transaction. Under read committed
// a conditional status update that waited on a concurrent reviewer re-checks
// the committed row and matches nothing, instead of failing to serialize.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepo{tx: tx, logger: r.logger}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// Get returns a change by id.
func (r *Repository) Get(ctx context.Context, id int64) (PendingChange, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+changeColumnList+` FROM pending_changes WHERE id = $1`, id)
	return scanChange(row, r.logger)
}

// List returns the changes matching filter, newest first, with the total
// number of matches.
func (r *Repository) List(ctx context.Context, filter Filter) ([]PendingChange, int, error) {
	filter = filter.normalized()

	countSQL, countArgs, err := applyFilter(sq.Select("COUNT(*)").From("pending_changes"), filter).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("changes: count: %w", err)
	}

	builder := applyFilter(sq.Select(changeColumns...).From("pending_changes"), filter).
		OrderBy("created_at DESC", "id DESC").
		PlaceholderFormat(sq.Dollar)
	if filter.PerPage > 0 {
		builder = builder.Limit(uint64(filter.PerPage))
		if filter.Page > 1 {
			builder = builder.Offset(uint64((filter.Page - 1) * filter.PerPage))
		}
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("changes: list: %w", err)
	}
	defer rows.Close()
	var out []PendingChange
	for rows.Next() {
		c, err := scanChange(rows, r.logger)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// CountPending returns the size of the review backlog.
func (r *Repository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM pending_changes WHERE status = $1`, string(StatusPending)).Scan(&n)
	return n, err
}

// Snapshot reads the current values of keys on the live record.
func (r *Repository) Snapshot(ctx context.Context, entry entries.Entry, keys []string) (map[string]any, error) {
	return entries.Snapshot(ctx, r.pool, entry, keys)
}

func applyFilter(b sq.SelectBuilder, f Filter) sq.SelectBuilder {
	if f.Status != "" {
		b = b.Where(sq.Eq{"status": string(f.Status)})
	}
	if f.EntryType != "" {
		b = b.Where(sq.Eq{"entry_type": string(f.EntryType)})
	}
	if f.EntryID > 0 {
		b = b.Where(sq.Eq{"entry_id": f.EntryID})
	}
	if f.UserID > 0 {
		b = b.Where(sq.Eq{"user_id": f.UserID})
	}
	return b
}

func (t *txRepo) Insert(ctx context.Context, change NewChange) (PendingChange, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO pending_changes (user_id, entry_type, entry_id, change_data, original_data, status)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+changeColumnList,
		change.UserID, string(change.Entry.Type), change.Entry.ID, []byte(change.ChangeData), []byte(change.OriginalData), string(StatusPending))
	c, err := scanChange(row, t.logger)
	if err != nil {
		return PendingChange{}, fmt.Errorf("changes: insert: %w", err)
	}
	return c, nil
}

func (t *txRepo) Transition(ctx context.Context, id int64, to Status, reviewerID int64, notes *string) (PendingChange, error) {
	row := t.tx.QueryRow(ctx, `UPDATE pending_changes
SET status = $2, reviewed_by = $3, review_notes = $4, reviewed_at = NOW(), updated_at = NOW()
WHERE id = $1 AND status = $5
RETURNING `+changeColumnList, id, string(to), reviewerID, notes, string(StatusPending))
	c, err := scanChange(row, t.logger)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return PendingChange{}, fmt.Errorf("changes: transition: %w", err)
	}
	var current string
	if err := t.tx.QueryRow(ctx, `SELECT status FROM pending_changes WHERE id = $1`, id).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PendingChange{}, ErrNotFound
		}
		return PendingChange{}, fmt.Errorf("changes: transition: %w", err)
	}
	return PendingChange{}, &AlreadyReviewedError{ChangeID: id, Status: Status(current)}
}

func (t *txRepo) ApplyDiff(ctx context.Context, entry entries.Entry, raw []byte) (entries.Result, error) {
	return entries.ApplyRaw(ctx, t.tx, entry, raw)
}

func (t *txRepo) ApplyDirect(ctx context.Context, entry entries.Entry, data map[string]any) (entries.Result, error) {
	return entries.Apply(ctx, t.tx, entry, data)
}

func (t *txRepo) BindIdempotencyKey(ctx context.Context, key, module string, changeID int64) error {
	return shared.BindIdempotencyKey(ctx, t.tx, key, module, changeID)
}

func scanChange(row pgx.Row, logger *slog.Logger) (PendingChange, error) {
	var (
		c           PendingChange
		entryType   string
		status      string
		rawOriginal []byte
		rawChange   []byte
		reviewedAt  *time.Time
	)
	err := row.Scan(&c.ID, &c.UserID, &entryType, &c.Entry.ID, &rawChange, &rawOriginal, &status,
		&c.ReviewedBy, &reviewedAt, &c.ReviewNotes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PendingChange{}, ErrNotFound
		}
		return PendingChange{}, err
	}
	c.Entry.Type = entries.EntryType(entryType)
	c.Status = Status(status)
	c.ReviewedAt = reviewedAt
	c.rawChange = rawChange
	hydrate(&c, rawChange, rawOriginal, logger)
	return c, nil
}

// hydrate decodes the stored records for display.
func hydrate(c *PendingChange, rawChange, rawOriginal []byte, logger *slog.Logger) {
	var ok bool
	if c.ChangeData, ok = decodeLenient(rawChange); !ok && logger != nil {
		logger.Warn("unreadable change_data", slog.Int64("change_id", c.ID))
	}
	if c.OriginalData, ok = decodeLenient(rawOriginal); !ok && logger != nil {
		logger.Warn("unreadable original_data", slog.Int64("change_id", c.ID))
	}
}
