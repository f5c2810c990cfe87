package assignments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hotelcms/hotelcms/internal/entries"
	"github.com/hotelcms/hotelcms/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const assignmentColumns = `id, user_id, entry_type, entry_id, assigned_by, created_at, updated_at`

// Upsert inserts the assignment or, when the pair already exists, records the
// new assigner.
func (r *Repository) Upsert(ctx context.Context, userID int64, entry entries.Entry, assignedBy int64) (Assignment, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO entry_assignments (user_id, entry_type, entry_id, assigned_by)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id, entry_type, entry_id)
DO UPDATE SET assigned_by = EXCLUDED.assigned_by, updated_at = NOW()
RETURNING `+assignmentColumns, userID, string(entry.Type), entry.ID, assignedBy)
	a, err := scanAssignment(row)
	if err != nil {
		if db.PgCode(err) == db.CodeForeignKeyViolation {
			return Assignment{}, ErrNotFound
		}
		return Assignment{}, fmt.Errorf("assignments: upsert: %w", err)
	}
	return a, nil
}

// Delete removes the assignment of userID to entry.
func (r *Repository) Delete(ctx context.Context, userID int64, entry entries.Entry) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM entry_assignments WHERE user_id = $1 AND entry_type = $2 AND entry_id = $3`,
		userID, string(entry.Type), entry.ID)
	if err != nil {
		return fmt.Errorf("assignments: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByUser returns every assignment of userID, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]Assignment, error) {
	return r.list(ctx, `SELECT `+assignmentColumns+` FROM entry_assignments WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
}

// ListByEntry returns every user assigned to entry, newest first.
func (r *Repository) ListByEntry(ctx context.Context, entry entries.Entry) ([]Assignment, error) {
	return r.list(ctx, `SELECT `+assignmentColumns+` FROM entry_assignments WHERE entry_type = $1 AND entry_id = $2 ORDER BY created_at DESC, id DESC`,
		string(entry.Type), entry.ID)
}

// IsAssigned reports whether userID is assigned to entry.
func (r *Repository) IsAssigned(ctx context.Context, userID int64, entry entries.Entry) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM entry_assignments WHERE user_id = $1 AND entry_type = $2 AND entry_id = $3)`,
		userID, string(entry.Type), entry.ID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("assignments: lookup: %w", err)
	}
	return ok, nil
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("assignments: list: %w", err)
	}
	defer rows.Close()
	var out []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAssignment(row pgx.Row) (Assignment, error) {
	var (
		a         Assignment
		entryType string
	)
	if err := row.Scan(&a.ID, &a.UserID, &entryType, &a.Entry.ID, &a.AssignedBy, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Assignment{}, ErrNotFound
		}
		return Assignment{}, err
	}
	a.Entry.Type = entries.EntryType(entryType)
	return a, nil
}

var _ RepositoryPort = (*Repository)(nil)
