package audit

import (
	"context"
	"encoding/json"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads audit_logs from PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Window implements Repository.
func (r *PGRepository) Window(ctx context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	query, args, err := windowQuery(filters, limit, offset).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimelineRow
	for rows.Next() {
		var (
			row  TimelineRow
			meta []byte
		)
		if err := rows.Scan(&row.ID, &row.At, &row.ActorID, &row.Action, &row.Entity, &row.EntityID, &meta); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &row.Meta); err != nil {
				return nil, err
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func windowQuery(f TimelineFilters, limit, offset int) sq.SelectBuilder {
	b := sq.Select("id", "occurred_at", "actor_id", "action", "entity", "entity_id", "meta").
		From("audit_logs").
		PlaceholderFormat(sq.Dollar)
	if !f.From.IsZero() {
		b = b.Where(sq.GtOrEq{"occurred_at": f.From})
	}
	if !f.To.IsZero() {
		b = b.Where(sq.Lt{"occurred_at": f.To})
	}
	if f.ActorID > 0 {
		b = b.Where(sq.Eq{"actor_id": f.ActorID})
	}
	if f.Entity != "" {
		b = b.Where(sq.Eq{"entity": f.Entity})
	}
	if f.EntityID != "" {
		b = b.Where(sq.Eq{"entity_id": f.EntityID})
	}
	if f.Action != "" {
		b = b.Where(sq.Eq{"action": f.Action})
	}
	return b.OrderBy("occurred_at DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset))
}
