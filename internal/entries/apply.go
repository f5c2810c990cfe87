package entries

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// Querier is satisfied by pgx.Tx and *pgxpool.Pool.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Result reports what an apply step wrote.
type Result struct {
	Entry   Entry
	Columns []string
}

// NoOp reports whether nothing was written.
func (r Result) NoOp() bool {
	return len(r.Columns) == 0
}

// DecodeDiff parses a stored diff. Anything that is not a JSON object is
// reported as ErrCorruptDiff.
func DecodeDiff(raw []byte) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, ErrCorruptDiff
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDiff, err)
	}
	return data, nil
}

// Apply merges data into the live record identified by entry. Only the
// allow-listed fields of the entry's schema are written; an empty subset is a
// no-op. A missing live record is ErrNotFound.
func Apply(ctx context.Context, q Querier, entry Entry, data map[string]any) (Result, error) {
	if err := entry.Validate(); err != nil {
		return Result{}, err
	}
	schema, err := SchemaFor(entry.Type)
	if err != nil {
		return Result{}, err
	}
	values, err := schema.Coerce(data)
	if err != nil {
		return Result{}, err
	}
	if len(values) == 0 {
		return Result{Entry: entry}, nil
	}
	query, args, err := schema.UpdateSQL(entry.ID, values)
	if err != nil {
		return Result{}, err
	}
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return Result{}, fmt.Errorf("entries: apply %s: %w", entry, err)
	}
	if tag.RowsAffected() == 0 {
		return Result{}, ErrNotFound
	}
	return Result{Entry: entry, Columns: values.Columns()}, nil
}

// ApplyRaw decodes a stored diff and applies it. Unreadable diffs fail.
func ApplyRaw(ctx context.Context, q Querier, entry Entry, raw []byte) (Result, error) {
	data, err := DecodeDiff(raw)
	if err != nil {
		return Result{}, err
	}
	return Apply(ctx, q, entry, data)
}

// UpdateSQL builds the partial UPDATE for values, which must come from Coerce.
func (s *Schema) UpdateSQL(id int64, values Values) (string, []any, error) {
	clauses := make(map[string]any, len(values)+1)
	for col, v := range values {
		if _, ok := s.index[col]; !ok {
			return "", nil, fmt.Errorf("entries: column %q not writable on %s", col, s.Table)
		}
		clauses[col] = v
	}
	clauses["updated_at"] = sq.Expr("NOW()")
	return sq.Update(s.Table).
		SetMap(clauses).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

// SnapshotSQL builds the SELECT reading the current values of columns.
func (s *Schema) SnapshotSQL(id int64, columns []string) (string, []any, error) {
	exprs := make([]string, 0, len(columns))
	for _, col := range columns {
		f, ok := s.index[col]
		if !ok {
			return "", nil, fmt.Errorf("entries: column %q not readable on %s", col, s.Table)
		}
		exprs = append(exprs, f.selectExpr())
	}
	return sq.Select(exprs...).
		From(s.Table).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

// Snapshot reads the current values of the allow-listed keys, rendered the
// way a client would submit them. Unknown keys are ignored.
func Snapshot(ctx context.Context, q Querier, entry Entry, keys []string) (map[string]any, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	schema, err := SchemaFor(entry.Type)
	if err != nil {
		return nil, err
	}
	columns := schema.Filter(keys)
	snapshot := make(map[string]any, len(columns))
	if len(columns) == 0 {
		return snapshot, nil
	}
	query, args, err := schema.SnapshotSQL(entry.ID, columns)
	if err != nil {
		return nil, err
	}
	targets := make([]any, len(columns))
	for i, col := range columns {
		f, _ := schema.Field(col)
		targets[i] = f.Kind.scanTarget()
	}
	if err := q.QueryRow(ctx, query, args...).Scan(targets...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("entries: snapshot %s: %w", entry, err)
	}
	for i, col := range columns {
		snapshot[col] = snapshotValue(targets[i])
	}
	return snapshot, nil
}

// Exists reports whether the live record is present.
func Exists(ctx context.Context, q Querier, entry Entry) (bool, error) {
	schema, err := SchemaFor(entry.Type)
	if err != nil {
		return false, err
	}
	query, args, err := sq.Select("1").
		Prefix("SELECT EXISTS (").
		From(schema.Table).
		Where(sq.Eq{"id": entry.ID}).
		Suffix(")").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return false, err
	}
	var exists bool
	if err := q.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("entries: exists %s: %w", entry, err)
	}
	return exists, nil
}

func (f Field) selectExpr() string {
	switch f.Kind {
	case KindDecimal:
		return f.Column + "::text"
	case KindDate:
		return "to_char(" + f.Column + ", 'YYYY-MM-DD')"
	case KindTime:
		return "to_char(" + f.Column + ", 'HH24:MI')"
	default:
		return f.Column
	}
}

func (k Kind) scanTarget() any {
	switch k {
	case KindInt:
		return new(pgtype.Int8)
	case KindBool:
		return new(pgtype.Bool)
	default:
		return new(pgtype.Text)
	}
}

func snapshotValue(target any) any {
	switch v := target.(type) {
	case *pgtype.Int8:
		if !v.Valid {
			return nil
		}
		return v.Int64
	case *pgtype.Bool:
		if !v.Valid {
			return nil
		}
		return v.Bool
	case *pgtype.Text:
		if !v.Valid {
			return nil
		}
		return v.String
	}
	return nil
}
