package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver for goose
	goose "github.com/pressly/goose/v3"
)

// New creates a new PostgreSQL connection pool.
func New(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("platform/db: parse config: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("platform/db: new pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("platform/db: ping: %w", err)
	}

	return pool, nil
}

// Migrate applies every pending migration found in migrations.
func Migrate(ctx context.Context, dsn string, migrations fs.FS) error {
	return withGoose(dsn, migrations, func(db *sql.DB) error {
		err := goose.UpContext(ctx, db, ".")
		if err != nil && !errors.Is(err, goose.ErrNoNextVersion) {
			return fmt.Errorf("platform/db: migrate up: %w", err)
		}
		return nil
	})
}

// Rollback reverts the most recent migration.
func Rollback(ctx context.Context, dsn string, migrations fs.FS) error {
	return withGoose(dsn, migrations, func(db *sql.DB) error {
		if err := goose.DownContext(ctx, db, "."); err != nil {
			return fmt.Errorf("platform/db: migrate down: %w", err)
		}
		return nil
	})
}

// Version reports the current schema version.
func Version(ctx context.Context, dsn string, migrations fs.FS) (int64, error) {
	var version int64
	err := withGoose(dsn, migrations, func(db *sql.DB) error {
		v, err := goose.GetDBVersionContext(ctx, db)
		if err != nil {
			return fmt.Errorf("platform/db: version: %w", err)
		}
		version = v
		return nil
	})
	return version, err
}

func withGoose(dsn string, migrations fs.FS, fn func(*sql.DB) error) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("platform/db: open: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return fn(db)
}
