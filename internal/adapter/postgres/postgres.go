// Package postgres stores the course catalog in PostgreSQL and runs its
// schema migrations.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver for database/sql (needed by goose)
	"github.com/pressly/goose/v3"

	"github.com/Strob0t/CourseForge/internal/config"
)

//go:embed migrations/*.sql
var migrations embed.FS

const applicationName = "courseforge"

// NewPool opens the catalog connection pool and pings it once.
func NewPool(ctx context.Context, cfg config.Postgres) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheck
	poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return pool, nil
}

// withMigrator opens a dedicated database/sql handle for goose and closes it
// after fn returns.
func withMigrator(ctx context.Context, dsn string, fn func(*goose.Provider) error) error {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db for migrations: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping db for migrations: %w", err)
	}

	p, err := goose.NewProvider(goose.DialectPostgres, db, sub)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("migration provider: %w", err)
	}
	defer func() { _ = p.Close() }()
	return fn(p)
}

// RunMigrations applies all pending catalog migrations.
func RunMigrations(ctx context.Context, dsn string) error {
	return withMigrator(ctx, dsn, func(p *goose.Provider) error {
		results, err := p.Up(ctx)
		if err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		for _, r := range results {
			slog.Info("migration applied", "version", r.Source.Version, "duration", r.Duration.Round(time.Millisecond))
		}
		return nil
	})
}

// RollbackMigrations rolls back the last steps migrations, stopping early
// once the schema is empty.
func RollbackMigrations(ctx context.Context, dsn string, steps int) error {
	return withMigrator(ctx, dsn, func(p *goose.Provider) error {
		for range steps {
			r, err := p.Down(ctx)
			if errors.Is(err, goose.ErrNoNextVersion) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("rollback: %w", err)
			}
			slog.Info("migration rolled back", "version", r.Source.Version)
		}
		return nil
	})
}

// MigrationVersion returns the schema version recorded in the database.
func MigrationVersion(ctx context.Context, dsn string) (int64, error) {
	var v int64
	err := withMigrator(ctx, dsn, func(p *goose.Provider) error {
		var err error
		if v, err = p.GetDBVersion(ctx); err != nil {
			return fmt.Errorf("get version: %w", err)
		}
		return nil
	})
	return v, err
}

// scannable abstracts pgx.Row and pgx.Rows for the catalog scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

// nullTime stores a zero date as NULL.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// orEmpty keeps JSON output as [] for empty results.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
