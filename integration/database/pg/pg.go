package pg

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"

	"github.com/bautismal/atmosphere/core/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Connect builds a pool from cfg and pings it, retrying with a doubling
// interval. The pool is closed again when no attempt succeeds.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.ConnectionString == "" {
		return nil, ErrEmptyConnectionURL
	}
	pc, err := pgxpool.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseDBConfig, err)
	}
	if cfg.MaxOpenConns > 0 {
		pc.MaxConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		pc.MinConns = min(cfg.MaxIdleConns, pc.MaxConns)
	}
	if cfg.HealthCheckPeriod > 0 {
		pc.HealthCheckPeriod = cfg.HealthCheckPeriod
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, errors.Join(ErrFailedToOpenDBConnection, err)
	}

	attempts := max(cfg.RetryAttempts, 1)
	wait := cfg.RetryInterval
	var lastErr error
	for i := range attempts {
		if lastErr = pool.Ping(ctx); lastErr == nil {
			return pool, nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			pool.Close()
			return nil, errors.Join(ErrFailedToOpenDBConnection, lastErr, ctx.Err())
		case <-time.After(wait):
		}
		wait *= 2
	}

	pool.Close()
	return nil, errors.Join(ErrFailedToOpenDBConnection, lastErr)
}

// Healthcheck returns a probe that pings pool.
func Healthcheck(pool *pgxpool.Pool) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}

// Migrate applies the embedded schema. goose drives database/sql, so the
// pool is wrapped for the duration of the run.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cfg Config, log *slog.Logger) error {
	table := cfg.MigrationsTable
	if table == "" {
		table = "schema_migrations"
	}

	db := stdlib.OpenDBFromPool(pool)
	defer func() { _ = db.Close() }()

	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	store, err := database.NewStore(database.DialectPostgres, table)
	if err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	provider, err := goose.NewProvider("", db, fsys, goose.WithStore(store))
	if err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	if log != nil {
		for _, r := range results {
			log.InfoContext(ctx, "migration applied",
				logger.Key("version", r.Source.Version),
				logger.Duration(r.Duration))
		}
	}
	return nil
}
