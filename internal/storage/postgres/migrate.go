package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumenfeed/ingest/internal/common"
)

// Connect opens a pgx pool against cfg.DSN and applies pending migrations
// from cfg.MigrationsPath before returning.
func Connect(ctx context.Context, cfg common.PostgresConfig, logger *common.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if cfg.MigrationsPath != "" {
		if err := applyMigrations(cfg.DSN, cfg.MigrationsPath, logger); err != nil {
			pool.Close()
			return nil, err
		}
	}

	logger.Info().Str("dsn_host", poolCfg.ConnConfig.Host).Msg("Postgres pool connected")
	return pool, nil
}

func applyMigrations(dsn, migrationsPath string, logger *common.Logger) error {
	m, err := migrate.New(migrationsPath, dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply postgres migrations: %w", err)
	}
	logger.Info().Str("path", migrationsPath).Msg("Postgres migrations applied")
	return nil
}
