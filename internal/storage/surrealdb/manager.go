// Package surrealdb implements the document store (Job, Blog, Summary,
// Question) on top of surrealdb.go.
package surrealdb

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/lumenfeed/ingest/internal/common"
)

// tables are defined up front since SurrealDB errors on querying a table
// that has never been written to.
var tables = []string{"processing_jobs", "raw_blog_content", "blog_summaries", "processed_questions"}

// Connect opens a SurrealDB connection, signs in, selects the configured
// namespace/database, and ensures the document collections exist.
func Connect(ctx context.Context, cfg common.SurrealConfig, logger *common.Logger) (*surrealdb.DB, error) {
	db, err := surrealdb.New(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if cfg.Username != "" {
		if _, err := db.SignIn(ctx, map[string]interface{}{
			"user": cfg.Username,
			"pass": cfg.Password,
		}); err != nil {
			return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
		}
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	for _, table := range tables {
		sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", table)
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return nil, fmt.Errorf("failed to define table %s: %w", table, err)
		}
	}

	logger.Info().
		Str("address", cfg.Address).
		Str("namespace", cfg.Namespace).
		Str("database", cfg.Database).
		Msg("SurrealDB document store connected")

	return db, nil
}
