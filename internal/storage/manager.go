// Package storage wires the relational store (Postgres, Publisher) and the
// document store (SurrealDB, Job + Artifacts) into a single StorageManager.
package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	surrealgo "github.com/surrealdb/surrealdb.go"

	"github.com/lumenfeed/ingest/internal/common"
	"github.com/lumenfeed/ingest/internal/interfaces"
	"github.com/lumenfeed/ingest/internal/storage/postgres"
	surrealstore "github.com/lumenfeed/ingest/internal/storage/surrealdb"
)

// Manager implements interfaces.StorageManager over both storage engines.
type Manager struct {
	pool   *pgxpool.Pool
	db     *surrealgo.DB
	logger *common.Logger

	publishers interfaces.PublisherStore
	jobs       interfaces.JobStore
	artifacts  interfaces.ArtifactStore
}

// NewManager connects to Postgres and SurrealDB per cfg and constructs the
// component stores.
func NewManager(ctx context.Context, cfg *common.Config, logger *common.Logger) (*Manager, error) {
	pool, err := postgres.Connect(ctx, cfg.Storage.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect relational store: %w", err)
	}

	db, err := surrealstore.Connect(ctx, cfg.Storage.Surreal, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect document store: %w", err)
	}

	m := &Manager{
		pool:       pool,
		db:         db,
		logger:     logger,
		publishers: postgres.NewPublisherStore(pool, logger),
		jobs:       surrealstore.NewJobStore(db, logger),
		artifacts:  surrealstore.NewArtifactStore(db, logger),
	}
	return m, nil
}

func (m *Manager) Publishers() interfaces.PublisherStore { return m.publishers }
func (m *Manager) Jobs() interfaces.JobStore             { return m.jobs }
func (m *Manager) Artifacts() interfaces.ArtifactStore   { return m.artifacts }

func (m *Manager) Close() error {
	m.pool.Close()
	m.db.Close(context.Background())
	return nil
}

var _ interfaces.StorageManager = (*Manager)(nil)
