// Package postgres implements the relational store (Publisher) on top of
// pgx/v5, providing the row-level exclusive locking the spec's slot
// accounting depends on.
package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumenfeed/ingest/internal/apierr"
	"github.com/lumenfeed/ingest/internal/common"
	"github.com/lumenfeed/ingest/internal/interfaces"
	"github.com/lumenfeed/ingest/internal/models"
)

// PublisherStore implements interfaces.PublisherStore over a pgx pool.
type PublisherStore struct {
	pool   *pgxpool.Pool
	logger *common.Logger
}

// NewPublisherStore creates a new PublisherStore connected to pool.
func NewPublisherStore(pool *pgxpool.Pool, logger *common.Logger) *PublisherStore {
	return &PublisherStore{pool: pool, logger: logger}
}

// generateAPIKey returns a 32-byte high-entropy hex token.
func generateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return "pub_" + hex.EncodeToString(buf), nil
}

func (s *PublisherStore) Create(ctx context.Context, name, domain, email string, config models.PublisherConfig) (*models.Publisher, string, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM publishers WHERE domain = $1)`, domain).Scan(&exists); err != nil {
		return nil, "", fmt.Errorf("failed to check domain uniqueness: %w", err)
	}
	if exists {
		return nil, "", apierr.Conflict(apierr.CodeDomainTaken, fmt.Sprintf("domain %q already registered", domain))
	}

	apiKey, err := generateAPIKey()
	if err != nil {
		return nil, "", err
	}

	configJSON, err := json.Marshal(config)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal publisher config: %w", err)
	}

	now := time.Now().UTC()
	p := &models.Publisher{
		Name:      name,
		Domain:    domain,
		Email:     email,
		APIKey:    apiKey,
		Status:    models.PublisherStatusTrial,
		Config:    config,
		CreatedAt: now,
		UpdatedAt: now,
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO publishers (name, domain, email, api_key, status, config, total_blogs_processed, blog_slots_reserved, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7, $7)
		RETURNING id`,
		name, domain, email, apiKey, p.Status, configJSON, now)
	if err := row.Scan(&p.ID); err != nil {
		var pgErr interface{ SQLState() string }
		if errors.As(err, &pgErr) && pgErr.SQLState() == "23505" {
			return nil, "", apierr.Conflict(apierr.CodeDomainTaken, fmt.Sprintf("domain %q already registered", domain))
		}
		return nil, "", fmt.Errorf("failed to insert publisher: %w", err)
	}

	return p, apiKey, nil
}

func (s *PublisherStore) ByAPIKey(ctx context.Context, key string) (*models.Publisher, error) {
	return s.scanOne(ctx, `SELECT id, name, domain, email, api_key, status, config, total_blogs_processed, blog_slots_reserved, created_at, updated_at
		FROM publishers WHERE api_key = $1`, key)
}

func (s *PublisherStore) ByDomain(ctx context.Context, domain string, allowSubdomain bool) (*models.Publisher, error) {
	if !allowSubdomain {
		return s.scanOne(ctx, `SELECT id, name, domain, email, api_key, status, config, total_blogs_processed, blog_slots_reserved, created_at, updated_at
			FROM publishers WHERE domain = $1`, domain)
	}
	return s.scanOne(ctx, `SELECT id, name, domain, email, api_key, status, config, total_blogs_processed, blog_slots_reserved, created_at, updated_at
		FROM publishers WHERE domain = $1 OR $1 LIKE ('%.' || domain)`, domain)
}

func (s *PublisherStore) ByID(ctx context.Context, id string) (*models.Publisher, error) {
	return s.scanOne(ctx, `SELECT id, name, domain, email, api_key, status, config, total_blogs_processed, blog_slots_reserved, created_at, updated_at
		FROM publishers WHERE id = $1`, id)
}

func (s *PublisherStore) scanOne(ctx context.Context, sql string, args ...any) (*models.Publisher, error) {
	row := s.pool.QueryRow(ctx, sql, args...)
	p, err := scanPublisher(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query publisher: %w", err)
	}
	return p, nil
}

func scanPublisher(row pgx.Row) (*models.Publisher, error) {
	var p models.Publisher
	var configJSON []byte
	if err := row.Scan(&p.ID, &p.Name, &p.Domain, &p.Email, &p.APIKey, &p.Status, &configJSON,
		&p.TotalBlogsProcessed, &p.BlogSlotsReserved, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(configJSON, &p.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal publisher config: %w", err)
	}
	return &p, nil
}

// ReserveSlot takes a row-level exclusive lock on the publisher row, checks
// room against config.MaxTotalBlogs, and if available increments
// blog_slots_reserved by one, all within a single transaction. The lock is
// released when the transaction commits or rolls back — well before any
// crawler or LLM call, per the concurrency contract in spec §5.
func (s *PublisherStore) ReserveSlot(ctx context.Context, publisherID string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT config, total_blogs_processed, blog_slots_reserved FROM publishers WHERE id = $1 FOR UPDATE`, publisherID)
	var configJSON []byte
	var processed, reserved int
	if err := row.Scan(&configJSON, &processed, &reserved); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apierr.NotFound(apierr.CodePublisherNotFound, "publisher not found")
		}
		return fmt.Errorf("failed to lock publisher row: %w", err)
	}

	var config models.PublisherConfig
	if err := json.Unmarshal(configJSON, &config); err != nil {
		return fmt.Errorf("failed to unmarshal publisher config: %w", err)
	}

	if config.MaxTotalBlogs != nil && processed+reserved >= *config.MaxTotalBlogs {
		return apierr.Quota(apierr.CodeUsageLimitExceeded, "publisher has reached its total blog quota")
	}

	if _, err := tx.Exec(ctx, `UPDATE publishers SET blog_slots_reserved = blog_slots_reserved + 1, updated_at = now() WHERE id = $1`, publisherID); err != nil {
		return fmt.Errorf("failed to increment reserved slots: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit slot reservation: %w", err)
	}
	return nil
}

// ReleaseSlot decrements blog_slots_reserved (saturating at zero) and, if
// processed, increments total_blogs_processed, in a single transaction.
func (s *PublisherStore) ReleaseSlot(ctx context.Context, publisherID string, processed bool) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT 1 FROM publishers WHERE id = $1 FOR UPDATE`, publisherID); err != nil {
		return fmt.Errorf("failed to lock publisher row: %w", err)
	}

	if processed {
		if _, err := tx.Exec(ctx, `UPDATE publishers SET
			blog_slots_reserved = GREATEST(blog_slots_reserved - 1, 0),
			total_blogs_processed = total_blogs_processed + 1,
			updated_at = now()
			WHERE id = $1`, publisherID); err != nil {
			return fmt.Errorf("failed to release slot (processed): %w", err)
		}
	} else {
		if _, err := tx.Exec(ctx, `UPDATE publishers SET
			blog_slots_reserved = GREATEST(blog_slots_reserved - 1, 0),
			updated_at = now()
			WHERE id = $1`, publisherID); err != nil {
			return fmt.Errorf("failed to release slot: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit slot release: %w", err)
	}
	return nil
}

func (s *PublisherStore) Update(ctx context.Context, publisherID string, patch models.PublisherConfig, apiKey string) (*models.Publisher, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT id, name, domain, email, api_key, status, config, total_blogs_processed, blog_slots_reserved, created_at, updated_at
		FROM publishers WHERE id = $1 FOR UPDATE`, publisherID)
	p, err := scanPublisher(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apierr.NotFound(apierr.CodePublisherNotFound, "publisher not found")
		}
		return nil, fmt.Errorf("failed to load publisher for update: %w", err)
	}
	if p.APIKey != apiKey {
		return nil, apierr.Auth(apierr.CodeInvalidAPIKey, "api key does not match publisher")
	}

	merged := p.Config.Merge(patch)
	configJSON, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal merged config: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE publishers SET config = $1, updated_at = now() WHERE id = $2`, configJSON, publisherID); err != nil {
		return nil, fmt.Errorf("failed to persist updated config: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit publisher update: %w", err)
	}

	p.Config = merged
	return p, nil
}

// ReconcileSlots corrects blog_slots_reserved drift against the live
// QUEUED+PROCESSING job count supplied by the caller (internal/services/reconcile).
func (s *PublisherStore) ReconcileSlots(ctx context.Context, publisherID string, activeJobCount int) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT 1 FROM publishers WHERE id = $1 FOR UPDATE`, publisherID); err != nil {
		return fmt.Errorf("failed to lock publisher row: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE publishers SET blog_slots_reserved = $1, updated_at = now() WHERE id = $2`, activeJobCount, publisherID); err != nil {
		return fmt.Errorf("failed to reconcile reserved slots: %w", err)
	}
	return tx.Commit(ctx)
}

// ListIDs returns every publisher id, for the slot reconciliation sweep.
func (s *PublisherStore) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM publishers`)
	if err != nil {
		return nil, fmt.Errorf("failed to list publisher ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan publisher id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

var _ interfaces.PublisherStore = (*PublisherStore)(nil)
