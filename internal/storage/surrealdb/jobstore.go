package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/lumenfeed/ingest/internal/apierr"
	"github.com/lumenfeed/ingest/internal/common"
	"github.com/lumenfeed/ingest/internal/interfaces"
	"github.com/lumenfeed/ingest/internal/models"
)

const jobsTable = "processing_jobs"

const jobSelectFields = "job_id as id, blog_url, publisher_id, status, failure_count, max_retries, " +
	"error_message, created_at, started_at, completed_at, updated_at, result, config_snapshot"

// JobStore implements interfaces.JobStore using SurrealDB.
type JobStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewJobStore creates a new JobStore.
func NewJobStore(db *surrealdb.DB, logger *common.Logger) *JobStore {
	return &JobStore{db: db, logger: logger}
}

// Create enforces the uniqueness invariant in §4.B via compare-and-set: it
// first checks for an existing QUEUED/PROCESSING job for the URL, and if
// found returns its id with createdNew=false instead of inserting.
func (s *JobStore) Create(ctx context.Context, normalizedURL, publisherID string, snapshot models.PublisherConfig) (string, bool, error) {
	existing, err := s.ByURL(ctx, normalizedURL)
	if err != nil {
		return "", false, fmt.Errorf("failed to check existing job: %w", err)
	}
	if existing != nil && (existing.Status == models.JobStatusQueued || existing.Status == models.JobStatusProcessing) {
		return existing.JobID, false, nil
	}

	now := time.Now().UTC()
	jobID := uuid.New().String()

	sql := `CREATE $rid SET
		job_id = $job_id, blog_url = $blog_url, publisher_id = $publisher_id, status = $status,
		failure_count = 0, max_retries = $max_retries, error_message = "",
		created_at = $now, started_at = NONE, completed_at = NONE, updated_at = $now,
		result = NONE, config_snapshot = $config_snapshot`
	vars := map[string]any{
		"rid":             surrealmodels.NewRecordID(jobsTable, jobID),
		"job_id":          jobID,
		"blog_url":        normalizedURL,
		"publisher_id":    publisherID,
		"status":          models.JobStatusQueued,
		"max_retries":     models.DefaultMaxRetries,
		"now":             now,
		"config_snapshot": snapshot,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return "", false, apierr.Integrity("JOB_CREATE_CONFLICT", "failed to create job", err)
	}
	return jobID, true, nil
}

// ClaimNext atomically selects the oldest QUEUED job (tie-break by job_id)
// and transitions it to PROCESSING. The WHERE-guarded UPDATE ensures exactly
// one concurrent claimer observes success for a given job: if another
// worker already claimed it between the SELECT and the UPDATE, the UPDATE
// affects zero rows and this worker simply loops to try the next candidate.
func (s *JobStore) ClaimNext(ctx context.Context) (*models.Job, error) {
	selectSQL := "SELECT " + jobSelectFields + " FROM " + jobsTable +
		" WHERE status = $queued ORDER BY created_at ASC, job_id ASC LIMIT 5"
	candidates, err := surrealdb.Query[[]models.Job](ctx, s.db, selectSQL, map[string]any{"queued": models.JobStatusQueued})
	if err != nil {
		return nil, fmt.Errorf("failed to select claim candidates: %w", err)
	}
	if candidates == nil || len(*candidates) == 0 || len((*candidates)[0].Result) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	for _, candidate := range (*candidates)[0].Result {
		updateSQL := "UPDATE $rid SET status = $processing, started_at = $now, updated_at = $now WHERE status = $queued"
		result, err := surrealdb.Query[[]models.Job](ctx, s.db, updateSQL, map[string]any{
			"rid":       surrealmodels.NewRecordID(jobsTable, candidate.JobID),
			"processing": models.JobStatusProcessing,
			"now":        now,
			"queued":     models.JobStatusQueued,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to claim job %s: %w", candidate.JobID, err)
		}
		if result == nil || len(*result) == 0 || len((*result)[0].Result) == 0 {
			// Another worker won the race on this candidate; try the next one.
			continue
		}
		claimed := (*result)[0].Result[0]
		return &claimed, nil
	}
	return nil, nil
}

func (s *JobStore) MarkCompleted(ctx context.Context, jobID string, result models.JobResult) error {
	now := time.Now().UTC()
	sql := "UPDATE $rid SET status = $status, completed_at = $now, updated_at = $now, result = $result WHERE status = $processing"
	vars := map[string]any{
		"rid":        surrealmodels.NewRecordID(jobsTable, jobID),
		"status":     models.JobStatusCompleted,
		"now":        now,
		"result":     result,
		"processing": models.JobStatusProcessing,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}
	return nil
}

// MarkFailed increments failure_count and transitions the job to QUEUED
// (requeue) or FAILED (give up) depending on the retry budget, returning
// which outcome occurred — the signal PipelineExecutor uses to decide
// whether to release the publisher's reserved slot.
func (s *JobStore) MarkFailed(ctx context.Context, jobID string, errMessage string) (models.MarkFailedOutcome, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return "", fmt.Errorf("failed to load job for failure handling: %w", err)
	}
	if job == nil {
		return "", apierr.NotFound(apierr.CodeJobNotFound, "job not found")
	}

	now := time.Now().UTC()
	newFailureCount := job.FailureCount + 1
	outcome := models.OutcomeRequeued
	newStatus := models.JobStatusQueued

	if newFailureCount >= job.MaxRetries {
		outcome = models.OutcomePermanentlyFailed
		newStatus = models.JobStatusFailed
	}

	sql := "UPDATE $rid SET status = $status, failure_count = $failure_count, error_message = $error_message, updated_at = $now"
	vars := map[string]any{
		"rid":           surrealmodels.NewRecordID(jobsTable, jobID),
		"status":        newStatus,
		"failure_count": newFailureCount,
		"error_message": errMessage,
		"now":           now,
	}
	if newStatus == models.JobStatusQueued {
		sql += ", started_at = NONE"
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return "", fmt.Errorf("failed to mark job failed: %w", err)
	}
	return outcome, nil
}

// Cancel transitions a QUEUED job to CANCELLED. PROCESSING jobs are not
// cancellable; the WHERE guard makes this a no-op affecting zero rows
// rather than a race with an in-flight claim.
func (s *JobStore) Cancel(ctx context.Context, jobID string) error {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job for cancel: %w", err)
	}
	if job == nil {
		return apierr.NotFound(apierr.CodeJobNotFound, "job not found")
	}
	if job.Status != models.JobStatusQueued {
		return apierr.Conflict(apierr.CodeCannotCancel, "job is not in QUEUED state")
	}

	sql := "UPDATE $rid SET status = $cancelled, updated_at = $now WHERE status = $queued"
	vars := map[string]any{
		"rid":       surrealmodels.NewRecordID(jobsTable, jobID),
		"cancelled": models.JobStatusCancelled,
		"queued":    models.JobStatusQueued,
		"now":       time.Now().UTC(),
	}
	result, err := surrealdb.Query[[]models.Job](ctx, s.db, sql, vars)
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}
	if result == nil || len(*result) == 0 || len((*result)[0].Result) == 0 {
		return apierr.Conflict(apierr.CodeCannotCancel, "job is not in QUEUED state")
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, jobID string) (*models.Job, error) {
	sql := "SELECT " + jobSelectFields + " FROM " + jobsTable + " WHERE job_id = $job_id"
	results, err := surrealdb.Query[[]models.Job](ctx, s.db, sql, map[string]any{"job_id": jobID})
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	job := (*results)[0].Result[0]
	return &job, nil
}

func (s *JobStore) ByURL(ctx context.Context, normalizedURL string) (*models.Job, error) {
	sql := "SELECT " + jobSelectFields + " FROM " + jobsTable + " WHERE blog_url = $url ORDER BY created_at DESC LIMIT 1"
	results, err := surrealdb.Query[[]models.Job](ctx, s.db, sql, map[string]any{"url": normalizedURL})
	if err != nil {
		return nil, fmt.Errorf("failed to query job by url: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	job := (*results)[0].Result[0]
	return &job, nil
}

func (s *JobStore) Stats(ctx context.Context) (models.JobStats, error) {
	sql := "SELECT status, count() AS cnt FROM " + jobsTable + " GROUP BY status"
	type statRow struct {
		Status models.JobStatus `json:"status"`
		Cnt    int              `json:"cnt"`
	}
	results, err := surrealdb.Query[[]statRow](ctx, s.db, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to compute job stats: %w", err)
	}
	stats := models.JobStats{}
	if results != nil && len(*results) > 0 {
		for _, row := range (*results)[0].Result {
			stats[row.Status] = row.Cnt
		}
	}
	return stats, nil
}

func (s *JobStore) CountCompletedSince(ctx context.Context, publisherID string, since time.Time) (int, error) {
	sql := "SELECT count() AS cnt FROM " + jobsTable +
		" WHERE publisher_id = $publisher_id AND status = $completed AND completed_at >= $since GROUP ALL"
	type countResult struct {
		Cnt int `json:"cnt"`
	}
	vars := map[string]any{
		"publisher_id": publisherID,
		"completed":    models.JobStatusCompleted,
		"since":        since,
	}
	results, err := surrealdb.Query[[]countResult](ctx, s.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("failed to count completed jobs: %w", err)
	}
	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return (*results)[0].Result[0].Cnt, nil
	}
	return 0, nil
}

// ResetRunningJobs resets all PROCESSING jobs back to QUEUED. Called once at
// worker startup to recover jobs orphaned by a prior crash (spec §9's
// stuck-job sweeper, boot-time half).
func (s *JobStore) ResetRunningJobs(ctx context.Context) (int, error) {
	sql := "UPDATE " + jobsTable + " SET status = $queued, started_at = NONE, updated_at = $now WHERE status = $processing"
	result, err := surrealdb.Query[[]models.Job](ctx, s.db, sql, map[string]any{
		"queued":     models.JobStatusQueued,
		"processing": models.JobStatusProcessing,
		"now":        time.Now().UTC(),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to reset orphaned jobs: %w", err)
	}
	if result == nil || len(*result) == 0 {
		return 0, nil
	}
	return len((*result)[0].Result), nil
}

func (s *JobStore) CountActive(ctx context.Context, publisherID string) (int, error) {
	sql := "SELECT count() AS cnt FROM " + jobsTable +
		" WHERE publisher_id = $publisher_id AND status IN [$queued, $processing] GROUP ALL"
	type countResult struct {
		Cnt int `json:"cnt"`
	}
	vars := map[string]any{
		"publisher_id": publisherID,
		"queued":       models.JobStatusQueued,
		"processing":   models.JobStatusProcessing,
	}
	results, err := surrealdb.Query[[]countResult](ctx, s.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("failed to count active jobs: %w", err)
	}
	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return (*results)[0].Result[0].Cnt, nil
	}
	return 0, nil
}

var _ interfaces.JobStore = (*JobStore)(nil)
