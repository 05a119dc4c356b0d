// Package intake implements IntakeCoordinator (spec §4.F): the only path
// that creates Jobs, plus the check-and-load flow that fuses an idempotent
// artifact read with on-demand enqueueing for first-time URLs.
package intake

import (
	"context"
	"fmt"
	"time"

	"github.com/lumenfeed/ingest/internal/apierr"
	"github.com/lumenfeed/ingest/internal/common"
	"github.com/lumenfeed/ingest/internal/interfaces"
	"github.com/lumenfeed/ingest/internal/models"
	"github.com/lumenfeed/ingest/internal/services/auth"
	"github.com/lumenfeed/ingest/internal/services/jobevents"
	"github.com/lumenfeed/ingest/internal/services/urlnorm"
)

// Coordinator implements enqueue and check_and_load.
type Coordinator struct {
	publishers interfaces.PublisherStore
	jobs       interfaces.JobStore
	artifacts  interfaces.ArtifactStore
	policy     *auth.Policy
	logger     *common.Logger
	events     *jobevents.Hub
}

// New creates a new Coordinator.
func New(publishers interfaces.PublisherStore, jobs interfaces.JobStore, artifacts interfaces.ArtifactStore, policy *auth.Policy, logger *common.Logger) *Coordinator {
	return &Coordinator{publishers: publishers, jobs: jobs, artifacts: artifacts, policy: policy, logger: logger}
}

// WithEvents attaches a job-event hub; events are broadcast best-effort and
// Enqueue works identically without one (the zero value is nil-safe).
func (c *Coordinator) WithEvents(hub *jobevents.Hub) *Coordinator {
	c.events = hub
	return c
}

// EnqueueResult is the outcome of Enqueue.
type EnqueueResult struct {
	JobID            string
	AlreadyProcessed bool // true => HTTP-equivalent 200, idempotent short-circuit
}

// Enqueue normalizes raw_url, authorizes it against publisher, checks quota,
// and creates a Job — reserving and releasing a publisher slot exactly once
// per the scope-guard pattern (spec §9): the slot reserved in step 6 is
// released if step 7 finds a duplicate job or fails outright.
func (c *Coordinator) Enqueue(ctx context.Context, rawURL string, publisher *models.Publisher) (*EnqueueResult, error) {
	url, err := urlnorm.Normalize(rawURL)
	if err != nil {
		return nil, apierr.Validation("INVALID_URL", err.Error())
	}

	if err := c.policy.CheckDomain(url, publisher); err != nil {
		return nil, err
	}

	if err := c.checkDailyLimit(ctx, publisher); err != nil {
		return nil, err
	}

	if result, ok, err := c.idempotentShortCircuit(ctx, url); err != nil {
		return nil, err
	} else if ok {
		return result, nil
	}

	if err := c.policy.CheckWhitelist(url, publisher); err != nil {
		return nil, err
	}

	return c.reserveAndCreate(ctx, url, publisher)
}

// checkDailyLimit enforces config.daily_blog_limit against COMPLETED jobs
// since the start of the current UTC day.
func (c *Coordinator) checkDailyLimit(ctx context.Context, publisher *models.Publisher) error {
	limit := publisher.Config.DailyBlogLimit
	if limit == nil {
		return nil
	}
	now := time.Now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	count, err := c.jobs.CountCompletedSince(ctx, publisher.ID, startOfDay)
	if err != nil {
		return fmt.Errorf("daily limit check: %w", err)
	}
	if count >= *limit {
		return apierr.Quota(apierr.CodeDailyLimitExceeded, fmt.Sprintf("publisher has processed %d blogs today, limit is %d", count, *limit))
	}
	return nil
}

// idempotentShortCircuit returns a result without any reservation when an
// artifact and a COMPLETED job already exist for url.
func (c *Coordinator) idempotentShortCircuit(ctx context.Context, url string) (*EnqueueResult, bool, error) {
	blog, err := c.artifacts.BlogByURL(ctx, url)
	if err != nil {
		return nil, false, fmt.Errorf("idempotent check (blog): %w", err)
	}
	if blog == nil {
		return nil, false, nil
	}

	job, err := c.jobs.ByURL(ctx, url)
	if err != nil {
		return nil, false, fmt.Errorf("idempotent check (job): %w", err)
	}
	if job == nil || job.Status != models.JobStatusCompleted {
		return nil, false, nil
	}

	return &EnqueueResult{JobID: job.JobID, AlreadyProcessed: true}, true, nil
}

// reserveAndCreate performs steps 6-8: reserve a slot, create the job, and
// release the slot if the job turns out to be a duplicate or creation fails.
func (c *Coordinator) reserveAndCreate(ctx context.Context, url string, publisher *models.Publisher) (*EnqueueResult, error) {
	if err := c.publishers.ReserveSlot(ctx, publisher.ID); err != nil {
		return nil, err
	}

	jobID, createdNew, err := c.jobs.Create(ctx, url, publisher.ID, publisher.Config)
	if err != nil {
		if releaseErr := c.publishers.ReleaseSlot(ctx, publisher.ID, false); releaseErr != nil {
			c.logger.Error().Err(releaseErr).Str("publisher_id", publisher.ID).Msg("failed to release slot after job creation error")
		}
		return nil, fmt.Errorf("create job: %w", err)
	}

	if !createdNew {
		if releaseErr := c.publishers.ReleaseSlot(ctx, publisher.ID, false); releaseErr != nil {
			c.logger.Error().Err(releaseErr).Str("publisher_id", publisher.ID).Msg("failed to release slot for duplicate job")
		}
	} else if c.events != nil {
		c.events.Broadcast(models.JobEvent{
			Type:      models.JobEventQueued,
			JobID:     jobID,
			BlogURL:   url,
			Publisher: publisher.ID,
			Status:    models.JobStatusQueued,
			Timestamp: time.Now().UTC(),
		})
	}

	return &EnqueueResult{JobID: jobID}, nil
}

// CheckAndLoadStatus is the discriminant of CheckAndLoadResult.
type CheckAndLoadStatus string

const (
	StatusReady      CheckAndLoadStatus = "ready"
	StatusProcessing CheckAndLoadStatus = "processing"
	StatusFailed     CheckAndLoadStatus = "failed"
	StatusNotStarted CheckAndLoadStatus = "not_started"
)

// CheckAndLoadResult is the outcome of CheckAndLoad.
type CheckAndLoadResult struct {
	Status    CheckAndLoadStatus
	Questions []*models.Question
	Blog      *models.Blog
	JobID     string
}

// CheckAndLoad is the fast path for viewer traffic: an existing blog returns
// in one read; a first-time URL transparently kicks off processing.
func (c *Coordinator) CheckAndLoad(ctx context.Context, rawURL string, publisher *models.Publisher) (*CheckAndLoadResult, error) {
	url, err := urlnorm.Normalize(rawURL)
	if err != nil {
		return nil, apierr.Validation("INVALID_URL", err.Error())
	}
	if err := c.policy.CheckDomain(url, publisher); err != nil {
		return nil, err
	}

	questions, err := c.artifacts.QuestionsByURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("check_and_load questions: %w", err)
	}
	if len(questions) > 0 {
		blog, err := c.artifacts.BlogByURL(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("check_and_load blog: %w", err)
		}
		return &CheckAndLoadResult{Status: StatusReady, Questions: questions, Blog: blog}, nil
	}

	job, err := c.jobs.ByURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("check_and_load job lookup: %w", err)
	}

	if job != nil {
		switch job.Status {
		case models.JobStatusCompleted:
			questions, err := c.artifacts.QuestionsByURL(ctx, url)
			if err != nil {
				return nil, fmt.Errorf("check_and_load re-read questions: %w", err)
			}
			if len(questions) > 0 {
				blog, err := c.artifacts.BlogByURL(ctx, url)
				if err != nil {
					return nil, fmt.Errorf("check_and_load blog: %w", err)
				}
				return &CheckAndLoadResult{Status: StatusReady, Questions: questions, Blog: blog}, nil
			}
			// COMPLETED but no questions yet: treat as not_started.
		case models.JobStatusProcessing, models.JobStatusQueued:
			return &CheckAndLoadResult{Status: StatusProcessing, JobID: job.JobID}, nil
		case models.JobStatusFailed:
			return &CheckAndLoadResult{Status: StatusFailed, JobID: job.JobID}, nil
		}
	}

	if err := c.policy.CheckWhitelist(url, publisher); err != nil {
		return nil, err
	}
	result, err := c.reserveAndCreate(ctx, url, publisher)
	if err != nil {
		return nil, err
	}
	return &CheckAndLoadResult{Status: StatusNotStarted, JobID: result.JobID}, nil
}
