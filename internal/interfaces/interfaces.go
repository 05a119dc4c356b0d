// Package interfaces defines the seams between components named in the
// component design: two storage engines, two external collaborators
// (crawler, LLM), and the services built on top of them. Concrete
// implementations live under internal/storage and internal/clients;
// nothing outside those packages should depend on a concrete type.
package interfaces

import (
	"context"
	"time"

	"github.com/lumenfeed/ingest/internal/models"
)

// PublisherStore is the source of truth for publisher identity, config,
// status, and quota counters (spec §4.A). Every mutation of the two
// counters happens under a row-level exclusive lock; the pair
// (ReserveSlot, ReleaseSlot) is the only way they change.
type PublisherStore interface {
	Create(ctx context.Context, name, domain, email string, config models.PublisherConfig) (*models.Publisher, string, error)
	ByAPIKey(ctx context.Context, key string) (*models.Publisher, error)
	ByDomain(ctx context.Context, domain string, allowSubdomain bool) (*models.Publisher, error)
	ByID(ctx context.Context, id string) (*models.Publisher, error)

	// ReserveSlot atomically checks room against config.MaxTotalBlogs and,
	// if available, increments BlogSlotsReserved by one.
	ReserveSlot(ctx context.Context, publisherID string) error
	// ReleaseSlot atomically decrements BlogSlotsReserved (saturating at 0)
	// and, if processed is true, increments TotalBlogsProcessed.
	ReleaseSlot(ctx context.Context, publisherID string, processed bool) error

	Update(ctx context.Context, publisherID string, patch models.PublisherConfig, apiKey string) (*models.Publisher, error)

	// ReconcileSlots corrects BlogSlotsReserved drift against the live
	// QUEUED+PROCESSING job count for the publisher, per the slot
	// reconciliation sweep.
	ReconcileSlots(ctx context.Context, publisherID string, activeJobCount int) error
	// ListIDs returns every publisher id, for the slot reconciliation sweep
	// to iterate over.
	ListIDs(ctx context.Context) ([]string, error)
}

// JobStore is the durable queue and source of truth for job state (spec §4.B).
type JobStore interface {
	Create(ctx context.Context, normalizedURL, publisherID string, snapshot models.PublisherConfig) (jobID string, createdNew bool, err error)
	ClaimNext(ctx context.Context) (*models.Job, error)
	MarkCompleted(ctx context.Context, jobID string, result models.JobResult) error
	MarkFailed(ctx context.Context, jobID string, errMessage string) (models.MarkFailedOutcome, error)
	Cancel(ctx context.Context, jobID string) error
	Get(ctx context.Context, jobID string) (*models.Job, error)
	ByURL(ctx context.Context, normalizedURL string) (*models.Job, error)
	Stats(ctx context.Context) (models.JobStats, error)
	CountCompletedSince(ctx context.Context, publisherID string, since time.Time) (int, error)

	// ResetRunningJobs resets PROCESSING jobs back to QUEUED. Called once
	// at worker startup to recover jobs orphaned by a prior crash.
	ResetRunningJobs(ctx context.Context) (int, error)
	// CountActive returns the number of QUEUED+PROCESSING jobs for a publisher,
	// used by the slot reconciliation sweep.
	CountActive(ctx context.Context, publisherID string) (int, error)
}

// ArtifactStore persists and serves blogs, summaries, and questions, and
// performs vector similarity search (spec §4.C).
type ArtifactStore interface {
	UpsertBlog(ctx context.Context, normalizedURL, title, content string, metadata map[string]any) (*models.Blog, error)
	UpsertSummary(ctx context.Context, normalizedURL, text string, keyPoints []string, embedding []float32) error
	SummaryByURL(ctx context.Context, normalizedURL string) (*models.Summary, error)
	ReplaceQuestions(ctx context.Context, normalizedURL string, pairs []models.QuestionAnswerPair) error
	QuestionsByURL(ctx context.Context, normalizedURL string) ([]*models.Question, error)
	QuestionByID(ctx context.Context, id string) (*models.Question, error)
	BlogByURL(ctx context.Context, normalizedURL string) (*models.Blog, error)
	IncrementQuestionClick(ctx context.Context, id string) (int64, error)
	SearchSimilar(ctx context.Context, embedding []float32, limit int, publisherDomain string) ([]models.SimilarQuestion, error)
	DeleteBlog(ctx context.Context, blogID string) (blogDeleted bool, questionsDeleted int, summaryDeleted bool, err error)
}

// CrawlResult is the successful output of Crawler.Crawl.
type CrawlResult struct {
	Title string
	Text  string
}

// Crawler is the opaque URL→(title, text) external collaborator (spec §6).
// Implementations classify failures by returning an *apierr.TransientUpstreamError
// or *apierr.PermanentUpstreamError from internal/apierr.
type Crawler interface {
	Crawl(ctx context.Context, url string) (*CrawlResult, error)
}

// LLM is the polymorphic provider capability interface (spec §9): provider
// routing by model-name prefix happens inside the implementation, never in
// callers.
type LLM interface {
	GenerateText(ctx context.Context, prompt, systemPrompt, model string, temperature float64, maxTokens int) (string, error)
	GenerateEmbedding(ctx context.Context, text, model string) ([]float32, error)
}

// StorageManager wires together both storage engines and exposes their
// component stores.
type StorageManager interface {
	Publishers() PublisherStore
	Jobs() JobStore
	Artifacts() ArtifactStore
	Close() error
}
