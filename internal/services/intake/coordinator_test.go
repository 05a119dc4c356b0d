package intake

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lumenfeed/ingest/internal/apierr"
	"github.com/lumenfeed/ingest/internal/common"
	"github.com/lumenfeed/ingest/internal/models"
	"github.com/lumenfeed/ingest/internal/services/auth"
)

// fakePublisherStore is a minimal in-memory stand-in covering only what
// Coordinator exercises.
type fakePublisherStore struct {
	mu         sync.Mutex
	publishers map[string]*models.Publisher
	reserveErr error
}

func newFakePublisherStore(p *models.Publisher) *fakePublisherStore {
	return &fakePublisherStore{publishers: map[string]*models.Publisher{p.ID: p}}
}

func (f *fakePublisherStore) Create(ctx context.Context, name, domain, email string, config models.PublisherConfig) (*models.Publisher, string, error) {
	return nil, "", nil
}
func (f *fakePublisherStore) ByAPIKey(ctx context.Context, key string) (*models.Publisher, error) {
	return nil, nil
}
func (f *fakePublisherStore) ByDomain(ctx context.Context, domain string, allowSubdomain bool) (*models.Publisher, error) {
	return nil, nil
}
func (f *fakePublisherStore) ByID(ctx context.Context, id string) (*models.Publisher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.publishers[id], nil
}
func (f *fakePublisherStore) ReserveSlot(ctx context.Context, publisherID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reserveErr != nil {
		return f.reserveErr
	}
	f.publishers[publisherID].BlogSlotsReserved++
	return nil
}
func (f *fakePublisherStore) ReleaseSlot(ctx context.Context, publisherID string, processed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.publishers[publisherID]
	if p.BlogSlotsReserved > 0 {
		p.BlogSlotsReserved--
	}
	if processed {
		p.TotalBlogsProcessed++
	}
	return nil
}
func (f *fakePublisherStore) Update(ctx context.Context, publisherID string, patch models.PublisherConfig, apiKey string) (*models.Publisher, error) {
	return nil, nil
}
func (f *fakePublisherStore) ReconcileSlots(ctx context.Context, publisherID string, activeJobCount int) error {
	return nil
}
func (f *fakePublisherStore) ListIDs(ctx context.Context) ([]string, error) { return nil, nil }

// fakeJobStore tracks jobs keyed by normalized URL.
type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
	seq  int
}

func newFakeJobStore() *fakeJobStore { return &fakeJobStore{jobs: make(map[string]*models.Job)} }

func (f *fakeJobStore) Create(ctx context.Context, normalizedURL, publisherID string, snapshot models.PublisherConfig) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.jobs[normalizedURL]; ok {
		if existing.Status == models.JobStatusQueued || existing.Status == models.JobStatusProcessing {
			return existing.JobID, false, nil
		}
	}
	f.seq++
	job := &models.Job{JobID: "job-" + string(rune('a'+f.seq)), BlogURL: normalizedURL, PublisherID: publisherID, Status: models.JobStatusQueued, ConfigSnapshot: snapshot}
	f.jobs[normalizedURL] = job
	return job.JobID, true, nil
}
func (f *fakeJobStore) ClaimNext(ctx context.Context) (*models.Job, error) { return nil, nil }
func (f *fakeJobStore) MarkCompleted(ctx context.Context, jobID string, result models.JobResult) error {
	return nil
}
func (f *fakeJobStore) MarkFailed(ctx context.Context, jobID string, errMessage string) (models.MarkFailedOutcome, error) {
	return "", nil
}
func (f *fakeJobStore) Cancel(ctx context.Context, jobID string) error { return nil }
func (f *fakeJobStore) Get(ctx context.Context, jobID string) (*models.Job, error) {
	return nil, nil
}
func (f *fakeJobStore) ByURL(ctx context.Context, normalizedURL string) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[normalizedURL], nil
}
func (f *fakeJobStore) Stats(ctx context.Context) (models.JobStats, error) { return nil, nil }
func (f *fakeJobStore) CountCompletedSince(ctx context.Context, publisherID string, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, j := range f.jobs {
		if j.PublisherID == publisherID && j.Status == models.JobStatusCompleted && j.CompletedAt != nil && !j.CompletedAt.Before(since) {
			count++
		}
	}
	return count, nil
}
func (f *fakeJobStore) ResetRunningJobs(ctx context.Context) (int, error) { return 0, nil }
func (f *fakeJobStore) CountActive(ctx context.Context, publisherID string) (int, error) {
	return 0, nil
}

// fakeArtifactStore only implements what Coordinator exercises.
type fakeArtifactStore struct {
	mu        sync.Mutex
	blogs     map[string]*models.Blog
	questions map[string][]*models.Question
}

func newFakeArtifactStore() *fakeArtifactStore {
	return &fakeArtifactStore{blogs: make(map[string]*models.Blog), questions: make(map[string][]*models.Question)}
}

func (f *fakeArtifactStore) UpsertBlog(ctx context.Context, normalizedURL, title, content string, metadata map[string]any) (*models.Blog, error) {
	return nil, nil
}
func (f *fakeArtifactStore) UpsertSummary(ctx context.Context, normalizedURL, text string, keyPoints []string, embedding []float32) error {
	return nil
}
func (f *fakeArtifactStore) SummaryByURL(ctx context.Context, normalizedURL string) (*models.Summary, error) {
	return nil, nil
}
func (f *fakeArtifactStore) ReplaceQuestions(ctx context.Context, normalizedURL string, pairs []models.QuestionAnswerPair) error {
	return nil
}
func (f *fakeArtifactStore) QuestionsByURL(ctx context.Context, normalizedURL string) ([]*models.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.questions[normalizedURL], nil
}
func (f *fakeArtifactStore) QuestionByID(ctx context.Context, id string) (*models.Question, error) {
	return nil, nil
}
func (f *fakeArtifactStore) BlogByURL(ctx context.Context, normalizedURL string) (*models.Blog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blogs[normalizedURL], nil
}
func (f *fakeArtifactStore) IncrementQuestionClick(ctx context.Context, id string) (int64, error) {
	return 0, nil
}
func (f *fakeArtifactStore) SearchSimilar(ctx context.Context, embedding []float32, limit int, publisherDomain string) ([]models.SimilarQuestion, error) {
	return nil, nil
}
func (f *fakeArtifactStore) DeleteBlog(ctx context.Context, blogID string) (bool, int, bool, error) {
	return false, 0, false, nil
}

func testPublisher() *models.Publisher {
	return &models.Publisher{ID: "pub-1", Domain: "example.com", Config: models.DefaultPublisherConfig()}
}

func TestEnqueue_NewURL_ReservesAndCreates(t *testing.T) {
	publisher := testPublisher()
	pubStore := newFakePublisherStore(publisher)
	jobStore := newFakeJobStore()
	artifacts := newFakeArtifactStore()
	c := New(pubStore, jobStore, artifacts, auth.New(), common.NewSilentLogger())

	result, err := c.Enqueue(context.Background(), "https://example.com/a", publisher)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AlreadyProcessed {
		t.Error("expected a fresh job, not already-processed")
	}
	if publisher.BlogSlotsReserved != 1 {
		t.Errorf("expected slot reserved, got %d", publisher.BlogSlotsReserved)
	}
}

func TestEnqueue_DomainMismatch(t *testing.T) {
	publisher := testPublisher()
	c := New(newFakePublisherStore(publisher), newFakeJobStore(), newFakeArtifactStore(), auth.New(), common.NewSilentLogger())

	_, err := c.Enqueue(context.Background(), "https://other.com/a", publisher)
	if err == nil {
		t.Fatal("expected domain mismatch error")
	}
	apiErr, ok := err.(*apierr.Error)
	if !ok || apiErr.Code != apierr.CodeDomainMismatch {
		t.Errorf("expected DOMAIN_MISMATCH, got %v", err)
	}
}

func TestEnqueue_DuplicateReleasesReservedSlot(t *testing.T) {
	publisher := testPublisher()
	pubStore := newFakePublisherStore(publisher)
	jobStore := newFakeJobStore()
	c := New(pubStore, jobStore, newFakeArtifactStore(), auth.New(), common.NewSilentLogger())

	first, err := c.Enqueue(context.Background(), "https://example.com/a", publisher)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := c.Enqueue(context.Background(), "https://example.com/a", publisher)
	if err != nil {
		t.Fatalf("unexpected error on duplicate enqueue: %v", err)
	}
	if second.JobID != first.JobID {
		t.Errorf("expected same job id, got %q vs %q", second.JobID, first.JobID)
	}
	if publisher.BlogSlotsReserved != 1 {
		t.Errorf("expected only one slot reserved after duplicate enqueue, got %d", publisher.BlogSlotsReserved)
	}
}

func TestEnqueue_WhitelistRejectsNonMatchingURL(t *testing.T) {
	publisher := testPublisher()
	publisher.Config.WhitelistedBlogURLs = []string{"https://example.com/blog/*"}
	c := New(newFakePublisherStore(publisher), newFakeJobStore(), newFakeArtifactStore(), auth.New(), common.NewSilentLogger())

	_, err := c.Enqueue(context.Background(), "https://example.com/news/a", publisher)
	if err == nil {
		t.Fatal("expected NOT_WHITELISTED error")
	}
}

func TestCheckAndLoad_ReadyWhenQuestionsExist(t *testing.T) {
	publisher := testPublisher()
	artifacts := newFakeArtifactStore()
	artifacts.questions["https://example.com/a"] = []*models.Question{{ID: "q1", Question: "what?"}}
	c := New(newFakePublisherStore(publisher), newFakeJobStore(), artifacts, auth.New(), common.NewSilentLogger())

	result, err := c.CheckAndLoad(context.Background(), "https://example.com/a", publisher)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusReady {
		t.Errorf("expected ready, got %s", result.Status)
	}
}

func TestCheckAndLoad_NotStartedEnqueuesOnFirstView(t *testing.T) {
	publisher := testPublisher()
	pubStore := newFakePublisherStore(publisher)
	c := New(pubStore, newFakeJobStore(), newFakeArtifactStore(), auth.New(), common.NewSilentLogger())

	result, err := c.CheckAndLoad(context.Background(), "https://example.com/a", publisher)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusNotStarted || result.JobID == "" {
		t.Errorf("expected not_started with a job id, got %+v", result)
	}
	if publisher.BlogSlotsReserved != 1 {
		t.Error("expected a slot to be reserved for the transparently kicked-off job")
	}
}

func TestCheckAndLoad_ProcessingWhenJobQueued(t *testing.T) {
	publisher := testPublisher()
	jobStore := newFakeJobStore()
	c := New(newFakePublisherStore(publisher), jobStore, newFakeArtifactStore(), auth.New(), common.NewSilentLogger())

	first, err := c.CheckAndLoad(context.Background(), "https://example.com/a", publisher)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := c.CheckAndLoad(context.Background(), "https://example.com/a", publisher)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Status != StatusProcessing {
		t.Errorf("expected processing on second view while job still queued, got %s", second.Status)
	}
	if second.JobID != first.JobID {
		t.Errorf("expected same job id across views")
	}
}
