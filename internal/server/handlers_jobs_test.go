package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lumenfeed/ingest/internal/common"
	"github.com/lumenfeed/ingest/internal/interfaces"
	"github.com/lumenfeed/ingest/internal/models"
	"github.com/lumenfeed/ingest/internal/services/auth"
	"github.com/lumenfeed/ingest/internal/services/deletion"
)

type fakeJobStore struct {
	job       *models.Job
	stats     models.JobStats
	cancelErr error
	lastJobID string
}

func (f *fakeJobStore) Create(ctx context.Context, normalizedURL, publisherID string, snapshot models.PublisherConfig) (string, bool, error) {
	return "", false, nil
}
func (f *fakeJobStore) ClaimNext(ctx context.Context) (*models.Job, error) { return nil, nil }
func (f *fakeJobStore) MarkCompleted(ctx context.Context, jobID string, result models.JobResult) error {
	return nil
}
func (f *fakeJobStore) MarkFailed(ctx context.Context, jobID string, errMessage string) (models.MarkFailedOutcome, error) {
	return "", nil
}
func (f *fakeJobStore) Cancel(ctx context.Context, jobID string) error {
	f.lastJobID = jobID
	return f.cancelErr
}
func (f *fakeJobStore) Get(ctx context.Context, jobID string) (*models.Job, error) {
	f.lastJobID = jobID
	return f.job, nil
}
func (f *fakeJobStore) ByURL(ctx context.Context, normalizedURL string) (*models.Job, error) {
	return nil, nil
}
func (f *fakeJobStore) Stats(ctx context.Context) (models.JobStats, error) { return f.stats, nil }
func (f *fakeJobStore) CountCompletedSince(ctx context.Context, publisherID string, since time.Time) (int, error) {
	return 0, nil
}
func (f *fakeJobStore) ResetRunningJobs(ctx context.Context) (int, error) { return 0, nil }
func (f *fakeJobStore) CountActive(ctx context.Context, publisherID string) (int, error) {
	return 0, nil
}

type fakeArtifactStore struct {
	question   *models.Question
	deleteErr  error
	lastID     string
	clickCount int64
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
	return nil, nil
}
func (f *fakeArtifactStore) QuestionByID(ctx context.Context, id string) (*models.Question, error) {
	f.lastID = id
	return f.question, nil
}
func (f *fakeArtifactStore) BlogByURL(ctx context.Context, normalizedURL string) (*models.Blog, error) {
	return nil, nil
}
func (f *fakeArtifactStore) IncrementQuestionClick(ctx context.Context, id string) (int64, error) {
	f.clickCount++
	return f.clickCount, nil
}
func (f *fakeArtifactStore) SearchSimilar(ctx context.Context, embedding []float32, limit int, publisherDomain string) ([]models.SimilarQuestion, error) {
	return nil, nil
}
func (f *fakeArtifactStore) DeleteBlog(ctx context.Context, blogID string) (bool, int, bool, error) {
	f.lastID = blogID
	return true, 0, false, f.deleteErr
}

type fakeStorageManager struct {
	publishers *fakePublisherStore
	jobs       *fakeJobStore
	artifacts  *fakeArtifactStore
}

func (f *fakeStorageManager) Publishers() interfaces.PublisherStore { return f.publishers }
func (f *fakeStorageManager) Jobs() interfaces.JobStore             { return f.jobs }
func (f *fakeStorageManager) Artifacts() interfaces.ArtifactStore   { return f.artifacts }
func (f *fakeStorageManager) Close() error                          { return nil }

func testServer(jobs *fakeJobStore, artifacts *fakeArtifactStore) *Server {
	if jobs == nil {
		jobs = &fakeJobStore{}
	}
	if artifacts == nil {
		artifacts = &fakeArtifactStore{}
	}
	return &Server{
		logger: common.NewSilentLogger(),
		config: testConfig(),
		storage: &fakeStorageManager{
			publishers: &fakePublisherStore{},
			jobs:       jobs,
			artifacts:  artifacts,
		},
		policy:   auth.New(),
		deletion: deletion.New(artifacts),
	}
}

func TestHandleJobStatus_ReturnsJob(t *testing.T) {
	job := &models.Job{JobID: "job-1", Status: models.JobStatusQueued}
	s := testServer(&fakeJobStore{job: job}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs/status/job-1", nil)
	s.handleJobStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleJobStatus_MissingJobIs404(t *testing.T) {
	s := testServer(&fakeJobStore{job: nil}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs/status/missing", nil)
	s.handleJobStatus(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandleJobStatus_WrongMethodIs405(t *testing.T) {
	s := testServer(&fakeJobStore{}, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs/status/job-1", nil)
	s.handleJobStatus(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestHandleJobsStats_ReturnsStats(t *testing.T) {
	stats := models.JobStats{
		models.JobStatusQueued:     3,
		models.JobStatusProcessing: 1,
		models.JobStatusCompleted:  10,
		models.JobStatusFailed:     2,
	}
	s := testServer(&fakeJobStore{stats: stats}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs/stats", nil)
	s.handleJobsStats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleJobsCancel_CancelsByPathParam(t *testing.T) {
	jobs := &fakeJobStore{}
	s := testServer(jobs, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs/cancel/job-42", nil)
	s.handleJobsCancel(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if jobs.lastJobID != "job-42" {
		t.Errorf("expected job id job-42 to be forwarded, got %q", jobs.lastJobID)
	}
}

func TestHandleJobsStream_NoHubIs503(t *testing.T) {
	s := testServer(&fakeJobStore{}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs/stream", nil)
	s.handleJobsStream(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when no event hub is configured, got %d", rec.Code)
	}
}

func TestHandleQuestionByID_IncrementsClickCount(t *testing.T) {
	artifacts := &fakeArtifactStore{question: &models.Question{ID: "q-1", ClickCount: 4}}
	s := testServer(nil, artifacts)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/questions/q-1", nil)
	s.handleQuestionByID(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if artifacts.lastID != "q-1" {
		t.Errorf("expected question id to be forwarded, got %q", artifacts.lastID)
	}
	if artifacts.clickCount != 1 {
		t.Errorf("expected click count to be incremented once, got %d", artifacts.clickCount)
	}
}

func TestHandleQuestionByID_MissingIs404(t *testing.T) {
	s := testServer(nil, &fakeArtifactStore{question: nil})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/questions/missing", nil)
	s.handleQuestionByID(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandleQuestionsDeleteBlog_ReturnsResult(t *testing.T) {
	artifacts := &fakeArtifactStore{}
	s := testServer(nil, artifacts)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/questions/blog-1", nil)
	s.handleQuestionsDeleteBlog(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if artifacts.lastID != "blog-1" {
		t.Errorf("expected blog id to be forwarded, got %q", artifacts.lastID)
	}
}
