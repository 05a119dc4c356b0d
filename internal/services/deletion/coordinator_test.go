package deletion

import (
	"context"
	"errors"
	"testing"

	"github.com/lumenfeed/ingest/internal/models"
)

type fakeArtifactStore struct {
	blogDeleted      bool
	questionsDeleted int
	summaryDeleted   bool
	err              error
	lastBlogID       string
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
	return nil, nil
}
func (f *fakeArtifactStore) BlogByURL(ctx context.Context, normalizedURL string) (*models.Blog, error) {
	return nil, nil
}
func (f *fakeArtifactStore) IncrementQuestionClick(ctx context.Context, id string) (int64, error) {
	return 0, nil
}
func (f *fakeArtifactStore) SearchSimilar(ctx context.Context, embedding []float32, limit int, publisherDomain string) ([]models.SimilarQuestion, error) {
	return nil, nil
}
func (f *fakeArtifactStore) DeleteBlog(ctx context.Context, blogID string) (bool, int, bool, error) {
	f.lastBlogID = blogID
	return f.blogDeleted, f.questionsDeleted, f.summaryDeleted, f.err
}

func TestDelete_ReportsWhatWasRemoved(t *testing.T) {
	artifacts := &fakeArtifactStore{blogDeleted: true, questionsDeleted: 5, summaryDeleted: true}
	c := New(artifacts)

	result, err := c.Delete(context.Background(), "blog-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.BlogDeleted || result.QuestionsDeleted != 5 || !result.SummaryDeleted {
		t.Errorf("unexpected result: %+v", result)
	}
	if artifacts.lastBlogID != "blog-1" {
		t.Errorf("expected blog id to be forwarded, got %q", artifacts.lastBlogID)
	}
}

func TestDelete_AlreadyGoneReportsFalseNotError(t *testing.T) {
	artifacts := &fakeArtifactStore{}
	c := New(artifacts)

	result, err := c.Delete(context.Background(), "already-deleted")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.BlogDeleted || result.QuestionsDeleted != 0 || result.SummaryDeleted {
		t.Errorf("expected an all-false/zero result for a blog already gone, got %+v", result)
	}
}

func TestDelete_StoreErrorIsWrapped(t *testing.T) {
	artifacts := &fakeArtifactStore{err: errors.New("connection reset")}
	c := New(artifacts)

	_, err := c.Delete(context.Background(), "blog-1")
	if err == nil {
		t.Fatal("expected an error to be returned")
	}
}
