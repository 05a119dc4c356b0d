package surrealdb

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/lumenfeed/ingest/internal/common"
	"github.com/lumenfeed/ingest/internal/interfaces"
	"github.com/lumenfeed/ingest/internal/models"
	"github.com/lumenfeed/ingest/internal/services/urlnorm"
)

const (
	blogsTable     = "raw_blog_content"
	summariesTable = "blog_summaries"
	questionsTable = "processed_questions"
)

// ArtifactStore implements interfaces.ArtifactStore using SurrealDB.
//
// replace_questions per spec §4.C must be atomic per URL: the DELETE and
// the CREATEs are sent as one SurrealDB query wrapped in BEGIN/COMMIT
// TRANSACTION, so readers see either the old rows or the new rows, never a
// mixed or empty set. An in-process per-URL mutex additionally serializes
// concurrent writers for the same URL within this process.
type ArtifactStore struct {
	db     *surrealdb.DB
	logger *common.Logger

	urlLocksMu sync.Mutex
	urlLocks   map[string]*sync.Mutex
}

// NewArtifactStore creates a new ArtifactStore.
func NewArtifactStore(db *surrealdb.DB, logger *common.Logger) *ArtifactStore {
	return &ArtifactStore{db: db, logger: logger, urlLocks: make(map[string]*sync.Mutex)}
}

func (s *ArtifactStore) lockFor(url string) *sync.Mutex {
	s.urlLocksMu.Lock()
	defer s.urlLocksMu.Unlock()
	l, ok := s.urlLocks[url]
	if !ok {
		l = &sync.Mutex{}
		s.urlLocks[url] = l
	}
	return l
}

func (s *ArtifactStore) UpsertBlog(ctx context.Context, normalizedURL, title, content string, metadata map[string]any) (*models.Blog, error) {
	existing, err := s.BlogByURL(ctx, normalizedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing blog: %w", err)
	}

	now := time.Now().UTC()
	id := normalizedURL
	if existing != nil {
		id = existing.ID
	} else {
		id = uuid.New().String()
	}

	sql := `UPSERT $rid SET
		blog_id = $blog_id, url = $url, title = $title, content = $content, metadata = $metadata,
		created_at = $created_at, updated_at = $now`
	createdAt := now
	if existing != nil {
		createdAt = existing.CreatedAt
	}
	vars := map[string]any{
		"rid":        surrealmodels.NewRecordID(blogsTable, id),
		"blog_id":    id,
		"url":        normalizedURL,
		"title":      title,
		"content":    content,
		"metadata":   metadata,
		"created_at": createdAt,
		"now":        now,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return nil, fmt.Errorf("failed to upsert blog: %w", err)
	}

	return &models.Blog{
		ID: id, URL: normalizedURL, Title: title, Content: content, Metadata: metadata,
		CreatedAt: createdAt, UpdatedAt: now,
	}, nil
}

func (s *ArtifactStore) BlogByURL(ctx context.Context, normalizedURL string) (*models.Blog, error) {
	sql := "SELECT blog_id as id, url, title, content, metadata, created_at, updated_at FROM " + blogsTable + " WHERE url = $url LIMIT 1"
	results, err := surrealdb.Query[[]models.Blog](ctx, s.db, sql, map[string]any{"url": normalizedURL})
	if err != nil {
		return nil, fmt.Errorf("failed to query blog by url: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	blog := (*results)[0].Result[0]
	return &blog, nil
}

func (s *ArtifactStore) UpsertSummary(ctx context.Context, normalizedURL, text string, keyPoints []string, embedding []float32) error {
	sql := `UPSERT $rid SET url = $url, text = $text, key_points = $key_points, embedding = $embedding, created_at = $now, updated_at = $now`
	vars := map[string]any{
		"rid":        surrealmodels.NewRecordID(summariesTable, normalizedURL),
		"url":        normalizedURL,
		"text":       text,
		"key_points": keyPoints,
		"embedding":  embedding,
		"now":        time.Now().UTC(),
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to upsert summary: %w", err)
	}
	return nil
}

func (s *ArtifactStore) SummaryByURL(ctx context.Context, normalizedURL string) (*models.Summary, error) {
	sql := "SELECT summary_id as id, url, text, key_points, embedding, created_at, updated_at FROM " + summariesTable + " WHERE url = $url LIMIT 1"
	results, err := surrealdb.Query[[]models.Summary](ctx, s.db, sql, map[string]any{"url": normalizedURL})
	if err != nil {
		return nil, fmt.Errorf("failed to query summary by url: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	summary := (*results)[0].Result[0]
	return &summary, nil
}

// ReplaceQuestions atomically swaps the question set for a URL: the delete
// and the inserts run as one multi-statement SurrealDB query inside a
// transaction so readers never observe a partial or empty intermediate state.
func (s *ArtifactStore) ReplaceQuestions(ctx context.Context, normalizedURL string, pairs []models.QuestionAnswerPair) error {
	lock := s.lockFor(normalizedURL)
	lock.Lock()
	defer lock.Unlock()

	var sb strings.Builder
	sb.WriteString("BEGIN TRANSACTION;")
	sb.WriteString("DELETE FROM " + questionsTable + " WHERE url = $url;")

	now := time.Now().UTC()
	vars := map[string]any{"url": normalizedURL}
	for i, pair := range pairs {
		id := uuid.New().String()
		ridKey := fmt.Sprintf("rid%d", i)
		qKey := fmt.Sprintf("q%d", i)
		aKey := fmt.Sprintf("a%d", i)
		eKey := fmt.Sprintf("e%d", i)
		idKey := fmt.Sprintf("id%d", i)
		sb.WriteString(fmt.Sprintf(
			"CREATE $%s SET question_id = $%s, url = $url, question = $%s, answer = $%s, embedding = $%s, click_count = 0, created_at = $now;",
			ridKey, idKey, qKey, aKey, eKey,
		))
		vars[ridKey] = surrealmodels.NewRecordID(questionsTable, id)
		vars[idKey] = id
		vars[qKey] = pair.Question
		vars[aKey] = pair.Answer
		vars[eKey] = pair.Embedding
	}
	sb.WriteString("COMMIT TRANSACTION;")
	vars["now"] = now

	if _, err := surrealdb.Query[any](ctx, s.db, sb.String(), vars); err != nil {
		return fmt.Errorf("failed to replace questions: %w", err)
	}
	return nil
}

func (s *ArtifactStore) QuestionsByURL(ctx context.Context, normalizedURL string) ([]*models.Question, error) {
	sql := "SELECT question_id as id, url, question, answer, embedding, click_count, created_at FROM " +
		questionsTable + " WHERE url = $url ORDER BY created_at ASC"
	results, err := surrealdb.Query[[]models.Question](ctx, s.db, sql, map[string]any{"url": normalizedURL})
	if err != nil {
		return nil, fmt.Errorf("failed to query questions by url: %w", err)
	}
	var out []*models.Question
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			out = append(out, &(*results)[0].Result[i])
		}
	}
	return out, nil
}

func (s *ArtifactStore) QuestionByID(ctx context.Context, id string) (*models.Question, error) {
	sql := "SELECT question_id as id, url, question, answer, embedding, click_count, created_at FROM " +
		questionsTable + " WHERE question_id = $id LIMIT 1"
	results, err := surrealdb.Query[[]models.Question](ctx, s.db, sql, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to query question by id: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	q := (*results)[0].Result[0]
	return &q, nil
}

// IncrementQuestionClick atomically increments click_count and returns the new value.
func (s *ArtifactStore) IncrementQuestionClick(ctx context.Context, id string) (int64, error) {
	sql := "UPDATE processed_questions SET click_count += 1 WHERE question_id = $id RETURN AFTER"
	type clickResult struct {
		ClickCount int64 `json:"click_count"`
	}
	results, err := surrealdb.Query[[]clickResult](ctx, s.db, sql, map[string]any{"id": id})
	if err != nil {
		return 0, fmt.Errorf("failed to increment question click: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, fmt.Errorf("question %s not found", id)
	}
	return (*results)[0].Result[0].ClickCount, nil
}

// SearchSimilar performs nearest-neighbor search over question embeddings
// restricted to the publisher's domain (or its subdomains). The stored url
// is a full normalized blog URL (scheme + host + path), so the domain
// restriction can't be a suffix match on the whole string — that tests the
// path, not the host. string::contains narrows the candidate set at the
// database, and urlnorm.MatchesDomain (the same host-vs-domain rule used by
// the publisher-domain policy check) makes the final, precise decision in
// Go. Cosine similarity is computed in-process over the candidate set
// rather than via a SurrealDB vector index function, since the candidate
// set is already bounded by the domain filter.
func (s *ArtifactStore) SearchSimilar(ctx context.Context, embedding []float32, limit int, publisherDomain string) ([]models.SimilarQuestion, error) {
	sql := "SELECT question_id as id, url, question, answer, embedding FROM " + questionsTable +
		" WHERE string::contains(url, $domain)"
	vars := map[string]any{
		"domain": publisherDomain,
	}
	results, err := surrealdb.Query[[]models.Question](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidate questions: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}

	candidates := (*results)[0].Result
	scored := make([]models.SimilarQuestion, 0, len(candidates))
	for _, q := range candidates {
		if len(q.Embedding) == 0 {
			continue
		}
		host, err := urlnorm.Host(q.URL)
		if err != nil || !urlnorm.MatchesDomain(host, publisherDomain) {
			continue
		}
		score := cosineSimilarity(embedding, q.Embedding)
		scored = append(scored, models.SimilarQuestion{
			QuestionID: q.ID, URL: q.URL, Question: q.Question, Answer: q.Answer, Score: score,
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].URL < scored[j].URL
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// DeleteBlog removes the blog and cascades to its questions and summary.
// Deletion is not transactional across the three collections; each
// collection's deletion is attempted independently and counts are reported
// so the caller can retry a partial failure safely (repeated invocations
// are idempotent in outcome).
func (s *ArtifactStore) DeleteBlog(ctx context.Context, blogID string) (bool, int, bool, error) {
	blogRow := surrealmodels.NewRecordID(blogsTable, blogID)
	selectSQL := "SELECT url FROM " + blogsTable + " WHERE blog_id = $blog_id LIMIT 1"
	results, err := surrealdb.Query[[]models.Blog](ctx, s.db, selectSQL, map[string]any{"blog_id": blogID})
	if err != nil {
		return false, 0, false, fmt.Errorf("failed to resolve blog url for deletion: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return false, 0, false, nil
	}
	url := (*results)[0].Result[0].URL

	var questionsDeleted int
	if qs, err := s.QuestionsByURL(ctx, url); err == nil {
		questionsDeleted = len(qs)
	}
	if _, err := surrealdb.Query[any](ctx, s.db, "DELETE FROM "+questionsTable+" WHERE url = $url", map[string]any{"url": url}); err != nil {
		s.logger.Warn().Err(err).Str("url", url).Msg("Failed to delete questions during blog deletion")
		questionsDeleted = 0
	}

	summaryDeleted := false
	summaryRID := surrealmodels.NewRecordID(summariesTable, url)
	if _, err := surrealdb.Query[any](ctx, s.db, "DELETE $rid", map[string]any{"rid": summaryRID}); err == nil {
		summaryDeleted = true
	} else {
		s.logger.Warn().Err(err).Str("url", url).Msg("Failed to delete summary during blog deletion")
	}

	blogDeleted := false
	if _, err := surrealdb.Query[any](ctx, s.db, "DELETE $rid", map[string]any{"rid": blogRow}); err == nil {
		blogDeleted = true
	} else {
		s.logger.Warn().Err(err).Str("blog_id", blogID).Msg("Failed to delete blog row")
	}

	return blogDeleted, questionsDeleted, summaryDeleted, nil
}

var _ interfaces.ArtifactStore = (*ArtifactStore)(nil)
