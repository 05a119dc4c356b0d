// Package pipeline implements PipelineExecutor (spec §4.D): the per-job
// crawl → generate → persist sequence that owns retry classification and
// the slot-accounting invariant tying JobStore and PublisherStore together.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lumenfeed/ingest/internal/apierr"
	"github.com/lumenfeed/ingest/internal/common"
	"github.com/lumenfeed/ingest/internal/interfaces"
	"github.com/lumenfeed/ingest/internal/models"
	"github.com/lumenfeed/ingest/internal/services/jobevents"
)

// Executor runs a single claimed job to a terminal JobStore transition and
// reconciles the publisher's slot accounting.
type Executor struct {
	publishers interfaces.PublisherStore
	jobs       interfaces.JobStore
	artifacts  interfaces.ArtifactStore
	crawler    interfaces.Crawler
	llm        interfaces.LLM
	logger     *common.Logger
	events     *jobevents.Hub
}

// New creates a new Executor.
func New(publishers interfaces.PublisherStore, jobs interfaces.JobStore, artifacts interfaces.ArtifactStore, crawler interfaces.Crawler, llm interfaces.LLM, logger *common.Logger) *Executor {
	return &Executor{publishers: publishers, jobs: jobs, artifacts: artifacts, crawler: crawler, llm: llm, logger: logger}
}

// WithEvents attaches a job-event hub; the zero value (nil) disables
// broadcasting without changing Run's behavior otherwise.
func (e *Executor) WithEvents(hub *jobevents.Hub) *Executor {
	e.events = hub
	return e
}

func (e *Executor) broadcast(job *models.Job, eventType models.JobEventType, errMsg string) {
	if e.events == nil {
		return
	}
	e.events.Broadcast(models.JobEvent{
		Type:      eventType,
		JobID:     job.JobID,
		BlogURL:   job.BlogURL,
		Publisher: job.PublisherID,
		Status:    job.Status,
		Error:     errMsg,
		Timestamp: time.Now().UTC(),
	})
}

// Run executes job to completion. It never lets a failure escape without
// reaching a terminal JobStore transition and reconciling the slot — the
// contract the slot-release rule in spec §4.D depends on. The returned
// error is for the caller's logging only; it does not indicate an
// unresolved job.
func (e *Executor) Run(ctx context.Context, job *models.Job) error {
	e.broadcast(job, models.JobEventStarted, "")

	result, runErr := e.execute(ctx, job)
	if runErr == nil {
		if err := e.jobs.MarkCompleted(ctx, job.JobID, *result); err != nil {
			e.logger.Error().Err(err).Str("job_id", job.JobID).Msg("failed to mark job completed")
			return err
		}
		if err := e.publishers.ReleaseSlot(ctx, job.PublisherID, true); err != nil {
			e.logger.Error().Err(err).Str("job_id", job.JobID).Msg("failed to release slot after completion")
			return err
		}
		e.broadcast(job, models.JobEventCompleted, "")
		return nil
	}

	outcome, markErr := e.jobs.MarkFailed(ctx, job.JobID, runErr.Error())
	if markErr != nil {
		e.logger.Error().Err(markErr).Str("job_id", job.JobID).Msg("failed to mark job failed")
		return markErr
	}

	switch outcome {
	case models.OutcomeRequeued:
		// Slot stays reserved: the job remains in the publisher's committed
		// quota and the next worker attempt will not re-reserve it.
	case models.OutcomePermanentlyFailed:
		if err := e.publishers.ReleaseSlot(ctx, job.PublisherID, false); err != nil {
			e.logger.Error().Err(err).Str("job_id", job.JobID).Msg("failed to release slot after permanent failure")
			return err
		}
	}

	e.broadcast(job, models.JobEventFailed, runErr.Error())
	e.logger.Warn().Str("job_id", job.JobID).Str("outcome", string(outcome)).Err(runErr).Msg("job run failed")
	return runErr
}

// execute performs steps 1-7 and returns the result to persist, or a
// classified error (apierr.TransientUpstreamError / PermanentUpstreamError)
// for JobStore.mark_failed.
func (e *Executor) execute(ctx context.Context, job *models.Job) (*models.JobResult, error) {
	config, err := e.effectiveConfig(ctx, job)
	if err != nil {
		return nil, err
	}

	crawlResult, err := e.crawler.Crawl(ctx, job.BlogURL)
	if err != nil {
		return nil, err
	}

	blog, err := e.artifacts.UpsertBlog(ctx, job.BlogURL, crawlResult.Title, crawlResult.Text, nil)
	if err != nil {
		return nil, apierr.Transient("artifact.upsert_blog", err)
	}

	result := &models.JobResult{}

	var summaryText string
	var keyPoints []string
	var summaryEmbedding []float32
	if config.ShouldGenerateSummary() {
		summaryText, keyPoints, err = e.generateSummary(ctx, blog.Content, config)
		if err != nil {
			return nil, err
		}
		result.SummaryGenerated = true
	}

	pairs, err := e.generateQuestions(ctx, blog.Content, config)
	if err != nil {
		return nil, err
	}
	result.QuestionsGenerated = len(pairs)

	if config.ShouldGenerateEmbeddings() {
		if config.ShouldGenerateSummary() {
			summaryEmbedding, err = e.llm.GenerateEmbedding(ctx, summaryText, config.EmbeddingModel)
			if err != nil {
				return nil, err
			}
		}
		for i := range pairs {
			emb, err := e.llm.GenerateEmbedding(ctx, pairs[i].Question+" "+pairs[i].Answer, config.EmbeddingModel)
			if err != nil {
				return nil, err
			}
			pairs[i].Embedding = emb
		}
		result.EmbeddingsGenerated = true
	}

	if config.ShouldGenerateSummary() {
		if err := e.artifacts.UpsertSummary(ctx, job.BlogURL, summaryText, keyPoints, summaryEmbedding); err != nil {
			return nil, apierr.Transient("artifact.upsert_summary", err)
		}
	}
	if err := e.artifacts.ReplaceQuestions(ctx, job.BlogURL, pairs); err != nil {
		return nil, apierr.Transient("artifact.replace_questions", err)
	}

	return result, nil
}

// effectiveConfig prefers job.ConfigSnapshot (taken at enqueue time, for
// determinism across retries); falls back to the publisher's live config
// only when the snapshot was never populated.
func (e *Executor) effectiveConfig(ctx context.Context, job *models.Job) (models.PublisherConfig, error) {
	if !isZeroConfig(job.ConfigSnapshot) {
		return job.ConfigSnapshot, nil
	}
	publisher, err := e.publishers.ByID(ctx, job.PublisherID)
	if err != nil {
		return models.PublisherConfig{}, apierr.Permanent("pipeline.load_config", fmt.Errorf("%s: %w", apierr.CodeMissingPublisher, err))
	}
	if publisher == nil {
		return models.PublisherConfig{}, apierr.Permanent("pipeline.load_config", fmt.Errorf("%s: publisher %s no longer exists", apierr.CodeMissingPublisher, job.PublisherID))
	}
	return publisher.Config, nil
}

func isZeroConfig(c models.PublisherConfig) bool {
	return c.QuestionsPerBlog == 0 && c.LLMModel == "" && c.ChatModel == ""
}

type summaryResponse struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
}

func (e *Executor) generateSummary(ctx context.Context, content string, config models.PublisherConfig) (string, []string, error) {
	userPrompt := config.CustomSummaryPrompt
	if userPrompt == "" {
		userPrompt = defaultSummaryPrompt
	}
	prompt := userPrompt + "\n\nArticle:\n" + content

	var parsed summaryResponse
	raw, err := e.llm.GenerateText(ctx, prompt, jsonEnforcementPrompt, config.LLMModel, config.Temperature, config.MaxTokens)
	if err != nil {
		return "", nil, err
	}
	if parseErr := unmarshalJSONLoose(raw, &parsed); parseErr != nil {
		// One reformatting retry, per spec §4.D step 4.
		raw, err = e.llm.GenerateText(ctx, prompt+"\n\nYour previous response was not valid JSON. Return only the JSON object.", jsonEnforcementPrompt, config.LLMModel, config.Temperature, config.MaxTokens)
		if err != nil {
			return "", nil, err
		}
		if parseErr := unmarshalJSONLoose(raw, &parsed); parseErr != nil {
			return "", nil, apierr.Transient("llm.summary_parse", parseErr)
		}
	}
	return parsed.Summary, parsed.KeyPoints, nil
}

type questionsResponse struct {
	Questions []struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	} `json:"questions"`
}

func (e *Executor) generateQuestions(ctx context.Context, content string, config models.PublisherConfig) ([]models.QuestionAnswerPair, error) {
	n := config.QuestionsPerBlog
	userPrompt := config.CustomQuestionPrompt
	if userPrompt == "" {
		userPrompt = fmt.Sprintf(defaultQuestionPromptTemplate, n, n)
	}
	prompt := userPrompt + "\n\nArticle:\n" + content

	pairs, err := e.requestQuestions(ctx, prompt, config)
	if err != nil {
		return nil, err
	}
	if len(pairs) != n {
		// Retry once with an explicit "produce N" reformulation.
		retryPrompt := fmt.Sprintf("%s\n\nYour previous response contained %d items; produce exactly %d.", prompt, len(pairs), n)
		pairs, err = e.requestQuestions(ctx, retryPrompt, config)
		if err != nil {
			return nil, err
		}
		if len(pairs) != n {
			return nil, apierr.Transient("llm.question_count", fmt.Errorf("expected %d questions, got %d", n, len(pairs)))
		}
	}
	return pairs, nil
}

func (e *Executor) requestQuestions(ctx context.Context, prompt string, config models.PublisherConfig) ([]models.QuestionAnswerPair, error) {
	raw, err := e.llm.GenerateText(ctx, prompt, jsonEnforcementPrompt, config.ChatModel, config.ChatTemperature, config.ChatMaxTokens)
	if err != nil {
		return nil, err
	}
	var parsed questionsResponse
	if parseErr := unmarshalJSONLoose(raw, &parsed); parseErr != nil {
		retryRaw, err := e.llm.GenerateText(ctx, prompt+"\n\nYour previous response was not valid JSON. Return only the JSON object.", jsonEnforcementPrompt, config.ChatModel, config.ChatTemperature, config.ChatMaxTokens)
		if err != nil {
			return nil, err
		}
		if parseErr := unmarshalJSONLoose(retryRaw, &parsed); parseErr != nil {
			return nil, apierr.Transient("llm.questions_parse", parseErr)
		}
	}

	pairs := make([]models.QuestionAnswerPair, 0, len(parsed.Questions))
	for _, q := range parsed.Questions {
		pairs = append(pairs, models.QuestionAnswerPair{Question: q.Question, Answer: q.Answer})
	}
	return pairs, nil
}

// unmarshalJSONLoose parses v from raw, first stripping a markdown fence
// (```json ... ``` or ``` ... ```) if the model wrapped its response in one.
func unmarshalJSONLoose(raw string, v any) error {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
		text = strings.TrimSpace(text)
	}
	return json.Unmarshal([]byte(text), v)
}
