// Package qa implements the /qa/ask supplemented feature (SPEC_FULL.md
// §2.1): a non-persisting, on-demand question-answering call over a single
// already-ingested blog. No job, no artifact write — a direct service call
// composing the same two-part prompt pattern as PipelineExecutor (spec §4.D
// step 4), with the caller's question as the variable part.
package qa

import (
	"context"
	"fmt"
	"strings"

	"github.com/lumenfeed/ingest/internal/apierr"
	"github.com/lumenfeed/ingest/internal/clients/llm"
	"github.com/lumenfeed/ingest/internal/common"
	"github.com/lumenfeed/ingest/internal/interfaces"
	"github.com/lumenfeed/ingest/internal/models"
	"github.com/lumenfeed/ingest/internal/services/urlnorm"
)

// systemPrompt fixes the answering contract; it is never customizable,
// mirroring jsonEnforcementPrompt's role in the pipeline package.
const systemPrompt = "You are answering a reader's question about a single article. " +
	"Use only the article text provided below — never outside knowledge. " +
	"If the article does not contain the answer, say so plainly. Answer in plain text, no markdown."

// Service answers on-demand questions against a previously ingested blog.
type Service struct {
	artifacts interfaces.ArtifactStore
	llm       interfaces.LLM
	logger    *common.Logger
}

// New creates a new Service.
func New(artifacts interfaces.ArtifactStore, generator interfaces.LLM, logger *common.Logger) *Service {
	return &Service{artifacts: artifacts, llm: generator, logger: logger}
}

// Ask normalizes blogURL, loads its stored content and summary, and returns
// the LLM's answer to question. Nothing is written to any store.
func (s *Service) Ask(ctx context.Context, rawBlogURL, question string, publisher *models.Publisher) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", apierr.Validation("MISSING_QUESTION", "question must not be empty")
	}

	url, err := urlnorm.Normalize(rawBlogURL)
	if err != nil {
		return "", apierr.Validation("INVALID_URL", err.Error())
	}

	blog, err := s.artifacts.BlogByURL(ctx, url)
	if err != nil {
		return "", fmt.Errorf("qa ask: load blog: %w", err)
	}
	if blog == nil {
		return "", apierr.NotFound(apierr.CodeBlogNotFound, fmt.Sprintf("no blog ingested for url %q", url))
	}

	summary, err := s.artifacts.SummaryByURL(ctx, url)
	if err != nil {
		return "", fmt.Errorf("qa ask: load summary: %w", err)
	}

	var article strings.Builder
	article.WriteString("Title: " + blog.Title + "\n\n")
	if summary != nil && summary.Text != "" {
		article.WriteString("Summary: " + summary.Text + "\n\n")
	}
	article.WriteString("Content:\n" + blog.Content)

	prompt := fmt.Sprintf("Article:\n%s\n\nQuestion: %s", article.String(), question)

	model := publisher.Config.ChatModel
	if model == "" {
		model = llm.DefaultModel
	}
	answer, err := s.llm.GenerateText(ctx, prompt, systemPrompt, model, publisher.Config.ChatTemperature, publisher.Config.ChatMaxTokens)
	if err != nil {
		return "", fmt.Errorf("qa ask: generate answer: %w", err)
	}
	return answer, nil
}
