// Package search implements POST /search/similar: nearest-neighbor search
// over question embeddings, restricted to a publisher's own domain (spec
// §4.C search_similar).
package search

import (
	"context"
	"fmt"

	"github.com/lumenfeed/ingest/internal/apierr"
	"github.com/lumenfeed/ingest/internal/clients/llm"
	"github.com/lumenfeed/ingest/internal/interfaces"
	"github.com/lumenfeed/ingest/internal/models"
)

const defaultLimit = 10

// Service resolves a query (either free text to embed, or an existing
// question id to search from its stored embedding) to similar questions.
type Service struct {
	artifacts interfaces.ArtifactStore
	llm       interfaces.LLM
}

// New creates a new Service.
func New(artifacts interfaces.ArtifactStore, generator interfaces.LLM) *Service {
	return &Service{artifacts: artifacts, llm: generator}
}

// Similar returns the nearest questions to query (or, if questionID is
// non-empty, to that question's stored embedding), restricted to blogs whose
// host matches publisher.Domain. limit<=0 falls back to defaultLimit.
func (s *Service) Similar(ctx context.Context, query, questionID string, limit int, publisher *models.Publisher) ([]models.SimilarQuestion, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	embedding, err := s.resolveEmbedding(ctx, query, questionID, publisher)
	if err != nil {
		return nil, err
	}

	results, err := s.artifacts.SearchSimilar(ctx, embedding, limit, publisher.Domain)
	if err != nil {
		return nil, fmt.Errorf("search similar: %w", err)
	}
	return results, nil
}

func (s *Service) resolveEmbedding(ctx context.Context, query, questionID string, publisher *models.Publisher) ([]float32, error) {
	if questionID != "" {
		question, err := s.artifacts.QuestionByID(ctx, questionID)
		if err != nil {
			return nil, fmt.Errorf("search similar: load seed question: %w", err)
		}
		if question == nil {
			return nil, apierr.NotFound(apierr.CodeQuestionNotFound, fmt.Sprintf("question %q not found", questionID))
		}
		if len(question.Embedding) == 0 {
			return nil, apierr.Validation("QUESTION_NOT_EMBEDDED", "seed question has no stored embedding")
		}
		return question.Embedding, nil
	}

	if query == "" {
		return nil, apierr.Validation("MISSING_QUERY", "either query or question_id is required")
	}

	model := publisher.Config.EmbeddingModel
	if model == "" {
		model = llm.DefaultEmbeddingModel
	}
	embedding, err := s.llm.GenerateEmbedding(ctx, query, model)
	if err != nil {
		return nil, fmt.Errorf("search similar: embed query: %w", err)
	}
	return embedding, nil
}
