// Package llm implements the polymorphic LLM capability interface
// ({generate_text, generate_embedding}, spec §9) on top of
// google.golang.org/genai, generalizing the teacher's Gemini client from a
// single-purpose analysis helper into the two-part-prompt pattern this
// pipeline depends on for summaries, questions, and embeddings.
package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/lumenfeed/ingest/internal/common"
	"github.com/lumenfeed/ingest/internal/interfaces"
)

const (
	DefaultModel          = "gemini-2.0-flash"
	DefaultEmbeddingModel = "text-embedding-004"
)

// Client implements interfaces.LLM.
type Client struct {
	client *genai.Client
	logger *common.Logger
}

// NewClient creates a new LLM client backed by the Gemini API.
func NewClient(ctx context.Context, apiKey string, logger *common.Logger) (*Client, error) {
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return &Client{client: genaiClient, logger: logger}, nil
}

// GenerateText composes the two-part prompt (system + user) and returns the
// model's raw text response. Provider routing by model-name prefix is not
// needed today (a single Gemini backend handles every configured model
// name), but model stays a parameter so a future provider can be selected
// purely by that prefix without touching callers.
func (c *Client) GenerateText(ctx context.Context, prompt, systemPrompt, model string, temperature float64, maxTokens int) (string, error) {
	if model == "" {
		model = DefaultModel
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(temperature)),
	}
	if maxTokens > 0 {
		config.MaxOutputTokens = int32(maxTokens)
	}
	if systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	c.logger.Debug().Str("model", model).Msg("Generating LLM text")

	result, err := c.client.Models.GenerateContent(ctx, model, genai.Text(prompt), config)
	if err != nil {
		return "", classifyGenAIError(err)
	}
	return extractText(result)
}

// GenerateEmbedding requests an embedding vector for text using model.
func (c *Client) GenerateEmbedding(ctx context.Context, text, model string) ([]float32, error) {
	if model == "" {
		model = DefaultEmbeddingModel
	}

	c.logger.Debug().Str("model", model).Msg("Generating LLM embedding")

	result, err := c.client.Models.EmbedContent(ctx, model, genai.Text(text), nil)
	if err != nil {
		return nil, classifyGenAIError(err)
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("embedding response contained no values")
	}
	return result.Embeddings[0].Values, nil
}

func extractText(result *genai.GenerateContentResponse) (string, error) {
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content generated")
	}
	text := ""
	for _, part := range result.Candidates[0].Content.Parts {
		text += part.Text
	}
	return text, nil
}

var _ interfaces.LLM = (*Client)(nil)
