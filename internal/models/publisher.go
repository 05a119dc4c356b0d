package models

import "time"

// PublisherStatus is the lifecycle status of a publisher account.
type PublisherStatus string

const (
	PublisherStatusTrial    PublisherStatus = "TRIAL"
	PublisherStatusActive   PublisherStatus = "ACTIVE"
	PublisherStatusInactive PublisherStatus = "INACTIVE"
)

// PublisherConfig is the recognized, typed set of per-publisher options.
// Unknown keys round-trip through Extra so the API layer can own widget
// configuration without the store needing to understand it.
type PublisherConfig struct {
	MaxTotalBlogs        *int     `json:"max_total_blogs,omitempty"`
	DailyBlogLimit       *int     `json:"daily_blog_limit,omitempty"`
	WhitelistedBlogURLs  []string `json:"whitelisted_blog_urls,omitempty"`
	QuestionsPerBlog     int      `json:"questions_per_blog"`
	LLMModel             string   `json:"llm_model,omitempty"`
	ChatModel            string   `json:"chat_model,omitempty"`
	EmbeddingModel       string   `json:"embedding_model,omitempty"`
	Temperature          float64  `json:"temperature"`
	MaxTokens            int      `json:"max_tokens,omitempty"`
	ChatTemperature      float64  `json:"chat_temperature"`
	ChatMaxTokens        int      `json:"chat_max_tokens,omitempty"`
	GenerateSummary      *bool    `json:"generate_summary,omitempty"`
	GenerateEmbeddings   *bool    `json:"generate_embeddings,omitempty"`
	CustomQuestionPrompt string   `json:"custom_question_prompt,omitempty"`
	CustomSummaryPrompt  string   `json:"custom_summary_prompt,omitempty"`

	// Extra carries any keys the caller supplied that this struct doesn't
	// recognize (e.g. widget display settings owned by the API layer).
	Extra map[string]any `json:"extra,omitempty"`
}

// DefaultPublisherConfig returns a config with the spec's documented defaults.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		QuestionsPerBlog:   5,
		Temperature:        0.3,
		ChatTemperature:    0.5,
		GenerateSummary:    boolPtr(true),
		GenerateEmbeddings: boolPtr(true),
	}
}

func boolPtr(b bool) *bool { return &b }

// ShouldGenerateSummary reports whether summary generation is enabled,
// defaulting to true when unset.
func (c PublisherConfig) ShouldGenerateSummary() bool {
	return c.GenerateSummary == nil || *c.GenerateSummary
}

// ShouldGenerateEmbeddings reports whether embedding generation is enabled,
// defaulting to true when unset.
func (c PublisherConfig) ShouldGenerateEmbeddings() bool {
	return c.GenerateEmbeddings == nil || *c.GenerateEmbeddings
}

// Merge applies non-zero fields of patch onto a copy of c and returns the result.
// Extra keys in patch overwrite matching keys in c.Extra.
func (c PublisherConfig) Merge(patch PublisherConfig) PublisherConfig {
	out := c
	if patch.MaxTotalBlogs != nil {
		out.MaxTotalBlogs = patch.MaxTotalBlogs
	}
	if patch.DailyBlogLimit != nil {
		out.DailyBlogLimit = patch.DailyBlogLimit
	}
	if patch.WhitelistedBlogURLs != nil {
		out.WhitelistedBlogURLs = patch.WhitelistedBlogURLs
	}
	if patch.QuestionsPerBlog != 0 {
		out.QuestionsPerBlog = patch.QuestionsPerBlog
	}
	if patch.LLMModel != "" {
		out.LLMModel = patch.LLMModel
	}
	if patch.ChatModel != "" {
		out.ChatModel = patch.ChatModel
	}
	if patch.EmbeddingModel != "" {
		out.EmbeddingModel = patch.EmbeddingModel
	}
	if patch.Temperature != 0 {
		out.Temperature = patch.Temperature
	}
	if patch.MaxTokens != 0 {
		out.MaxTokens = patch.MaxTokens
	}
	if patch.ChatTemperature != 0 {
		out.ChatTemperature = patch.ChatTemperature
	}
	if patch.ChatMaxTokens != 0 {
		out.ChatMaxTokens = patch.ChatMaxTokens
	}
	if patch.GenerateSummary != nil {
		out.GenerateSummary = patch.GenerateSummary
	}
	if patch.GenerateEmbeddings != nil {
		out.GenerateEmbeddings = patch.GenerateEmbeddings
	}
	if patch.CustomQuestionPrompt != "" {
		out.CustomQuestionPrompt = patch.CustomQuestionPrompt
	}
	if patch.CustomSummaryPrompt != "" {
		out.CustomSummaryPrompt = patch.CustomSummaryPrompt
	}
	if len(patch.Extra) > 0 {
		merged := make(map[string]any, len(out.Extra)+len(patch.Extra))
		for k, v := range out.Extra {
			merged[k] = v
		}
		for k, v := range patch.Extra {
			merged[k] = v
		}
		out.Extra = merged
	}
	return out
}

// Publisher is the row-locked source of truth for identity, config, and quota.
type Publisher struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Domain              string          `json:"domain"`
	Email               string          `json:"email"`
	APIKey              string          `json:"-"`
	Status              PublisherStatus `json:"status"`
	Config              PublisherConfig `json:"config"`
	TotalBlogsProcessed int             `json:"total_blogs_processed"`
	BlogSlotsReserved   int             `json:"blog_slots_reserved"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// HasRoomFor reports whether one more slot can be reserved given the
// publisher's current counters and config.MaxTotalBlogs cap, if any.
func (p *Publisher) HasRoomFor() bool {
	if p.Config.MaxTotalBlogs == nil {
		return true
	}
	return p.TotalBlogsProcessed+p.BlogSlotsReserved < *p.Config.MaxTotalBlogs
}
