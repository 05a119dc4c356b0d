package llm

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/lumenfeed/ingest/internal/apierr"
)

// classifyGenAIError maps a genai API error to the TRANSIENT/PERMANENT
// upstream taxonomy (spec §7): rate limits, timeouts, and 5xx are
// transient (worth a retry); 4xx other than 429 are permanent.
func classifyGenAIError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return apierr.Transient("llm.generate", fmt.Errorf("rate limited: %w", err))
		case apiErr.Code >= 500:
			return apierr.Transient("llm.generate", err)
		case apiErr.Code >= 400:
			return apierr.Permanent("llm.generate", err)
		}
	}

	return apierr.Transient("llm.generate", err)
}
