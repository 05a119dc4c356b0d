package server

import (
	"net/http"

	"github.com/lumenfeed/ingest/internal/apierr"
)

// handleSearchSimilar handles POST /search/similar (publisher auth):
// nearest-neighbor search over question embeddings, restricted to the
// caller's own domain.
func (s *Server) handleSearchSimilar(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	publisher := publisherFromContext(r.Context())

	var body struct {
		Query      string `json:"query"`
		QuestionID string `json:"question_id"`
		Limit      int    `json:"limit"`
	}
	if !DecodeJSON(w, r, &body) {
		return
	}
	if body.Query == "" && body.QuestionID == "" {
		WriteAPIError(w, r, s.logger, apierr.Validation("MISSING_QUERY", "either query or question_id is required"))
		return
	}

	results, err := s.search.Similar(r.Context(), body.Query, body.QuestionID, body.Limit, publisher)
	if err != nil {
		WriteAPIError(w, r, s.logger, err)
		return
	}
	WriteResult(w, r, http.StatusOK, "similar questions", results)
}
