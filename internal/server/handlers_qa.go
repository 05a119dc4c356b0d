package server

import "net/http"

// handleQAAsk handles POST /qa/ask (publisher auth): a non-persisting,
// on-demand LLM answer over an already-ingested blog.
func (s *Server) handleQAAsk(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	publisher := publisherFromContext(r.Context())

	var body struct {
		BlogURL  string `json:"blog_url"`
		Question string `json:"question"`
	}
	if !DecodeJSON(w, r, &body) {
		return
	}

	answer, err := s.qa.Ask(r.Context(), body.BlogURL, body.Question, publisher)
	if err != nil {
		WriteAPIError(w, r, s.logger, err)
		return
	}
	WriteResult(w, r, http.StatusOK, "answer", map[string]any{"answer": answer})
}
