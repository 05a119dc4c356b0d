package server

import (
	"net/http"

	"github.com/lumenfeed/ingest/internal/apierr"
	"github.com/lumenfeed/ingest/internal/services/urlnorm"
)

// handleCheckAndLoad handles GET /questions/check-and-load?blog_url=...
// (publisher auth): the fused idempotent-read-or-enqueue flow.
func (s *Server) handleCheckAndLoad(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	publisher := publisherFromContext(r.Context())
	blogURL := r.URL.Query().Get("blog_url")
	if blogURL == "" {
		WriteError(w, r, http.StatusBadRequest, "blog_url query parameter is required")
		return
	}

	result, err := s.intake.CheckAndLoad(r.Context(), blogURL, publisher)
	if err != nil {
		WriteAPIError(w, r, s.logger, err)
		return
	}
	WriteResult(w, r, http.StatusOK, "check-and-load result", result)
}

// handleQuestionsByURL handles GET /questions/by-url?blog_url=... (publisher
// auth): read the generated questions for an already-ingested blog.
func (s *Server) handleQuestionsByURL(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	publisher := publisherFromContext(r.Context())
	rawURL := r.URL.Query().Get("blog_url")
	if rawURL == "" {
		WriteError(w, r, http.StatusBadRequest, "blog_url query parameter is required")
		return
	}

	url, err := urlnorm.Normalize(rawURL)
	if err != nil {
		WriteAPIError(w, r, s.logger, apierr.Validation("INVALID_URL", err.Error()))
		return
	}
	if err := s.policy.CheckDomain(url, publisher); err != nil {
		WriteAPIError(w, r, s.logger, err)
		return
	}

	questions, err := s.storage.Artifacts().QuestionsByURL(r.Context(), url)
	if err != nil {
		WriteAPIError(w, r, s.logger, err)
		return
	}
	WriteResult(w, r, http.StatusOK, "questions", questions)
}

// handleQuestionByID handles GET /questions/{question_id} (admin auth).
// Reading a single question counts as a click-through and increments its
// click_count, per the monotonic counter invariant in spec §8.
func (s *Server) handleQuestionByID(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	questionID := PathParam(r, "/questions/", "")
	if questionID == "" {
		WriteError(w, r, http.StatusBadRequest, "question_id is required")
		return
	}

	question, err := s.storage.Artifacts().QuestionByID(r.Context(), questionID)
	if err != nil {
		WriteAPIError(w, r, s.logger, err)
		return
	}
	if question == nil {
		WriteAPIError(w, r, s.logger, apierr.NotFound(apierr.CodeQuestionNotFound, "question not found"))
		return
	}

	newCount, err := s.storage.Artifacts().IncrementQuestionClick(r.Context(), questionID)
	if err != nil {
		s.logger.Warn().Err(err).Str("question_id", questionID).Msg("failed to increment click count")
	} else {
		question.ClickCount = newCount
	}
	WriteResult(w, r, http.StatusOK, "question", question)
}

// handleQuestionsDeleteBlog handles DELETE /questions/{blog_id} (admin auth):
// purge a blog and everything derived from it.
func (s *Server) handleQuestionsDeleteBlog(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}
	blogID := PathParam(r, "/questions/", "")
	if blogID == "" {
		WriteError(w, r, http.StatusBadRequest, "blog_id is required")
		return
	}

	result, err := s.deletion.Delete(r.Context(), blogID)
	if err != nil {
		WriteAPIError(w, r, s.logger, err)
		return
	}
	WriteResult(w, r, http.StatusOK, "blog deleted", result)
}
