package server

import (
	"net/http"

	"github.com/lumenfeed/ingest/internal/apierr"
	"github.com/lumenfeed/ingest/internal/models"
	"github.com/lumenfeed/ingest/internal/services/urlnorm"
)

// handlePublishersOnboard handles POST /publishers/onboard (admin auth):
// create a publisher and return its api_key exactly once.
func (s *Server) handlePublishersOnboard(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var body struct {
		Name   string                 `json:"name"`
		Domain string                 `json:"domain"`
		Email  string                 `json:"email"`
		Config models.PublisherConfig `json:"config"`
	}
	if !DecodeJSON(w, r, &body) {
		return
	}
	if body.Name == "" || body.Domain == "" {
		WriteError(w, r, http.StatusBadRequest, "name and domain are required")
		return
	}

	config := models.DefaultPublisherConfig().Merge(body.Config)

	publisher, apiKey, err := s.storage.Publishers().Create(r.Context(), body.Name, body.Domain, body.Email, config)
	if err != nil {
		WriteAPIError(w, r, s.logger, err)
		return
	}

	// An admin session token is an optional convenience alongside api_key: it
	// lets the onboarding caller make further admin calls without resending
	// X-Admin-Key. Failure to issue one never fails onboarding itself.
	sessionToken, err := issueAdminSessionToken(s.config)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to issue admin session token")
	}

	WriteResult(w, r, http.StatusOK, "publisher onboarded", map[string]any{
		"publisher":           publisher,
		"api_key":             apiKey,
		"admin_session_token": sessionToken,
	})
}

// publisherMetadata is the public, non-secret widget bootstrap payload.
type publisherMetadata struct {
	Ready         bool   `json:"ready"`
	Title         string `json:"title,omitempty"`
	QuestionCount int    `json:"question_count"`
}

// handlePublishersMetadata handles GET /publishers/metadata?blog_url=...
// (public, no auth): widget bootstrap data only, resolved by normalized URL.
func (s *Server) handlePublishersMetadata(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

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

	host, err := urlnorm.Host(url)
	if err != nil {
		WriteAPIError(w, r, s.logger, apierr.Validation("INVALID_URL", err.Error()))
		return
	}
	publisher, err := s.storage.Publishers().ByDomain(r.Context(), host, true)
	if err != nil {
		WriteAPIError(w, r, s.logger, err)
		return
	}
	if publisher == nil {
		WriteAPIError(w, r, s.logger, apierr.NotFound(apierr.CodePublisherNotFound, "no publisher registered for this domain"))
		return
	}

	questions, err := s.storage.Artifacts().QuestionsByURL(r.Context(), url)
	if err != nil {
		WriteAPIError(w, r, s.logger, err)
		return
	}
	if len(questions) == 0 {
		WriteResult(w, r, http.StatusOK, "widget metadata", publisherMetadata{Ready: false})
		return
	}

	blog, err := s.storage.Artifacts().BlogByURL(r.Context(), url)
	if err != nil {
		WriteAPIError(w, r, s.logger, err)
		return
	}
	title := ""
	if blog != nil {
		title = blog.Title
	}
	WriteResult(w, r, http.StatusOK, "widget metadata", publisherMetadata{
		Ready:         true,
		Title:         title,
		QuestionCount: len(questions),
	})
}
