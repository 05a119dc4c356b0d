package server

import "net/http"

// registerRoutes builds the full HTTP surface of spec §6. Each route is
// wrapped in exactly the auth middleware its table entry names; "public"
// routes get none.
func (s *Server) registerRoutes() http.Handler {
	mux := http.NewServeMux()

	publisherAuth := publisherAuthMiddleware(s.storage.Publishers())
	adminAuth := adminAuthMiddleware(s.config)

	mux.Handle("/jobs/process", publisherAuth(http.HandlerFunc(s.handleJobsProcess)))
	mux.Handle("/jobs/status/", adminAuth(http.HandlerFunc(s.handleJobStatus)))
	mux.Handle("/jobs/stats", adminAuth(http.HandlerFunc(s.handleJobsStats)))
	mux.Handle("/jobs/cancel/", adminAuth(http.HandlerFunc(s.handleJobsCancel)))

	mux.Handle("/questions/check-and-load", publisherAuth(http.HandlerFunc(s.handleCheckAndLoad)))
	mux.Handle("/questions/by-url", publisherAuth(http.HandlerFunc(s.handleQuestionsByURL)))
	// /questions/{id} serves both the admin read (GET) and the admin purge
	// (DELETE) of a blog, dispatched by method since they share one prefix.
	mux.Handle("/questions/", adminAuth(http.HandlerFunc(s.dispatchQuestionsByID)))

	mux.Handle("/search/similar", publisherAuth(http.HandlerFunc(s.handleSearchSimilar)))
	mux.Handle("/qa/ask", publisherAuth(http.HandlerFunc(s.handleQAAsk)))

	mux.Handle("/publishers/onboard", adminAuth(http.HandlerFunc(s.handlePublishersOnboard)))
	mux.HandleFunc("/publishers/metadata", s.handlePublishersMetadata)

	mux.Handle("/jobs/stream", adminAuth(http.HandlerFunc(s.handleJobsStream)))

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/version", s.handleVersion)

	return mux
}

// dispatchQuestionsByID dispatches GET /questions/{question_id} (read, with
// click accounting) and DELETE /questions/{blog_id} (purge) by method — the
// two operations share the /questions/ prefix in spec §6's table.
func (s *Server) dispatchQuestionsByID(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleQuestionByID(w, r)
	case http.MethodDelete:
		s.handleQuestionsDeleteBlog(w, r)
	default:
		RequireMethod(w, r, http.MethodGet, http.MethodDelete)
	}
}
