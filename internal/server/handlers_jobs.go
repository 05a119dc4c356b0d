package server

import (
	"net/http"

	"github.com/lumenfeed/ingest/internal/apierr"
)

// handleJobsProcess handles POST /jobs/process (publisher auth): enqueue.
func (s *Server) handleJobsProcess(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	publisher := publisherFromContext(r.Context())

	var body struct {
		BlogURL string `json:"blog_url"`
	}
	if !DecodeJSON(w, r, &body) {
		return
	}
	if body.BlogURL == "" {
		WriteError(w, r, http.StatusBadRequest, "blog_url is required")
		return
	}

	result, err := s.intake.Enqueue(r.Context(), body.BlogURL, publisher)
	if err != nil {
		WriteAPIError(w, r, s.logger, err)
		return
	}

	if result.AlreadyProcessed {
		WriteResult(w, r, http.StatusOK, "already processed", map[string]any{
			"job_id":            result.JobID,
			"already_processed": true,
		})
		return
	}
	WriteResult(w, r, http.StatusAccepted, "job enqueued", map[string]any{
		"job_id":            result.JobID,
		"already_processed": false,
	})
}

// handleJobStatus handles GET /jobs/status/{job_id} (admin auth).
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	jobID := PathParam(r, "/jobs/status/", "")
	if jobID == "" {
		WriteError(w, r, http.StatusBadRequest, "job_id is required")
		return
	}

	job, err := s.storage.Jobs().Get(r.Context(), jobID)
	if err != nil {
		WriteAPIError(w, r, s.logger, err)
		return
	}
	if job == nil {
		WriteAPIError(w, r, s.logger, apierr.NotFound(apierr.CodeJobNotFound, "job not found"))
		return
	}
	WriteResult(w, r, http.StatusOK, "job status", job)
}

// handleJobsStats handles GET /jobs/stats (admin auth): queue counts by status.
func (s *Server) handleJobsStats(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	stats, err := s.storage.Jobs().Stats(r.Context())
	if err != nil {
		WriteAPIError(w, r, s.logger, err)
		return
	}
	WriteResult(w, r, http.StatusOK, "queue stats", stats)
}

// handleJobsCancel handles POST /jobs/cancel/{job_id} (admin auth).
func (s *Server) handleJobsCancel(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	jobID := PathParam(r, "/jobs/cancel/", "")
	if jobID == "" {
		WriteError(w, r, http.StatusBadRequest, "job_id is required")
		return
	}

	if err := s.storage.Jobs().Cancel(r.Context(), jobID); err != nil {
		WriteAPIError(w, r, s.logger, err)
		return
	}
	WriteResult(w, r, http.StatusOK, "job cancelled", map[string]any{"job_id": jobID})
}

// handleJobsStream handles GET /jobs/stream (admin auth): upgrades to a
// WebSocket and streams job_queued/job_started/job_completed/job_failed
// events as they happen. Observability only — no request/response envelope,
// since the connection never completes a normal HTTP round trip.
func (s *Server) handleJobsStream(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		WriteError(w, r, http.StatusServiceUnavailable, "job event stream is not available")
		return
	}
	s.events.ServeWS(w, r)
}
