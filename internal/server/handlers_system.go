package server

import (
	"net/http"

	"github.com/lumenfeed/ingest/internal/common"
)

// handleHealth handles GET /health: a liveness probe with no dependencies.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteResult(w, r, http.StatusOK, "ok", map[string]string{"status": "ok"})
}

// handleVersion handles GET /version.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteResult(w, r, http.StatusOK, "version", map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}
