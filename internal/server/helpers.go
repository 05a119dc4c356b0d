package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/lumenfeed/ingest/internal/apierr"
	"github.com/lumenfeed/ingest/internal/common"
)

// Envelope is the sole response shape written to any HTTP caller (spec §6):
// every response, success or error, carries status, status_code, message,
// request_id and timestamp, plus result when there is one to return.
type Envelope struct {
	Status     string      `json:"status"`
	StatusCode int         `json:"status_code"`
	Message    string      `json:"message"`
	Result     interface{} `json:"result,omitempty"`
	RequestID  string      `json:"request_id"`
	Timestamp  time.Time   `json:"timestamp"`
}

// WriteResult writes a status=success envelope carrying result.
func WriteResult(w http.ResponseWriter, r *http.Request, statusCode int, message string, result interface{}) {
	writeEnvelope(w, r, statusCode, "success", message, result)
}

// WriteError writes a status=error envelope with no result payload.
func WriteError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	writeEnvelope(w, r, statusCode, "error", message, nil)
}

// WriteAPIError maps err to a status code via apierr's taxonomy (spec §7)
// and writes the error envelope, logging unexpected (5xx) failures. Internal-
// only classifications (TransientUpstreamError, PermanentUpstreamError) never
// reach here — PipelineExecutor resolves those before a job reaches a
// terminal state, never an HTTP caller.
func WriteAPIError(w http.ResponseWriter, r *http.Request, logger *common.Logger, err error) {
	code, msg := mapError(err)
	if code >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed with internal error")
	}
	WriteError(w, r, code, msg)
}

func writeEnvelope(w http.ResponseWriter, r *http.Request, statusCode int, status, message string, result interface{}) {
	requestID := w.Header().Get("X-Correlation-ID")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	env := Envelope{
		Status:     status,
		StatusCode: statusCode,
		Message:    message,
		Result:     result,
		RequestID:  requestID,
		Timestamp:  time.Now().UTC(),
	}
	_ = json.NewEncoder(w).Encode(env)
}

// mapError classifies err per spec §7's taxonomy into an HTTP status and a
// caller-facing message. Errors that aren't an *apierr.Error (store/service
// bugs, wrapped stdlib errors) are treated as 500 IntegrityError.
func mapError(err error) (int, string) {
	apiErr, ok := err.(*apierr.Error)
	if !ok {
		return http.StatusInternalServerError, "internal error"
	}

	switch apiErr.Kind {
	case apierr.KindValidation:
		return http.StatusBadRequest, apiErr.Message
	case apierr.KindAuth:
		switch apiErr.Code {
		case apierr.CodeInvalidAPIKey, apierr.CodeInvalidAdminKey:
			return http.StatusUnauthorized, apiErr.Message
		default:
			return http.StatusForbidden, apiErr.Message
		}
	case apierr.KindQuota:
		if apiErr.Code == apierr.CodeDailyLimitExceeded {
			return http.StatusTooManyRequests, apiErr.Message
		}
		return http.StatusForbidden, apiErr.Message
	case apierr.KindNotFound:
		return http.StatusNotFound, apiErr.Message
	case apierr.KindConflict:
		if apiErr.Code == apierr.CodeCannotCancel {
			return http.StatusBadRequest, apiErr.Message
		}
		return http.StatusConflict, apiErr.Message
	case apierr.KindIntegrity:
		return http.StatusInternalServerError, apiErr.Message
	default:
		return http.StatusInternalServerError, apiErr.Message
	}
}

// RequireMethod validates the HTTP method and returns true if it matches.
// If it doesn't match, it writes a 405 envelope and returns false.
func RequireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	WriteError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

// DecodeJSON reads and decodes JSON from the request body into v, capped at
// 1MB. Writes a 400 envelope and returns false if decoding fails.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil {
		WriteError(w, r, http.StatusBadRequest, "request body is required")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// PathParam extracts a path parameter from the URL path.
// For a pattern like /jobs/status/{job_id}, calling PathParam(r, "/jobs/status/", "")
// extracts the {job_id} part.
func PathParam(r *http.Request, prefix, suffix string) string {
	path := r.URL.Path
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	rest := path[len(prefix):]
	if suffix != "" {
		idx := strings.Index(rest, suffix)
		if idx < 0 {
			return rest
		}
		return rest[:idx]
	}
	if idx := strings.Index(rest, "/"); idx >= 0 {
		return rest[:idx]
	}
	return rest
}
