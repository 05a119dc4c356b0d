package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lumenfeed/ingest/internal/common"
	"github.com/lumenfeed/ingest/internal/interfaces"
)

// responseWriter wraps http.ResponseWriter to capture status code and bytes written.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// recoveryMiddleware catches panics and returns 500.
func recoveryMiddleware(logger *common.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error().
						Str("panic", fmt.Sprintf("%v", rec)).
						Str("path", r.URL.Path).
						Msg("panic recovered in HTTP handler")
					WriteError(w, r, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware adds CORS headers so a publisher's widget can call the API
// from the browser.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, X-Correlation-ID, X-API-Key, X-Admin-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// correlationIDMiddleware extracts or generates a correlation/request id.
func correlationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corrID := r.Header.Get("X-Request-ID")
		if corrID == "" {
			corrID = r.Header.Get("X-Correlation-ID")
		}
		if corrID == "" {
			corrID = uuid.New().String()
		}
		w.Header().Set("X-Correlation-ID", corrID)
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests.
func loggingMiddleware(logger *common.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			dur := time.Since(start)
			corrID := w.Header().Get("X-Correlation-ID")

			event := logger.Trace()
			if rw.statusCode >= 500 {
				event = logger.Error()
			} else if rw.statusCode >= 400 {
				event = logger.Info()
			}

			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("query", r.URL.RawQuery).
				Int("status", rw.statusCode).
				Int("bytes", rw.bytesWritten).
				Dur("duration", dur).
				Str("correlation_id", corrID).
				Msg("HTTP request")
		})
	}
}

// publisherAuthMiddleware requires a valid X-API-Key header and resolves it
// to a Publisher via PublisherStore.ByAPIKey, storing the result on the
// request context for handlers to read via publisherFromContext.
func publisherAuthMiddleware(publishers interfaces.PublisherStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				WriteError(w, r, http.StatusUnauthorized, "missing X-API-Key header")
				return
			}
			publisher, err := publishers.ByAPIKey(r.Context(), key)
			if err != nil {
				WriteError(w, r, http.StatusInternalServerError, "internal error")
				return
			}
			if publisher == nil {
				WriteError(w, r, http.StatusUnauthorized, "invalid API key")
				return
			}
			r = r.WithContext(withPublisher(r.Context(), publisher))
			next.ServeHTTP(w, r)
		})
	}
}

// adminAuthMiddleware requires either X-Admin-Key to match
// config.Auth.AdminKeySecret (compared in constant time to avoid a timing
// side channel) or a Bearer admin session token issued by
// issueAdminSessionToken — the latter lets an admin tool avoid resending the
// raw secret on every call after onboarding.
func adminAuthMiddleware(config *common.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key := r.Header.Get("X-Admin-Key"); key != "" {
				expected := config.Auth.AdminKeySecret
				if expected != "" && subtle.ConstantTimeCompare([]byte(key), []byte(expected)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
				WriteError(w, r, http.StatusUnauthorized, "invalid admin key")
				return
			}

			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				token := strings.TrimPrefix(auth, "Bearer ")
				if err := validateAdminSessionToken(token, config); err != nil {
					WriteError(w, r, http.StatusUnauthorized, "invalid admin session token")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			WriteError(w, r, http.StatusUnauthorized, "missing X-Admin-Key header or admin session token")
		})
	}
}

// applyMiddleware wraps a handler with the ambient stack: recovery, CORS,
// correlation id, logging. Per-route auth (publisherAuthMiddleware /
// adminAuthMiddleware) is applied in routes.go around individual handlers,
// since the auth requirement varies per endpoint rather than being uniform
// across the whole mux.
func applyMiddleware(handler http.Handler, logger *common.Logger) http.Handler {
	handler = loggingMiddleware(logger)(handler)
	handler = correlationIDMiddleware(handler)
	handler = corsMiddleware(handler)
	handler = recoveryMiddleware(logger)(handler)
	return handler
}
