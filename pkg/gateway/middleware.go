package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hfgate/hfgate/pkg/session"
)

// bearerToken extracts the value of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return token
	}
	return ""
}

// requireSession guards the admin proxy routes. It validates the bearer
// session token and attaches the session to the request context. A
// missing token and an invalid or expired one are distinguished only in
// logs; both produce the same unauthorized response.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			h.logger.Info("session auth rejected: no token supplied", "path", r.URL.Path)
			writeError(w, http.StatusUnauthorized, "authentication token required")
			return
		}

		sess, err := h.sessions.Validate(token)
		if err != nil {
			h.logger.Info("session auth rejected: token invalid or expired",
				"path", r.URL.Path, "token", session.TokenPrefix(token))
			writeError(w, http.StatusUnauthorized, "authentication token invalid or expired")
			return
		}

		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), sess)))
	})
}

// requireAPIKey guards the external /api/v1 family with the shared
// static secret. The secret authorizes use of this gateway only; the
// upstream action is authorized by the caller-supplied platform token
// in the path, and the two must never be conflated. With no key
// configured the family refuses all requests.
func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		supplied := bearerToken(r)
		if h.cfg.APIKey == "" || supplied == "" ||
			subtle.ConstantTimeCompare([]byte(supplied), []byte(h.cfg.APIKey)) != 1 {
			h.logger.Info("api key auth rejected", "path", r.URL.Path)
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for logging and metrics.
// It forwards Flush so streaming responses keep working underneath the
// logging middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	return rec.ResponseWriter.Write(b)
}

func (rec *statusRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// logRequests attaches a request ID and records method, route, status
// and duration for every request.
func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}

		h.logger.Info("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
		)
		if h.metrics != nil {
			h.metrics.ObserveRequest(route, r.Method, status, elapsed)
		}
	})
}
