package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hfgate/hfgate/pkg/hub"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// upstreamStatus maps an upstream call failure to a response status:
// the upstream's own status code when known, else fallback.
func upstreamStatus(err error, fallback int) int {
	var apiErr *hub.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		return apiErr.StatusCode
	}
	return fallback
}

// upstreamMessage extracts the upstream error message when present.
func upstreamMessage(err error) string {
	var apiErr *hub.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
