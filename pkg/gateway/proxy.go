package gateway

import (
	"fmt"
	"net/http"

	"github.com/hfgate/hfgate/pkg/spaces"
)

// handleListSpaces serves the aggregated inventory. A fresh cache is
// served directly; a stale one triggers a (coalesced) refresh first.
// When a refresh fails but an older inventory exists, the stale data is
// served rather than an error: the cache is the source of resilience.
func (h *Handler) handleListSpaces(w http.ResponseWriter, r *http.Request) {
	if h.cache.IsStale() {
		_, err := h.aggregator.Refresh(r.Context())
		if h.metrics != nil {
			h.metrics.ObserveRefresh(err == nil)
		}
		if err != nil {
			if h.cache.Len() == 0 {
				h.logger.Error("inventory refresh failed with empty cache", "error", err)
				writeError(w, http.StatusBadGateway, "could not fetch spaces")
				return
			}
			h.logger.Warn("inventory refresh failed, serving stale data", "error", err)
		}
	} else {
		h.logger.Debug("serving spaces from cache")
	}

	// Space.Token carries json:"-", so the owning tokens are redacted
	// here by construction.
	records := h.cache.All()
	spaces.SortByName(records)
	writeJSON(w, http.StatusOK, records)
}

// handleRestart restarts a space using the owning credential's token
// from the cache.
func (h *Handler) handleRestart(w http.ResponseWriter, r *http.Request) {
	h.controlAction(w, r, false)
}

// handleRebuild factory-rebuilds a space: the same upstream restart
// operation with the factory flag set.
func (h *Handler) handleRebuild(w http.ResponseWriter, r *http.Request) {
	h.controlAction(w, r, true)
}

func (h *Handler) controlAction(w http.ResponseWriter, r *http.Request, factory bool) {
	repoID := r.PathValue("repoId")
	operation := "restart"
	if factory {
		operation = "rebuild"
	}

	sp, ok := h.cache.Find(repoID)
	if !ok || sp.Token == "" {
		h.logger.Warn("control action on unavailable space",
			"space", repoID, "operation", operation, "cached", ok)
		writeError(w, http.StatusNotFound, "space not found or no token configured")
		return
	}

	if err := h.upstream.Restart(r.Context(), repoID, sp.Token, factory); err != nil {
		h.logger.Error("control action failed",
			"space", repoID, "operation", operation, "error", err)
		writeJSON(w, upstreamStatus(err, http.StatusInternalServerError), map[string]any{
			"error":   fmt.Sprintf("%s failed", operation),
			"details": upstreamMessage(err),
		})
		return
	}

	h.logger.Info("control action succeeded", "space", repoID, "operation", operation)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("space %s %s succeeded", repoID, operation),
	})
}
