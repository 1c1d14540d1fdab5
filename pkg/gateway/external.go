package gateway

import (
	"fmt"
	"net/http"
	"strings"
)

// The /api/v1 family serves external clients that bring their own
// platform token as a path parameter. These handlers never touch the
// cache or the credential registry: the gateway only relays calls made
// with the caller's token, on the caller's behalf.

// handleExternalList lists the space ids owned by the identity the
// caller's token resolves to.
func (h *Handler) handleExternalList(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	ident, err := h.upstream.WhoAmI(r.Context(), token)
	if err != nil {
		h.logger.Error("external list: identity lookup failed", "error", err)
		writeError(w, upstreamStatus(err, http.StatusInternalServerError), upstreamMessage(err))
		return
	}

	refs, err := h.upstream.ListSpaces(r.Context(), ident.Name, token)
	if err != nil {
		h.logger.Error("external list: listing failed", "username", ident.Name, "error", err)
		writeError(w, upstreamStatus(err, http.StatusInternalServerError), upstreamMessage(err))
		return
	}

	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		detail, err := h.upstream.SpaceInfo(r.Context(), ref.ID, token)
		if err != nil {
			h.logger.Error("external list: space detail failed", "space", ref.ID, "error", err)
			continue
		}
		ids = append(ids, detail.ID)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"spaces": ids,
		"total":  len(ids),
	})
}

// externalInfoResponse is the per-space detail subset exposed to
// external clients.
type externalInfoResponse struct {
	ID           string   `json:"id"`
	Status       string   `json:"status"`
	LastModified *string  `json:"last_modified"`
	CreatedAt    *string  `json:"created_at"`
	SDK          string   `json:"sdk"`
	Tags         []string `json:"tags"`
	Private      bool     `json:"private"`
}

// handleExternalInfo returns the detail for one space, fetched with the
// caller's token.
func (h *Handler) handleExternalInfo(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	spaceID := r.PathValue("spaceId")

	detail, err := h.upstream.SpaceInfo(r.Context(), spaceID, token)
	if err != nil {
		h.logger.Error("external info failed", "space", spaceID, "error", err)
		writeError(w, upstreamStatus(err, http.StatusNotFound), upstreamMessage(err))
		return
	}

	resp := externalInfoResponse{
		ID:           detail.ID,
		Status:       orUnknown(detail.Runtime.Stage),
		LastModified: nullable(detail.LastModified),
		CreatedAt:    nullable(detail.CreatedAt),
		SDK:          orUnknown(detail.SDK),
		Tags:         detail.Tags,
		Private:      detail.Private,
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleExternalAction dispatches the restart/rebuild action encoded as
// the last path segment: /api/v1/action/{token}/{owner}/{name}/{action}.
func (h *Handler) handleExternalAction(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	rest := r.PathValue("rest")

	spaceID, action, ok := splitAction(rest)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown action")
		return
	}
	factory := action == "rebuild"

	if err := h.upstream.Restart(r.Context(), spaceID, token, factory); err != nil {
		h.logger.Error("external action failed",
			"space", spaceID, "operation", action, "error", err)
		writeJSON(w, upstreamStatus(err, http.StatusInternalServerError), map[string]any{
			"success": false,
			"error":   upstreamMessage(err),
		})
		return
	}

	h.logger.Info("external action succeeded", "space", spaceID, "operation", action)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("space %s %s succeeded", spaceID, action),
	})
}

// splitAction separates "owner/name/restart" into the space id and the
// action suffix.
func splitAction(rest string) (spaceID, action string, ok bool) {
	idx := strings.LastIndex(rest, "/")
	if idx < 0 {
		return "", "", false
	}
	spaceID, action = rest[:idx], rest[idx+1:]
	if spaceID == "" || (action != "restart" && action != "rebuild") {
		return "", "", false
	}
	return spaceID, action, true
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// nullable maps the empty string to JSON null, matching the external
// API contract.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
