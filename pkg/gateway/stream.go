package gateway

import (
	"io"
	"net/http"
)

// handleLiveMetrics proxies the upstream live-metrics SSE stream for
// one space instance. The cached inventory gates the request: an
// instance that is absent or not running is rejected before any
// upstream contact. Bytes are piped through unbuffered until either
// side closes; the request context ties the upstream stream to the
// client connection, so a disconnect cancels the upstream pull.
func (h *Handler) handleLiveMetrics(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	instanceID := r.PathValue("instanceId")
	repoID := username + "/" + instanceID

	sp, ok := h.cache.Find(repoID)
	if !ok {
		h.logger.Info("metrics stream rejected: instance not cached", "instance", repoID)
		writeError(w, http.StatusNotFound, "instance not found")
		return
	}
	if !sp.IsRunning() {
		h.logger.Info("metrics stream rejected: instance not running",
			"instance", repoID, "status", sp.Status)
		writeError(w, http.StatusBadRequest, "instance not running")
		return
	}

	token, _ := h.registry.TokenFor(username)
	body, err := h.upstream.LiveMetrics(r.Context(), username, instanceID, token)
	if err != nil {
		h.logger.Error("opening metrics stream failed", "instance", repoID, "error", err)
		writeError(w, upstreamStatus(err, http.StatusBadGateway), "could not open metrics stream")
		return
	}
	defer body.Close()

	if h.metrics != nil {
		defer h.metrics.StreamOpened()()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	h.logger.Info("metrics stream opened", "instance", repoID)
	streamCopy(w, body)
	h.logger.Info("metrics stream closed", "instance", repoID)
}

// streamCopy pipes upstream bytes to the client, flushing after every
// read so events are delivered as they arrive rather than when a
// buffer fills.
func streamCopy(w http.ResponseWriter, body io.Reader) {
	flusher, canFlush := w.(http.Flusher)
	buf := make([]byte, 32*1024)

	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}
		if err != nil {
			return
		}
	}
}
