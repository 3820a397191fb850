package handler

import (
	"net/http"

	"github.com/yndnr/scriptgate-go/internal/infra/buildinfo"
)

// handleHealth reports process liveness.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildinfo.Version,
	})
}

// handleReady reports whether the storage backend is reachable.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			h.writeError(w, r, http.StatusServiceUnavailable, "SG-SYS-5001", "storage not ready")
			return
		}
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}
