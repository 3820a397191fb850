package handler

import (
	"net/http"

	"github.com/yndnr/scriptgate-go/internal/core/domain"
	"github.com/yndnr/scriptgate-go/internal/telemetry/logger"
)

// handleDeliver serves the script payload for GET /script/{name}.
//
// The delivery gate must fully pass; any rejection is reported as a
// bare 403 so probing clients learn nothing about why, or whether the
// name even exists.
func (h *Handler) handleDeliver(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	script, err := h.svc.DeliveryGate(r.Context(), name)
	if err != nil {
		code := domain.GetErrorCode(err)
		if h.metrics != nil {
			h.metrics.GateRejections.WithLabelValues("delivery", code).Inc()
		}
		logger.L(r.Context()).Info("delivery rejected",
			"script", name,
			"code", code,
		)
		w.WriteHeader(http.StatusForbidden)
		return
	}

	logger.L(r.Context()).Info("script delivered",
		"script", script.Name,
		"used", script.Used,
		"max_used", script.MaxUsed,
	)

	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.payload)
}
