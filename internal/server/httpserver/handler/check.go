package handler

import (
	"io"
	"net/http"

	"github.com/yndnr/scriptgate-go/internal/core/domain"
	"github.com/yndnr/scriptgate-go/internal/core/service"
	"github.com/yndnr/scriptgate-go/internal/telemetry/logger"
)

// maxArtifactBytes bounds the multipart upload size.
const maxArtifactBytes = 10 << 20

// handleCheck accepts an answer submission for POST /check/{name}.
//
// The body is multipart form data with a "fingerprint" field and an
// "image" file. On success the evaluation output is returned as
// plain text, matching what the injected client script expects.
func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	r.Body = http.MaxBytesReader(w, r.Body, maxArtifactBytes)
	if err := r.ParseMultipartForm(maxArtifactBytes); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "SG-SYS-4000", "malformed multipart body")
		return
	}

	fingerprint := r.FormValue("fingerprint")

	file, header, err := r.FormFile("image")
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrArtifactInvalid.Code, "image file is required")
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrArtifactInvalid.Code, "unreadable image upload")
		return
	}

	resp, err := h.svc.SubmissionGate(r.Context(), &service.SubmitRequest{
		Name:        name,
		Fingerprint: fingerprint,
		Image:       image,
		Filename:    header.Filename,
	})
	if err != nil {
		code := domain.GetErrorCode(err)
		if h.metrics != nil {
			h.metrics.SubmissionsTotal.WithLabelValues("rejected").Inc()
			h.metrics.GateRejections.WithLabelValues("submission", code).Inc()
		}
		logger.L(r.Context()).Warn("submission rejected",
			"script", name,
			"fingerprint", fingerprint,
			"code", code,
		)
		h.handleServiceError(w, r, err)
		return
	}

	if h.metrics != nil {
		h.metrics.SubmissionsTotal.WithLabelValues("accepted").Inc()
		h.metrics.ArtifactBytes.Observe(float64(len(image)))
	}
	logger.L(r.Context()).Info("submission accepted",
		"script", name,
		"answer", resp.Answer.ID,
		"used", resp.Script.Used,
	)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(resp.Output))
}
