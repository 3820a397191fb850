package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/yndnr/scriptgate-go/internal/core/domain"
	"github.com/yndnr/scriptgate-go/internal/core/service"
	"github.com/yndnr/scriptgate-go/internal/telemetry/logger"
)

// handleIssue creates a script for POST /admin/v1/scripts.
func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req IssueScriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "SG-SYS-4000", "malformed JSON body")
		return
	}

	script, err := h.svc.Issue(r.Context(), &service.IssueScriptRequest{
		Name:    req.Name,
		MaxUsed: req.MaxUsed,
		Status:  domain.ScriptStatus(req.Status),
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	if h.metrics != nil {
		h.metrics.ScriptsIssued.Inc()
	}
	logger.L(r.Context()).Info("script issued",
		"script", script.Name,
		"max_used", script.MaxUsed,
		"status", string(script.Status),
	)
	h.writeJSON(w, r, http.StatusCreated, newScriptResponse(script))
}

// handleResolve returns the current script state for
// GET /admin/v1/scripts/{name}, refreshing the advisory status first.
func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	script, err := h.svc.Resolve(r.Context(), r.PathValue("name"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, newScriptResponse(script))
}

// handleAnswers lists recorded answers for
// GET /admin/v1/scripts/{name}/answers.
func (h *Handler) handleAnswers(w http.ResponseWriter, r *http.Request) {
	answers, err := h.svc.Answers(r.Context(), r.PathValue("name"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	items := make([]AnswerResponse, 0, len(answers))
	for _, a := range answers {
		items = append(items, newAnswerResponse(a))
	}
	h.writeJSON(w, r, http.StatusOK, ListAnswersResponse{Answers: items, Total: len(items)})
}

// handleChangeStatus overrides the script status for
// POST /admin/v1/scripts/{name}/status.
func (h *Handler) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	var req ChangeStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "SG-SYS-4000", "malformed JSON body")
		return
	}

	script, err := h.svc.ChangeStatus(r.Context(), r.PathValue("name"), domain.ScriptStatus(req.Status))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	if h.metrics != nil {
		h.metrics.StatusTransitions.WithLabelValues(req.Status).Inc()
	}
	logger.L(r.Context()).Info("status overridden",
		"script", script.Name,
		"status", req.Status,
	)
	h.writeJSON(w, r, http.StatusOK, newScriptResponse(script))
}

// handleChangeFirstSeen overrides the activation window start for
// POST /admin/v1/scripts/{name}/first-seen. An empty value clears it
// so the next submission starts a fresh window.
func (h *Handler) handleChangeFirstSeen(w http.ResponseWriter, r *http.Request) {
	var req ChangeFirstSeenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "SG-SYS-4000", "malformed JSON body")
		return
	}

	firstSeen := time.UnixMilli(0)
	if req.FirstSeen != "" {
		parsed, err := time.Parse(time.RFC3339, req.FirstSeen)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, domain.ErrInvalidArgument.Code,
				"first_seen must be RFC 3339 or empty")
			return
		}
		firstSeen = parsed
	}

	script, err := h.svc.ChangeFirstSeen(r.Context(), r.PathValue("name"), firstSeen)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	logger.L(r.Context()).Info("first seen overridden",
		"script", script.Name,
		"first_seen", req.FirstSeen,
	)
	h.writeJSON(w, r, http.StatusOK, newScriptResponse(script))
}

// handleChangeFingerprint overrides the device binding for
// POST /admin/v1/scripts/{name}/fingerprint. An empty value unbinds.
func (h *Handler) handleChangeFingerprint(w http.ResponseWriter, r *http.Request) {
	var req ChangeFingerprintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "SG-SYS-4000", "malformed JSON body")
		return
	}

	script, err := h.svc.ChangeFingerprint(r.Context(), r.PathValue("name"), req.Fingerprint)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	logger.L(r.Context()).Info("fingerprint overridden",
		"script", script.Name,
		"fingerprint", req.Fingerprint,
	)
	h.writeJSON(w, r, http.StatusOK, newScriptResponse(script))
}
