// Package handler provides HTTP request handlers for ScriptGate.
//
// It implements the public script delivery and answer submission
// endpoints, the admin script management API, and health probes.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/yndnr/scriptgate-go/internal/core/domain"
	"github.com/yndnr/scriptgate-go/internal/core/service"
	"github.com/yndnr/scriptgate-go/internal/telemetry/logger"
	"github.com/yndnr/scriptgate-go/internal/telemetry/metric"
)

// Config holds the handler dependencies.
type Config struct {
	// Service is the script lifecycle service.
	Service *service.ScriptService

	// Payload is the JavaScript body served on successful delivery.
	Payload []byte

	// Logger for handler diagnostics.
	Logger *slog.Logger

	// Metrics is optional; nil disables instrumentation.
	Metrics *metric.Registry

	// ReadyCheck probes the storage backend for the readiness
	// endpoint. Nil means always ready.
	ReadyCheck func(context.Context) error
}

// Handler routes requests to the endpoint handlers.
type Handler struct {
	svc     *service.ScriptService
	payload []byte
	logger  *slog.Logger
	metrics *metric.Registry
	ready   func(context.Context) error
	mux     *http.ServeMux
}

// New creates a new Handler.
func New(cfg Config) *Handler {
	h := &Handler{
		svc:     cfg.Service,
		payload: cfg.Payload,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		ready:   cfg.ReadyCheck,
		mux:     http.NewServeMux(),
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	// Health endpoints.
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)

	// Public endpoints.
	h.mux.HandleFunc("GET /script/{name}", h.handleDeliver)
	h.mux.HandleFunc("POST /check/{name}", h.handleCheck)

	// Admin endpoints.
	h.mux.HandleFunc("POST /admin/v1/scripts", h.handleIssue)
	h.mux.HandleFunc("GET /admin/v1/scripts/{name}", h.handleResolve)
	h.mux.HandleFunc("GET /admin/v1/scripts/{name}/answers", h.handleAnswers)
	h.mux.HandleFunc("POST /admin/v1/scripts/{name}/status", h.handleChangeStatus)
	h.mux.HandleFunc("POST /admin/v1/scripts/{name}/first-seen", h.handleChangeFirstSeen)
	h.mux.HandleFunc("POST /admin/v1/scripts/{name}/fingerprint", h.handleChangeFingerprint)
}

// writeJSON writes a JSON response with the standard envelope.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := logger.RequestIDFromContext(r.Context())
	response := NewResponse(requestID, data)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with the standard envelope.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID := logger.RequestIDFromContext(r.Context())
	response := NewErrorResponse(requestID, code, message)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}

// handleServiceError converts service errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if domain.IsDomainError(err, "") {
		code := domain.GetErrorCode(err)
		h.writeError(w, r, errorCodeToHTTPStatus(code), code, err.Error())
		return
	}
	h.logger.Error("internal error", "error", err, "path", r.URL.Path)
	h.writeError(w, r, http.StatusInternalServerError, "SG-SYS-5000", "internal server error")
}

// errorCodeToHTTPStatus maps domain error codes to HTTP status codes.
func errorCodeToHTTPStatus(code string) int {
	switch {
	case strings.HasSuffix(code, "-4040"):
		return http.StatusNotFound
	case strings.HasSuffix(code, "-4090"), strings.HasSuffix(code, "-4091"):
		return http.StatusConflict
	case strings.HasSuffix(code, "-4290"):
		return http.StatusTooManyRequests
	case strings.HasSuffix(code, "-4010"):
		return http.StatusUnauthorized
	case strings.HasPrefix(code, "SG-GATE-"):
		return http.StatusForbidden
	case strings.HasPrefix(code, "SG-ARTF-"), strings.HasPrefix(code, "SG-ARG-"),
		strings.HasSuffix(code, "-4000"), strings.HasSuffix(code, "-4001"):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
