package handler

import (
	"time"

	"github.com/yndnr/scriptgate-go/internal/core/domain"
)

// Response is the standard JSON envelope for the admin API. The
// public endpoints serve raw payloads instead.
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
	}
}

// IssueScriptRequest is the request body for POST /admin/v1/scripts.
type IssueScriptRequest struct {
	// Name is an explicit script name. Empty generates one.
	Name string `json:"name,omitempty"`

	// MaxUsed overrides the configured usage budget. Zero keeps the
	// default.
	MaxUsed int `json:"max_used,omitempty"`

	// Status is the initial status. Empty means inactive.
	Status string `json:"status,omitempty"`
}

// ChangeStatusRequest is the request body for the status override.
type ChangeStatusRequest struct {
	Status string `json:"status"`
}

// ChangeFirstSeenRequest is the request body for the first-seen
// override. An empty value clears the activation window start.
type ChangeFirstSeenRequest struct {
	FirstSeen string `json:"first_seen"`
}

// ChangeFingerprintRequest is the request body for the fingerprint
// override. An empty value unbinds the script.
type ChangeFingerprintRequest struct {
	Fingerprint string `json:"fingerprint"`
}

// ScriptResponse represents a script in admin API responses.
type ScriptResponse struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	MaxUsed     int    `json:"max_used"`
	Used        int    `json:"used"`
	FirstSeen   string `json:"first_seen,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	CreatedAt   string `json:"created_at"`
	Version     uint64 `json:"version"`
}

// newScriptResponse converts a domain script to its API shape.
func newScriptResponse(s *domain.Script) ScriptResponse {
	resp := ScriptResponse{
		Name:        s.Name,
		Status:      string(s.Status),
		MaxUsed:     s.MaxUsed,
		Used:        s.Used,
		Fingerprint: s.Fingerprint,
		CreatedAt:   time.UnixMilli(s.CreatedAt).UTC().Format(time.RFC3339),
		Version:     s.Version,
	}
	if s.HasFirstSeen() {
		resp.FirstSeen = time.UnixMilli(s.FirstSeen).UTC().Format(time.RFC3339)
	}
	return resp
}

// AnswerResponse represents a recorded answer in admin API responses.
type AnswerResponse struct {
	ID           string `json:"id"`
	ScriptName   string `json:"script_name"`
	ArtifactPath string `json:"artifact_path"`
	Output       string `json:"output,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func newAnswerResponse(a *domain.Answer) AnswerResponse {
	return AnswerResponse{
		ID:           a.ID,
		ScriptName:   a.ScriptName,
		ArtifactPath: a.ArtifactPath,
		Output:       a.Output,
		CreatedAt:    time.UnixMilli(a.CreatedAt).UTC().Format(time.RFC3339),
	}
}

// ListAnswersResponse is the response body for the answers listing.
type ListAnswersResponse struct {
	Answers []AnswerResponse `json:"answers"`
	Total   int              `json:"total"`
}
