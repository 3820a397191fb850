package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yndnr/scriptgate-go/internal/artifact"
	"github.com/yndnr/scriptgate-go/internal/core/domain"
	"github.com/yndnr/scriptgate-go/internal/core/service"
	"github.com/yndnr/scriptgate-go/internal/storage/memory"
	"github.com/yndnr/scriptgate-go/pkg/namegen"
)

const (
	testPayload     = "(function(){console.log('gate')})();"
	testFingerprint = "device-fingerprint-0001"
)

type stubEvaluator struct {
	output string
	err    error
	calls  int
}

func (e *stubEvaluator) Solve(_ context.Context, _ string) (string, error) {
	e.calls++
	if e.err != nil {
		return "", e.err
	}
	return e.output, nil
}

type testEnv struct {
	handler *Handler
	service *service.ScriptService
	eval    *stubEvaluator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	scripts := memory.New()
	answers := memory.NewAnswerStore()

	artifacts, err := artifact.New(artifact.Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("artifact store: %v", err)
	}

	names, err := service.NewNameGenerator(namegen.DefaultConfig(domain.NameAlphabet), scripts)
	if err != nil {
		t.Fatalf("name generator: %v", err)
	}

	eval := &stubEvaluator{output: "42"}
	svc, err := service.NewScriptService(scripts, answers, artifacts, eval, names, service.DefaultGateConfig())
	if err != nil {
		t.Fatalf("script service: %v", err)
	}

	h := New(Config{
		Service: svc,
		Payload: []byte(testPayload),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return &testEnv{handler: h, service: svc, eval: eval}
}

func (e *testEnv) issue(t *testing.T, name string, status domain.ScriptStatus) *domain.Script {
	t.Helper()
	script, err := e.service.Issue(t.Context(), &service.IssueScriptRequest{Name: name, Status: status})
	if err != nil {
		t.Fatalf("issue %q: %v", name, err)
	}
	return script
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func multipartBody(t *testing.T, fingerprint, filename string, image []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("fingerprint", fingerprint); err != nil {
		t.Fatalf("write fingerprint field: %v", err)
	}
	fw, err := w.CreateFormFile("image", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(image); err != nil {
		t.Fatalf("write image: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) *Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response envelope: %v\nbody: %s", err, rec.Body.String())
	}
	return &resp
}

func TestDeliverActiveScript(t *testing.T) {
	env := newTestEnv(t)
	env.issue(t, "alpha", domain.StatusActive)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/script/alpha", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/javascript" {
		t.Errorf("expected javascript content type, got %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("expected no-store, got %q", got)
	}
	if rec.Body.String() != testPayload {
		t.Errorf("unexpected payload: %q", rec.Body.String())
	}
}

func TestDeliverRejectionsAreBare403(t *testing.T) {
	env := newTestEnv(t)
	env.issue(t, "dormant", domain.StatusInactive)
	env.issue(t, "burned", domain.StatusExpired)

	for _, name := range []string{"dormant", "burned", "no-such-script"} {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/script/"+name, nil))
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s: expected 403, got %d", name, rec.Code)
		}
		if rec.Body.Len() != 0 {
			t.Errorf("%s: expected empty body, got %q", name, rec.Body.String())
		}
	}
}

func TestCheckSubmission(t *testing.T) {
	env := newTestEnv(t)
	env.issue(t, "alpha", domain.StatusActive)

	body, contentType := multipartBody(t, testFingerprint, "shot.png", []byte("fake-image-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/check/alpha", body)
	req.Header.Set("Content-Type", contentType)

	rec := env.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Errorf("expected plain text, got %q", got)
	}
	if rec.Body.String() != "42" {
		t.Errorf("expected evaluation output, got %q", rec.Body.String())
	}
	if env.eval.calls != 1 {
		t.Errorf("expected one evaluation call, got %d", env.eval.calls)
	}

	script, err := env.service.Resolve(t.Context(), "alpha")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if script.Used != 1 {
		t.Errorf("expected used=1, got %d", script.Used)
	}
	if script.Fingerprint != testFingerprint {
		t.Errorf("expected fingerprint bound, got %q", script.Fingerprint)
	}

	answers, err := env.service.Answers(t.Context(), "alpha")
	if err != nil {
		t.Fatalf("answers: %v", err)
	}
	if len(answers) != 1 {
		t.Fatalf("expected one answer, got %d", len(answers))
	}
	if answers[0].Output != "42" {
		t.Errorf("expected output recorded, got %q", answers[0].Output)
	}
}

func TestCheckRejections(t *testing.T) {
	env := newTestEnv(t)
	env.issue(t, "alpha", domain.StatusActive)

	t.Run("fingerprint too short", func(t *testing.T) {
		body, contentType := multipartBody(t, "short", "shot.png", []byte("img"))
		req := httptest.NewRequest(http.MethodPost, "/check/alpha", body)
		req.Header.Set("Content-Type", contentType)

		rec := env.do(req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rec.Code)
		}
		if got := rec.Header().Get("X-Error-Code"); got != domain.ErrFingerprintTooShort.Code {
			t.Errorf("expected %s, got %q", domain.ErrFingerprintTooShort.Code, got)
		}
	})

	t.Run("disallowed extension", func(t *testing.T) {
		body, contentType := multipartBody(t, testFingerprint, "shot.gif", []byte("img"))
		req := httptest.NewRequest(http.MethodPost, "/check/alpha", body)
		req.Header.Set("Content-Type", contentType)

		rec := env.do(req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if got := rec.Header().Get("X-Error-Code"); got != domain.ErrArtifactInvalid.Code {
			t.Errorf("expected %s, got %q", domain.ErrArtifactInvalid.Code, got)
		}
	})

	t.Run("missing image part", func(t *testing.T) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		_ = w.WriteField("fingerprint", testFingerprint)
		_ = w.Close()

		req := httptest.NewRequest(http.MethodPost, "/check/alpha", &buf)
		req.Header.Set("Content-Type", w.FormDataContentType())

		rec := env.do(req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("unknown script", func(t *testing.T) {
		body, contentType := multipartBody(t, testFingerprint, "shot.png", []byte("img"))
		req := httptest.NewRequest(http.MethodPost, "/check/nope", body)
		req.Header.Set("Content-Type", contentType)

		rec := env.do(req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

func TestCheckFingerprintMismatch(t *testing.T) {
	env := newTestEnv(t)
	env.issue(t, "alpha", domain.StatusActive)

	body, contentType := multipartBody(t, testFingerprint, "shot.png", []byte("img"))
	req := httptest.NewRequest(http.MethodPost, "/check/alpha", body)
	req.Header.Set("Content-Type", contentType)
	if rec := env.do(req); rec.Code != http.StatusOK {
		t.Fatalf("first submission: expected 200, got %d", rec.Code)
	}

	body, contentType = multipartBody(t, "another-device-fingerprint", "shot.png", []byte("img"))
	req = httptest.NewRequest(http.MethodPost, "/check/alpha", body)
	req.Header.Set("Content-Type", contentType)

	rec := env.do(req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Error-Code"); got != domain.ErrFingerprintMismatch.Code {
		t.Errorf("expected %s, got %q", domain.ErrFingerprintMismatch.Code, got)
	}
}

func TestCheckEvaluationFailure(t *testing.T) {
	env := newTestEnv(t)
	env.issue(t, "alpha", domain.StatusActive)
	env.eval.err = errors.New("upstream timeout")

	body, contentType := multipartBody(t, testFingerprint, "shot.png", []byte("img"))
	req := httptest.NewRequest(http.MethodPost, "/check/alpha", body)
	req.Header.Set("Content-Type", contentType)

	rec := env.do(req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Error-Code"); got != domain.ErrEvaluationFailed.Code {
		t.Errorf("expected %s, got %q", domain.ErrEvaluationFailed.Code, got)
	}
}

func TestAdminIssue(t *testing.T) {
	env := newTestEnv(t)

	t.Run("explicit name", func(t *testing.T) {
		body := `{"name":"bravo","max_used":3,"status":"active"}`
		req := httptest.NewRequest(http.MethodPost, "/admin/v1/scripts", strings.NewReader(body))

		rec := env.do(req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}

		resp := decodeEnvelope(t, rec)
		data, _ := json.Marshal(resp.Data)
		var script ScriptResponse
		if err := json.Unmarshal(data, &script); err != nil {
			t.Fatalf("decode script: %v", err)
		}
		if script.Name != "bravo" || script.MaxUsed != 3 || script.Status != "active" {
			t.Errorf("unexpected script: %+v", script)
		}
	})

	t.Run("generated name", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/admin/v1/scripts", strings.NewReader(`{}`))

		rec := env.do(req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rec.Code)
		}

		resp := decodeEnvelope(t, rec)
		data, _ := json.Marshal(resp.Data)
		var script ScriptResponse
		if err := json.Unmarshal(data, &script); err != nil {
			t.Fatalf("decode script: %v", err)
		}
		if script.Name == "" {
			t.Error("expected a generated name")
		}
		if script.Status != "inactive" {
			t.Errorf("expected inactive default, got %q", script.Status)
		}
	})

	t.Run("duplicate name", func(t *testing.T) {
		body := `{"name":"bravo"}`
		req := httptest.NewRequest(http.MethodPost, "/admin/v1/scripts", strings.NewReader(body))

		rec := env.do(req)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/admin/v1/scripts", strings.NewReader(`{broken`))

		rec := env.do(req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestAdminResolve(t *testing.T) {
	env := newTestEnv(t)
	env.issue(t, "alpha", domain.StatusInactive)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/admin/v1/scripts/alpha", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	resp := decodeEnvelope(t, rec)
	data, _ := json.Marshal(resp.Data)
	var script ScriptResponse
	if err := json.Unmarshal(data, &script); err != nil {
		t.Fatalf("decode script: %v", err)
	}
	// Resolve refreshes the advisory status.
	if script.Status != "active" {
		t.Errorf("expected resolve to refresh to active, got %q", script.Status)
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/admin/v1/scripts/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown script, got %d", rec.Code)
	}
}

func TestAdminOverrides(t *testing.T) {
	env := newTestEnv(t)
	env.issue(t, "alpha", domain.StatusActive)

	t.Run("status", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/admin/v1/scripts/alpha/status",
			strings.NewReader(`{"status":"expired"}`))
		rec := env.do(req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		script, err := env.service.Resolve(t.Context(), "alpha")
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if script.Status != domain.StatusExpired {
			t.Errorf("expected expired, got %q", script.Status)
		}
	})

	t.Run("unknown status", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/admin/v1/scripts/alpha/status",
			strings.NewReader(`{"status":"frozen"}`))
		rec := env.do(req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("first seen set and clear", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/admin/v1/scripts/alpha/first-seen",
			strings.NewReader(`{"first_seen":"2026-01-15T10:00:00Z"}`))
		rec := env.do(req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		resp := decodeEnvelope(t, rec)
		data, _ := json.Marshal(resp.Data)
		var script ScriptResponse
		if err := json.Unmarshal(data, &script); err != nil {
			t.Fatalf("decode script: %v", err)
		}
		if script.FirstSeen != "2026-01-15T10:00:00Z" {
			t.Errorf("expected first seen set, got %q", script.FirstSeen)
		}

		req = httptest.NewRequest(http.MethodPost, "/admin/v1/scripts/alpha/first-seen",
			strings.NewReader(`{"first_seen":""}`))
		rec = env.do(req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 on clear, got %d", rec.Code)
		}

		resp = decodeEnvelope(t, rec)
		data, _ = json.Marshal(resp.Data)
		script = ScriptResponse{}
		if err := json.Unmarshal(data, &script); err != nil {
			t.Fatalf("decode script: %v", err)
		}
		if script.FirstSeen != "" {
			t.Errorf("expected first seen cleared, got %q", script.FirstSeen)
		}
	})

	t.Run("bad first seen", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/admin/v1/scripts/alpha/first-seen",
			strings.NewReader(`{"first_seen":"yesterday"}`))
		rec := env.do(req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("fingerprint set and unbind", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/admin/v1/scripts/alpha/fingerprint",
			strings.NewReader(`{"fingerprint":"`+testFingerprint+`"}`))
		rec := env.do(req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		script, err := env.service.Resolve(t.Context(), "alpha")
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if script.Fingerprint != testFingerprint {
			t.Errorf("expected fingerprint bound, got %q", script.Fingerprint)
		}

		req = httptest.NewRequest(http.MethodPost, "/admin/v1/scripts/alpha/fingerprint",
			strings.NewReader(`{"fingerprint":""}`))
		rec = env.do(req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 on unbind, got %d", rec.Code)
		}

		script, err = env.service.Resolve(t.Context(), "alpha")
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if script.Fingerprint != "" {
			t.Errorf("expected fingerprint unbound, got %q", script.Fingerprint)
		}
	})
}

func TestAdminAnswers(t *testing.T) {
	env := newTestEnv(t)
	env.issue(t, "alpha", domain.StatusActive)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/admin/v1/scripts/alpha/answers", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	resp := decodeEnvelope(t, rec)
	data, _ := json.Marshal(resp.Data)
	var list ListAnswersResponse
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 0 {
		t.Fatalf("expected empty list, got %d", list.Total)
	}

	body, contentType := multipartBody(t, testFingerprint, "shot.png", []byte("img"))
	req := httptest.NewRequest(http.MethodPost, "/check/alpha", body)
	req.Header.Set("Content-Type", contentType)
	if rec := env.do(req); rec.Code != http.StatusOK {
		t.Fatalf("submission: expected 200, got %d", rec.Code)
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/admin/v1/scripts/alpha/answers", nil))
	resp = decodeEnvelope(t, rec)
	data, _ = json.Marshal(resp.Data)
	list = ListAnswersResponse{}
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 1 || len(list.Answers) != 1 {
		t.Fatalf("expected one answer, got %+v", list)
	}
	if list.Answers[0].ScriptName != "alpha" || list.Answers[0].Output != "42" {
		t.Errorf("unexpected answer: %+v", list.Answers[0])
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", rec.Code)
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ready: expected 200, got %d", rec.Code)
	}
}

func TestReadyFailure(t *testing.T) {
	env := newTestEnv(t)
	h := New(Config{
		Service:    env.service,
		Payload:    []byte(testPayload),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		ReadyCheck: func(context.Context) error { return errors.New("backend down") },
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{"SG-SCRP-4040", http.StatusNotFound},
		{"SG-NAME-4090", http.StatusConflict},
		{"SG-SCRP-4091", http.StatusConflict},
		{"SG-SYS-4290", http.StatusTooManyRequests},
		{"SG-AUTH-4010", http.StatusUnauthorized},
		{"SG-GATE-4001", http.StatusForbidden},
		{"SG-GATE-4005", http.StatusForbidden},
		{"SG-ARTF-4000", http.StatusBadRequest},
		{"SG-ARG-1001", http.StatusBadRequest},
		{"SG-SCRP-4001", http.StatusBadRequest},
		{"SG-SYS-5000", http.StatusInternalServerError},
		{"SG-EVAL-5020", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := errorCodeToHTTPStatus(tt.code); got != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.code, tt.want, got)
		}
	}
}
