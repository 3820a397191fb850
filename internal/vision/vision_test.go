package vision

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yndnr/scriptgate-go/internal/core/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, url string, opts ...Option) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: url, APIKey: "test-key", MaxRetries: 3}, testLogger(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestSolveSuccess(t *testing.T) {
	var gotReq responsesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != responsesPath {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"output": []map[string]any{{
				"type": "message",
				"content": []map[string]any{
					{"type": "output_text", "text": "  42\n"},
				},
			}},
		})
	}))
	defer srv.Close()

	answer, err := newTestClient(t, srv.URL).Solve(t.Context(), "aW1n")
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if answer != "42" {
		t.Errorf("answer = %q, want 42", answer)
	}

	if gotReq.Model != DefaultModel {
		t.Errorf("model = %s", gotReq.Model)
	}
	if len(gotReq.Input) != 1 || len(gotReq.Input[0].Content) != 2 {
		t.Fatalf("unexpected input shape: %+v", gotReq.Input)
	}
	img := gotReq.Input[0].Content[1]
	if img.Type != "input_image" || !strings.HasPrefix(img.ImageURL, "data:image/jpeg;base64,aW1n") {
		t.Errorf("unexpected image part: %+v", img)
	}
}

func TestSolveOutputTextField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"output_text": "direct answer"})
	}))
	defer srv.Close()

	answer, err := newTestClient(t, srv.URL).Solve(t.Context(), "aW1n")
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if answer != "direct answer" {
		t.Errorf("answer = %q", answer)
	}
}

func TestSolveRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"output_text": "ok"})
	}))
	defer srv.Close()

	answer, err := newTestClient(t, srv.URL).Solve(t.Context(), "aW1n")
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if answer != "ok" {
		t.Errorf("answer = %q", answer)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestSolveDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Solve(t.Context(), "aW1n")
	if !errors.Is(err, domain.ErrEvaluationFailed) {
		t.Fatalf("expected ErrEvaluationFailed, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (4xx must not retry)", calls.Load())
	}
}

func TestSolveExhaustedRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	var outcomes []string
	client := newTestClient(t, srv.URL, WithObserver(func(outcome string, _ time.Duration) {
		outcomes = append(outcomes, outcome)
	}))

	_, err := client.Solve(t.Context(), "aW1n")
	if !errors.Is(err, domain.ErrEvaluationFailed) {
		t.Fatalf("expected ErrEvaluationFailed, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	if len(outcomes) != 3 || outcomes[0] != "failure" {
		t.Errorf("outcomes = %v", outcomes)
	}
}

func TestSolveEmptyImage(t *testing.T) {
	client := newTestClient(t, "http://unused.invalid")
	if _, err := client.Solve(t.Context(), ""); !errors.Is(err, domain.ErrEvaluationFailed) {
		t.Errorf("expected ErrEvaluationFailed, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	if _, err := New(Config{}, testLogger()); err == nil {
		t.Error("expected error for missing api key")
	}
}
