// Package vision evaluates artifact images by calling an
// OpenAI-compatible responses endpoint.
//
// @design DS-0601
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/scriptgate-go/internal/core/domain"
)

// Defaults for the evaluation client.
const (
	DefaultBaseURL    = "https://api.openai.com"
	DefaultModel      = "gpt-5-mini"
	DefaultTimeout    = 60 * time.Second
	DefaultMaxRetries = 3

	responsesPath = "/v1/responses"

	// maxErrorBody bounds how much of a failed response is read for
	// the error message.
	maxErrorBody = 4 << 10
)

// defaultInstructions is the solver system prompt. Overridable via
// Config.Instructions.
const defaultInstructions = "You are a task-solving assistant. " +
	"Analyze the task shown in the image and solve it step by step, " +
	"using code where it helps verify the result. " +
	"Reply with the final answer only, no explanations."

// Config configures the vision client.
type Config struct {
	// BaseURL is the API endpoint root. Defaults to the OpenAI API.
	BaseURL string

	// APIKey is the bearer token. Required.
	APIKey string

	// Model selects the vision-capable model.
	Model string

	// Instructions overrides the default solver prompt.
	Instructions string

	// Timeout bounds a single API call.
	Timeout time.Duration

	// MaxRetries is the number of attempts per evaluation.
	MaxRetries int

	// RatePerSec throttles outbound calls. Zero disables throttling.
	RatePerSec float64

	// Burst is the limiter burst size when RatePerSec is set.
	Burst int
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("vision: api key is required")
	}
	return nil
}

// Observer receives the outcome of each evaluation attempt. Used to
// feed metrics without coupling the client to a registry.
type Observer func(outcome string, elapsed time.Duration)

// Client calls the responses endpoint to turn an artifact image into
// a textual answer.
type Client struct {
	cfg      Config
	http     *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
	observer Observer
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithObserver installs an evaluation outcome observer.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// New creates a vision client.
func New(cfg Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Instructions == "" {
		cfg.Instructions = defaultInstructions
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
	if cfg.RatePerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// request/response wire types for the responses endpoint.

type contentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type inputMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type toolSpec struct {
	Type      string         `json:"type"`
	Container map[string]any `json:"container,omitempty"`
}

type responsesRequest struct {
	Model        string         `json:"model"`
	Instructions string         `json:"instructions"`
	Input        []inputMessage `json:"input"`
	Tools        []toolSpec     `json:"tools,omitempty"`
	ToolChoice   string         `json:"tool_choice,omitempty"`
}

type responsesReply struct {
	// OutputText is the SDK-style convenience field some gateways
	// populate directly.
	OutputText string `json:"output_text"`

	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`

	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// text extracts the answer text, preferring the convenience field and
// falling back to walking the output message items.
func (r *responsesReply) text() string {
	if r.OutputText != "" {
		return strings.TrimSpace(r.OutputText)
	}
	var b strings.Builder
	for _, item := range r.Output {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "output_text" {
				b.WriteString(part.Text)
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// Solve sends the base64-encoded image for evaluation and returns the
// model's answer text. Transient failures are retried with backoff;
// exhausted attempts surface as an evaluation failure.
func (c *Client) Solve(ctx context.Context, imageBase64 string) (string, error) {
	if imageBase64 == "" {
		return "", domain.ErrEvaluationFailed.WithDetails("empty image payload")
	}

	body := responsesRequest{
		Model:        c.cfg.Model,
		Instructions: c.cfg.Instructions,
		Input: []inputMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "input_text", Text: "The user submitted an image of a task."},
				{Type: "input_image", ImageURL: "data:image/jpeg;base64," + imageBase64},
			},
		}},
		Tools:      []toolSpec{{Type: "code_interpreter", Container: map[string]any{"type": "auto"}}},
		ToolChoice: "auto",
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", domain.ErrEvaluationFailed.WithCause(err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", domain.ErrEvaluationFailed.WithCause(err)
			}
		}

		start := time.Now()
		answer, retryable, err := c.call(ctx, payload)
		elapsed := time.Since(start)

		if err == nil {
			c.observe("success", elapsed)
			return answer, nil
		}
		c.observe("failure", elapsed)
		lastErr = err

		if !retryable || attempt == c.cfg.MaxRetries || ctx.Err() != nil {
			break
		}
		c.logger.Warn("evaluation attempt failed, retrying",
			"attempt", attempt,
			"error", err)

		backoff := time.Duration(attempt) * 500 * time.Millisecond
		select {
		case <-ctx.Done():
			return "", domain.ErrEvaluationFailed.WithCause(ctx.Err())
		case <-time.After(backoff):
		}
	}
	return "", domain.ErrEvaluationFailed.WithCause(lastErr)
}

// call performs one API round trip. The bool reports whether the
// failure is worth retrying.
func (c *Client) call(ctx context.Context, payload []byte) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+responsesPath, bytes.NewReader(payload))
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return "", retryable, fmt.Errorf("responses api: status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var reply responsesReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", true, fmt.Errorf("responses api: decode reply: %w", err)
	}
	if reply.Error != nil {
		return "", false, fmt.Errorf("responses api: %s: %s", reply.Error.Type, reply.Error.Message)
	}

	answer := reply.text()
	if answer == "" {
		return "", false, errors.New("responses api: empty output")
	}
	return answer, false, nil
}

func (c *Client) observe(outcome string, elapsed time.Duration) {
	if c.observer != nil {
		c.observer(outcome, elapsed)
	}
}
