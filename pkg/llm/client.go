// Package llm wraps an OpenAI-compatible chat-completion endpoint with the
// retry, stop-sequence, and tool-calling behavior the agent loops need.
package llm

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultMaxTries is the retry budget used when Options.MaxTries is zero.
const DefaultMaxTries = 3

// DefaultFailureSentinel is returned as Response.Content when every retry
// attempt failed and no sentinel override is configured.
const DefaultFailureSentinel = "LLM server error."

// maxBackoff caps a single retry sleep.
const maxBackoff = 30 * time.Second

// Message is one chat message. Immutable after construction.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolCall is a native function call returned by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolDefinition describes one callable tool for native function calling.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Options tune a single completion call. Zero values fall back to the
// client's configured sampling parameters.
type Options struct {
	Stop            []string
	Tools           []ToolDefinition
	Temperature     *float32
	MaxTries        int
	FailureSentinel string
}

// Response is the consumed slice of a chat completion.
type Response struct {
	Content   string
	Reasoning string
	ToolCalls []ToolCall
	// Failed is set when the content is the retry-exhaustion sentinel
	// rather than model output.
	Failed bool
}

// Client is the completion interface the agent loops depend on. Tests swap
// in scripted implementations.
type Client interface {
	Complete(ctx context.Context, msgs []Message, opts Options) (*Response, error)
}

// Config carries the connection and sampling parameters for OpenAIClient.
type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	Temperature     float32
	TopP            float32
	PresencePenalty float32
	Timeout         time.Duration
}

// OpenAIClient talks to any OpenAI-compatible chat-completion endpoint.
type OpenAIClient struct {
	api *openai.Client
	cfg Config
	// sleep is swapped in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration)
}

// NewOpenAIClient builds a client for the given endpoint. An empty API key
// is sent as "EMPTY" so local vLLM-style servers accept the request.
func NewOpenAIClient(cfg Config) *OpenAIClient {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "EMPTY"
	}
	oc := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenAIClient{
		api: openai.NewClientWithConfig(oc),
		cfg: cfg,
		sleep: func(ctx context.Context, d time.Duration) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
			case <-t.C:
			}
		},
	}
}

// Complete calls the endpoint with exponential backoff on retryable errors.
// Authentication failures abort immediately. When every attempt fails, the
// returned response carries the failure sentinel in Content (Failed=true)
// and a nil error, so callers can fall through to their own error branch.
func (c *OpenAIClient) Complete(ctx context.Context, msgs []Message, opts Options) (*Response, error) {
	maxTries := opts.MaxTries
	if maxTries <= 0 {
		maxTries = DefaultMaxTries
	}
	sentinel := opts.FailureSentinel
	if sentinel == "" {
		sentinel = DefaultFailureSentinel
	}

	req := c.buildRequest(msgs, opts)

	for attempt := 0; attempt < maxTries; attempt++ {
		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err == nil {
			if len(resp.Choices) == 0 {
				slog.Warn("LLM returned no choices", "model", c.cfg.Model, "attempt", attempt+1)
			} else {
				return fromChoice(resp.Choices[0]), nil
			}
		} else {
			if isAuthError(err) {
				slog.Error("LLM authentication failed, not retrying", "error", err)
				break
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("LLM call failed",
				"attempt", attempt+1,
				"model", c.cfg.Model,
				"base_url", c.cfg.BaseURL,
				"error", err)
		}

		if attempt < maxTries-1 {
			d := Backoff(attempt)
			slog.Warn("Retrying LLM call", "sleep", d.Round(10*time.Millisecond))
			c.sleep(ctx, d)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
		}
	}

	slog.Error("All LLM retry attempts exhausted")
	return &Response{Content: sentinel, Failed: true}, nil
}

func (c *OpenAIClient) buildRequest(msgs []Message, opts Options) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:           c.cfg.Model,
		Temperature:     c.cfg.Temperature,
		TopP:            c.cfg.TopP,
		PresencePenalty: c.cfg.PresencePenalty,
		Stop:            opts.Stop,
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	for _, t := range opts.Tools {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return req
}

func fromChoice(choice openai.ChatCompletionChoice) *Response {
	msg := choice.Message
	out := &Response{
		Content:   strings.TrimSpace(msg.Content),
		Reasoning: msg.ReasoningContent,
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}

// Backoff returns the sleep before retry attempt+1:
// min(2^attempt + U(0,1), 30) seconds.
func Backoff(attempt int) time.Duration {
	secs := math.Pow(2, float64(attempt)) + rand.Float64()
	if secs > maxBackoff.Seconds() {
		return maxBackoff
	}
	return time.Duration(secs * float64(time.Second))
}

// isAuthError reports whether the error is a non-retryable credential
// failure (HTTP 401/403).
func isAuthError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusUnauthorized ||
			apiErr.HTTPStatusCode == http.StatusForbidden
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusUnauthorized ||
			reqErr.HTTPStatusCode == http.StatusForbidden
	}
	return false
}
