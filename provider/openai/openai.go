// Package openai implements shapely.ChatModel over any OpenAI-compatible chat completions
// endpoint using the functions / function_call wire format.
package openai

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

	"github.com/cenkalti/backoff/v4"

	"github.com/skosovsky/shapely"
)

const (
	defaultBaseURL  = "https://api.openai.com/v1"
	completionsPath = "/chat/completions"

	DefaultModel       = "gpt-4-0613"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2049
	DefaultMaxRetries  = 3
)

// Client is a shapely.ChatModel backed by an OpenAI-compatible HTTP API.
type Client struct {
	baseURL       string
	apiKey        string
	model         string
	temperature   float64
	maxTokens     int
	maxRetries    int
	retryInterval time.Duration
	client        *http.Client
	logger        *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another OpenAI-compatible endpoint (Azure, Ollama, vLLM...).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

func WithTemperature(t float64) Option {
	return func(c *Client) { c.temperature = t }
}

func WithMaxTokens(n int) Option {
	return func(c *Client) { c.maxTokens = n }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithMaxRetries sets how many times a transport error, 429 or 5xx is retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = max(n, 0) }
}

// WithRetryInterval sets the initial backoff interval (default 500ms, doubled per retry).
func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) { c.retryInterval = d }
}

// WithLogger sets the logger used to report retries. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client authenticating with apiKey.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:       defaultBaseURL,
		apiKey:        apiKey,
		model:         DefaultModel,
		temperature:   DefaultTemperature,
		maxTokens:     DefaultMaxTokens,
		maxRetries:    DefaultMaxRetries,
		retryInterval: backoff.DefaultInitialInterval,
		client:        &http.Client{Timeout: 120 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// -- OpenAI wire types --

type oaiRequest struct {
	Model        string        `json:"model"`
	Messages     []oaiMessage  `json:"messages"`
	Functions    []oaiFunction `json:"functions,omitempty"`
	FunctionCall any           `json:"function_call,omitempty"`
	MaxTokens    int           `json:"max_tokens,omitempty"`
	Temperature  *float64      `json:"temperature,omitempty"`
}

type oaiMessage struct {
	Role         string           `json:"role"`
	Content      *string          `json:"content"`
	Name         string           `json:"name,omitempty"`
	FunctionCall *oaiFunctionCall `json:"function_call,omitempty"`
}

type oaiFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type oaiFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type oaiResponse struct {
	ID      string      `json:"id"`
	Model   string      `json:"model"`
	Choices []oaiChoice `json:"choices"`
	Error   *oaiError   `json:"error,omitempty"`
}

type oaiChoice struct {
	Index        int        `json:"index"`
	Message      oaiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

type oaiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// APIError is a non-2xx answer (or an error payload) from the endpoint.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("openai api error (status %d) [%s]: %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("openai api error (status %d): %s", e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed when sent again.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// ChatCompletion implements shapely.ChatModel.
func (c *Client) ChatCompletion(ctx context.Context, messages []shapely.Message, functions []shapely.FunctionSchema, call shapely.ForcedCall) (shapely.Message, error) {
	body, err := json.Marshal(c.toOAIRequest(messages, functions, call))
	if err != nil {
		return shapely.Message{}, fmt.Errorf("marshal request: %w", err)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.retryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.maxRetries)), ctx)

	resp, err := backoff.RetryNotifyWithData(func() (oaiResponse, error) {
		return c.complete(ctx, body)
	}, policy, func(err error, wait time.Duration) {
		c.logger.WarnContext(ctx, "chat completion failed, retrying", "error", err, "wait", wait)
	})
	if err != nil {
		return shapely.Message{}, err
	}
	if len(resp.Choices) == 0 {
		return shapely.Message{}, errors.New("openai: response has no choices")
	}
	return fromOAIMessage(resp.Choices[0].Message), nil
}

// complete performs one HTTP round trip. Errors that must not be retried are wrapped
// with backoff.Permanent.
func (c *Client) complete(ctx context.Context, body []byte) (oaiResponse, error) {
	var out oaiResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return out, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return out, backoff.Permanent(ctx.Err())
		}
		return out, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var payload oaiResponse
		if json.Unmarshal(data, &payload) == nil && payload.Error != nil {
			apiErr.Type = payload.Error.Type
			apiErr.Message = payload.Error.Message
		}
		if apiErr.Retryable() {
			return out, apiErr
		}
		return out, backoff.Permanent(apiErr)
	}

	if err := json.Unmarshal(data, &out); err != nil {
		return out, backoff.Permanent(fmt.Errorf("unmarshal response: %w", err))
	}
	if out.Error != nil {
		return out, backoff.Permanent(&APIError{StatusCode: resp.StatusCode, Type: out.Error.Type, Message: out.Error.Message})
	}
	return out, nil
}

func (c *Client) toOAIRequest(messages []shapely.Message, functions []shapely.FunctionSchema, call shapely.ForcedCall) oaiRequest {
	msgs := make([]oaiMessage, len(messages))
	for i, m := range messages {
		msgs[i] = toOAIMessage(m)
	}
	temp := c.temperature
	req := oaiRequest{
		Model:       c.model,
		Messages:    msgs,
		MaxTokens:   c.maxTokens,
		Temperature: &temp,
	}
	if len(functions) > 0 {
		req.Functions = make([]oaiFunction, len(functions))
		for i, f := range functions {
			req.Functions[i] = oaiFunction{Name: f.Name, Description: f.Description, Parameters: f.Parameters}
		}
		req.FunctionCall = functionCall(call)
	}
	return req
}

// functionCall renders the forced-call directive: "auto", "none" or {"name": ...}.
func functionCall(call shapely.ForcedCall) any {
	switch {
	case call.Forces():
		return map[string]string{"name": call.Name}
	case call.Mode == shapely.CallNone:
		return "none"
	}
	return "auto"
}

func toOAIMessage(m shapely.Message) oaiMessage {
	out := oaiMessage{Role: string(m.Role), Name: m.Name}
	if m.Call != nil {
		out.FunctionCall = &oaiFunctionCall{Name: m.Call.Name, Arguments: m.Call.Arguments}
		if m.Content != "" {
			content := m.Content
			out.Content = &content
		}
		return out
	}
	content := m.Content
	out.Content = &content
	return out
}

func fromOAIMessage(m oaiMessage) shapely.Message {
	out := shapely.Message{Role: shapely.Role(m.Role), Name: m.Name}
	if out.Role == "" {
		out.Role = shapely.RoleAssistant
	}
	if m.Content != nil {
		out.Content = *m.Content
	}
	if m.FunctionCall != nil {
		out.Call = &shapely.CallRequest{Name: m.FunctionCall.Name, Arguments: m.FunctionCall.Arguments}
	}
	return out
}

var _ shapely.ChatModel = (*Client)(nil)
