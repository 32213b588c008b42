package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skosovsky/shapely"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"))
}

const callResponse = `{"id":"chatcmpl-1","model":"gpt-4-0613","choices":[{"index":0,"finish_reason":"function_call",
"message":{"role":"assistant","content":null,"function_call":{"name":"return","arguments":"{\"response\":4}"}}}]}`

const textResponse = `{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(srv *httptest.Server, opts ...Option) *Client {
	base := []Option{WithBaseURL(srv.URL + "/"), WithRetryInterval(time.Millisecond), WithHTTPClient(srv.Client())}
	return New("sk-test", append(base, opts...)...)
}

func TestChatCompletion_RequestBody(t *testing.T) {
	t.Parallel()
	var got map[string]any
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, completionsPath, r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(body, &got))
		_, _ = io.WriteString(w, callResponse)
	})

	messages := []shapely.Message{
		shapely.UserMessage("How many legs does a dog have?"),
		{Role: shapely.RoleAssistant, Call: &shapely.CallRequest{Name: "count", Arguments: `{"response":"dog"}`}},
		shapely.FunctionMessage("count", "4"),
	}
	functions := []shapely.FunctionSchema{{Name: "return", Description: "answer", Parameters: map[string]any{"type": "object"}}}

	msg, err := newClient(srv).ChatCompletion(context.Background(), messages, functions, shapely.Force("return"))
	require.NoError(t, err)
	assert.Equal(t, shapely.RoleAssistant, msg.Role)
	require.NotNil(t, msg.Call)
	assert.Equal(t, "return", msg.Call.Name)
	assert.JSONEq(t, `{"response":4}`, msg.Call.Arguments)

	assert.Equal(t, DefaultModel, got["model"])
	assert.InDelta(t, DefaultTemperature, got["temperature"], 1e-9)
	assert.InDelta(t, float64(DefaultMaxTokens), got["max_tokens"], 1e-9)
	assert.Equal(t, map[string]any{"name": "return"}, got["function_call"])

	wire, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, wire, 3)
	assert.Equal(t, map[string]any{"role": "user", "content": "How many legs does a dog have?"}, wire[0])
	assert.Equal(t, map[string]any{
		"role": "assistant", "content": nil,
		"function_call": map[string]any{"name": "count", "arguments": `{"response":"dog"}`},
	}, wire[1])
	assert.Equal(t, map[string]any{"role": "function", "name": "count", "content": "4"}, wire[2])
}

func TestChatCompletion_FunctionCallDirective(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		functions []shapely.FunctionSchema
		call      shapely.ForcedCall
		want      any
	}{
		{"auto", []shapely.FunctionSchema{{Name: "f"}}, shapely.Auto(), "auto"},
		{"none", []shapely.FunctionSchema{{Name: "f"}}, shapely.NoCall(), "none"},
		{"named", []shapely.FunctionSchema{{Name: "f"}}, shapely.Force("f"), map[string]any{"name": "f"}},
		{"no functions", nil, shapely.Force("f"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var got map[string]any
			srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				_, _ = io.WriteString(w, textResponse)
			})
			_, err := newClient(srv).ChatCompletion(context.Background(), []shapely.Message{shapely.UserMessage("hi")}, tt.functions, tt.call)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got["function_call"])
			if tt.functions == nil {
				assert.NotContains(t, got, "functions")
			}
		})
	}
}

func TestChatCompletion_Options(t *testing.T) {
	t.Parallel()
	var got map[string]any
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, textResponse)
	})
	msg, err := newClient(srv, WithModel("local"), WithTemperature(0), WithMaxTokens(64)).
		ChatCompletion(context.Background(), []shapely.Message{shapely.UserMessage("hi")}, nil, shapely.Auto())
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)
	assert.Nil(t, msg.Call)
	assert.Equal(t, "local", got["model"])
	assert.Equal(t, 0.0, got["temperature"])
	assert.Equal(t, 64.0, got["max_tokens"])
}

func TestChatCompletion_RetriesServerErrors(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, `{"error":{"message":"overloaded","type":"server_error"}}`, http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, textResponse)
	})
	msg, err := newClient(srv).ChatCompletion(context.Background(), []shapely.Message{shapely.UserMessage("hi")}, nil, shapely.Auto())
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, int32(2), hits.Load())
}

func TestChatCompletion_ClientErrorNotRetried(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad schema","type":"invalid_request_error"}}`)
	})
	_, err := newClient(srv).ChatCompletion(context.Background(), []shapely.Message{shapely.UserMessage("hi")}, nil, shapely.Auto())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "invalid_request_error", apiErr.Type)
	assert.Equal(t, "bad schema", apiErr.Message)
	assert.False(t, apiErr.Retryable())
	assert.Equal(t, int32(1), hits.Load())
}

func TestChatCompletion_RateLimitExhaustsRetries(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, "slow down")
	})
	_, err := newClient(srv, WithMaxRetries(2)).ChatCompletion(context.Background(), []shapely.Message{shapely.UserMessage("hi")}, nil, shapely.Auto())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "slow down", apiErr.Message)
	assert.Equal(t, int32(3), hits.Load())
}

func TestChatCompletion_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
	}{
		{"no choices", `{"choices":[]}`},
		{"malformed", `{"choices":`},
		{"error payload", `{"error":{"message":"quota","type":"insufficient_quota"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var hits atomic.Int32
			srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
				hits.Add(1)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := newClient(srv).ChatCompletion(context.Background(), []shapely.Message{shapely.UserMessage("hi")}, nil, shapely.Auto())
			require.Error(t, err)
			assert.Equal(t, int32(1), hits.Load())
		})
	}
}

func TestChatCompletion_ContextCanceled(t *testing.T) {
	t.Parallel()
	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, textResponse)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newClient(srv).ChatCompletion(ctx, []shapely.Message{shapely.UserMessage("hi")}, nil, shapely.Auto())
	require.ErrorIs(t, err, context.Canceled)
}

func TestChatCompletion_WithEngine(t *testing.T) {
	t.Parallel()
	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, callResponse)
	})
	v, err := shapely.NewEngine(newClient(srv)).Ask(context.Background(), shapely.NewConversation(shapely.UserMessage("legs?")), shapely.Number())
	require.NoError(t, err)
	assert.Equal(t, 4.0, v)
}
