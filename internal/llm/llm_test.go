package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/apigov/internal/config"
	"github.com/fyrsmithlabs/apigov/internal/logging"
)

type fakeBackend struct {
	calls     int
	responses []fakeResponse
}

type fakeResponse struct {
	text      string
	err       error
	retryable bool
}

func (f *fakeBackend) name() string { return "fake" }

func (f *fakeBackend) complete(_ context.Context, _, _ string) (string, error) {
	r := f.responses[f.calls]
	f.calls++
	return r.text, r.err
}

func (f *fakeBackend) retryable(err error) bool {
	return f.responses[f.calls-1].retryable
}

func newTestClient(b backend, maxRetries int) *Client {
	c := newClient(b, config.LLMConfig{MaxRetries: maxRetries}, logging.NewNop())
	c.initialBackoff = time.Millisecond
	c.maxBackoff = 5 * time.Millisecond
	return c
}

func TestClient_Complete(t *testing.T) {
	transient := errors.New("503 service unavailable")
	fatal := errors.New("401 unauthorized")

	tests := []struct {
		name      string
		responses []fakeResponse
		retries   int
		want      string
		wantCalls int
		wantErr   error
	}{
		{
			name:      "first attempt succeeds",
			responses: []fakeResponse{{text: "Compliant. Uses GET."}},
			retries:   3,
			want:      "Compliant. Uses GET.",
			wantCalls: 1,
		},
		{
			name: "transient failure is retried",
			responses: []fakeResponse{
				{err: transient, retryable: true},
				{text: "ok"},
			},
			retries:   3,
			want:      "ok",
			wantCalls: 2,
		},
		{
			name:      "permanent failure stops immediately",
			responses: []fakeResponse{{err: fatal}},
			retries:   3,
			wantCalls: 1,
			wantErr:   fatal,
		},
		{
			name: "retries exhausted",
			responses: []fakeResponse{
				{err: transient, retryable: true},
				{err: transient, retryable: true},
				{err: transient, retryable: true},
			},
			retries:   2,
			wantCalls: 3,
			wantErr:   transient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := &fakeBackend{responses: tt.responses}
			c := newTestClient(fb, tt.retries)

			got, err := c.Complete(context.Background(), "system", "user")
			assert.Equal(t, tt.wantCalls, fb.calls)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrGeneration)
				assert.ErrorIs(t, err, tt.wantErr)
				var genErr *GenerationError
				require.ErrorAs(t, err, &genErr)
				assert.Equal(t, "fake", genErr.Provider)
				assert.Equal(t, tt.wantCalls, genErr.Attempts)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_CancelledContext(t *testing.T) {
	fb := &fakeBackend{responses: []fakeResponse{{text: "never"}}}
	c := newTestClient(fb, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Complete(ctx, "s", "u")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGeneration)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, fb.calls)
}

func TestOpenAIBackend_Retryable(t *testing.T) {
	b := &openAIBackend{}
	assert.True(t, b.retryable(errors.New("API returned unexpected status code: 429: slow down")))
	assert.True(t, b.retryable(errors.New("API returned unexpected status code: 500: boom")))
	assert.True(t, b.retryable(errors.New("dial tcp: connection refused")))
	assert.False(t, b.retryable(errors.New("API returned unexpected status code: 401: bad key")))
	assert.False(t, b.retryable(fmt.Errorf("post: %w", context.DeadlineExceeded)))
}

func chatCompletion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	}
}

func TestNew_Azure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/openai/deployments/gov-deploy/chat/completions", r.URL.Path)
		assert.Equal(t, "2024-02-01", r.URL.Query().Get("api-version"))

		// Multi-part messages are sent as an array of typed parts.
		var body struct {
			Messages []struct {
				Role    string `json:"role"`
				Content []struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)
		require.Len(t, body.Messages[0].Content, 1)
		assert.Equal(t, "text", body.Messages[0].Content[0].Type)
		assert.Equal(t, "You are an expert.", body.Messages[0].Content[0].Text)
		assert.Equal(t, "user", body.Messages[1].Role)
		require.Len(t, body.Messages[1].Content, 1)
		assert.Equal(t, "Check this.", body.Messages[1].Content[0].Text)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatCompletion("Compliant. Endpoint is versioned."))
	}))
	defer srv.Close()

	c, err := New(config.LLMConfig{
		Provider:    config.ProviderAzure,
		Endpoint:    srv.URL,
		APIKey:      config.Secret("azure-key"),
		Deployment:  "gov-deploy",
		APIVersion:  "2024-02-01",
		Temperature: 1,
		Timeout:     5 * time.Second,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, config.ProviderAzure, c.Provider())

	got, err := c.Complete(context.Background(), "You are an expert.", "Check this.")
	require.NoError(t, err)
	assert.Equal(t, "Compliant. Endpoint is versioned.", got)
	assert.Equal(t, int32(1), hits.Load())
}

func TestNew_OpenAIRetriesServerError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatCompletion("done"))
	}))
	defer srv.Close()

	c, err := New(config.LLMConfig{
		Provider:   config.ProviderOpenAI,
		Endpoint:   srv.URL,
		APIKey:     config.Secret("sk-test"),
		Timeout:    5 * time.Second,
		MaxRetries: 2,
	}, logging.NewNop())
	require.NoError(t, err)
	c.initialBackoff = time.Millisecond

	got, err := c.Complete(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.Equal(t, int32(2), hits.Load())
}

func TestNew_Anthropic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-test", body["model"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            "msg_1",
			"type":          "message",
			"role":          "assistant",
			"model":         "claude-test",
			"content":       []map[string]any{{"type": "text", "text": "Non-compliant. Missing auth."}},
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"usage":         map[string]any{"input_tokens": 12, "output_tokens": 6},
		})
	}))
	defer srv.Close()

	c, err := New(config.LLMConfig{
		Provider: config.ProviderAnthropic,
		Endpoint: srv.URL,
		APIKey:   config.Secret("ak-test"),
		Model:    "claude-test",
		Timeout:  5 * time.Second,
	}, nil)
	require.NoError(t, err)

	got, err := c.Complete(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "Non-compliant. Missing auth.", got)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(config.LLMConfig{Provider: config.ProviderAzure, Timeout: time.Second}, nil)
	assert.ErrorIs(t, err, config.ErrConfiguration)

	_, err = New(config.LLMConfig{Provider: "bard", Timeout: time.Second}, nil)
	assert.ErrorIs(t, err, config.ErrConfiguration)
}
