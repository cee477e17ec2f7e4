package perplexity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-miner/internal/resilience"
)

const okBody = `{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}],"usage":{}}`

func fastRetry() Option {
	return WithRetry(resilience.RetryConfig{
		MaxAttempts:    maxRetryAttempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	})
}

func TestChatCompletion(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    string
		wantStatus int
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body: `{
				"id": "cmpl-moema",
				"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"businesses\":[]}"}}],
				"usage": {"prompt_tokens": 120, "completion_tokens": 8},
				"citations": ["https://guia.example/moema"],
				"search_results": [{"title": "Guia Moema", "url": "https://guia.example/moema", "date": "2025-02-01"}]
			}`,
		},
		{
			name:       "rate_limit",
			status:     http.StatusTooManyRequests,
			body:       `{"error": "rate limit exceeded"}`,
			wantErr:    "unexpected status 429",
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name:       "unauthorized",
			status:     http.StatusUnauthorized,
			body:       `{"error": "invalid api key"}`,
			wantErr:    "invalid api key",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:    "malformed_response",
			status:  http.StatusOK,
			body:    `{invalid json`,
			wantErr: "unmarshal response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/chat/completions", r.URL.Path)
				assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient("test-key", WithBaseURL(srv.URL), fastRetry())
			resp, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
				Messages: []Message{{Role: "user", Content: "pizzarias em Moema"}},
			})

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Equal(t, tt.wantStatus, StatusCode(err))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "cmpl-moema", resp.ID)
			assert.JSONEq(t, `{"businesses":[]}`, resp.Choices[0].Message.Content)
			assert.Equal(t, 120, resp.Usage.PromptTokens)
			assert.Equal(t, []string{"https://guia.example/moema"}, resp.Citations)
			require.Len(t, resp.SearchResults, 1)
			assert.Equal(t, SearchResult{Title: "Guia Moema", URL: "https://guia.example/moema", Date: "2025-02-01"}, resp.SearchResults[0])
		})
	}
}

func TestChatCompletion_RequestBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var raw map[string]any
		require.NoError(t, json.Unmarshal(body, &raw))
		assert.Equal(t, "sonar", raw["model"], "empty model falls back to the client default")
		assert.InDelta(t, 2048, raw["max_tokens"], 0.1)

		opts, ok := raw["web_search_options"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "high", opts["search_context_size"])
		loc := opts["user_location"].(map[string]any)
		assert.InDelta(t, -23.55, loc["latitude"], 0.001)
		assert.Equal(t, "BR", loc["country"])

		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
		MaxTokens: 2048,
		Messages:  []Message{{Role: "user", Content: "pizzarias em Moema"}},
		WebSearchOptions: &WebSearchOptions{
			SearchContextSize: "high",
			UserLocation:      &UserLocation{Latitude: -23.55, Longitude: -46.63, Country: "BR"},
		},
	})
	require.NoError(t, err)
}

func TestChatCompletion_OmitsUnsetOptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.Equal(t, "sonar-pro", raw["model"])
		assert.NotContains(t, raw, "max_tokens")
		assert.NotContains(t, raw, "web_search_options")
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithModel("sonar-pro"))
	_, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages: []Message{{Role: "user", Content: "padarias"}},
	})
	require.NoError(t, err)
}

func TestChatCompletion_RetryPolicy(t *testing.T) {
	tests := []struct {
		name         string
		statuses     []int // served in order; the last one repeats
		wantAttempts int32
		wantStatus   int
	}{
		{"gateway blips recover", []int{502, 502, 200}, 3, 0},
		{"quota is not retried", []int{429}, 1, 429},
		{"bad key is not retried", []int{403}, 1, 403},
		{"server errors exhaust attempts", []int{500}, maxRetryAttempts, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				n := int(attempts.Add(1))
				status := tt.statuses[min(n, len(tt.statuses))-1]
				if status != http.StatusOK {
					w.WriteHeader(status)
					return
				}
				_, _ = w.Write([]byte(okBody))
			}))
			defer srv.Close()

			client := NewClient("test-key", WithBaseURL(srv.URL), fastRetry())
			_, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
				Messages: []Message{{Role: "user", Content: "test"}},
			})

			assert.Equal(t, tt.wantAttempts, attempts.Load())
			if tt.wantStatus == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantStatus, StatusCode(err))
		})
	}
}

func TestContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.ChatCompletion(ctx, ChatCompletionRequest{
		Messages: []Message{{Role: "user", Content: "test"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "send request")
}

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()
	custom := &http.Client{}
	c := NewClient("my-key", WithHTTPClient(custom)).(*apiClient)
	assert.Equal(t, "my-key", c.apiKey)
	assert.Equal(t, defaultBaseURL, c.baseURL)
	assert.Equal(t, defaultModel, c.model)
	assert.Same(t, custom, c.http)
	assert.NotNil(t, c.retry.ShouldRetry)
}

func TestStatusCode(t *testing.T) {
	wrapped := fmt.Errorf("search: %w", &APIError{StatusCode: 503})
	assert.Equal(t, 503, StatusCode(wrapped))
	assert.Equal(t, 0, StatusCode(errors.New("dial tcp: refused")))
	assert.Equal(t, 0, StatusCode(nil))
}

func TestChatCompletion_TruncatesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(strings.Repeat("x", 4*maxErrorBody)))
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).ChatCompletion(context.Background(), ChatCompletionRequest{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Len(t, apiErr.Body, maxErrorBody)
}
