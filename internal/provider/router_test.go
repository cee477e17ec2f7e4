package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-miner/internal/cost"
	"github.com/sells-group/lead-miner/internal/model"
	"github.com/sells-group/lead-miner/internal/resilience"
	"github.com/sells-group/lead-miner/pkg/anthropic"
	"github.com/sells-group/lead-miner/pkg/perplexity"
)

func testRouter(t *testing.T, perplexityURL, anthropicURL string, opts ...RouterOption) *Router {
	t.Helper()
	base := []RouterOption{
		WithPerplexityFactory(func(apiKey string) perplexity.Client {
			return perplexity.NewClient(apiKey,
				perplexity.WithBaseURL(perplexityURL),
				perplexity.WithRetry(resilience.RetryConfig{MaxAttempts: 1}),
			)
		}),
		WithAnthropicFactory(func(apiKey string) anthropic.Client {
			return anthropic.NewClient(apiKey, option.WithBaseURL(anthropicURL), option.WithMaxRetries(0))
		}),
	}
	return NewRouter(RouterConfig{}, append(base, opts...)...)
}

func writeCompletion(t *testing.T, w http.ResponseWriter, content string, extra map[string]any) {
	t.Helper()
	body := map[string]any{
		"id":      "cmpl-1",
		"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": content}}},
		"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 20},
	}
	for k, v := range extra {
		body[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func writeAnthropic(t *testing.T, w http.ResponseWriter, text string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
		"id":          "msg_1",
		"type":        "message",
		"role":        "assistant",
		"content":     []map[string]any{{"type": "text", "text": text}},
		"model":       anthropic.DefaultModel,
		"stop_reason": "end_turn",
		"usage":       map[string]any{"input_tokens": 10, "output_tokens": 5},
	}))
}

const twoBusinesses = "```json\n" + `{"businesses":[
 {"name":"Pizzaria Bella","phone":"(11) 99999-8888","instagram":"@bella"},
 {"name":"Cantina do Zé","phone":"11 3333-4444","website":"https://ze.com.br"}
]}` + "\n```"

func TestSearch_Primary(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer pk", r.Header.Get("Authorization"))

		var req perplexity.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.WebSearchOptions)
		assert.Equal(t, "high", req.WebSearchOptions.SearchContextSize)
		require.NotNil(t, req.WebSearchOptions.UserLocation)
		assert.InDelta(t, -23.6, req.WebSearchOptions.UserLocation.Latitude, 0.001)
		assert.Contains(t, req.Messages[1].Content, "Moema")

		writeCompletion(t, w, twoBusinesses, map[string]any{
			"citations":      []string{"https://a.example", "https://b.example"},
			"search_results": []map[string]any{{"title": "Guia A", "url": "https://a.example"}},
		})
	}))
	defer srv.Close()

	r := testRouter(t, srv.URL, "")
	batch, err := r.Search(context.Background(), Settings{PrimaryKey: "pk"}, Query{
		Niche:        "pizzaria",
		City:         "São Paulo",
		Neighborhood: "Moema",
		DeepSearch:   true,
		Location:     &Location{Latitude: -23.6, Longitude: -46.66},
	})
	require.NoError(t, err)
	require.Len(t, batch.Leads, 2)
	assert.Equal(t, "11999998888", batch.Leads[0].Phone)
	assert.Equal(t, model.PhoneLandline, batch.Leads[1].Type)
	assert.Equal(t, "Moema", batch.Leads[1].Neighborhood)

	assert.Equal(t, []model.Source{
		{Title: "Guia A", URI: "https://a.example"},
		{Title: "https://b.example", URI: "https://b.example"},
	}, batch.Sources)
}

func TestSearch_Secondary(t *testing.T) {
	t.Parallel()

	var primaryCalls atomic.Int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		primaryCalls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer primary.Close()

	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/messages")
		writeAnthropic(t, w, twoBusinesses)
	}))
	defer secondary.Close()

	r := testRouter(t, primary.URL, secondary.URL)
	batch, err := r.Search(context.Background(),
		Settings{Provider: Secondary, PrimaryKey: "pk", SecondaryKey: "sk"},
		Query{Niche: "pizzaria", City: "São Paulo", Neighborhood: "Moema"})
	require.NoError(t, err)
	assert.Len(t, batch.Leads, 2)
	assert.Empty(t, batch.Sources)
	assert.Zero(t, primaryCalls.Load())
}

func TestSearch_MissingKey(t *testing.T) {
	t.Parallel()

	r := NewRouter(RouterConfig{})
	_, err := r.Search(context.Background(), Settings{}, Query{Niche: "pizzaria"})
	assert.ErrorIs(t, err, ErrCredentialMissing)
	assert.Equal(t, KindCredential, Classify(err))
}

func TestSearch_StatusClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		kind   Kind
	}{
		{http.StatusTooManyRequests, KindRateLimited},
		{http.StatusUnauthorized, KindCredential},
		{http.StatusBadRequest, KindUnexpected},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
		}))

		r := testRouter(t, srv.URL, "")
		_, err := r.Search(context.Background(), Settings{PrimaryKey: "pk"}, Query{Niche: "bar"})
		srv.Close()

		require.Error(t, err)
		assert.Equal(t, tt.kind, Classify(err), "status %d", tt.status)
	}
}

func TestSearch_SecondaryRateLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	r := testRouter(t, "", srv.URL)
	_, err := r.Search(context.Background(),
		Settings{Provider: Secondary, PrimaryKey: "pk", SecondaryKey: "sk"},
		Query{Niche: "bar"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestSearch_UnparseableReply(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeCompletion(t, w, "Sorry, I could not find anything.", nil)
	}))
	defer srv.Close()

	r := testRouter(t, srv.URL, "")
	_, err := r.Search(context.Background(), Settings{PrimaryKey: "pk"}, Query{Niche: "bar"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderUnexpected)
}

func TestNeighborhoods_Offline(t *testing.T) {
	t.Parallel()

	r := NewRouter(RouterConfig{})
	list, err := r.Neighborhoods(context.Background(), Settings{}, "SAO PAULO")
	require.NoError(t, err)
	assert.Contains(t, list, "Moema")

	list[0] = "mutated"
	again, err := r.Neighborhoods(context.Background(), Settings{}, "São Paulo")
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", again[0])
}

func TestNeighborhoods_Provider(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeCompletion(t, w, `{"neighborhoods":["Centro","centro"," Jardim América ",""]}`, nil)
	}))
	defer srv.Close()

	r := testRouter(t, srv.URL, "", WithOfflineNeighborhoods(map[string][]string{"Goiânia": nil}))
	list, err := r.Neighborhoods(context.Background(), Settings{PrimaryKey: "pk"}, "Goiânia")
	require.NoError(t, err)
	assert.Equal(t, []string{"Centro", "Jardim América"}, list)
}

func TestNeighborhoods_NoData(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeCompletion(t, w, `{"neighborhoods":[]}`, nil)
	}))
	defer srv.Close()

	r := testRouter(t, srv.URL, "")
	list, err := r.Neighborhoods(context.Background(), Settings{PrimaryKey: "pk"}, "Cidade Inexistente")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPitch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeAnthropic(t, w, `"Olá, Pizzaria Bella! Vi que vocês ainda não têm site..."`)
	}))
	defer srv.Close()

	r := testRouter(t, "", srv.URL)
	text, err := r.Pitch(context.Background(),
		Settings{PrimaryKey: "pk", SecondaryKey: "sk"},
		model.Lead{Name: "Pizzaria Bella", Neighborhood: "Moema"}, "PIZZARIA")
	require.NoError(t, err)
	assert.Equal(t, "Olá, Pizzaria Bella! Vi que vocês ainda não têm site...", text)
}

func TestPitch_FallsBackToPrimary(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeCompletion(t, w, "Oi!", nil)
	}))
	defer srv.Close()

	r := testRouter(t, srv.URL, "")
	text, err := r.Pitch(context.Background(), Settings{PrimaryKey: "pk"}, model.Lead{Name: "Bar"}, "BAR")
	require.NoError(t, err)
	assert.Equal(t, "Oi!", text)
}

func TestPitchPrompt(t *testing.T) {
	t.Parallel()

	assert.Contains(t, pitchPrompt(model.Lead{Name: "A"}, "BAR"), "no website or Instagram")
	assert.Contains(t, pitchPrompt(model.Lead{Name: "A", Instagram: "@a"}, "BAR"), "Instagram but no website")
	assert.Contains(t, pitchPrompt(model.Lead{Name: "A", Website: "x"}, "BAR"), "already have a website")
}

func TestSearch_RecordsCost(t *testing.T) {
	t.Parallel()

	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeCompletion(t, w, twoBusinesses, nil)
	}))
	defer primary.Close()
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeAnthropic(t, w, twoBusinesses)
	}))
	defer secondary.Close()

	meter := cost.NewMeter(cost.NewCalculator(cost.Rates{
		Anthropic:  map[string]cost.ModelRate{anthropic.DefaultModel: {Input: 1e6, Output: 1e6}},
		Perplexity: cost.PerplexityRate{PerQuery: 0.5, InputPerMTok: 1e6, OutputPerMTok: 1e6},
	}))
	r := testRouter(t, primary.URL, secondary.URL, WithCostMeter(meter))
	q := Query{Niche: "pizzaria", City: "São Paulo", Neighborhood: "Moema"}

	_, err := r.Search(context.Background(), Settings{PrimaryKey: "pk"}, q)
	require.NoError(t, err)
	_, err = r.Search(context.Background(), Settings{Provider: Secondary, PrimaryKey: "pk", SecondaryKey: "sk"}, q)
	require.NoError(t, err)

	assert.Equal(t, 1, meter.Calls("perplexity"))
	assert.Equal(t, 1, meter.Calls("anthropic"))
	// 0.5 + 10 + 20 for the primary, 10 + 5 for the secondary.
	assert.InDelta(t, 45.5, meter.Total(), 1e-6)
}
