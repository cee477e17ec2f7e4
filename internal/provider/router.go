package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-miner/internal/cost"
	"github.com/sells-group/lead-miner/internal/model"
	"github.com/sells-group/lead-miner/pkg/anthropic"
	"github.com/sells-group/lead-miner/pkg/perplexity"
)

// BusinessSearcher finds candidate leads for one query.
type BusinessSearcher interface {
	Search(ctx context.Context, s Settings, q Query) (*Batch, error)
}

// RouterConfig tunes the provider calls.
type RouterConfig struct {
	PerplexityModel string
	AnthropicModel  string
	MaxTokens       int64
	// IncludeNeighborhoodInID adds the neighborhood to derived lead ids.
	IncludeNeighborhoodInID bool
}

// Router dispatches every provider operation to the service selected in
// Settings. Clients are built per call from the keys passed in.
type Router struct {
	cfg           RouterConfig
	newPerplexity func(apiKey string) perplexity.Client
	newAnthropic  func(apiKey string) anthropic.Client
	offline       neighborhoodTable
	meter         *cost.Meter
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithPerplexityFactory replaces how primary clients are built.
func WithPerplexityFactory(fn func(apiKey string) perplexity.Client) RouterOption {
	return func(r *Router) { r.newPerplexity = fn }
}

// WithAnthropicFactory replaces how secondary clients are built.
func WithAnthropicFactory(fn func(apiKey string) anthropic.Client) RouterOption {
	return func(r *Router) { r.newAnthropic = fn }
}

// WithOfflineNeighborhoods replaces the embedded neighborhood table. Keys
// are city names; they are normalized on load.
func WithOfflineNeighborhoods(table map[string][]string) RouterOption {
	return func(r *Router) { r.offline = newNeighborhoodTable(table) }
}

// WithCostMeter records the estimated spend of every completion in m.
func WithCostMeter(m *cost.Meter) RouterOption {
	return func(r *Router) { r.meter = m }
}

// NewRouter creates a Router with the default HTTP clients.
func NewRouter(cfg RouterConfig, opts ...RouterOption) *Router {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.AnthropicModel == "" {
		cfg.AnthropicModel = anthropic.DefaultModel
	}
	r := &Router{
		cfg: cfg,
		newPerplexity: func(apiKey string) perplexity.Client {
			return perplexity.NewClient(apiKey)
		},
		newAnthropic: func(apiKey string) anthropic.Client {
			return anthropic.NewClient(apiKey)
		},
		offline: embeddedNeighborhoods(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

const searchSystemPrompt = `You find real, currently operating local businesses in Brazil.
Reply with JSON only, no prose, in the form:
{"businesses":[{"name":"","phone":"","instagram":"","website":"","email":"","facebook":"","neighborhood":""}]}
Use empty strings for unknown fields. Never invent phone numbers.`

// Search asks the active provider for businesses of q.Niche in
// q.Neighborhood, q.City.
func (r *Router) Search(ctx context.Context, s Settings, q Query) (*Batch, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf("List businesses of type %q in the neighborhood %q of %s, Brazil. Include each business's phone (WhatsApp if possible) and social profiles.",
		q.Niche, q.Neighborhood, q.City)
	if q.DeepSearch {
		prompt += " Search exhaustively and return as many distinct businesses as you can verify."
	}

	text, sources, err := r.complete(ctx, s, completion{
		system:   searchSystemPrompt,
		prompt:   prompt,
		deep:     q.DeepSearch,
		location: q.Location,
	})
	if err != nil {
		return nil, err
	}

	var list businessList
	if err := decodeReply(text, &list); err != nil {
		zap.L().Warn("provider: unparseable search reply",
			zap.String("niche", q.Niche),
			zap.String("neighborhood", q.Neighborhood),
			zap.Error(err),
		)
		return nil, &Error{Provider: string(s.Active()), Kind: ErrProviderUnexpected, Err: err}
	}

	return &Batch{
		Leads:   toLeads(list.Businesses, q, r.cfg.IncludeNeighborhoodInID),
		Sources: sources,
	}, nil
}

type completion struct {
	system   string
	prompt   string
	deep     bool
	location *Location
	// provider overrides Settings.Active when set.
	provider Name
}

// complete runs one prompt against the chosen provider and returns the
// raw reply text plus any grounding sources.
func (r *Router) complete(ctx context.Context, s Settings, c completion) (string, []model.Source, error) {
	name := c.provider
	if name == "" {
		name = s.Active()
	}
	switch name {
	case Secondary:
		return r.completeSecondary(ctx, s.SecondaryKey, c)
	default:
		return r.completePrimary(ctx, s.PrimaryKey, c)
	}
}

func (r *Router) completePrimary(ctx context.Context, apiKey string, c completion) (string, []model.Source, error) {
	if apiKey == "" {
		return "", nil, eris.Wrap(ErrCredentialMissing, "perplexity: api key not configured")
	}

	req := perplexity.ChatCompletionRequest{
		Model:     r.cfg.PerplexityModel,
		MaxTokens: int(r.cfg.MaxTokens),
		Messages: []perplexity.Message{
			{Role: "system", Content: c.system},
			{Role: "user", Content: c.prompt},
		},
	}
	opts := &perplexity.WebSearchOptions{SearchContextSize: "medium"}
	if c.deep {
		opts.SearchContextSize = "high"
	}
	if c.location != nil {
		opts.UserLocation = &perplexity.UserLocation{
			Latitude:  c.location.Latitude,
			Longitude: c.location.Longitude,
			Country:   "BR",
		}
	}
	req.WebSearchOptions = opts

	resp, err := r.newPerplexity(apiKey).ChatCompletion(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", nil, err
		}
		return "", nil, classifyStatus("perplexity", perplexity.StatusCode(err), err)
	}
	if len(resp.Choices) == 0 {
		return "", nil, &Error{Provider: "perplexity", Kind: ErrProviderUnexpected, Err: eris.New("perplexity: no choices in response")}
	}

	zap.L().Debug("perplexity usage",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	if r.meter != nil {
		r.meter.Add("perplexity", r.meter.Calculator().Perplexity(c.deep, resp.Usage.PromptTokens, resp.Usage.CompletionTokens))
	}
	return resp.Choices[0].Message.Content, perplexitySources(resp), nil
}

// perplexitySources prefers titled search results and falls back to bare
// citation URLs. Duplicate URLs are dropped.
func perplexitySources(resp *perplexity.ChatCompletionResponse) []model.Source {
	seen := make(map[string]struct{})
	var out []model.Source
	add := func(title, uri string) {
		uri = strings.TrimSpace(uri)
		if uri == "" {
			return
		}
		if _, ok := seen[uri]; ok {
			return
		}
		seen[uri] = struct{}{}
		if title == "" {
			title = uri
		}
		out = append(out, model.Source{Title: title, URI: uri})
	}
	for _, sr := range resp.SearchResults {
		add(sr.Title, sr.URL)
	}
	for _, c := range resp.Citations {
		add("", c)
	}
	return out
}

func (r *Router) completeSecondary(ctx context.Context, apiKey string, c completion) (string, []model.Source, error) {
	if apiKey == "" {
		return "", nil, eris.Wrap(ErrCredentialMissing, "anthropic: api key not configured")
	}

	resp, err := r.newAnthropic(apiKey).Complete(ctx, anthropic.Prompt{
		Model:       r.cfg.AnthropicModel,
		MaxTokens:   r.cfg.MaxTokens,
		System:      c.system,
		CacheSystem: true,
		User:        c.prompt,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", nil, err
		}
		return "", nil, classifyStatus("anthropic", anthropic.StatusCode(err), err)
	}
	if resp.Truncated() {
		zap.L().Warn("provider: anthropic reply hit the token limit", zap.Int64("max_tokens", r.cfg.MaxTokens))
	}
	if r.meter != nil {
		u := resp.Usage
		r.meter.Add("anthropic", r.meter.Calculator().Claude(r.cfg.AnthropicModel,
			u.InputTokens, u.OutputTokens, u.CacheCreationInputTokens, u.CacheReadInputTokens))
	}
	return resp.Text, nil, nil
}
