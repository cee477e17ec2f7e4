package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-miner/internal/cost"
	"github.com/sells-group/lead-miner/internal/lifecycle"
	"github.com/sells-group/lead-miner/internal/mining"
	"github.com/sells-group/lead-miner/internal/model"
	"github.com/sells-group/lead-miner/internal/provider"
	"github.com/sells-group/lead-miner/internal/reconcile"
	"github.com/sells-group/lead-miner/internal/resilience"
	"github.com/sells-group/lead-miner/internal/store"
	anthropicpkg "github.com/sells-group/lead-miner/pkg/anthropic"
	"github.com/sells-group/lead-miner/pkg/perplexity"
)

// appEnv holds the wired components shared by the commands.
type appEnv struct {
	Store   *store.Replicated
	Engine  *reconcile.Engine
	Manager *lifecycle.Manager
	Router  *provider.Router
	Miner   *mining.Orchestrator
	Meter   *cost.Meter
	Report  *reconcile.LoadReport
}

// initStore opens the local replica and, when configured, the remote one.
// An unreachable remote leaves the session local-only.
func initStore(ctx context.Context) (*store.Replicated, error) {
	local, err := store.NewSQLite(cfg.Store.LocalPath)
	if err != nil {
		return nil, eris.Wrap(err, "open local store")
	}

	var remote store.Store
	if cfg.Store.RemoteURL != "" {
		pg, err := store.NewPostgres(ctx, cfg.Store.RemoteURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			zap.L().Warn("remote store unreachable, continuing local-only", zap.Error(err))
		} else {
			remote = pg
		}
	}

	rep := store.NewReplicated(local, remote,
		store.WithRetry(cfg.RetryConfig()),
		store.WithCircuitBreaker(resilience.NewCircuitBreaker(cfg.CircuitConfig())),
		store.WithOpTimeout(cfg.OpTimeout()),
		store.WithStatusHook(func(s model.CloudStatus) {
			zap.L().Debug("cloud status changed", zap.String("status", string(s)))
		}),
	)
	if err := rep.Migrate(ctx); err != nil {
		_ = rep.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return rep, nil
}

// newRouter builds the provider router from config.
func newRouter(opts ...provider.RouterOption) *provider.Router {
	timeout := time.Duration(cfg.Perplexity.TimeoutSecs) * time.Second
	rcfg := provider.RouterConfig{
		PerplexityModel:         cfg.Perplexity.Model,
		AnthropicModel:          cfg.Anthropic.Model,
		MaxTokens:               cfg.Anthropic.MaxTokens,
		IncludeNeighborhoodInID: cfg.Identity.IncludeNeighborhood,
	}
	base := []provider.RouterOption{
		provider.WithPerplexityFactory(func(apiKey string) perplexity.Client {
			return perplexity.NewClient(apiKey,
				perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
				perplexity.WithModel(cfg.Perplexity.Model),
				perplexity.WithHTTPClient(&http.Client{Timeout: timeout}),
			)
		}),
		provider.WithAnthropicFactory(func(apiKey string) anthropicpkg.Client {
			return anthropicpkg.NewClient(apiKey)
		}),
	}
	return provider.NewRouter(rcfg, append(base, opts...)...)
}

// initApp opens the stores, reconciles the replicas, and wires the
// lifecycle manager and mining orchestrator.
func initApp(ctx context.Context, opts ...mining.Option) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	engine := reconcile.NewEngine(st)
	report, err := engine.Load(ctx)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "load leads")
	}
	if report.RemoteErr != nil {
		zap.L().Warn("remote replica unavailable, using local data", zap.Error(report.RemoteErr))
	}

	meter := cost.NewMeter(cost.NewCalculator(cost.DefaultRates()))
	router := newRouter(provider.WithCostMeter(meter))
	mgr := lifecycle.NewManager(engine, st, lifecycle.WithPitchWriter(router))
	opts = append([]mining.Option{mining.WithPacing(cfg.Pacing())}, opts...)
	miner := mining.NewOrchestrator(engine, mgr, st, router, router, opts...)

	return &appEnv{
		Store:   st,
		Engine:  engine,
		Manager: mgr,
		Router:  router,
		Miner:   miner,
		Meter:   meter,
		Report:  report,
	}, nil
}

// Close waits for queued remote writes, then closes both replicas.
func (e *appEnv) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.OpTimeout())
	defer cancel()
	if err := e.Store.Flush(ctx); err != nil {
		zap.L().Warn("flush remote writes", zap.Error(err))
	}
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}
