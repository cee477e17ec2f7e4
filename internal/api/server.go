// Package api exposes lead management and mining over HTTP.
package api

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/lead-miner/internal/lifecycle"
	"github.com/sells-group/lead-miner/internal/mining"
	"github.com/sells-group/lead-miner/internal/model"
	"github.com/sells-group/lead-miner/internal/provider"
)

// Miner runs mining in the background.
type Miner interface {
	Run(ctx context.Context, s provider.Settings, req mining.Request) (*mining.Result, error)
	Running() bool
	Status() mining.Progress
}

// CloudReporter reports the remote replica state.
type CloudReporter interface {
	Status() model.CloudStatus
}

// Server holds the handler dependencies.
type Server struct {
	manager  *lifecycle.Manager
	miner    Miner
	cloud    CloudReporter
	settings provider.Settings
	origins  []string
	now      func() time.Time

	// runCtx bounds background mining runs; cancelled on shutdown.
	runCtx     context.Context
	lastResult atomic.Pointer[mining.Result]
	runs       chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithCloud sets the remote status reporter.
func WithCloud(c CloudReporter) Option {
	return func(s *Server) { s.cloud = c }
}

// WithAllowedOrigins sets the CORS origins. Defaults to "*".
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) Option {
	return func(s *Server) { s.now = fn }
}

// New builds a Server. Background runs started through POST /mine use ctx.
func New(ctx context.Context, m *lifecycle.Manager, miner Miner, settings provider.Settings, opts ...Option) *Server {
	s := &Server{
		manager:  m,
		miner:    miner,
		settings: settings,
		origins:  []string{"*"},
		now:      time.Now,
		runCtx:   ctx,
		runs:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/campaigns", s.handleCampaigns)
	r.Get("/folders", s.handleFolders)
	r.Delete("/folders/{niche}", s.handleDeleteFolder)
	r.Get("/leads", s.handleLeads)
	r.Route("/campaigns/{campaignID}/leads/{leadID}", func(r chi.Router) {
		r.Patch("/status", s.handleSetStatus)
		r.Post("/contact", s.handleContact)
		r.Post("/pitch", s.handlePitch)
	})
	r.Post("/cleanup", s.handleCleanup)
	r.Post("/mine", s.handleMine)
	r.Get("/export/{format}", s.handleExport)
	return r
}

// Wait blocks until a background mining run started by the server ends.
func (s *Server) Wait() {
	s.runs <- struct{}{}
	<-s.runs
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
