// Package mining runs the neighborhood-by-neighborhood search loop that
// feeds new leads into the reconciliation engine.
package mining

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-miner/internal/identity"
	"github.com/sells-group/lead-miner/internal/model"
	"github.com/sells-group/lead-miner/internal/provider"
	"github.com/sells-group/lead-miner/internal/reconcile"
	"github.com/sells-group/lead-miner/internal/resilience"
)

var (
	ErrAlreadyRunning  = eris.New("mining: a run is already in progress")
	ErrNoNeighborhoods = eris.New("mining: no neighborhoods known for city")
)

// DefaultPacing is the pause between the end of one provider search and the
// start of the next.
const DefaultPacing = 4 * time.Second

// CampaignEnsurer resolves the target campaign of a run.
type CampaignEnsurer interface {
	EnsureCampaign(ctx context.Context, niche, city string, now time.Time) (model.Campaign, error)
}

// Store receives each accepted batch.
type Store interface {
	UpsertLeads(ctx context.Context, leads []model.Lead) error
	// ResetStatus returns the cloud indicator to its nominal value.
	ResetStatus()
}

// Orchestrator runs mining. Only one run is active at a time.
type Orchestrator struct {
	engine        *reconcile.Engine
	campaigns     CampaignEnsurer
	store         Store
	searcher      provider.BusinessSearcher
	neighborhoods provider.NeighborhoodLookup
	pacing        time.Duration
	now           func() time.Time

	running atomic.Bool
	status  atomic.Pointer[Progress]

	mu        sync.Mutex
	observers []Observer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPacing sets the pause between searches. Zero disables pacing.
func WithPacing(d time.Duration) Option {
	return func(o *Orchestrator) { o.pacing = d }
}

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) Option {
	return func(o *Orchestrator) { o.now = fn }
}

// WithObserver registers an observer at construction.
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, fn) }
}

// NewOrchestrator wires the mining loop.
func NewOrchestrator(
	engine *reconcile.Engine,
	campaigns CampaignEnsurer,
	st Store,
	searcher provider.BusinessSearcher,
	neighborhoods provider.NeighborhoodLookup,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		engine:        engine,
		campaigns:     campaigns,
		store:         st,
		searcher:      searcher,
		neighborhoods: neighborhoods,
		pacing:        DefaultPacing,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.status.Store(&Progress{State: StateIdle})
	return o
}

// Observe registers fn for progress updates of future runs.
func (o *Orchestrator) Observe(fn Observer) {
	o.mu.Lock()
	o.observers = append(o.observers, fn)
	o.mu.Unlock()
}

// Running reports whether a run is in progress.
func (o *Orchestrator) Running() bool { return o.running.Load() }

// Status returns the latest published progress.
func (o *Orchestrator) Status() Progress { return *o.status.Load() }

func (o *Orchestrator) publish(p Progress) {
	o.status.Store(&p)
	o.mu.Lock()
	obs := append([]Observer(nil), o.observers...)
	o.mu.Unlock()
	for _, fn := range obs {
		fn(p)
	}
}

// Run mines req.Niche across the requested neighborhoods. Leads are
// persisted per neighborhood, so a halted or cancelled run keeps what it
// found. Halts are reported in Result.State, not as errors.
func (o *Orchestrator) Run(ctx context.Context, s provider.Settings, req Request) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if identity.CampaignKey(req.Niche) == "" {
		return nil, eris.New("mining: niche is required")
	}
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer func() {
		o.store.ResetStatus()
		o.running.Store(false)
		o.status.Store(&Progress{State: StateIdle})
	}()

	log := zap.L().With(
		zap.String("niche", req.Niche),
		zap.String("city", req.City),
	)

	neighborhoods, res, err := o.resolveNeighborhoods(ctx, s, req)
	if err != nil || res != nil {
		return res, err
	}

	campaign, err := o.campaigns.EnsureCampaign(ctx, req.Niche, req.City, o.now())
	if err != nil {
		return nil, eris.Wrap(err, "mining: ensure campaign")
	}
	log = log.With(zap.String("campaign_id", campaign.ID))

	res = &Result{State: StateRunning, Campaign: campaign, Total: len(neighborhoods)}
	o.publish(Progress{State: StateRunning, CampaignID: campaign.ID, Total: res.Total, Leads: o.engine.Snapshot().Leads})

	for i, nb := range neighborhoods {
		if ctx.Err() != nil {
			o.finish(res, StateCancelled, msgCancelled)
			break
		}
		// The first search goes out at once; every later one waits the full
		// pacing after the previous search and its write have finished.
		if i > 0 && o.pacing > 0 && !resilience.Sleep(ctx, o.pacing) {
			o.finish(res, StateCancelled, msgCancelled)
			break
		}

		step := o.mineOne(ctx, s, req, campaign.ID, nb)
		res.Searched++
		res.Counters.add(step.counters)
		res.Sources = append(res.Sources, step.sources...)

		p := Progress{
			State:        StateRunning,
			CampaignID:   campaign.ID,
			Index:        i + 1,
			Total:        res.Total,
			Neighborhood: nb,
			Counters:     res.Counters,
			Sources:      res.Sources,
			Leads:        step.leads,
			Err:          step.err,
		}

		// Only provider errors can halt the run. A failed write keeps the
		// leads in memory and mining moves on.
		if step.persistErr != nil {
			log.Warn("mining: persist failed", zap.String("neighborhood", nb), zap.Error(step.persistErr))
			res.Errors = append(res.Errors, StepError{Neighborhood: nb, Err: step.persistErr, Message: step.persistErr.Error()})
			p.Err = step.persistErr
		}
		if step.err != nil {
			if ctx.Err() != nil {
				o.finish(res, StateCancelled, msgCancelled)
				break
			}
			if state, msg, halt := haltFor(step.err); halt {
				log.Warn("mining: halted", zap.String("state", string(state)), zap.Error(step.err))
				o.finish(res, state, msg)
				p.State, p.Message = state, msg
				o.publish(p)
				break
			}
			log.Warn("mining: neighborhood failed", zap.String("neighborhood", nb), zap.Error(step.err))
			res.Errors = append(res.Errors, StepError{Neighborhood: nb, Err: step.err, Message: step.err.Error()})
		}
		o.publish(p)
	}

	if !res.State.Terminal() {
		o.finish(res, StateCompleted, "")
	}
	if res.State == StateCancelled {
		o.publish(Progress{State: StateCancelled, CampaignID: campaign.ID, Index: res.Searched, Total: res.Total, Counters: res.Counters, Message: msgCancelled})
	} else if res.State == StateCompleted {
		o.publish(Progress{State: StateCompleted, CampaignID: campaign.ID, Index: res.Searched, Total: res.Total, Counters: res.Counters, Sources: res.Sources, Leads: o.engine.Snapshot().Leads})
	}

	log.Info("mining: finished",
		zap.String("state", string(res.State)),
		zap.Int("searched", res.Searched),
		zap.Int("new", res.Counters.New),
		zap.Int("skipped", res.Counters.Skipped),
		zap.Int("errors", len(res.Errors)),
	)
	return res, nil
}

func (o *Orchestrator) finish(res *Result, state State, msg string) {
	res.State = state
	res.Message = msg
	res.ShowResults = state == StateCompleted && res.Counters.New > 0
}

// resolveNeighborhoods returns the explicit list or asks the lookup. A
// halting lookup failure is reported as a Result.
func (o *Orchestrator) resolveNeighborhoods(ctx context.Context, s provider.Settings, req Request) ([]string, *Result, error) {
	if len(req.Neighborhoods) > 0 {
		return req.Neighborhoods, nil, nil
	}
	list, err := o.neighborhoods.Neighborhoods(ctx, s, req.City)
	if err != nil {
		if state, msg, halt := haltFor(err); halt {
			return nil, &Result{State: state, Message: msg}, nil
		}
		return nil, nil, eris.Wrap(err, "mining: list neighborhoods")
	}
	if len(list) == 0 {
		return nil, nil, eris.Wrapf(ErrNoNeighborhoods, "city %q", req.City)
	}
	return list, nil, nil
}

type stepResult struct {
	counters Counters
	sources  []model.Source
	leads    []model.Lead
	// err is the search failure; persistErr the failed write of an
	// otherwise successful step.
	err        error
	persistErr error
}

// mineOne searches one neighborhood, folds the batch, and persists only the
// accepted leads.
func (o *Orchestrator) mineOne(ctx context.Context, s provider.Settings, req Request, campaignID, neighborhood string) stepResult {
	batch, err := o.searcher.Search(ctx, s, provider.Query{
		Niche:        req.Niche,
		City:         req.City,
		Neighborhood: neighborhood,
		DeepSearch:   req.DeepSearch,
		Location:     req.Location,
	})
	if err != nil {
		return stepResult{err: err, leads: o.engine.Snapshot().Leads}
	}

	fold := o.engine.FoldBatch(campaignID, batch.Leads, o.now())
	out := stepResult{
		counters: Counters{
			New:      len(fold.Accepted),
			Skipped:  fold.Skipped,
			Mobile:   fold.Mobile,
			Landline: fold.Landline,
		},
		sources: batch.Sources,
		leads:   fold.Snapshot.Leads,
	}

	if len(fold.Accepted) > 0 {
		if err := o.store.UpsertLeads(ctx, fold.Accepted); err != nil {
			out.persistErr = eris.Wrapf(err, "mining: persist %d leads", len(fold.Accepted))
		}
	}
	return out
}
