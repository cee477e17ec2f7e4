package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-miner/internal/model"
	"github.com/sells-group/lead-miner/internal/resilience"
)

const (
	defaultQueueSize = 256
	defaultOpTimeout = 30 * time.Second
)

// Replicated writes to the local replica synchronously and mirrors every
// write to the remote replica on a single ordered background worker.
// Remote failures are logged and flip the cloud status to offline; they
// never undo the local write.
type Replicated struct {
	local  Store
	remote Store

	retry     resilience.RetryConfig
	breaker   *resilience.CircuitBreaker
	opTimeout time.Duration
	onStatus  func(model.CloudStatus)

	statusMu sync.RWMutex
	status   model.CloudStatus

	mu      sync.Mutex
	closed  bool
	ops     chan remoteOp
	done    chan struct{}
	closeMu sync.Once
}

type remoteOp struct {
	name    string
	fn      func(ctx context.Context, remote Store) error
	barrier chan struct{}
}

// Option configures a Replicated store.
type Option func(*Replicated)

// WithRetry sets the retry policy for remote writes.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(r *Replicated) { r.retry = cfg }
}

// WithCircuitBreaker sets the breaker guarding the remote replica.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(r *Replicated) { r.breaker = cb }
}

// WithOpTimeout bounds each remote write, retries included.
func WithOpTimeout(d time.Duration) Option {
	return func(r *Replicated) { r.opTimeout = d }
}

// WithStatusHook registers a callback for cloud status changes.
func WithStatusHook(fn func(model.CloudStatus)) Option {
	return func(r *Replicated) { r.onStatus = fn }
}

// NewReplicated pairs a local replica with an optional remote one. Pass a
// nil remote to run local-only; the cloud status is then disabled.
func NewReplicated(local, remote Store, opts ...Option) *Replicated {
	r := &Replicated{
		local:     local,
		remote:    remote,
		retry:     resilience.DefaultRetryConfig(),
		opTimeout: defaultOpTimeout,
		status:    model.CloudDisabled,
	}
	for _, o := range opts {
		o(r)
	}
	if r.breaker == nil {
		r.breaker = resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig())
	}
	if r.retry.OnRetry == nil {
		r.retry.OnRetry = resilience.RetryLogger("postgres", "replicate")
	}

	if remote != nil {
		r.status = model.CloudSynced
		r.ops = make(chan remoteOp, defaultQueueSize)
		r.done = make(chan struct{})
		go r.worker()
	}
	return r
}

// Local returns the local replica.
func (r *Replicated) Local() Store { return r.local }

// HasRemote reports whether a remote replica is configured.
func (r *Replicated) HasRemote() bool { return r.remote != nil }

// Status returns the current cloud status.
func (r *Replicated) Status() model.CloudStatus {
	r.statusMu.RLock()
	defer r.statusMu.RUnlock()
	return r.status
}

// ResetStatus returns the cloud status to its nominal value and gives the
// remote another chance by closing the circuit.
func (r *Replicated) ResetStatus() {
	if r.remote == nil {
		r.setStatus(model.CloudDisabled)
		return
	}
	r.breaker.Reset()
	r.setStatus(model.CloudSynced)
}

func (r *Replicated) setStatus(s model.CloudStatus) {
	r.statusMu.Lock()
	changed := r.status != s
	r.status = s
	r.statusMu.Unlock()
	if changed && r.onStatus != nil {
		r.onStatus(s)
	}
}

// Replicas is the result of loading both replicas.
type Replicas struct {
	Local  *model.Snapshot
	Remote *model.Snapshot
	// RemoteErr wraps ErrRemoteUnavailable when the remote could not be read.
	RemoteErr error
}

// LoadReplicas reads both replicas concurrently. Only a local failure is
// returned as an error; a remote failure is reported in Replicas.RemoteErr.
func (r *Replicated) LoadReplicas(ctx context.Context) (*Replicas, error) {
	out := &Replicas{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		snap, err := r.local.LoadAll(gctx)
		if err != nil {
			return eris.Wrap(err, "store: load local replica")
		}
		out.Local = snap
		return nil
	})

	if r.remote != nil {
		r.setStatus(model.CloudSyncing)
		g.Go(func() error {
			snap, err := resilience.ExecuteVal(gctx, r.breaker, func(ctx context.Context) (*model.Snapshot, error) {
				return resilience.DoVal(ctx, r.retry, r.remote.LoadAll)
			})
			if err != nil {
				out.RemoteErr = eris.Wrapf(ErrRemoteUnavailable, "load: %v", err)
				return nil
			}
			out.Remote = snap
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	switch {
	case r.remote == nil:
	case out.RemoteErr != nil:
		zap.L().Warn("store: remote replica unavailable, continuing with local data", zap.Error(out.RemoteErr))
		r.setStatus(model.CloudOffline)
	default:
		r.setStatus(model.CloudSynced)
	}
	return out, nil
}

// LoadAll reads the local replica.
func (r *Replicated) LoadAll(ctx context.Context) (*model.Snapshot, error) {
	return r.local.LoadAll(ctx)
}

func (r *Replicated) UpsertCampaign(ctx context.Context, c model.Campaign) error {
	if err := r.local.UpsertCampaign(ctx, c); err != nil {
		return err
	}
	r.enqueue("upsert_campaign", func(ctx context.Context, s Store) error {
		return s.UpsertCampaign(ctx, c)
	})
	return nil
}

func (r *Replicated) UpsertLeads(ctx context.Context, leads []model.Lead) error {
	if len(leads) == 0 {
		return nil
	}
	if err := r.local.UpsertLeads(ctx, leads); err != nil {
		return err
	}
	batch := append([]model.Lead(nil), leads...)
	r.enqueue("upsert_leads", func(ctx context.Context, s Store) error {
		return s.UpsertLeads(ctx, batch)
	})
	return nil
}

func (r *Replicated) DeleteCampaign(ctx context.Context, id string) error {
	if err := r.local.DeleteCampaign(ctx, id); err != nil {
		return err
	}
	r.enqueue("delete_campaign", func(ctx context.Context, s Store) error {
		return s.DeleteCampaign(ctx, id)
	})
	return nil
}

func (r *Replicated) DeleteCampaigns(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.local.DeleteCampaigns(ctx, ids); err != nil {
		return err
	}
	batch := append([]string(nil), ids...)
	r.enqueue("delete_campaigns", func(ctx context.Context, s Store) error {
		return s.DeleteCampaigns(ctx, batch)
	})
	return nil
}

func (r *Replicated) DeleteLead(ctx context.Context, id, campaignID string) error {
	if err := r.local.DeleteLead(ctx, id, campaignID); err != nil {
		return err
	}
	r.enqueue("delete_lead", func(ctx context.Context, s Store) error {
		return s.DeleteLead(ctx, id, campaignID)
	})
	return nil
}

func (r *Replicated) DeleteLeads(ctx context.Context, keys []model.LeadKey) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.local.DeleteLeads(ctx, keys); err != nil {
		return err
	}
	batch := append([]model.LeadKey(nil), keys...)
	r.enqueue("delete_leads", func(ctx context.Context, s Store) error {
		return s.DeleteLeads(ctx, batch)
	})
	return nil
}

// Migrate migrates the local replica, then the remote. A remote failure
// only marks the remote offline.
func (r *Replicated) Migrate(ctx context.Context) error {
	if err := r.local.Migrate(ctx); err != nil {
		return err
	}
	if r.remote == nil {
		return nil
	}
	err := r.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Do(ctx, r.retry, r.remote.Migrate)
	})
	if err != nil {
		zap.L().Warn("store: remote migrate failed", zap.Error(err))
		r.setStatus(model.CloudOffline)
	}
	return nil
}

// Flush blocks until every remote write queued before the call has run.
func (r *Replicated) Flush(ctx context.Context) error {
	if r.remote == nil {
		return nil
	}
	barrier := make(chan struct{})
	if !r.send(remoteOp{name: "flush", barrier: barrier}) {
		return nil
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "store: flush")
	}
}

// Close drains the remote queue and closes both replicas.
func (r *Replicated) Close() error {
	var errs []error
	r.closeMu.Do(func() {
		if r.remote != nil {
			r.mu.Lock()
			r.closed = true
			close(r.ops)
			r.mu.Unlock()
			<-r.done
			if err := r.remote.Close(); err != nil {
				errs = append(errs, eris.Wrap(err, "store: close remote"))
			}
		}
		if err := r.local.Close(); err != nil {
			errs = append(errs, eris.Wrap(err, "store: close local"))
		}
	})
	return errors.Join(errs...)
}

func (r *Replicated) enqueue(name string, fn func(ctx context.Context, remote Store) error) {
	if r.remote == nil {
		return
	}
	if !r.send(remoteOp{name: name, fn: fn}) {
		zap.L().Warn("store: remote write dropped after close", zap.String("op", name))
	}
}

func (r *Replicated) send(op remoteOp) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.ops <- op
	return true
}

func (r *Replicated) worker() {
	defer close(r.done)
	for op := range r.ops {
		if op.barrier != nil {
			close(op.barrier)
			continue
		}
		r.apply(op)
	}
}

func (r *Replicated) apply(op remoteOp) {
	log := zap.L().With(zap.String("op", op.name))
	r.setStatus(model.CloudSyncing)

	ctx, cancel := context.WithTimeout(context.Background(), r.opTimeout)
	defer cancel()

	err := r.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Do(ctx, r.retry, func(ctx context.Context) error {
			return op.fn(ctx, r.remote)
		})
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		log.Debug("store: remote write skipped, circuit open", zap.Duration("retry_after", r.breaker.RetryAfter()))
		r.setStatus(model.CloudOffline)
		return
	}
	if err != nil {
		log.Warn("store: remote write failed, local copy kept", zap.Error(err))
		r.setStatus(model.CloudOffline)
		return
	}
	log.Debug("store: remote write applied")
	r.setStatus(model.CloudSynced)
}

var _ Store = (*Replicated)(nil)
