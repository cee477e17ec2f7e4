package reconcile

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lead-miner/internal/identity"
	"github.com/sells-group/lead-miner/internal/model"
	"github.com/sells-group/lead-miner/internal/store"
)

// Store is the persistence the engine needs: the regular store plus a
// two-replica load.
type Store interface {
	store.Store
	LoadReplicas(ctx context.Context) (*store.Replicas, error)
}

// Engine owns the authoritative campaign and lead collections. Readers get an
// immutable snapshot; writers serialize and publish a replacement.
type Engine struct {
	store Store

	mu       sync.Mutex
	state    atomic.Pointer[model.Snapshot]
	degraded atomic.Bool
}

// NewEngine returns an engine with an empty state. Call Load to populate it.
func NewEngine(st Store) *Engine {
	e := &Engine{store: st}
	e.state.Store(&model.Snapshot{})
	return e
}

// LoadReport summarizes a Load.
type LoadReport struct {
	Campaigns        int
	Leads            int
	RemovedCampaigns []string
	// RemoteErr is set when the remote replica could not be read.
	RemoteErr error
}

// Load reads both replicas, merges them, pushes the corrections back so both
// replicas converge, and publishes the merged state. When the remote cannot
// be read the merge runs on local data alone and the engine is marked
// degraded. Only a local load failure is returned.
func (e *Engine) Load(ctx context.Context) (*LoadReport, error) {
	reps, err := e.store.LoadReplicas(ctx)
	if err != nil {
		return nil, err
	}

	local := reps.Local
	if local == nil {
		local = &model.Snapshot{}
	}
	remote := reps.Remote
	if remote == nil {
		remote = &model.Snapshot{}
	}
	e.degraded.Store(reps.RemoteErr != nil)

	res := MergeReplicas(local.Campaigns, local.Leads, remote.Campaigns, remote.Leads)

	log := zap.L().With(
		zap.Int("campaigns", len(res.Campaigns)),
		zap.Int("leads", len(res.Leads)),
		zap.Int("removed_campaigns", len(res.RemovedCampaignIDs)),
	)

	e.mu.Lock()
	e.state.Store(&model.Snapshot{Campaigns: res.Campaigns, Leads: res.Leads})
	e.mu.Unlock()

	e.pushCorrections(ctx, res)
	log.Info("reconcile: replicas merged", zap.Bool("degraded", reps.RemoteErr != nil))

	return &LoadReport{
		Campaigns:        len(res.Campaigns),
		Leads:            len(res.Leads),
		RemovedCampaigns: res.RemovedCampaignIDs,
		RemoteErr:        reps.RemoteErr,
	}, nil
}

// pushCorrections writes the merged state to both replicas. Failures are
// logged; the published state stands.
func (e *Engine) pushCorrections(ctx context.Context, res MergeResult) {
	if len(res.RemovedCampaignIDs) > 0 {
		if err := e.store.DeleteCampaigns(ctx, res.RemovedCampaignIDs); err != nil {
			zap.L().Warn("reconcile: delete collapsed campaigns", zap.Error(err))
		}
	}
	for _, c := range res.Campaigns {
		if err := e.store.UpsertCampaign(ctx, c); err != nil {
			zap.L().Warn("reconcile: upsert campaign", zap.String("campaign_id", c.ID), zap.Error(err))
		}
	}
	if err := e.store.UpsertLeads(ctx, res.Leads); err != nil {
		zap.L().Warn("reconcile: upsert merged leads", zap.Error(err))
	}
}

// Snapshot returns the current published state. It must not be modified.
func (e *Engine) Snapshot() *model.Snapshot {
	return e.state.Load()
}

// Degraded reports whether the last Load ran without the remote replica.
func (e *Engine) Degraded() bool {
	return e.degraded.Load()
}

// Campaign looks up a campaign by id.
func (e *Engine) Campaign(id string) (model.Campaign, bool) {
	for _, c := range e.Snapshot().Campaigns {
		if c.ID == id {
			return c, true
		}
	}
	return model.Campaign{}, false
}

// CampaignByNiche returns the campaign whose niche key matches niche.
func (e *Engine) CampaignByNiche(niche string) (model.Campaign, bool) {
	key := identity.CampaignKey(niche)
	for _, c := range e.Snapshot().Campaigns {
		if identity.CampaignKey(c.Niche) == key {
			return c, true
		}
	}
	return model.Campaign{}, false
}

// CampaignsByNiche returns every campaign in the folder of niche.
func (e *Engine) CampaignsByNiche(niche string) []model.Campaign {
	key := identity.CampaignKey(niche)
	var out []model.Campaign
	for _, c := range e.Snapshot().Campaigns {
		if identity.CampaignKey(c.Niche) == key {
			out = append(out, c)
		}
	}
	return out
}

// Lead looks up a lead by key.
func (e *Engine) Lead(key model.LeadKey) (model.Lead, bool) {
	for _, l := range e.Snapshot().Leads {
		if l.Key() == key {
			return l, true
		}
	}
	return model.Lead{}, false
}

// PhoneDuplicates runs FindPhoneDuplicates over the leads in scope.
func (e *Engine) PhoneDuplicates(scope Scope) []model.Lead {
	return FindPhoneDuplicates(inScope(e.Snapshot(), scope))
}

// FoldResult reports the outcome of folding one mining batch.
type FoldResult struct {
	Accepted []model.Lead
	Skipped  int
	Mobile   int
	Landline int
	// Snapshot is the state published after the fold.
	Snapshot *model.Snapshot
}

// FoldBatch appends the candidates that are not already known. A candidate is
// known when its (id, campaignID) exists or its normalized phone matches any
// existing lead's. Accepted leads join the known set immediately, so repeats
// inside one batch are skipped too.
func (e *Engine) FoldBatch(campaignID string, candidates []model.Lead, now time.Time) FoldResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.state.Load()
	keys := make(map[model.LeadKey]struct{}, len(cur.Leads)+len(candidates))
	phones := make(map[string]struct{}, len(cur.Leads)+len(candidates))
	for _, l := range cur.Leads {
		keys[l.Key()] = struct{}{}
		if p := identity.NormalizeText(l.Phone); p != "" {
			phones[p] = struct{}{}
		}
	}

	var res FoldResult
	for _, c := range candidates {
		c.CampaignID = campaignID
		phone := identity.NormalizeText(c.Phone)

		if _, ok := keys[c.Key()]; ok {
			res.Skipped++
			continue
		}
		if _, ok := phones[phone]; ok && phone != "" {
			res.Skipped++
			continue
		}

		seen := now
		c.LastSeenAt = &seen
		keys[c.Key()] = struct{}{}
		if phone != "" {
			phones[phone] = struct{}{}
		}
		switch c.Type {
		case model.PhoneMobile:
			res.Mobile++
		case model.PhoneLandline:
			res.Landline++
		}
		res.Accepted = append(res.Accepted, c)
	}

	next := &model.Snapshot{
		Campaigns: cur.Campaigns,
		Leads:     append(slices.Clip(cur.Leads), res.Accepted...),
	}
	if len(res.Accepted) > 0 {
		e.state.Store(next)
	} else {
		next = cur
	}
	res.Snapshot = next
	return res
}

// PutCampaign inserts or replaces a campaign in memory.
func (e *Engine) PutCampaign(c model.Campaign) {
	e.mutate(func(s *model.Snapshot) {
		for i := range s.Campaigns {
			if s.Campaigns[i].ID == c.ID {
				s.Campaigns[i] = c
				return
			}
		}
		s.Campaigns = append(s.Campaigns, c)
	})
}

// RemoveCampaigns drops campaigns and their leads from memory.
func (e *Engine) RemoveCampaigns(ids []string) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	e.mutate(func(s *model.Snapshot) {
		s.Campaigns = slices.DeleteFunc(s.Campaigns, func(c model.Campaign) bool { return drop[c.ID] })
		s.Leads = slices.DeleteFunc(s.Leads, func(l model.Lead) bool { return drop[l.CampaignID] })
	})
}

// UpdateLead applies fn to the lead with key and returns the updated copy.
func (e *Engine) UpdateLead(key model.LeadKey, fn func(*model.Lead)) (model.Lead, bool) {
	var (
		updated model.Lead
		found   bool
	)
	e.mutate(func(s *model.Snapshot) {
		for i := range s.Leads {
			if s.Leads[i].Key() == key {
				fn(&s.Leads[i])
				updated, found = s.Leads[i], true
				return
			}
		}
	})
	return updated, found
}

// RemoveLeads drops leads from memory.
func (e *Engine) RemoveLeads(keys []model.LeadKey) {
	drop := make(map[model.LeadKey]bool, len(keys))
	for _, k := range keys {
		drop[k] = true
	}
	e.mutate(func(s *model.Snapshot) {
		s.Leads = slices.DeleteFunc(s.Leads, func(l model.Lead) bool { return drop[l.Key()] })
	})
}

// mutate copies the current state, lets fn edit the copy, and publishes it.
func (e *Engine) mutate(fn func(*model.Snapshot)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.state.Load()
	next := &model.Snapshot{
		Campaigns: slices.Clone(cur.Campaigns),
		Leads:     slices.Clone(cur.Leads),
	}
	fn(next)
	e.state.Store(next)
}
