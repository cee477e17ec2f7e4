// Package lifecycle implements the user-facing operations on campaigns and
// leads: folders, status changes, contact, duplicate cleanup, and pitches.
// Every write is persisted before the in-memory state changes.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-miner/internal/identity"
	"github.com/sells-group/lead-miner/internal/model"
	"github.com/sells-group/lead-miner/internal/provider"
	"github.com/sells-group/lead-miner/internal/reconcile"
)

var (
	ErrCampaignNotFound = eris.New("lifecycle: campaign not found")
	ErrLeadNotFound     = eris.New("lifecycle: lead not found")
	ErrInvalidStatus    = eris.New("lifecycle: invalid status")
	ErrNoPhone          = eris.New("lifecycle: lead has no phone")
	ErrEmptyNiche       = eris.New("lifecycle: niche is required")
)

// Store is the persistence the manager writes through.
type Store interface {
	UpsertCampaign(ctx context.Context, c model.Campaign) error
	UpsertLeads(ctx context.Context, leads []model.Lead) error
	DeleteCampaigns(ctx context.Context, ids []string) error
	DeleteLeads(ctx context.Context, keys []model.LeadKey) error
}

// Manager applies lifecycle operations to the engine state.
type Manager struct {
	engine *reconcile.Engine
	store  Store
	pitch  provider.PitchWriter
	newID  func() string

	mu     sync.RWMutex
	active string
}

// Option configures a Manager.
type Option func(*Manager)

// WithPitchWriter sets the provider used by GeneratePitch.
func WithPitchWriter(w provider.PitchWriter) Option {
	return func(m *Manager) { m.pitch = w }
}

// WithIDFunc replaces the campaign id generator.
func WithIDFunc(fn func() string) Option {
	return func(m *Manager) { m.newID = fn }
}

// NewManager creates a Manager over engine, persisting through st.
func NewManager(engine *reconcile.Engine, st Store, opts ...Option) *Manager {
	m := &Manager{
		engine: engine,
		store:  st,
		newID:  uuid.NewString,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Engine returns the underlying reconciliation engine.
func (m *Manager) Engine() *reconcile.Engine { return m.engine }

// EnsureCampaign returns the campaign of niche's folder, refreshing its
// lastSyncAt, or creates one. The campaign is persisted before returning.
func (m *Manager) EnsureCampaign(ctx context.Context, niche, city string, now time.Time) (model.Campaign, error) {
	if identity.CampaignKey(niche) == "" {
		return model.Campaign{}, ErrEmptyNiche
	}

	c, found := m.engine.CampaignByNiche(niche)
	if found {
		c.LastSyncAt = now
	} else {
		c = model.Campaign{
			ID:         m.newID(),
			Niche:      identity.DisplayNiche(niche),
			City:       city,
			CreatedAt:  now,
			LastSyncAt: now,
		}
	}

	if err := m.store.UpsertCampaign(ctx, c); err != nil {
		return model.Campaign{}, eris.Wrap(err, "lifecycle: persist campaign")
	}
	m.engine.PutCampaign(c)

	zap.L().Debug("lifecycle: campaign ready",
		zap.String("campaign_id", c.ID),
		zap.String("niche", c.Niche),
		zap.Bool("created", !found),
	)
	return c, nil
}

// SelectCampaign makes id the active campaign. An empty id clears it.
func (m *Manager) SelectCampaign(id string) error {
	if id != "" {
		if _, ok := m.engine.Campaign(id); !ok {
			return eris.Wrapf(ErrCampaignNotFound, "select %s", id)
		}
	}
	m.mu.Lock()
	m.active = id
	m.mu.Unlock()
	return nil
}

// ActiveCampaign returns the selected campaign, if it still exists.
func (m *Manager) ActiveCampaign() (model.Campaign, bool) {
	m.mu.RLock()
	id := m.active
	m.mu.RUnlock()
	if id == "" {
		return model.Campaign{}, false
	}
	return m.engine.Campaign(id)
}

// ActiveScope is the active campaign's folder, or global when none is
// selected.
func (m *Manager) ActiveScope() reconcile.Scope {
	if c, ok := m.ActiveCampaign(); ok {
		return reconcile.Scope{Niche: c.Niche}
	}
	return reconcile.Scope{}
}

// FolderDeletion reports what DeleteFolder removed.
type FolderDeletion struct {
	Niche       string   `json:"niche"`
	CampaignIDs []string `json:"campaignIds"`
	Leads       int      `json:"leads"`
}

// DeleteFolder removes every campaign in niche's folder with their leads.
// The store delete is atomic; on failure memory is left untouched.
func (m *Manager) DeleteFolder(ctx context.Context, niche string) (*FolderDeletion, error) {
	campaigns := m.engine.CampaignsByNiche(niche)
	if len(campaigns) == 0 {
		return nil, eris.Wrapf(ErrCampaignNotFound, "folder %q", niche)
	}

	ids := make([]string, len(campaigns))
	drop := make(map[string]bool, len(campaigns))
	for i, c := range campaigns {
		ids[i] = c.ID
		drop[c.ID] = true
	}
	leads := 0
	for _, l := range m.engine.Snapshot().Leads {
		if drop[l.CampaignID] {
			leads++
		}
	}

	if err := m.store.DeleteCampaigns(ctx, ids); err != nil {
		return nil, eris.Wrap(err, "lifecycle: delete folder")
	}
	m.engine.RemoveCampaigns(ids)

	m.mu.Lock()
	if drop[m.active] {
		m.active = ""
	}
	m.mu.Unlock()

	zap.L().Info("lifecycle: folder deleted",
		zap.String("niche", campaigns[0].Niche),
		zap.Int("campaigns", len(ids)),
		zap.Int("leads", leads),
	)
	return &FolderDeletion{Niche: campaigns[0].Niche, CampaignIDs: ids, Leads: leads}, nil
}

// SetStatus changes a lead's workflow status.
func (m *Manager) SetStatus(ctx context.Context, key model.LeadKey, status model.Status) (model.Lead, error) {
	if !status.Valid() {
		return model.Lead{}, eris.Wrapf(ErrInvalidStatus, "status %q", status)
	}
	return m.updateLead(ctx, key, func(l *model.Lead) { l.Status = status })
}

// OpenContact returns the lead's WhatsApp link and advances a new lead to
// contacted. Other statuses are kept.
func (m *Manager) OpenContact(ctx context.Context, key model.LeadKey) (string, error) {
	lead, ok := m.engine.Lead(key)
	if !ok {
		return "", eris.Wrapf(ErrLeadNotFound, "lead %s/%s", key.CampaignID, key.ID)
	}
	url := lead.WhatsAppURL
	if url == "" {
		url = identity.WhatsAppURL(lead.Phone)
	}
	if url == "" {
		return "", eris.Wrapf(ErrNoPhone, "lead %s", key.ID)
	}

	_, err := m.updateLead(ctx, key, func(l *model.Lead) {
		if l.Status == model.StatusNew {
			l.Status = model.StatusContacted
		}
		l.WhatsAppURL = url
	})
	if err != nil {
		return "", err
	}
	return url, nil
}

// GeneratePitch drafts a first-contact message for a lead and stores it in
// the lead's notes.
func (m *Manager) GeneratePitch(ctx context.Context, s provider.Settings, key model.LeadKey) (model.Lead, error) {
	if m.pitch == nil {
		return model.Lead{}, eris.New("lifecycle: no pitch writer configured")
	}
	lead, ok := m.engine.Lead(key)
	if !ok {
		return model.Lead{}, eris.Wrapf(ErrLeadNotFound, "lead %s/%s", key.CampaignID, key.ID)
	}
	niche := ""
	if c, ok := m.engine.Campaign(lead.CampaignID); ok {
		niche = c.Niche
	}

	text, err := m.pitch.Pitch(ctx, s, lead, niche)
	if err != nil {
		return model.Lead{}, eris.Wrap(err, "lifecycle: generate pitch")
	}
	return m.updateLead(ctx, key, func(l *model.Lead) { l.Notes = text })
}

// updateLead persists the edited copy first and only then publishes it.
func (m *Manager) updateLead(ctx context.Context, key model.LeadKey, fn func(*model.Lead)) (model.Lead, error) {
	lead, ok := m.engine.Lead(key)
	if !ok {
		return model.Lead{}, eris.Wrapf(ErrLeadNotFound, "lead %s/%s", key.CampaignID, key.ID)
	}
	fn(&lead)

	if err := m.store.UpsertLeads(ctx, []model.Lead{lead}); err != nil {
		return model.Lead{}, eris.Wrap(err, "lifecycle: persist lead")
	}
	updated, ok := m.engine.UpdateLead(key, fn)
	if !ok {
		// Removed concurrently; the persisted copy is what we report.
		return lead, nil
	}
	return updated, nil
}

// CleanupResult reports duplicate detection and removal.
type CleanupResult struct {
	Found      int          `json:"found"`
	Deleted    int          `json:"deleted"`
	Duplicates []model.Lead `json:"duplicates,omitempty"`
}

// CleanupDuplicates finds leads sharing a phone with a more recently seen
// lead in scope. Nothing is deleted unless confirm is true; the delete is
// atomic in the store and then applied to memory.
func (m *Manager) CleanupDuplicates(ctx context.Context, scope reconcile.Scope, confirm bool) (*CleanupResult, error) {
	dupes := m.engine.PhoneDuplicates(scope)
	res := &CleanupResult{Found: len(dupes), Duplicates: dupes}
	if len(dupes) == 0 || !confirm {
		return res, nil
	}

	keys := make([]model.LeadKey, len(dupes))
	for i, l := range dupes {
		keys[i] = l.Key()
	}
	if err := m.store.DeleteLeads(ctx, keys); err != nil {
		return nil, eris.Wrap(err, "lifecycle: delete duplicates")
	}
	m.engine.RemoveLeads(keys)
	res.Deleted = len(keys)

	zap.L().Info("lifecycle: duplicates removed",
		zap.String("scope", scope.Niche),
		zap.Int("deleted", res.Deleted),
	)
	return res, nil
}
