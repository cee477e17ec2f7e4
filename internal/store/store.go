// Package store persists campaigns and leads. A local SQLite replica is the
// source of truth for the session; an optional Postgres replica mirrors it.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-miner/internal/model"
)

// ErrRemoteUnavailable marks a remote replica that could not be reached or
// read. Callers continue with local data only.
var ErrRemoteUnavailable = eris.New("store: remote replica unavailable")

// Store defines the persistence interface shared by both replicas.
type Store interface {
	// LoadAll returns every campaign and lead in a stable order.
	LoadAll(ctx context.Context) (*model.Snapshot, error)

	UpsertCampaign(ctx context.Context, c model.Campaign) error
	UpsertLeads(ctx context.Context, leads []model.Lead) error

	// DeleteCampaign removes a campaign and its leads.
	DeleteCampaign(ctx context.Context, id string) error
	// DeleteCampaigns removes several campaigns and their leads atomically.
	DeleteCampaigns(ctx context.Context, ids []string) error
	DeleteLead(ctx context.Context, id, campaignID string) error
	// DeleteLeads removes a set of leads atomically.
	DeleteLeads(ctx context.Context, keys []model.LeadKey) error

	Migrate(ctx context.Context) error
	Close() error
}
