package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-miner/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "leads.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testCampaign(id, niche string, created time.Time) model.Campaign {
	return model.Campaign{ID: id, Niche: niche, City: "São Paulo", CreatedAt: created, LastSyncAt: created}
}

func testLead(id, campaignID, phone string) model.Lead {
	return model.Lead{
		ID:           id,
		CampaignID:   campaignID,
		Name:         "Lead " + id,
		Phone:        phone,
		WhatsAppURL:  "https://wa.me/55" + phone,
		Status:       model.StatusNew,
		Neighborhood: "Moema",
		Type:         model.PhoneMobile,
	}
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_LoadAll_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)
	snap, err := st.LoadAll(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Empty())
}

func TestSQLite_CampaignRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, st.UpsertCampaign(ctx, testCampaign("c2", "PADARIA", t0.Add(time.Hour))))
	require.NoError(t, st.UpsertCampaign(ctx, testCampaign("c1", "PIZZARIA", t0)))

	snap, err := st.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Campaigns, 2)
	assert.Equal(t, "c1", snap.Campaigns[0].ID, "ordered by created_at")
	assert.True(t, t0.Equal(snap.Campaigns[0].CreatedAt))

	updated := testCampaign("c1", "PIZZARIA", t0)
	updated.LastSyncAt = t0.Add(48 * time.Hour)
	require.NoError(t, st.UpsertCampaign(ctx, updated))

	snap, err = st.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Campaigns, 2)
	assert.True(t, updated.LastSyncAt.Equal(snap.Campaigns[0].LastSyncAt))
}

func TestSQLite_UpsertLeads(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seen := time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC)

	a := testLead("a", "c1", "11999998888")
	a.LastSeenAt = &seen
	b := testLead("b", "c1", "1133334444")
	require.NoError(t, st.UpsertLeads(ctx, []model.Lead{a, b}))

	a.Status = model.StatusContacted
	a.Notes = "Olá!"
	require.NoError(t, st.UpsertLeads(ctx, []model.Lead{a}))

	snap, err := st.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Leads, 2)
	assert.Equal(t, "a", snap.Leads[0].ID, "insertion order kept on update")
	assert.Equal(t, model.StatusContacted, snap.Leads[0].Status)
	assert.Equal(t, "Olá!", snap.Leads[0].Notes)
	require.NotNil(t, snap.Leads[0].LastSeenAt)
	assert.True(t, seen.Equal(*snap.Leads[0].LastSeenAt))
	assert.Nil(t, snap.Leads[1].LastSeenAt)
}

func TestSQLite_SameIDDifferentCampaigns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertLeads(ctx, []model.Lead{
		testLead("a", "c1", "11999998888"),
		testLead("a", "c2", "11999998888"),
	}))
	snap, err := st.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Leads, 2)
}

func TestSQLite_DeleteCampaignCascades(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	t0 := time.Now().UTC()

	require.NoError(t, st.UpsertCampaign(ctx, testCampaign("c1", "PIZZARIA", t0)))
	require.NoError(t, st.UpsertCampaign(ctx, testCampaign("c2", "PADARIA", t0)))
	require.NoError(t, st.UpsertLeads(ctx, []model.Lead{
		testLead("a", "c1", "11999998888"),
		testLead("b", "c2", "1133334444"),
	}))

	require.NoError(t, st.DeleteCampaign(ctx, "c1"))

	snap, err := st.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Campaigns, 1)
	assert.Equal(t, "c2", snap.Campaigns[0].ID)
	require.Len(t, snap.Leads, 1)
	assert.Equal(t, "c2", snap.Leads[0].CampaignID)
}

func TestSQLite_DeleteCampaigns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	t0 := time.Now().UTC()

	for _, id := range []string{"c1", "c2", "c3"} {
		require.NoError(t, st.UpsertCampaign(ctx, testCampaign(id, "PIZZARIA", t0)))
		require.NoError(t, st.UpsertLeads(ctx, []model.Lead{testLead("x", id, "11999998888")}))
	}
	require.NoError(t, st.DeleteCampaigns(ctx, []string{"c1", "c3"}))
	require.NoError(t, st.DeleteCampaigns(ctx, nil))

	snap, err := st.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Campaigns, 1)
	require.Len(t, snap.Leads, 1)
	assert.Equal(t, "c2", snap.Leads[0].CampaignID)
}

func TestSQLite_DeleteLeads(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertLeads(ctx, []model.Lead{
		testLead("a", "c1", "11999998888"),
		testLead("b", "c1", "1133334444"),
		testLead("c", "c1", "1144445555"),
	}))
	require.NoError(t, st.DeleteLead(ctx, "a", "c1"))
	require.NoError(t, st.DeleteLeads(ctx, []model.LeadKey{{ID: "c", CampaignID: "c1"}, {ID: "missing", CampaignID: "c1"}}))

	snap, err := st.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Leads, 1)
	assert.Equal(t, "b", snap.Leads[0].ID)
}

func TestSQLite_ClosedStoreErrors(t *testing.T) {
	st, err := NewSQLite(filepath.Join(t.TempDir(), "closed.db"))
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, err = st.LoadAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite: load campaigns")
}
