package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-miner/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewPostgresWithPool(mock), mock
}

var pgLeadCols = []string{
	"id", "campaign_id", "name", "phone", "whatsapp_url", "instagram", "website",
	"email", "facebook", "status", "neighborhood", "type", "notes", "last_seen_at",
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS campaigns`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadAll(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, niche, city, created_at, last_sync_at FROM campaigns ORDER BY created_at, id`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "niche", "city", "created_at", "last_sync_at"}).
			AddRow("c1", "PIZZARIA", "São Paulo", t0, t0))
	mock.ExpectQuery(`FROM leads ORDER BY campaign_id, id`).
		WillReturnRows(pgxmock.NewRows(pgLeadCols).
			AddRow("a", "c1", "Pizza A", "11999998888", "https://wa.me/5511999998888", "", "", "", "",
				"contacted", "Moema", "mobile", "", &t0))

	snap, err := s.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Campaigns, 1)
	assert.Equal(t, "PIZZARIA", snap.Campaigns[0].Niche)
	require.Len(t, snap.Leads, 1)
	assert.Equal(t, model.StatusContacted, snap.Leads[0].Status)
	assert.Equal(t, model.PhoneMobile, snap.Leads[0].Type)
	require.NotNil(t, snap.Leads[0].LastSeenAt)
	assert.True(t, t0.Equal(*snap.Leads[0].LastSeenAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadAll_QueryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery(`FROM campaigns`).WillReturnError(errors.New("connection refused"))

	_, err := s.LoadAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: load campaigns")
}

func TestPostgresStore_UpsertCampaign(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := model.Campaign{ID: "c1", Niche: "PIZZARIA", City: "Recife", CreatedAt: t0, LastSyncAt: t0}

	mock.ExpectExec(`INSERT INTO campaigns .* ON CONFLICT \(id\) DO UPDATE`).
		WithArgs("c1", "PIZZARIA", "Recife", t0, t0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertCampaign(context.Background(), c))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertLeads(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_leads"}, pgLeadCols).WillReturnResult(2)
	mock.ExpectExec(`DELETE FROM "_tmp_upsert_leads"`).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`INSERT INTO "leads"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	err := s.UpsertLeads(context.Background(), []model.Lead{
		testLead("a", "c1", "11999998888"),
		testLead("b", "c1", "1133334444"),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertLeads_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	require.NoError(t, s.UpsertLeads(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteCampaigns(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ids := []string{"c1", "c2"}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM leads WHERE campaign_id = ANY\(\$1\)`).WithArgs(ids).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectExec(`DELETE FROM campaigns WHERE id = ANY\(\$1\)`).WithArgs(ids).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCommit()

	require.NoError(t, s.DeleteCampaigns(context.Background(), ids))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteCampaigns_RollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM leads`).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM campaigns`).WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	err := s.DeleteCampaign(context.Background(), "c1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete campaigns")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteLeads(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM leads l\s+USING unnest`).
		WithArgs([]string{"a", "b"}, []string{"c1", "c2"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	err := s.DeleteLeads(context.Background(), []model.LeadKey{
		{ID: "a", CampaignID: "c1"},
		{ID: "b", CampaignID: "c2"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteLead(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`DELETE FROM leads WHERE id = \$1 AND campaign_id = \$2`).
		WithArgs("a", "c1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, s.DeleteLead(context.Background(), "a", "c1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ping(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	s := NewPostgresWithPool(mock)

	mock.ExpectPing().WillReturnError(errors.New("no route to host"))
	err = s.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: ping")
	assert.NoError(t, mock.ExpectationsWereMet())
}
