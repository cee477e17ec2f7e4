package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-miner/internal/db"
	"github.com/sells-group/lead-miner/internal/model"
)

// PostgresStore is the remote replica, backed by pgx.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres connects to url and returns a PostgresStore.
func NewPostgres(ctx context.Context, url string, poolCfg *PoolConfig) (*PostgresStore, error) {
	cfg := db.PoolConfig{MaxConns: 4, MinConns: 1}
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			cfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			cfg.MinConns = poolCfg.MinConns
		}
	}
	pool, err := db.Connect(ctx, url, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. The caller owns its lifetime.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS campaigns (
	id           TEXT PRIMARY KEY,
	niche        TEXT NOT NULL,
	city         TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_sync_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS leads (
	id           TEXT NOT NULL,
	campaign_id  TEXT NOT NULL,
	name         TEXT NOT NULL,
	phone        TEXT NOT NULL DEFAULT '',
	whatsapp_url TEXT NOT NULL DEFAULT '',
	instagram    TEXT NOT NULL DEFAULT '',
	website      TEXT NOT NULL DEFAULT '',
	email        TEXT NOT NULL DEFAULT '',
	facebook     TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'new',
	neighborhood TEXT NOT NULL DEFAULT '',
	type         TEXT NOT NULL DEFAULT 'unknown',
	notes        TEXT NOT NULL DEFAULT '',
	last_seen_at TIMESTAMPTZ,
	PRIMARY KEY (id, campaign_id)
);

CREATE INDEX IF NOT EXISTS idx_leads_campaign_id ON leads(campaign_id);
CREATE INDEX IF NOT EXISTS idx_leads_phone ON leads(phone);
`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) LoadAll(ctx context.Context) (*model.Snapshot, error) {
	snap := &model.Snapshot{}

	rows, err := s.pool.Query(ctx,
		`SELECT id, niche, city, created_at, last_sync_at FROM campaigns ORDER BY created_at, id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load campaigns")
	}
	for rows.Next() {
		var c model.Campaign
		if err := rows.Scan(&c.ID, &c.Niche, &c.City, &c.CreatedAt, &c.LastSyncAt); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan campaign")
		}
		c.CreatedAt, c.LastSyncAt = c.CreatedAt.UTC(), c.LastSyncAt.UTC()
		snap.Campaigns = append(snap.Campaigns, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate campaigns")
	}

	rows, err = s.pool.Query(ctx,
		`SELECT `+leadColumns+` FROM leads ORDER BY campaign_id, id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load leads")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			l      model.Lead
			status string
			typ    string
			seen   *time.Time
		)
		if err := rows.Scan(&l.ID, &l.CampaignID, &l.Name, &l.Phone, &l.WhatsAppURL,
			&l.Instagram, &l.Website, &l.Email, &l.Facebook,
			&status, &l.Neighborhood, &typ, &l.Notes, &seen); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		l.Status = model.Status(status)
		l.Type = model.PhoneType(typ)
		l.LastSeenAt = seen
		snap.Leads = append(snap.Leads, l)
	}
	return snap, eris.Wrap(rows.Err(), "postgres: iterate leads")
}

func (s *PostgresStore) UpsertCampaign(ctx context.Context, c model.Campaign) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO campaigns (id, niche, city, created_at, last_sync_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			niche = EXCLUDED.niche,
			city = EXCLUDED.city,
			created_at = EXCLUDED.created_at,
			last_sync_at = EXCLUDED.last_sync_at`,
		c.ID, c.Niche, c.City, c.CreatedAt, c.LastSyncAt,
	)
	return eris.Wrapf(err, "postgres: upsert campaign %s", c.ID)
}

var leadUpsert = db.UpsertConfig{
	Table: "leads",
	Columns: []string{
		"id", "campaign_id", "name", "phone", "whatsapp_url", "instagram", "website",
		"email", "facebook", "status", "neighborhood", "type", "notes", "last_seen_at",
	},
	ConflictKeys: []string{"id", "campaign_id"},
}

func (s *PostgresStore) UpsertLeads(ctx context.Context, leads []model.Lead) error {
	if len(leads) == 0 {
		return nil
	}
	rows := make([][]any, len(leads))
	for i, l := range leads {
		rows[i] = []any{
			l.ID, l.CampaignID, l.Name, l.Phone, l.WhatsAppURL, l.Instagram, l.Website,
			l.Email, l.Facebook, string(l.Status), l.Neighborhood, string(l.Type), l.Notes, l.LastSeenAt,
		}
	}
	_, err := db.BulkUpsert(ctx, s.pool, leadUpsert, rows)
	return eris.Wrap(err, "postgres: upsert leads")
}

func (s *PostgresStore) DeleteCampaign(ctx context.Context, id string) error {
	return s.DeleteCampaigns(ctx, []string{id})
}

func (s *PostgresStore) DeleteCampaigns(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.inTx(ctx, "delete campaigns", func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM leads WHERE campaign_id = ANY($1)`, ids); err != nil {
			return eris.Wrap(err, "leads")
		}
		if _, err := tx.Exec(ctx, `DELETE FROM campaigns WHERE id = ANY($1)`, ids); err != nil {
			return eris.Wrap(err, "campaigns")
		}
		return nil
	})
}

func (s *PostgresStore) DeleteLead(ctx context.Context, id, campaignID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM leads WHERE id = $1 AND campaign_id = $2`, id, campaignID)
	return eris.Wrapf(err, "postgres: delete lead %s/%s", campaignID, id)
}

// DeleteLeads removes every key in one statement.
func (s *PostgresStore) DeleteLeads(ctx context.Context, keys []model.LeadKey) error {
	if len(keys) == 0 {
		return nil
	}
	ids := make([]string, len(keys))
	campaignIDs := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = k.ID
		campaignIDs[i] = k.CampaignID
	}
	_, err := s.pool.Exec(ctx, `
		DELETE FROM leads l
		USING unnest($1::text[], $2::text[]) AS k(id, campaign_id)
		WHERE l.id = k.id AND l.campaign_id = k.campaign_id`,
		ids, campaignIDs,
	)
	return eris.Wrap(err, "postgres: delete leads")
}

func (s *PostgresStore) inTx(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrapf(err, "postgres: %s: begin", op)
	}
	if err := fn(tx); err != nil {
		tx.Rollback(ctx) //nolint:errcheck
		return eris.Wrapf(err, "postgres: %s", op)
	}
	return eris.Wrapf(tx.Commit(ctx), "postgres: %s: commit", op)
}

var _ Store = (*PostgresStore)(nil)
