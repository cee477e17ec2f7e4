package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-miner/internal/model"
)

// SQLiteStore is the local replica, backed by modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS campaigns (
	id           TEXT PRIMARY KEY,
	niche        TEXT NOT NULL,
	city         TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL,
	last_sync_at DATETIME NOT NULL
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
	last_seen_at DATETIME,
	PRIMARY KEY (id, campaign_id)
);

CREATE INDEX IF NOT EXISTS idx_leads_campaign_id ON leads(campaign_id);
CREATE INDEX IF NOT EXISTS idx_leads_phone ON leads(phone);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadAll(ctx context.Context) (*model.Snapshot, error) {
	snap := &model.Snapshot{}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, niche, city, created_at, last_sync_at FROM campaigns ORDER BY created_at, id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load campaigns")
	}
	for rows.Next() {
		var c model.Campaign
		if err := rows.Scan(&c.ID, &c.Niche, &c.City, &c.CreatedAt, &c.LastSyncAt); err != nil {
			rows.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "sqlite: scan campaign")
		}
		c.CreatedAt, c.LastSyncAt = c.CreatedAt.UTC(), c.LastSyncAt.UTC()
		snap.Campaigns = append(snap.Campaigns, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: iterate campaigns")
	}
	rows.Close() //nolint:errcheck

	rows, err = s.db.QueryContext(ctx, `SELECT `+leadColumns+` FROM leads ORDER BY rowid`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load leads")
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		l, err := scanSQLiteLead(rows)
		if err != nil {
			return nil, err
		}
		snap.Leads = append(snap.Leads, l)
	}
	return snap, eris.Wrap(rows.Err(), "sqlite: iterate leads")
}

func (s *SQLiteStore) UpsertCampaign(ctx context.Context, c model.Campaign) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO campaigns (id, niche, city, created_at, last_sync_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			niche = excluded.niche,
			city = excluded.city,
			created_at = excluded.created_at,
			last_sync_at = excluded.last_sync_at`,
		c.ID, c.Niche, c.City, c.CreatedAt.UTC(), c.LastSyncAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert campaign %s", c.ID)
}

func (s *SQLiteStore) UpsertLeads(ctx context.Context, leads []model.Lead) error {
	if len(leads) == 0 {
		return nil
	}
	return s.inTx(ctx, "upsert leads", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO leads (`+leadColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id, campaign_id) DO UPDATE SET
				name = excluded.name,
				phone = excluded.phone,
				whatsapp_url = excluded.whatsapp_url,
				instagram = excluded.instagram,
				website = excluded.website,
				email = excluded.email,
				facebook = excluded.facebook,
				status = excluded.status,
				neighborhood = excluded.neighborhood,
				type = excluded.type,
				notes = excluded.notes,
				last_seen_at = excluded.last_seen_at`)
		if err != nil {
			return eris.Wrap(err, "prepare")
		}
		defer stmt.Close() //nolint:errcheck

		for _, l := range leads {
			if _, err := stmt.ExecContext(ctx, leadArgs(l)...); err != nil {
				return eris.Wrapf(err, "lead %s/%s", l.CampaignID, l.ID)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) DeleteCampaign(ctx context.Context, id string) error {
	return s.DeleteCampaigns(ctx, []string{id})
}

func (s *SQLiteStore) DeleteCampaigns(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.inTx(ctx, "delete campaigns", func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `DELETE FROM leads WHERE campaign_id = ?`, id); err != nil {
				return eris.Wrapf(err, "leads of %s", id)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM campaigns WHERE id = ?`, id); err != nil {
				return eris.Wrapf(err, "campaign %s", id)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) DeleteLead(ctx context.Context, id, campaignID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM leads WHERE id = ? AND campaign_id = ?`, id, campaignID)
	return eris.Wrapf(err, "sqlite: delete lead %s/%s", campaignID, id)
}

func (s *SQLiteStore) DeleteLeads(ctx context.Context, keys []model.LeadKey) error {
	if len(keys) == 0 {
		return nil
	}
	return s.inTx(ctx, "delete leads", func(tx *sql.Tx) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM leads WHERE id = ? AND campaign_id = ?`, k.ID, k.CampaignID); err != nil {
				return eris.Wrapf(err, "lead %s/%s", k.CampaignID, k.ID)
			}
		}
		return nil
	})
}

// inTx runs fn in a transaction; any error rolls the whole batch back.
func (s *SQLiteStore) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "sqlite: %s: begin", op)
	}
	if err := fn(tx); err != nil {
		tx.Rollback() //nolint:errcheck
		return eris.Wrapf(err, "sqlite: %s", op)
	}
	return eris.Wrapf(tx.Commit(), "sqlite: %s: commit", op)
}

const leadColumns = `id, campaign_id, name, phone, whatsapp_url, instagram, website, email, facebook, status, neighborhood, type, notes, last_seen_at`

func leadArgs(l model.Lead) []any {
	var seen any
	if l.LastSeenAt != nil {
		seen = l.LastSeenAt.UTC()
	}
	return []any{
		l.ID, l.CampaignID, l.Name, l.Phone, l.WhatsAppURL,
		l.Instagram, l.Website, l.Email, l.Facebook,
		string(l.Status), l.Neighborhood, string(l.Type), l.Notes, seen,
	}
}

func scanSQLiteLead(rows *sql.Rows) (model.Lead, error) {
	var (
		l      model.Lead
		status string
		typ    string
		seen   sql.NullTime
	)
	err := rows.Scan(&l.ID, &l.CampaignID, &l.Name, &l.Phone, &l.WhatsAppURL,
		&l.Instagram, &l.Website, &l.Email, &l.Facebook,
		&status, &l.Neighborhood, &typ, &l.Notes, &seen)
	if err != nil {
		return l, eris.Wrap(err, "sqlite: scan lead")
	}
	l.Status = model.Status(status)
	l.Type = model.PhoneType(typ)
	if seen.Valid {
		t := seen.Time.UTC()
		l.LastSeenAt = &t
	}
	return l, nil
}

var _ Store = (*SQLiteStore)(nil)
