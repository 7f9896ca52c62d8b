package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS lead_interactions (
  id TEXT PRIMARY KEY,
  lead_id TEXT NOT NULL,
  kind TEXT NOT NULL,
  actor TEXT,
  details JSONB,
  ts TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS lead_interactions_lead_idx ON lead_interactions (lead_id, ts);
CREATE TABLE IF NOT EXISTS status_changes (
  id TEXT PRIMARY KEY,
  entity_type TEXT NOT NULL,
  entity_id TEXT NOT NULL,
  lead_id TEXT,
  from_status TEXT,
  to_status TEXT NOT NULL,
  reason TEXT,
  ts TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS status_changes_entity_idx ON status_changes (entity_id, ts);
`

// PGSink writes interaction and status-change records into Postgres.
type PGSink struct {
	db *sql.DB
}

func NewPGSink(db *sql.DB) *PGSink {
	return &PGSink{db: db}
}

// OpenPostgres opens and pings a lib/pq connection pool.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func (p *PGSink) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// EnsureSchema creates the audit tables if they are missing.
func (p *PGSink) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

func (p *PGSink) RecordInteraction(ctx context.Context, in Interaction) error {
	in.normalize()
	details := []byte("null")
	if in.Details != nil {
		var err error
		details, err = json.Marshal(in.Details)
		if err != nil {
			return fmt.Errorf("marshal interaction details: %w", err)
		}
	}
	q := `
		INSERT INTO lead_interactions (id, lead_id, kind, actor, details, ts)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := p.db.ExecContext(ctx, q, in.ID, in.LeadID, in.Kind, in.Actor, details, in.Timestamp); err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

func (p *PGSink) RecordStatusChange(ctx context.Context, change StatusChange) error {
	change.normalize()
	q := `
		INSERT INTO status_changes (id, entity_type, entity_id, lead_id, from_status, to_status, reason, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := p.db.ExecContext(ctx, q,
		change.ID,
		change.EntityType,
		change.EntityID,
		change.LeadID,
		change.From,
		change.To,
		change.Reason,
		change.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert status change: %w", err)
	}
	return nil
}

// StatusHistory returns the recorded transitions of one entity, oldest first.
func (p *PGSink) StatusHistory(ctx context.Context, entityID string) ([]StatusChange, error) {
	q := `
		SELECT id, entity_type, entity_id, lead_id, from_status, to_status, reason, ts
		FROM status_changes WHERE entity_id = $1 ORDER BY ts ASC
	`
	rows, err := p.db.QueryContext(ctx, q, entityID)
	if err != nil {
		return nil, fmt.Errorf("query status history: %w", err)
	}
	defer rows.Close()

	var out []StatusChange
	for rows.Next() {
		var (
			c                    StatusChange
			leadID, from, reason sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.EntityType, &c.EntityID, &leadID, &from, &c.To, &reason, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("scan status change: %w", err)
		}
		c.LeadID = leadID.String
		c.From = from.String
		c.Reason = reason.String
		out = append(out, c)
	}
	return out, rows.Err()
}
