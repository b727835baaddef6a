package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FuelLabs/fuel-canary-watchtower/internal/alerting"
)

// AlertRecord is one persisted admitted alert.
type AlertRecord struct {
	ID        int64
	Rule      string
	Chain     string
	Kind      string
	Level     string
	Action    string
	FiredAt   time.Time
	Summary   string
	Detail    string
	CreatedAt time.Time
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS watchtower_alerts (
    id BIGSERIAL PRIMARY KEY,
    rule TEXT NOT NULL,
    chain TEXT NOT NULL,
    kind TEXT NOT NULL,
    level TEXT NOT NULL,
    action TEXT NOT NULL,
    fired_at TIMESTAMPTZ NOT NULL,
    summary TEXT NOT NULL,
    detail TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS watchtower_alerts_fired_at_idx ON watchtower_alerts (fired_at);
`

// Store persists alert history in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps a connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the alert history schema if it does not exist yet.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create alerts schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// InsertAlert records one admitted alert.
func (s *Store) InsertAlert(ctx context.Context, a alerting.Alert) error {
	const q = `
INSERT INTO watchtower_alerts (rule, chain, kind, level, action, fired_at, summary, detail)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, q,
		a.ID.String(),
		string(a.ID.Chain),
		a.ID.Kind.String(),
		a.Level.String(),
		a.Action.String(),
		a.FiredAt.UTC(),
		a.Summary,
		a.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// ListRecentAlerts returns the newest alerts, newest first.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	const q = `
SELECT id, rule, chain, kind, level, action, fired_at, summary, detail, created_at
FROM watchtower_alerts
ORDER BY fired_at DESC
LIMIT $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent alerts: %w", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// ListAlertsBetween returns alerts fired inside [from, to), oldest first.
func (s *Store) ListAlertsBetween(ctx context.Context, from, to time.Time) ([]AlertRecord, error) {
	const q = `
SELECT id, rule, chain, kind, level, action, fired_at, summary, detail, created_at
FROM watchtower_alerts
WHERE fired_at >= $1 AND fired_at < $2
ORDER BY fired_at ASC`

	rows, err := s.pool.Query(ctx, q, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list alerts between: %w", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanAlerts(rows pgxRows) ([]AlertRecord, error) {
	var records []AlertRecord
	for rows.Next() {
		var rec AlertRecord
		if err := rows.Scan(
			&rec.ID, &rec.Rule, &rec.Chain, &rec.Kind, &rec.Level,
			&rec.Action, &rec.FiredAt, &rec.Summary, &rec.Detail, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alert rows: %w", err)
	}
	return records, nil
}

var _ alerting.AlertStore = (*Store)(nil)
