// Package db records where artifacts came from and when they were loaded.
// Predictions are never stored.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	EventFetched = "fetched"
	EventLoaded  = "loaded"
)

// ArtifactEvent is one provisioning or load of an artifact file.
type ArtifactEvent struct {
	ID         int64     `db:"id" json:"-"`
	Artifact   string    `db:"artifact" json:"artifact"`
	Event      string    `db:"event" json:"event"`
	Source     string    `db:"source" json:"source"`
	SHA256     string    `db:"sha256" json:"sha256"`
	SizeBytes  int64     `db:"size_bytes" json:"size_bytes"`
	RecordedAt time.Time `db:"recorded_at" json:"recorded_at"`
}

var schemas = map[string]string{
	"sqlite3": `
    CREATE TABLE IF NOT EXISTS artifact_events (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        artifact TEXT NOT NULL,
        event TEXT NOT NULL,
        source TEXT NOT NULL DEFAULT '',
        sha256 TEXT NOT NULL DEFAULT '',
        size_bytes INTEGER NOT NULL DEFAULT 0,
        recorded_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_artifact_events_artifact ON artifact_events(artifact, id);`,
	"postgres": `
    CREATE TABLE IF NOT EXISTS artifact_events (
        id BIGSERIAL PRIMARY KEY,
        artifact TEXT NOT NULL,
        event TEXT NOT NULL,
        source TEXT NOT NULL DEFAULT '',
        sha256 TEXT NOT NULL DEFAULT '',
        size_bytes BIGINT NOT NULL DEFAULT 0,
        recorded_at TIMESTAMPTZ NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_artifact_events_artifact ON artifact_events(artifact, id);`,
}

type Store struct {
	db *sqlx.DB
}

// Open connects to driver ("sqlite3" or "postgres") and creates the schema.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	schema, ok := schemas[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if dsn == "" {
		return nil, errors.New("database dsn is required")
	}

	conn, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database failed: %w", err)
	}
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create tables failed: %w", err)
	}
	return &Store{db: conn}, nil
}

func (s *Store) Record(ctx context.Context, ev ArtifactEvent) error {
	if ev.Artifact == "" || ev.Event == "" {
		return errors.New("artifact and event are required")
	}
	if ev.RecordedAt.IsZero() {
		ev.RecordedAt = time.Now().UTC()
	}
	query := s.db.Rebind(`
        INSERT INTO artifact_events (artifact, event, source, sha256, size_bytes, recorded_at)
        VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query, ev.Artifact, ev.Event, ev.Source, ev.SHA256, ev.SizeBytes, ev.RecordedAt)
	if err != nil {
		return fmt.Errorf("record %s event for %s: %w", ev.Event, ev.Artifact, err)
	}
	return nil
}

// Latest returns the most recent event per artifact, ordered by artifact name.
func (s *Store) Latest(ctx context.Context) ([]ArtifactEvent, error) {
	events := make([]ArtifactEvent, 0)
	err := s.db.SelectContext(ctx, &events, `
        SELECT e.id, e.artifact, e.event, e.source, e.sha256, e.size_bytes, e.recorded_at
        FROM artifact_events e
        JOIN (SELECT artifact, MAX(id) AS id FROM artifact_events GROUP BY artifact) m ON e.id = m.id
        ORDER BY e.artifact`)
	if err != nil {
		return nil, fmt.Errorf("query latest artifact events: %w", err)
	}
	return events, nil
}

// History returns up to limit events for one artifact, newest first.
func (s *Store) History(ctx context.Context, artifact string, limit int) ([]ArtifactEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	events := make([]ArtifactEvent, 0)
	query := s.db.Rebind(`
        SELECT id, artifact, event, source, sha256, size_bytes, recorded_at
        FROM artifact_events
        WHERE artifact = ?
        ORDER BY id DESC
        LIMIT ?`)
	if err := s.db.SelectContext(ctx, &events, query, artifact, limit); err != nil {
		return nil, fmt.Errorf("query history for %s: %w", artifact, err)
	}
	return events, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
