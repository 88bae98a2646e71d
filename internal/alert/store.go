package alert

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS alerts (
	id          TEXT PRIMARY KEY,
	origin      TEXT NOT NULL,
	state       TEXT NOT NULL,
	detected_at INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL,
	payload     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS alerts_detected_at ON alerts(detected_at);
`

// Store journals alerts in SQLite so the history survives restarts.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the journal at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("alert: open store: %w", err)
	}
	// set busy timeout to avoid transient locks between processes
	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("alert: open store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("alert: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts or updates a.
func (s *Store) Save(ctx context.Context, a Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("alert: marshal %s: %w", a.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, origin, state, detected_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			updated_at = excluded.updated_at,
			payload = excluded.payload`,
		a.ID, string(a.Origin), string(a.State),
		a.DetectedAt.UnixNano(), a.UpdatedAt.UnixNano(), string(payload))
	if err != nil {
		return fmt.Errorf("alert: save %s: %w", a.ID, err)
	}
	return nil
}

// Recent returns up to limit alerts, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM alerts ORDER BY detected_at DESC, updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("alert: query: %w", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("alert: scan: %w", err)
		}
		var a Alert
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			return nil, fmt.Errorf("alert: decode row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountByState returns how many journaled alerts are in each state.
func (s *Store) CountByState(ctx context.Context) (map[State]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM alerts GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("alert: query: %w", err)
	}
	defer rows.Close()

	out := make(map[State]int)
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("alert: scan: %w", err)
		}
		out[State(state)] = n
	}
	return out, rows.Err()
}
