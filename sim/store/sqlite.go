package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a single-file SQLite-backed Store, suitable for a
// local sweep driver comparing many scenario/seed runs without
// standing up a server.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if absent) a SQLite database at path
// and ensures its schema exists. Use ":memory:" for a throwaway store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sim/store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sim/store: enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sim/store: set busy_timeout: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS reports (
			scenario_hash TEXT NOT NULL,
			seed          INTEGER NOT NULL,
			created_unix  INTEGER NOT NULL,
			report_json   BLOB NOT NULL,
			PRIMARY KEY (scenario_hash, seed)
		)
	`
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("sim/store: create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, r Report) error {
	const q = `
		INSERT INTO reports (scenario_hash, seed, created_unix, report_json)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (scenario_hash, seed) DO UPDATE SET
			created_unix = excluded.created_unix,
			report_json  = excluded.report_json
	`
	_, err := s.db.ExecContext(ctx, q, r.ScenarioHash, r.Seed, r.CreatedUnix, r.ReportJSON)
	if err != nil {
		return fmt.Errorf("sim/store: save report: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, scenarioHash string, seed int64) (Report, error) {
	const q = `SELECT scenario_hash, seed, created_unix, report_json FROM reports WHERE scenario_hash = ? AND seed = ?`
	row := s.db.QueryRowContext(ctx, q, scenarioHash, seed)
	var r Report
	if err := row.Scan(&r.ScenarioHash, &r.Seed, &r.CreatedUnix, &r.ReportJSON); err != nil {
		if err == sql.ErrNoRows {
			return Report{}, ErrNotFound
		}
		return Report{}, fmt.Errorf("sim/store: load report: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) ListByScenario(ctx context.Context, scenarioHash string) ([]Report, error) {
	const q = `SELECT scenario_hash, seed, created_unix, report_json FROM reports WHERE scenario_hash = ? ORDER BY seed ASC`
	rows, err := s.db.QueryContext(ctx, q, scenarioHash)
	if err != nil {
		return nil, fmt.Errorf("sim/store: list reports: %w", err)
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.ScenarioHash, &r.Seed, &r.CreatedUnix, &r.ReportJSON); err != nil {
			return nil, fmt.Errorf("sim/store: scan report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
