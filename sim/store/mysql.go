package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL-backed Store for teams running sweep
// comparisons against a shared database rather than per-laptop SQLite
// files.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens a connection pool against dsn (a
// go-sql-driver/mysql data source name) and ensures its schema exists.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("sim/store: open mysql: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	s := &MySQLStore{db: db}
	if err := s.createTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (m *MySQLStore) createTables(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS reports (
			scenario_hash VARCHAR(64) NOT NULL,
			seed          BIGINT NOT NULL,
			created_unix  BIGINT NOT NULL,
			report_json   LONGBLOB NOT NULL,
			PRIMARY KEY (scenario_hash, seed)
		)
	`
	if _, err := m.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sim/store: create schema: %w", err)
	}
	return nil
}

func (m *MySQLStore) Save(ctx context.Context, r Report) error {
	const q = `
		INSERT INTO reports (scenario_hash, seed, created_unix, report_json)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			created_unix = VALUES(created_unix),
			report_json  = VALUES(report_json)
	`
	_, err := m.db.ExecContext(ctx, q, r.ScenarioHash, r.Seed, r.CreatedUnix, r.ReportJSON)
	if err != nil {
		return fmt.Errorf("sim/store: save report: %w", err)
	}
	return nil
}

func (m *MySQLStore) Load(ctx context.Context, scenarioHash string, seed int64) (Report, error) {
	const q = `SELECT scenario_hash, seed, created_unix, report_json FROM reports WHERE scenario_hash = ? AND seed = ?`
	row := m.db.QueryRowContext(ctx, q, scenarioHash, seed)
	var r Report
	if err := row.Scan(&r.ScenarioHash, &r.Seed, &r.CreatedUnix, &r.ReportJSON); err != nil {
		if err == sql.ErrNoRows {
			return Report{}, ErrNotFound
		}
		return Report{}, fmt.Errorf("sim/store: load report: %w", err)
	}
	return r, nil
}

func (m *MySQLStore) ListByScenario(ctx context.Context, scenarioHash string) ([]Report, error) {
	const q = `SELECT scenario_hash, seed, created_unix, report_json FROM reports WHERE scenario_hash = ? ORDER BY seed ASC`
	rows, err := m.db.QueryContext(ctx, q, scenarioHash)
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

func (m *MySQLStore) Close() error { return m.db.Close() }
