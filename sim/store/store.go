// Package store provides persistence for Waremax FinalReport snapshots,
// keyed by (scenario hash, seed), so sweep and A/B comparison drivers
// can query run history without re-running a scenario. The in-process
// kernel itself never depends on a Store — report generation is
// complete without persistence; Store is purely an opt-in convenience
// for callers running many scenarios.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested (scenario hash, seed) pair
// has no saved report.
var ErrNotFound = errors.New("sim/store: not found")

// Report is the minimal persisted shape a Store deals in: the caller's
// serialized FinalReport (as JSON) plus its identifying key fields.
// Keeping this package decoupled from sim.FinalReport avoids an import
// cycle (sim may itself want to depend on store for a convenience
// wrapper) and keeps the store's schema stable even as FinalReport
// gains fields.
type Report struct {
	ScenarioHash string
	Seed         int64
	CreatedUnix  int64
	ReportJSON   []byte
}

// Store persists and retrieves Report records.
type Store interface {
	// Save persists r, overwriting any existing report for the same
	// (ScenarioHash, Seed) pair.
	Save(ctx context.Context, r Report) error

	// Load retrieves the report for (scenarioHash, seed).
	// Returns ErrNotFound if none exists.
	Load(ctx context.Context, scenarioHash string, seed int64) (Report, error)

	// ListByScenario returns every saved report for scenarioHash,
	// across all seeds, ordered by seed ascending — used by sweep
	// drivers to pull every run of one scenario for aggregation.
	ListByScenario(ctx context.Context, scenarioHash string) ([]Report, error)

	// Close releases any resources held by the store.
	Close() error
}
