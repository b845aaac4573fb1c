package store

import (
	"context"
	"testing"
)

func TestMemStoreSaveAndLoad(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()
	r := Report{ScenarioHash: "abc", Seed: 1, ReportJSON: []byte(`{"ok":true}`)}
	if err := m.Save(ctx, r); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := m.Load(ctx, "abc", 1)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got.ReportJSON) != `{"ok":true}` {
		t.Errorf("Load = %+v, want matching ReportJSON", got)
	}
}

func TestMemStoreLoadMissingReturnsErrNotFound(t *testing.T) {
	m := NewMemStore()
	if _, err := m.Load(context.Background(), "missing", 1); err != ErrNotFound {
		t.Errorf("Load on missing key: err = %v, want ErrNotFound", err)
	}
}

func TestMemStoreSaveOverwritesSameKey(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()
	m.Save(ctx, Report{ScenarioHash: "abc", Seed: 1, ReportJSON: []byte("first")})
	m.Save(ctx, Report{ScenarioHash: "abc", Seed: 1, ReportJSON: []byte("second")})
	got, _ := m.Load(ctx, "abc", 1)
	if string(got.ReportJSON) != "second" {
		t.Errorf("ReportJSON = %s, want second (overwritten)", got.ReportJSON)
	}
}

func TestMemStoreListByScenarioSortedBySeed(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()
	m.Save(ctx, Report{ScenarioHash: "abc", Seed: 3})
	m.Save(ctx, Report{ScenarioHash: "abc", Seed: 1})
	m.Save(ctx, Report{ScenarioHash: "abc", Seed: 2})
	m.Save(ctx, Report{ScenarioHash: "other", Seed: 1})

	reports, err := m.ListByScenario(ctx, "abc")
	if err != nil {
		t.Fatalf("ListByScenario: %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("got %d reports, want 3", len(reports))
	}
	for i, want := range []int64{1, 2, 3} {
		if reports[i].Seed != want {
			t.Errorf("reports[%d].Seed = %d, want %d", i, reports[i].Seed, want)
		}
	}
}
