package sim

import "testing"

// diamondMap builds 1 -> {2,3} -> 4, where the 1-3-4 path is shorter.
func diamondMap() *Map {
	return NewMap(
		[]*Node{
			{ID: 1, Position: Position{X: 0, Y: 0}},
			{ID: 2, Position: Position{X: 1, Y: 1}},
			{ID: 3, Position: Position{X: 1, Y: -1}},
			{ID: 4, Position: Position{X: 2, Y: 0}},
		},
		[]*Edge{
			{ID: 1, From: 1, To: 2, Length: 5, Capacity: 1},
			{ID: 2, From: 2, To: 4, Length: 5, Capacity: 1},
			{ID: 3, From: 1, To: 3, Length: 1, Capacity: 1},
			{ID: 4, From: 3, To: 4, Length: 1, Capacity: 1},
		},
	)
}

func TestDijkstraPicksShortestPath(t *testing.T) {
	m := diamondMap()
	rt := NewRouter(m, nil, false)
	path, err := rt.FindRoute(RouteQuery{From: 1, To: 4})
	if err != nil {
		t.Fatalf("FindRoute: %v", err)
	}
	want := []EdgeID{3, 4}
	if len(path) != len(want) {
		t.Fatalf("path = %v, want %v", path, want)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Errorf("path[%d] = %d, want %d", i, path[i], want[i])
		}
	}
}

func TestAStarAgreesWithDijkstraOnDiamond(t *testing.T) {
	m := diamondMap()
	rt := NewRouter(m, nil, false)
	path, err := rt.FindRoute(RouteQuery{From: 1, To: 4, UseAStar: true})
	if err != nil {
		t.Fatalf("FindRoute: %v", err)
	}
	want := []EdgeID{3, 4}
	if len(path) != len(want) || path[0] != want[0] || path[1] != want[1] {
		t.Errorf("astar path = %v, want %v", path, want)
	}
}

func TestPenalizedEdgesSteerAroundTheNormallyShortestPath(t *testing.T) {
	m := diamondMap()
	rt := NewRouter(m, nil, false)
	path, err := rt.FindRoute(RouteQuery{From: 1, To: 4, PenalizedEdges: map[EdgeID]float64{3: 1000}})
	if err != nil {
		t.Fatalf("FindRoute: %v", err)
	}
	want := []EdgeID{1, 2}
	if len(path) != len(want) || path[0] != want[0] || path[1] != want[1] {
		t.Errorf("penalized-edge path = %v, want %v (routed around edge 3)", path, want)
	}
}

func TestFindRouteSameNodeIsEmptyPathNoError(t *testing.T) {
	m := diamondMap()
	rt := NewRouter(m, nil, false)
	path, err := rt.FindRoute(RouteQuery{From: 1, To: 1})
	if err != nil {
		t.Fatalf("FindRoute(1,1): unexpected error %v", err)
	}
	if len(path) != 0 {
		t.Errorf("FindRoute(1,1) = %v, want empty path", path)
	}
}

func TestFindRouteNoPathReturnsErrNoPath(t *testing.T) {
	m := NewMap(
		[]*Node{{ID: 1}, {ID: 2}},
		nil,
	)
	rt := NewRouter(m, nil, false)
	_, err := rt.FindRoute(RouteQuery{From: 1, To: 2})
	if err != ErrNoPath {
		t.Errorf("FindRoute with no edges: err = %v, want ErrNoPath", err)
	}
}

func TestDijkstraTieBreaksOnLowerEdgeID(t *testing.T) {
	// Two parallel equal-length edges between 1 and 2; the lower EdgeID
	// must win since it is relaxed first and ties never displace it.
	m := NewMap(
		[]*Node{{ID: 1}, {ID: 2}, {ID: 3}},
		[]*Edge{
			{ID: 5, From: 1, To: 2, Length: 1, Capacity: 1},
			{ID: 2, From: 1, To: 2, Length: 1, Capacity: 1},
			{ID: 3, From: 2, To: 3, Length: 1, Capacity: 1},
		},
	)
	rt := NewRouter(m, nil, false)
	path, err := rt.FindRoute(RouteQuery{From: 1, To: 3})
	if err != nil {
		t.Fatalf("FindRoute: %v", err)
	}
	if len(path) != 2 || path[0] != 2 {
		t.Errorf("path = %v, want first hop edge 2 (lower EdgeID tie-break)", path)
	}
}

func TestRouteCacheDisabledUnderCongestionAwareness(t *testing.T) {
	m := diamondMap()
	rm := NewResourceManager(m)
	rt := NewRouter(m, rm, true)

	if _, err := rt.FindRoute(RouteQuery{From: 1, To: 4, CongestionAware: true, CongestionWeight: 1}); err != nil {
		t.Fatalf("FindRoute: %v", err)
	}
	if !rt.CacheDisabledWarning() {
		t.Error("expected cache-disabled warning after a congestion-aware query on a caching router")
	}
	key := routeCacheKey{1, 4}
	if _, cached := rt.cache[key]; cached {
		t.Error("congestion-aware query must never populate the route cache")
	}
}

func TestRouteCachePopulatesForPlainQueries(t *testing.T) {
	m := diamondMap()
	rt := NewRouter(m, nil, true)
	if _, err := rt.FindRoute(RouteQuery{From: 1, To: 4}); err != nil {
		t.Fatalf("FindRoute: %v", err)
	}
	key := routeCacheKey{1, 4}
	if _, cached := rt.cache[key]; !cached {
		t.Error("plain (non-congestion-aware) query on a caching router should populate the cache")
	}
}

func TestEdgeWeightAppliesCongestionPenalty(t *testing.T) {
	m := diamondMap()
	rm := NewResourceManager(m)
	rt := NewRouter(m, rm, false)
	e, _ := m.Edge(1)

	base := rt.edgeWeight(e, RouteQuery{CongestionAware: false, CongestionWeight: 1.0})
	rm.TryAcquireEdge(1, 100) // occupy the only slot: occupancy ratio 1.0
	loaded := rt.edgeWeight(e, RouteQuery{CongestionAware: true, CongestionWeight: 1.0})

	if loaded <= base {
		t.Errorf("congestion-weighted edge cost %v should exceed base cost %v", loaded, base)
	}
}
