package sim

import "container/heap"

// RouteQuery bundles the parameters a routing request needs beyond the
// static map: congestion awareness reads live occupancy off the
// ResourceManager, so the Router needs a reference to it.
type RouteQuery struct {
	From, To       NodeID
	CongestionAware bool
	CongestionWeight float64 // multiplier applied to occupancy ratio
	UseAStar        bool
	PenalizedEdges map[EdgeID]float64 // per-edge weight multiplier, used by reroute-on-wait to steer around a blocked edge
}

// Router computes shortest paths over a Map, optionally weighting
// edges by live congestion and optionally caching results.
// Congestion-aware queries always bypass the cache, since a cached path
// would go stale the instant occupancy changes; plain queries are
// cached when cacheEnabled is set. The Router itself logs nothing.
type Router struct {
	m    *Map
	rm   *ResourceManager
	cacheEnabled bool
	cache map[routeCacheKey][]EdgeID
	warnedCacheDisabled bool
}

type routeCacheKey struct {
	from, to NodeID
}

// NewRouter builds a Router over m and rm. cacheEnabled requests route
// caching for plain queries; congestion-aware queries are never cached
// (checked per-query, since a single Router may field both kinds of
// query across a run). Kernel.New passes false, and logs the warning,
// when a run asks for both caching and congestion-aware routing.
func NewRouter(m *Map, rm *ResourceManager, cacheEnabled bool) *Router {
	return &Router{m: m, rm: rm, cacheEnabled: cacheEnabled, cache: make(map[routeCacheKey][]EdgeID)}
}

// FindRoute returns the ordered edge path from q.From to q.To, or
// ErrNoPath if none exists. Ties in edge weight are broken
// deterministically by lower EdgeID, then lower next-node ID.
func (rt *Router) FindRoute(q RouteQuery) ([]EdgeID, error) {
	if q.CongestionAware && rt.cacheEnabled {
		if !rt.warnedCacheDisabled {
			rt.warnedCacheDisabled = true
		}
		return rt.compute(q)
	}
	if rt.cacheEnabled && !q.CongestionAware {
		key := routeCacheKey{q.From, q.To}
		if cached, ok := rt.cache[key]; ok {
			return cached, nil
		}
		path, err := rt.compute(q)
		if err != nil {
			return nil, err
		}
		rt.cache[key] = path
		return path, nil
	}
	return rt.compute(q)
}

// CacheDisabledWarning reports whether this Router has ever suppressed
// its cache for a congestion-aware query, for a one-time startup/run
// warning event.
func (rt *Router) CacheDisabledWarning() bool { return rt.warnedCacheDisabled }

func (rt *Router) compute(q RouteQuery) ([]EdgeID, error) {
	if q.UseAStar {
		return rt.astar(q)
	}
	return rt.dijkstra(q)
}

// edgeWeight returns the traversal cost of edge e under query q,
// applying the congestion penalty (length * (1 + congestion_weight *
// occupancy_ratio)) and then any PenalizedEdges multiplier for e.ID,
// the latter used by reroute-on-wait to steer a retry away from the
// edge it just gave up on.
func (rt *Router) edgeWeight(e *Edge, q RouteQuery) float64 {
	w := e.Length
	if q.CongestionAware && rt.rm != nil {
		occupied, capacity := rt.rm.EdgeOccupancy(e.ID)
		if capacity > 0 {
			ratio := float64(occupied) / float64(capacity)
			w *= 1 + q.CongestionWeight*ratio
		}
	}
	if mult, ok := q.PenalizedEdges[e.ID]; ok {
		w *= mult
	}
	return w
}

type dijkstraEntry struct {
	node NodeID
	dist float64
	seq  int
}

type dijkstraHeap []dijkstraEntry

func (h dijkstraHeap) Len() int { return len(h) }
func (h dijkstraHeap) Less(i, j int) bool {
	if h[i].dist != h[j].dist {
		return h[i].dist < h[j].dist
	}
	return h[i].node < h[j].node
}
func (h dijkstraHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *dijkstraHeap) Push(x any)        { *h = append(*h, x.(dijkstraEntry)) }
func (h *dijkstraHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// dijkstra finds the minimum-weight path using Dijkstra's algorithm.
// Deterministic tie-breaking is applied when relaxing each node's outgoing edges in
// ID order and preferring the first edge that achieves a strictly
// better distance (a later edge achieving an equal distance never
// displaces an earlier one).
func (rt *Router) dijkstra(q RouteQuery) ([]EdgeID, error) {
	dist := map[NodeID]float64{q.From: 0}
	viaEdge := map[NodeID]EdgeID{}
	visited := map[NodeID]bool{}

	h := &dijkstraHeap{{node: q.From, dist: 0}}
	heap.Init(h)

	for h.Len() > 0 {
		cur := heap.Pop(h).(dijkstraEntry)
		if visited[cur.node] {
			continue
		}
		visited[cur.node] = true
		if cur.node == q.To {
			break
		}
		for _, eid := range rt.m.OutEdges(cur.node) {
			e, _ := rt.m.Edge(eid)
			next, ok := rt.m.Other(eid, cur.node)
			if !ok || visited[next] {
				continue
			}
			w := rt.edgeWeight(e, q)
			nd := cur.dist + w
			best, seen := dist[next]
			if !seen || nd < best {
				dist[next] = nd
				viaEdge[next] = eid
				heap.Push(h, dijkstraEntry{node: next, dist: nd})
			}
		}
	}

	if !visited[q.To] {
		return nil, ErrNoPath
	}
	return rt.reconstruct(q.From, q.To, viaEdge), nil
}

// astar is Dijkstra with a Euclidean straight-line heuristic added to
// the priority key, admissible so long as edge weights are never below
// straight-line distance (true for the unweighted length; the
// congestion multiplier only ever increases weight, so admissibility
// is preserved).
func (rt *Router) astar(q RouteQuery) ([]EdgeID, error) {
	goal, ok := rt.m.Node(q.To)
	if !ok {
		return nil, ErrNoPath
	}

	gScore := map[NodeID]float64{q.From: 0}
	viaEdge := map[NodeID]EdgeID{}
	visited := map[NodeID]bool{}

	h := &dijkstraHeap{{node: q.From, dist: rt.heuristic(q.From, goal)}}
	heap.Init(h)

	for h.Len() > 0 {
		cur := heap.Pop(h).(dijkstraEntry)
		if visited[cur.node] {
			continue
		}
		visited[cur.node] = true
		if cur.node == q.To {
			break
		}
		for _, eid := range rt.m.OutEdges(cur.node) {
			e, _ := rt.m.Edge(eid)
			next, ok := rt.m.Other(eid, cur.node)
			if !ok || visited[next] {
				continue
			}
			w := rt.edgeWeight(e, q)
			ng := gScore[cur.node] + w
			best, seen := gScore[next]
			if !seen || ng < best {
				gScore[next] = ng
				viaEdge[next] = eid
				f := ng + rt.heuristic(next, goal)
				heap.Push(h, dijkstraEntry{node: next, dist: f})
			}
		}
	}

	if !visited[q.To] {
		return nil, ErrNoPath
	}
	return rt.reconstruct(q.From, q.To, viaEdge), nil
}

func (rt *Router) heuristic(from NodeID, goal *Node) float64 {
	n, ok := rt.m.Node(from)
	if !ok {
		return 0
	}
	return n.Position.distance(goal.Position)
}

// reconstruct walks viaEdge backward from to, to, to "from", reversing
// into forward order.
func (rt *Router) reconstruct(from, to NodeID, viaEdge map[NodeID]EdgeID) []EdgeID {
	var rev []EdgeID
	cur := to
	for cur != from {
		eid, ok := viaEdge[cur]
		invariant(ok, "route reconstruction broke at node %d", cur)
		rev = append(rev, eid)
		prev, ok := rt.m.Other(eid, cur)
		invariant(ok, "edge %d does not connect back from node %d", eid, cur)
		cur = prev
	}
	out := make([]EdgeID, len(rev))
	for i, e := range rev {
		out[len(rev)-1-i] = e
	}
	return out
}

// InvalidateCache drops every cached route, used after the map's
// congestion profile changes enough that stale cache entries would
// mislead. Nothing in this package calls it; congestion-aware queries
// never populate the cache in the first place.
func (rt *Router) InvalidateCache() {
	rt.cache = make(map[routeCacheKey][]EdgeID)
}
