package sim

import "sort"

// ReservationID is reserved for a future per-reservation handle; the
// current Reservation policy books destination nodes directly by
// (NodeID, RobotID) instead (see ResourceManager.ReserveNode), so this
// type is not populated yet despite Event carrying a field for it.
type ReservationID uint64

// TrafficPolicy selects how robots behave when blocked waiting for a
// resource.
type TrafficPolicy int

const (
	TrafficWait       TrafficPolicy = iota // simple FIFO wait, no rerouting
	TrafficRerouteOnWait                   // re-run routing after a wait threshold elapses
	TrafficReservation                      // book the destination node ahead of arrival
)

// ResolverKind selects the deadlock-breaking strategy applied once a
// cycle is found in the wait-for graph.
type ResolverKind int

const (
	ResolverYoungestBacksUp ResolverKind = iota
	ResolverLowestPriorityAborts
	ResolverWaitAndRetry
	ResolverTiered // LowestPriorityAborts on each check until the WaitAndRetry count hits its cap, then the whole cycle backs up; never waits, never uses YoungestBacksUp
)

// WaitEdge is one entry of the wait-for graph: robot "From" is blocked
// waiting on a resource currently held by robot "To".
type WaitEdge struct {
	From, To RobotID
}

// TrafficController owns deadlock detection over the current wait-for
// graph and the chosen resolution policy. It does not itself
// track resource state — callers supply the current wait-for edges
// to DetectCycles each time, sourced from ResourceManager's waiter
// lists (see Kernel.buildWaitForGraph).
type TrafficController struct {
	Resolver          ResolverKind
	WaitAndRetryLimit int // Tiered: number of WaitAndRetry checks before escalating
	retryCounts       map[RobotID]int
}

// NewTrafficController builds a controller using the given resolver.
func NewTrafficController(resolver ResolverKind, waitAndRetryLimit int) *TrafficController {
	return &TrafficController{Resolver: resolver, WaitAndRetryLimit: waitAndRetryLimit, retryCounts: make(map[RobotID]int)}
}

// DetectCycles runs Tarjan's strongly-connected-components algorithm
// over edges and returns every SCC of size > 1, plus every single robot
// with a self-loop edge (a lone self-loop-free node is never a
// deadlock). Each returned slice is
// sorted ascending by RobotID for deterministic downstream processing.
func DetectCycles(edges []WaitEdge) [][]RobotID {
	adj := make(map[RobotID][]RobotID)
	nodes := map[RobotID]bool{}
	for _, e := range edges {
		adj[e.From] = append(adj[e.From], e.To)
		nodes[e.From] = true
		nodes[e.To] = true
	}

	var ordered []RobotID
	for n := range nodes {
		ordered = append(ordered, n)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })
	for _, n := range ordered {
		sort.Slice(adj[n], func(i, j int) bool { return adj[n][i] < adj[n][j] })
	}

	t := &tarjan{
		adj:     adj,
		index:   make(map[RobotID]int),
		low:     make(map[RobotID]int),
		onStack: make(map[RobotID]bool),
	}
	for _, n := range ordered {
		if _, seen := t.index[n]; !seen {
			t.strongconnect(n)
		}
	}

	var cycles [][]RobotID
	for _, scc := range t.sccs {
		if len(scc) > 1 {
			sort.Slice(scc, func(i, j int) bool { return scc[i] < scc[j] })
			cycles = append(cycles, scc)
		} else if len(scc) == 1 && hasSelfLoop(adj, scc[0]) {
			cycles = append(cycles, scc)
		}
	}
	return cycles
}

func hasSelfLoop(adj map[RobotID][]RobotID, n RobotID) bool {
	for _, m := range adj[n] {
		if m == n {
			return true
		}
	}
	return false
}

// tarjan implements Tarjan's SCC algorithm iteratively is unnecessary
// here: wait-for graphs are small (bounded by robot count), so a plain
// recursive implementation is clear and sufficient.
type tarjan struct {
	adj     map[RobotID][]RobotID
	index   map[RobotID]int
	low     map[RobotID]int
	onStack map[RobotID]bool
	stack   []RobotID
	counter int
	sccs    [][]RobotID
}

func (t *tarjan) strongconnect(v RobotID) {
	t.index[v] = t.counter
	t.low[v] = t.counter
	t.counter++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range t.adj[v] {
		if _, seen := t.index[w]; !seen {
			t.strongconnect(w)
			if t.low[w] < t.low[v] {
				t.low[v] = t.low[w]
			}
		} else if t.onStack[w] {
			if t.index[w] < t.low[v] {
				t.low[v] = t.index[w]
			}
		}
	}

	if t.low[v] == t.index[v] {
		var scc []RobotID
		for {
			n := len(t.stack) - 1
			w := t.stack[n]
			t.stack = t.stack[:n]
			t.onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		t.sccs = append(t.sccs, scc)
	}
}

// Resolve picks which robots in a detected cycle must back up/abort,
// given each robot's current Priority (used by LowestPriorityAborts),
// each robot's edgeEnterTime — the clock time its currently-held edge
// was acquired (used by YoungestBacksUp) — and the current clock, which
// no resolver reads (WaitAndRetry counts checks, not elapsed time).
// Returns the robot IDs that should be forced to release their held
// resource and retry routing.
func (tc *TrafficController) Resolve(cycle []RobotID, robots map[RobotID]*Robot, edgeEnterTime map[RobotID]Time, now Time) []RobotID {
	switch tc.Resolver {
	case ResolverYoungestBacksUp:
		return []RobotID{youngest(cycle, edgeEnterTime)}
	case ResolverLowestPriorityAborts:
		return []RobotID{lowestPriority(cycle, robots)}
	case ResolverWaitAndRetry:
		return tc.waitAndRetry(cycle)
	case ResolverTiered:
		victim := tc.waitAndRetry(cycle)
		if victim != nil {
			return victim
		}
		return []RobotID{lowestPriority(cycle, robots)}
	default:
		return []RobotID{lowestPriority(cycle, robots)}
	}
}

// waitAndRetry increments the retry count for every robot in cycle and
// returns nil (no forced victim) until WaitAndRetryLimit checks have
// elapsed for the whole cycle, at which point it returns the full
// cycle membership as victims — all of them back up together since no
// single robot is distinguished under this policy.
func (tc *TrafficController) waitAndRetry(cycle []RobotID) []RobotID {
	key := cycle[0]
	for _, r := range cycle {
		if r < key {
			key = r
		}
	}
	tc.retryCounts[key]++
	if tc.retryCounts[key] >= tc.WaitAndRetryLimit {
		delete(tc.retryCounts, key)
		out := append([]RobotID(nil), cycle...)
		sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
		return out
	}
	return nil
}

// youngest returns the robot whose currently-held edge was acquired
// most recently (the latest edgeEnterTime), ties broken by highest
// RobotID. A robot with no entry in edgeEnterTime is treated as having
// acquired its edge at time zero, the least-recent possible value.
func youngest(cycle []RobotID, edgeEnterTime map[RobotID]Time) RobotID {
	best := cycle[0]
	bestTime := edgeEnterTime[best]
	for _, r := range cycle[1:] {
		t := edgeEnterTime[r]
		if t > bestTime || (t == bestTime && r > best) {
			best, bestTime = r, t
		}
	}
	return best
}

// lowestPriority returns the robot whose Priority value is numerically
// highest (worst priority class), ties broken by highest RobotID.
func lowestPriority(cycle []RobotID, robots map[RobotID]*Robot) RobotID {
	best := cycle[0]
	for _, r := range cycle[1:] {
		rb, bb := robots[r], robots[best]
		if rb == nil || bb == nil {
			continue
		}
		if rb.Priority > bb.Priority || (rb.Priority == bb.Priority && r > best) {
			best = r
		}
	}
	return best
}
