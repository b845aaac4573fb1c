package sim

import (
	"math"
	"sort"
)

// Position is a 2D coordinate used for the A* heuristic, for the
// straight-line distances of nearest-robot and auction allocation, and
// for picking the nearest charging or maintenance station; it has no
// bearing on graph connectivity.
type Position struct {
	X, Y float64
}

func (p Position) distance(o Position) float64 {
	dx, dy := p.X-o.X, p.Y-o.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Node is one vertex of the warehouse graph. Capacity is the
// number of robots that may occupy the node simultaneously; it is
// enforced by the ResourceManager, not by Node itself.
type Node struct {
	ID       NodeID
	Name     string
	Position Position
	Kind     NodeKind
	Capacity int
}

// Edge is one directed traversal link of the warehouse graph. When
// Bidirectional is true the Map also exposes the reverse direction as
// a distinct logical edge sharing this Edge's ID for resource-capacity
// purposes: capacity is reserved per direction-agnostic edge, not per
// direction.
type Edge struct {
	ID            EdgeID
	From, To      NodeID
	Length        float64
	Bidirectional bool
	Capacity      int
}

// Map is the static warehouse graph: nodes, edges, and adjacency. It is
// read-only once built — routing and traffic control only ever read it.
type Map struct {
	nodes map[NodeID]*Node
	edges map[EdgeID]*Edge
	// adjacency maps a node to the outgoing edges reachable from it,
	// already expanded for bidirectional edges.
	adjacency map[NodeID][]EdgeID
	nodeOrder []NodeID
	edgeOrder []EdgeID
}

// NewMap builds a Map from nodes and edges, validating neither — callers
// use Map.Validate after construction (kept separate so ConfigError can
// aggregate every problem found).
func NewMap(nodes []*Node, edges []*Edge) *Map {
	m := &Map{
		nodes:     make(map[NodeID]*Node, len(nodes)),
		edges:     make(map[EdgeID]*Edge, len(edges)),
		adjacency: make(map[NodeID][]EdgeID),
	}
	for _, n := range nodes {
		m.nodes[n.ID] = n
		m.nodeOrder = append(m.nodeOrder, n.ID)
	}
	for _, e := range edges {
		m.edges[e.ID] = e
		m.edgeOrder = append(m.edgeOrder, e.ID)
		m.adjacency[e.From] = append(m.adjacency[e.From], e.ID)
		if e.Bidirectional {
			m.adjacency[e.To] = append(m.adjacency[e.To], e.ID)
		}
	}
	return m
}

// Node looks up a node by ID; ok is false if absent.
func (m *Map) Node(id NodeID) (*Node, bool) {
	n, ok := m.nodes[id]
	return n, ok
}

// Edge looks up an edge by ID; ok is false if absent.
func (m *Map) Edge(id EdgeID) (*Edge, bool) {
	e, ok := m.edges[id]
	return e, ok
}

// Other returns, for the node at "from" traversed along edge id,
// the node on the other end — accounting for bidirectional edges where
// "from" may equal edge.To rather than edge.From.
func (m *Map) Other(edgeID EdgeID, from NodeID) (NodeID, bool) {
	e, ok := m.edges[edgeID]
	if !ok {
		return 0, false
	}
	switch {
	case e.From == from:
		return e.To, true
	case e.Bidirectional && e.To == from:
		return e.From, true
	default:
		return 0, false
	}
}

// OutEdges returns the IDs of edges leaving node id, in ascending
// EdgeID order (determinism rule: always iterate ID-sorted).
func (m *Map) OutEdges(id NodeID) []EdgeID {
	edges := append([]EdgeID(nil), m.adjacency[id]...)
	sortEdgeIDs(edges)
	return edges
}

// NodeIDs returns every node ID in ascending order.
func (m *Map) NodeIDs() []NodeID {
	ids := append([]NodeID(nil), m.nodeOrder...)
	sortNodeIDs(ids)
	return ids
}

// EdgeIDs returns every edge ID in ascending order.
func (m *Map) EdgeIDs() []EdgeID {
	ids := append([]EdgeID(nil), m.edgeOrder...)
	sortEdgeIDs(ids)
	return ids
}

// NodesOfKind returns, in ascending ID order, every node whose Kind
// matches any of kinds.
func (m *Map) NodesOfKind(kinds ...NodeKind) []NodeID {
	set := make(map[NodeKind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	var out []NodeID
	for _, id := range m.NodeIDs() {
		if set[m.nodes[id].Kind] {
			out = append(out, id)
		}
	}
	return out
}

// Validate checks structural invariants the Map alone can confirm:
// every edge endpoint exists, every node/edge has a capacity of at
// least 1, every edge has a non-negative length, and the graph is weakly connected from every
// node reachable by at least one traversal. It aggregates every issue
// into a single *ConfigError rather than failing on the first.
func (m *Map) Validate() *ConfigError {
	cerr := &ConfigError{}
	for _, id := range m.EdgeIDs() {
		e := m.edges[id]
		if _, ok := m.nodes[e.From]; !ok {
			cerr.add("edge %d references unknown from-node %d", e.ID, e.From)
		}
		if _, ok := m.nodes[e.To]; !ok {
			cerr.add("edge %d references unknown to-node %d", e.ID, e.To)
		}
		if e.Length < 0 {
			cerr.add("edge %d has negative length %v", e.ID, e.Length)
		}
		if e.Capacity < 1 {
			cerr.add("edge %d has non-positive capacity %d", e.ID, e.Capacity)
		}
	}
	for _, id := range m.NodeIDs() {
		n := m.nodes[id]
		if n.Capacity < 1 {
			cerr.add("node %d has non-positive capacity %d", n.ID, n.Capacity)
		}
	}
	if len(m.nodeOrder) > 0 && !m.weaklyConnected() {
		cerr.add("map is not weakly connected: some node cannot reach or be reached from node %d", m.nodeOrder[0])
	}
	return cerr
}

// weaklyConnected reports whether every node is reachable from the
// first node when edges are treated as undirected.
func (m *Map) weaklyConnected() bool {
	if len(m.nodeOrder) == 0 {
		return true
	}
	undirected := make(map[NodeID][]NodeID, len(m.nodes))
	for _, e := range m.edges {
		undirected[e.From] = append(undirected[e.From], e.To)
		undirected[e.To] = append(undirected[e.To], e.From)
	}
	start := m.NodeIDs()[0]
	seen := map[NodeID]bool{start: true}
	stack := []NodeID{start}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, nb := range undirected[n] {
			if !seen[nb] {
				seen[nb] = true
				stack = append(stack, nb)
			}
		}
	}
	return len(seen) == len(m.nodes)
}

func sortNodeIDs(ids []NodeID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

func sortEdgeIDs(ids []EdgeID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
