package sim

// RobotState is the robot lifecycle state machine. Exactly one
// state holds at any instant — state_exclusivity is a Testable
// Property enforced by construction here: Robot carries a single
// State field, never independent booleans.
type RobotState int

const (
	RobotIdle RobotState = iota
	RobotAssigned
	RobotTraveling
	RobotWaitingNode
	RobotWaitingEdge
	RobotServicing
	RobotCharging
	RobotMaintenance
	RobotFailed
)

func (s RobotState) String() string {
	switch s {
	case RobotIdle:
		return "idle"
	case RobotAssigned:
		return "assigned"
	case RobotTraveling:
		return "traveling"
	case RobotWaitingNode:
		return "waiting_node"
	case RobotWaitingEdge:
		return "waiting_edge"
	case RobotServicing:
		return "servicing"
	case RobotCharging:
		return "charging"
	case RobotMaintenance:
		return "maintenance"
	case RobotFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LocationKind distinguishes whether a robot's Location names a node
// it occupies or an edge it is mid-traversal on.
type LocationKind int

const (
	LocationAtNode LocationKind = iota
	LocationOnEdge
)

// Location pins a robot either at a node or partway along an edge. Only
// the field matching Kind is meaningful; EdgeProgress is in [0,1] and
// is informational only (arrival is event-driven, not interpolated).
type Location struct {
	Kind         LocationKind
	Node         NodeID
	Edge         EdgeID
	EdgeFrom     NodeID
	EdgeTo       NodeID
	EdgeProgress float64
}

// AtNode builds a node-resident Location.
func AtNode(id NodeID) Location { return Location{Kind: LocationAtNode, Node: id} }

// OnEdge builds an edge-resident Location traveling from -> to.
func OnEdge(id EdgeID, from, to NodeID) Location {
	return Location{Kind: LocationOnEdge, Edge: id, EdgeFrom: from, EdgeTo: to}
}

// Robot is one autonomous mobile unit. Speed is
// distance-per-second along an edge's Length; the Battery fields govern
// drain and charging, owned by Robot rather than a separate table
// since both are intrinsic properties of this unit.
type Robot struct {
	ID    RobotID
	State RobotState
	Loc   Location

	Speed float64 // distance units per second

	Battery         float64 // current charge, 0..Capacity
	BatteryCapacity float64
	DrainPerSecond  float64
	DrainPerMeter   float64

	CurrentTask TaskID
	HasTask     bool

	Route        []EdgeID // remaining edges to traverse for CurrentTask
	RouteIdx     int
	FailCount    int // robot failures since the last completed maintenance; no resolver reads it
	Priority     int // lower value = higher priority for deadlock resolvers
	HomeNode     NodeID
}

// NeedsCharge reports whether Battery has fallen to or below threshold
// (a fraction of capacity, e.g. 0.2 for 20%).
func (r *Robot) NeedsCharge(threshold float64) bool {
	return r.Battery <= threshold*r.BatteryCapacity
}

// DrainTravel reduces Battery for traversing a distance-meter edge,
// clamped at zero. Nothing reacts to a zero charge beyond the
// NeedsCharge check the kernel makes on idle robots.
func (r *Robot) DrainTravel(distance float64) {
	r.Battery -= distance * r.DrainPerMeter
	if r.Battery < 0 {
		r.Battery = 0
	}
}

// DrainIdle reduces Battery for seconds spent not traveling (servicing,
// waiting) at the idle drain rate.
func (r *Robot) DrainIdle(seconds float64) {
	r.Battery -= seconds * r.DrainPerSecond
	if r.Battery < 0 {
		r.Battery = 0
	}
}

// Charge increases Battery by amount, clamped at BatteryCapacity.
func (r *Robot) Charge(amount float64) {
	r.Battery += amount
	if r.Battery > r.BatteryCapacity {
		r.Battery = r.BatteryCapacity
	}
}

// CurrentNode returns the node a robot is AT, or its edge's From node
// if mid-traversal — used by routing and allocation, which need a
// single-node anchor regardless of exact location.
func (r *Robot) CurrentNode() NodeID {
	if r.Loc.Kind == LocationAtNode {
		return r.Loc.Node
	}
	return r.Loc.EdgeFrom
}
