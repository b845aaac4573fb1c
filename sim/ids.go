// Package sim implements the Waremax discrete-event simulation kernel:
// a deterministic, single-threaded engine that drives autonomous mobile
// robots through a warehouse graph under capacity and traffic constraints.
package sim

// Dense integer identifiers. Names are for display only; equality and
// ordering always use these IDs, never strings, so that iteration over
// ID-sorted slices is the single source of determinism (see DESIGN.md).

type NodeID int
type EdgeID int
type RobotID int
type StationID int
type TaskID int
type OrderID int
type SKUID int

// NodeKind enumerates the static role of a map node.
type NodeKind int

const (
	NodeAisle NodeKind = iota
	NodeRack
	NodePickStation
	NodeDropStation
	NodeInboundStation
	NodeOutboundStation
	NodeCharging
	NodeMaintenance
)

func (k NodeKind) String() string {
	switch k {
	case NodeAisle:
		return "aisle"
	case NodeRack:
		return "rack"
	case NodePickStation:
		return "pick_station"
	case NodeDropStation:
		return "drop_station"
	case NodeInboundStation:
		return "inbound_station"
	case NodeOutboundStation:
		return "outbound_station"
	case NodeCharging:
		return "charging"
	case NodeMaintenance:
		return "maintenance"
	default:
		return "unknown"
	}
}

// TaskKind enumerates the kinds of work a Task can represent.
type TaskKind int

const (
	TaskPick TaskKind = iota
	TaskDrop
	TaskTransport
	TaskReplenish
	TaskPutaway
)

func (k TaskKind) String() string {
	switch k {
	case TaskPick:
		return "pick"
	case TaskDrop:
		return "drop"
	case TaskTransport:
		return "transport"
	case TaskReplenish:
		return "replenish"
	case TaskPutaway:
		return "putaway"
	default:
		return "unknown"
	}
}

// TaskStatus is the lifecycle of a Task: Pending -> Assigned -> InProgress -> Completed|Failed.
type TaskStatus int

const (
	TaskPending TaskStatus = iota
	TaskAssigned
	TaskInProgress
	TaskCompleted
	TaskFailed
)
