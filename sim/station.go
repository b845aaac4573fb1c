package sim

// StationKind distinguishes the four station families.
// Pick/drop/inbound/outbound stations share the Station shape;
// charging and maintenance stations carry their own structs because
// their service semantics (battery replenishment, repair) differ from
// order-line service.
type StationKind int

const (
	StationPick StationKind = iota
	StationDrop
	StationInbound
	StationOutbound
)

// Station is a service point with a fixed number of concurrent service
// slots and an unbounded FIFO arrival queue. Robots join the Queue, then move into one of Slots when a
// slot frees, in arrival order.
type Station struct {
	ID       StationID
	Node     NodeID
	Kind     StationKind
	Slots    int
	Busy     map[RobotID]bool
	Queue    []RobotID
	Service  Distribution // drawn per visit from DomainStationsService

	TotalServiced int
	TotalQueueing float64 // accumulated robot-seconds spent queueing, for metrics
}

// NewStation builds an empty Station.
func NewStation(id StationID, node NodeID, kind StationKind, slots int, service Distribution) *Station {
	return &Station{ID: id, Node: node, Kind: kind, Slots: slots, Busy: make(map[RobotID]bool), Service: service}
}

// Join enqueues robot at the station. Returns true if a slot was
// immediately free (caller should start service now instead of
// waiting).
func (s *Station) Join(robot RobotID) bool {
	if len(s.Busy) < s.Slots {
		s.Busy[robot] = true
		return true
	}
	s.Queue = append(s.Queue, robot)
	return false
}

// Leave marks robot's service complete, freeing its slot, and returns
// the next queued robot (if any) to move into that slot — the caller
// is responsible for scheduling that robot's ServiceStart event.
func (s *Station) Leave(robot RobotID) (next RobotID, ok bool) {
	invariant(s.Busy[robot], "robot %d left station %d it was not servicing at", robot, s.ID)
	delete(s.Busy, robot)
	s.TotalServiced++
	if len(s.Queue) == 0 {
		return 0, false
	}
	next = s.Queue[0]
	s.Queue = s.Queue[1:]
	s.Busy[next] = true
	return next, true
}

// QueueDepth reports the number waiting (not yet in a slot).
func (s *Station) QueueDepth() int { return len(s.Queue) }

// Utilization reports the fraction of slots currently busy.
func (s *Station) Utilization() float64 {
	if s.Slots == 0 {
		return 0
	}
	return float64(len(s.Busy)) / float64(s.Slots)
}

// ChargingStation replenishes robot batteries at a fixed power-transfer
// rate while occupying a node-adjacent slot.
type ChargingStation struct {
	ID        StationID
	Node      NodeID
	Slots     int
	Busy      map[RobotID]bool
	Queue     []RobotID
	ChargeRate float64 // charge units per second delivered per slot
}

// NewChargingStation builds an empty ChargingStation.
func NewChargingStation(id StationID, node NodeID, slots int, rate float64) *ChargingStation {
	return &ChargingStation{ID: id, Node: node, Slots: slots, Busy: make(map[RobotID]bool), ChargeRate: rate}
}

// Join enqueues robot for charging; returns true if a slot is free now.
func (c *ChargingStation) Join(robot RobotID) bool {
	if len(c.Busy) < c.Slots {
		c.Busy[robot] = true
		return true
	}
	c.Queue = append(c.Queue, robot)
	return false
}

// Leave frees robot's charging slot and returns the next queued robot,
// if any.
func (c *ChargingStation) Leave(robot RobotID) (next RobotID, ok bool) {
	invariant(c.Busy[robot], "robot %d left charging station %d it was not using", robot, c.ID)
	delete(c.Busy, robot)
	if len(c.Queue) == 0 {
		return 0, false
	}
	next = c.Queue[0]
	c.Queue = c.Queue[1:]
	c.Busy[next] = true
	return next, true
}

// MaintenanceStation repairs failed robots. Repair duration is
// drawn from a distribution rather than a fixed rate, reflecting
// variable fault severity.
type MaintenanceStation struct {
	ID      StationID
	Node    NodeID
	Slots   int
	Busy    map[RobotID]bool
	Queue   []RobotID
	Repair  Distribution
}

// NewMaintenanceStation builds an empty MaintenanceStation.
func NewMaintenanceStation(id StationID, node NodeID, slots int, repair Distribution) *MaintenanceStation {
	return &MaintenanceStation{ID: id, Node: node, Slots: slots, Busy: make(map[RobotID]bool), Repair: repair}
}

// Join enqueues robot for repair; returns true if a slot is free now.
func (m *MaintenanceStation) Join(robot RobotID) bool {
	if len(m.Busy) < m.Slots {
		m.Busy[robot] = true
		return true
	}
	m.Queue = append(m.Queue, robot)
	return false
}

// Leave frees robot's repair slot and returns the next queued robot, if
// any.
func (m *MaintenanceStation) Leave(robot RobotID) (next RobotID, ok bool) {
	invariant(m.Busy[robot], "robot %d left maintenance station %d it was not using", robot, m.ID)
	delete(m.Busy, robot)
	if len(m.Queue) == 0 {
		return 0, false
	}
	next = m.Queue[0]
	m.Queue = m.Queue[1:]
	m.Busy[next] = true
	return next, true
}
