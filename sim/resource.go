package sim

import "golang.org/x/exp/slices"

// waiter is one robot queued for a resource it could not acquire
// immediately. Waiters are woken strictly in enqueue order; robots
// enqueued at the same clock value are not reordered by RobotID.
type waiter struct {
	robot RobotID
	seq   uint64
	grant func()
}

// nodeReservation books a future occupancy window at a node ahead of a
// robot's physical arrival, used by the Reservation traffic policy.
type nodeReservation struct {
	robot RobotID
	until Time
}

// nodeSlot and edgeSlot track current occupancy and the FIFO waiter
// list for one node or edge.
type nodeSlot struct {
	capacity     int
	occupied     map[RobotID]bool
	waiters      []waiter
	reservations []nodeReservation
}

type edgeSlot struct {
	capacity int
	occupied map[RobotID]bool
	waiters  []waiter
}

// ResourceManager enforces node and edge capacity: a robot
// may only occupy a node or traverse an edge when a slot is free, and
// robots that arrive when all slots are taken queue FIFO and are woken
// one at a time as capacity is released.
type ResourceManager struct {
	nodes    map[NodeID]*nodeSlot
	edges    map[EdgeID]*edgeSlot
	waitSeq  uint64
}

// NewResourceManager builds a ResourceManager with one slot set per
// node and edge in m, sized from each entity's configured capacity.
func NewResourceManager(m *Map) *ResourceManager {
	rm := &ResourceManager{
		nodes: make(map[NodeID]*nodeSlot),
		edges: make(map[EdgeID]*edgeSlot),
	}
	for _, id := range m.NodeIDs() {
		n, _ := m.Node(id)
		rm.nodes[id] = &nodeSlot{capacity: n.Capacity, occupied: make(map[RobotID]bool)}
	}
	for _, id := range m.EdgeIDs() {
		e, _ := m.Edge(id)
		rm.edges[id] = &edgeSlot{capacity: e.Capacity, occupied: make(map[RobotID]bool)}
	}
	return rm
}

// TryAcquireNode attempts to seat robot at node id. Returns true if the
// slot was free and is now occupied by robot.
func (rm *ResourceManager) TryAcquireNode(id NodeID, robot RobotID) bool {
	s := rm.nodes[id]
	invariant(s != nil, "try-acquire on unknown node %d", id)
	if s.occupied[robot] {
		invariant(false, "robot %d double-acquired node %d", robot, id)
	}
	if len(s.occupied) >= s.capacity {
		return false
	}
	s.occupied[robot] = true
	return true
}

// TryAcquireEdge attempts to reserve one traversal slot on edge id for
// robot. Returns true if the slot was free.
func (rm *ResourceManager) TryAcquireEdge(id EdgeID, robot RobotID) bool {
	s := rm.edges[id]
	invariant(s != nil, "try-acquire on unknown edge %d", id)
	if s.occupied[robot] {
		invariant(false, "robot %d double-acquired edge %d", robot, id)
	}
	if len(s.occupied) >= s.capacity {
		return false
	}
	s.occupied[robot] = true
	return true
}

// ReleaseNode frees robot's slot at node id and wakes the longest-
// waiting waiter, if any, by invoking its grant callback (the caller
// wires grant to schedule an EvResourceGranted event at the current
// clock; see event.go's eventPriority note on ResourceGranted).
func (rm *ResourceManager) ReleaseNode(id NodeID, robot RobotID) {
	s := rm.nodes[id]
	invariant(s != nil, "release on unknown node %d", id)
	invariant(s.occupied[robot], "robot %d released node %d it did not hold", robot, id)
	delete(s.occupied, robot)
	if len(s.waiters) > 0 {
		w := s.waiters[0]
		s.waiters = s.waiters[1:]
		s.occupied[w.robot] = true
		w.grant()
	}
}

// ReleaseEdge frees robot's traversal slot on edge id and wakes the
// longest-waiting waiter, if any.
func (rm *ResourceManager) ReleaseEdge(id EdgeID, robot RobotID) {
	s := rm.edges[id]
	invariant(s != nil, "release on unknown edge %d", id)
	invariant(s.occupied[robot], "robot %d released edge %d it did not hold", robot, id)
	delete(s.occupied, robot)
	if len(s.waiters) > 0 {
		w := s.waiters[0]
		s.waiters = s.waiters[1:]
		s.occupied[w.robot] = true
		w.grant()
	}
}

// EnqueueNodeWaiter adds robot to node id's FIFO wait list; grant is
// invoked exactly once, when a slot becomes free and is handed to this
// waiter, never synchronously.
func (rm *ResourceManager) EnqueueNodeWaiter(id NodeID, robot RobotID, grant func()) {
	s := rm.nodes[id]
	invariant(s != nil, "enqueue-waiter on unknown node %d", id)
	rm.waitSeq++
	s.waiters = append(s.waiters, waiter{robot: robot, seq: rm.waitSeq, grant: grant})
}

// EnqueueEdgeWaiter adds robot to edge id's FIFO wait list.
func (rm *ResourceManager) EnqueueEdgeWaiter(id EdgeID, robot RobotID, grant func()) {
	s := rm.edges[id]
	invariant(s != nil, "enqueue-waiter on unknown edge %d", id)
	rm.waitSeq++
	s.waiters = append(s.waiters, waiter{robot: robot, seq: rm.waitSeq, grant: grant})
}

// NodeOccupancy returns the current occupant count and capacity of
// node id, used by congestion-aware routing weights.
func (rm *ResourceManager) NodeOccupancy(id NodeID) (occupied, capacity int) {
	s := rm.nodes[id]
	if s == nil {
		return 0, 0
	}
	return len(s.occupied), s.capacity
}

// EdgeOccupancy returns the current occupant count and capacity of
// edge id.
func (rm *ResourceManager) EdgeOccupancy(id EdgeID) (occupied, capacity int) {
	s := rm.edges[id]
	if s == nil {
		return 0, 0
	}
	return len(s.occupied), s.capacity
}

// NodeWaiterCount reports how many robots are queued for node id.
func (rm *ResourceManager) NodeWaiterCount(id NodeID) int {
	s := rm.nodes[id]
	if s == nil {
		return 0
	}
	return len(s.waiters)
}

// EdgeWaiterCount reports how many robots are queued for edge id.
func (rm *ResourceManager) EdgeWaiterCount(id EdgeID) int {
	s := rm.edges[id]
	if s == nil {
		return 0
	}
	return len(s.waiters)
}

// NodeWaiters returns the robot IDs currently queued for node id, in
// FIFO order — used to build the wait-for graph for deadlock detection.
func (rm *ResourceManager) NodeWaiters(id NodeID) []RobotID {
	s := rm.nodes[id]
	if s == nil {
		return nil
	}
	out := make([]RobotID, len(s.waiters))
	for i, w := range s.waiters {
		out[i] = w.robot
	}
	return out
}

// EdgeWaiters returns the robot IDs currently queued for edge id, in
// FIFO order.
func (rm *ResourceManager) EdgeWaiters(id EdgeID) []RobotID {
	s := rm.edges[id]
	if s == nil {
		return nil
	}
	out := make([]RobotID, len(s.waiters))
	for i, w := range s.waiters {
		out[i] = w.robot
	}
	return out
}

// NodeOccupants returns the robots currently seated at node id, in
// ascending RobotID order.
func (rm *ResourceManager) NodeOccupants(id NodeID) []RobotID {
	s := rm.nodes[id]
	if s == nil {
		return nil
	}
	out := make([]RobotID, 0, len(s.occupied))
	for r := range s.occupied {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}

// RemoveNodeWaiter drops robot from node id's wait list without granting
// it the resource — used when a waiting robot is aborted by a deadlock
// resolver.
func (rm *ResourceManager) RemoveNodeWaiter(id NodeID, robot RobotID) {
	s := rm.nodes[id]
	if s == nil {
		return
	}
	for i, w := range s.waiters {
		if w.robot == robot {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}

// RemoveEdgeWaiter drops robot from edge id's wait list without
// granting it the resource.
func (rm *ResourceManager) RemoveEdgeWaiter(id EdgeID, robot RobotID) {
	s := rm.edges[id]
	if s == nil {
		return
	}
	for i, w := range s.waiters {
		if w.robot == robot {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}

// ReserveNode books a future occupancy window at node id for robot,
// valid until the given time, used by the Reservation traffic policy
// to hold a destination node ahead of a robot's arrival. Expired
// reservations (those whose until has already passed now) are pruned
// before the capacity check. Returns false if granting it would put
// combined physical occupancy and live reservations at or over
// capacity.
func (rm *ResourceManager) ReserveNode(id NodeID, robot RobotID, now, until Time) bool {
	s := rm.nodes[id]
	invariant(s != nil, "reserve on unknown node %d", id)
	live := s.reservations[:0]
	for _, r := range s.reservations {
		if r.until > now {
			live = append(live, r)
		}
	}
	s.reservations = live
	if len(s.occupied)+len(s.reservations) >= s.capacity {
		return false
	}
	s.reservations = append(s.reservations, nodeReservation{robot: robot, until: until})
	return true
}

// ReleaseNodeReservation drops robot's reservation at node id, whether
// because it physically arrived and converted the reservation into
// real occupancy or because the reservation expired unclaimed. A
// robot with no live reservation is a harmless no-op.
func (rm *ResourceManager) ReleaseNodeReservation(id NodeID, robot RobotID) {
	s := rm.nodes[id]
	if s == nil {
		return
	}
	for i, r := range s.reservations {
		if r.robot == robot {
			s.reservations = append(s.reservations[:i], s.reservations[i+1:]...)
			return
		}
	}
}
