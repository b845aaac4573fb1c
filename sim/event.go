package sim

import "container/heap"

// Time is the simulation clock: a non-negative count of seconds. It is
// the only thing that advances the run, and it only ever advances to
// the time stamped on the next popped event.
type Time float64

// EventType is the closed set of event kinds the kernel dispatches.
// Ordering across equal clock values is governed by eventPriority,
// not by declaration order here.
type EventType int

const (
	EvSimulationEnd EventType = iota
	EvWarmupEnd
	EvMetricsSample
	EvOrderArrival
	EvFailureOccurred
	EvMaintenanceDue
	EvTaskAssignment
	EvRobotDepart
	EvRobotArrive
	EvServiceStart
	EvChargingStart
	EvMaintenanceStart
	EvServiceEnd
	EvChargingEnd
	EvMaintenanceEnd
	EvQueueJoin
	EvRobotWait
	EvDeadlockCheck
	EvReservationExpired
	EvResourceGranted
)

func (t EventType) String() string {
	names := [...]string{
		"SimulationEnd", "WarmupEnd", "MetricsSample", "OrderArrival",
		"FailureOccurred", "MaintenanceDue", "TaskAssignment", "RobotDepart",
		"RobotArrive", "ServiceStart", "ChargingStart", "MaintenanceStart",
		"ServiceEnd", "ChargingEnd", "MaintenanceEnd", "QueueJoin",
		"RobotWait", "DeadlockCheck", "ReservationExpired", "ResourceGranted",
	}
	if int(t) < 0 || int(t) >= len(names) {
		return "Unknown"
	}
	return names[t]
}

// eventPriority is the fixed tie-breaking table: lower numbers dispatch
// first among events sharing a clock value.
//
//	1 (highest): SimulationEnd, WarmupEnd, MetricsSample
//	2:           OrderArrival, FailureOccurred, MaintenanceDue
//	3:           TaskAssignment
//	4:           RobotDepart
//	5:           RobotArrive
//	6:           ServiceStart, ChargingStart, MaintenanceStart
//	7:           ServiceEnd, ChargingEnd, MaintenanceEnd
//	8 (lowest):  QueueJoin, RobotWait, DeadlockCheck, ReservationExpired
//
// ResourceGranted always dispatches in band 7, alongside ServiceEnd/
// ChargingEnd/MaintenanceEnd, whichever event released the resource
// (node and edge releases happen in RobotDepart, RobotArrive and
// ResourceGranted handlers); it does not take on the releasing event's
// priority. See resource.go.
func eventPriority(t EventType) int {
	switch t {
	case EvSimulationEnd, EvWarmupEnd, EvMetricsSample:
		return 1
	case EvOrderArrival, EvFailureOccurred, EvMaintenanceDue:
		return 2
	case EvTaskAssignment:
		return 3
	case EvRobotDepart:
		return 4
	case EvRobotArrive:
		return 5
	case EvServiceStart, EvChargingStart, EvMaintenanceStart:
		return 6
	case EvServiceEnd, EvChargingEnd, EvMaintenanceEnd, EvResourceGranted:
		return 7
	case EvQueueJoin, EvRobotWait, EvDeadlockCheck, EvReservationExpired:
		return 8
	default:
		return 9
	}
}

// EventHandle is returned by Scheduler.Schedule and lets callers cancel
// a not-yet-dispatched event. The kernel itself never cancels an event.
type EventHandle uint64

// Event is a tagged union: Type selects which payload field is
// meaningful. A payload struct per event family keeps dispatch a single
// switch rather than virtual calls through an interface.
type Event struct {
	Time          Time
	Type          EventType
	Seq           uint64
	handle        EventHandle
	cancelled     bool
	RobotID       RobotID
	StationID     StationID
	NodeID        NodeID
	EdgeID        EdgeID
	TaskID        TaskID
	OrderID       OrderID
	Attempt       int
	Reservation   ReservationID
	ResourceGrant func(k *Kernel) // set for EvResourceGranted: runs the grant side-effect
}

// eventHeap implements container/heap.Interface, ordered by the
// (time, type_priority, insertion_seq) lexicographic key.
type eventHeap []*Event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.Time != b.Time {
		return a.Time < b.Time
	}
	pa, pb := eventPriority(a.Type), eventPriority(b.Type)
	if pa != pb {
		return pa < pb
	}
	return a.Seq < b.Seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(*Event))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Scheduler is the min-heap event queue. It is not
// safe for concurrent use — the kernel is single-threaded by design
// — but every mutation it performs is O(log n).
type Scheduler struct {
	heap      eventHeap
	seq       uint64
	nextHand  EventHandle
	byHandle  map[EventHandle]*Event
	clock     Time
	dispatched int
}

// NewScheduler returns an empty Scheduler with the clock at zero.
func NewScheduler() *Scheduler {
	s := &Scheduler{byHandle: make(map[EventHandle]*Event)}
	heap.Init(&s.heap)
	return s
}

// Clock returns the time of the most recently dispatched event (or zero
// before the first dispatch).
func (s *Scheduler) Clock() Time { return s.clock }

// Len reports the number of not-yet-dispatched, not-yet-cancelled
// events still resident in the heap (cancelled events are lazily
// dropped on pop, so this may overcount slightly until they are
// popped).
func (s *Scheduler) Len() int { return s.heap.Len() }

// Schedule enqueues ev at ev.Time, which must be >= the current clock;
// violating that is a programmer bug and panics
// rather than silently reordering. Returns a handle usable with Cancel.
func (s *Scheduler) Schedule(ev *Event) EventHandle {
	invariant(ev.Time >= s.clock, "scheduled event time %v precedes clock %v (type=%s)", ev.Time, s.clock, ev.Type)
	s.seq++
	ev.Seq = s.seq
	s.nextHand++
	ev.handle = s.nextHand
	s.byHandle[ev.handle] = ev
	heap.Push(&s.heap, ev)
	return ev.handle
}

// Cancel marks the event behind handle as invalidated. It is dropped
// without dispatch the next time it would be popped. Cancelling an
// already-dispatched or already-cancelled handle is a harmless no-op.
func (s *Scheduler) Cancel(h EventHandle) {
	if ev, ok := s.byHandle[h]; ok {
		ev.cancelled = true
		delete(s.byHandle, h)
	}
}

// popNext pops the next non-cancelled event, advancing nothing itself;
// the caller is responsible for setting the clock.
func (s *Scheduler) popNext() *Event {
	for s.heap.Len() > 0 {
		ev := heap.Pop(&s.heap).(*Event)
		if ev.cancelled {
			continue
		}
		delete(s.byHandle, ev.handle)
		return ev
	}
	return nil
}

// RunUntil drains the queue, invoking dispatch for every event whose
// time is <= endTime, advancing the clock to each event's time before
// dispatch. Stops when the queue empties or the next event's time
// exceeds endTime.
func (s *Scheduler) RunUntil(endTime Time, dispatch func(*Event)) {
	for {
		ev := s.popNext()
		if ev == nil {
			return
		}
		if ev.Time > endTime {
			// Not ours to dispatch; since it was already popped and the
			// heap no longer owns it, and the run is ending, we simply
			// drop it — the event is lost to any later RunUntil or PopOne.
			return
		}
		invariant(ev.Time >= s.clock, "monotone clock violated: popped %v after clock reached %v", ev.Time, s.clock)
		s.clock = ev.Time
		s.dispatched++
		dispatch(ev)
	}
}

// PopOne pops and dispatches exactly one event (used by Kernel.Run and
// Kernel.Step). Returns false if the queue was empty.
func (s *Scheduler) PopOne(dispatch func(*Event)) bool {
	ev := s.popNext()
	if ev == nil {
		return false
	}
	invariant(ev.Time >= s.clock, "monotone clock violated: popped %v after clock reached %v", ev.Time, s.clock)
	s.clock = ev.Time
	s.dispatched++
	dispatch(ev)
	return true
}

// Dispatched returns the total count of events dispatched so far.
func (s *Scheduler) Dispatched() int { return s.dispatched }
