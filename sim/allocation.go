package sim

import "sort"

// Snapshot is the read-only view of simulation state policies operate
// over.
// The kernel builds it before each allocation decision from its live
// maps and pointers, not copies, so a policy that writes through it
// changes the run.
type Snapshot struct {
	Now     Time
	Robots  map[RobotID]*Robot
	Tasks   map[TaskID]*Task
	Map     *Map
	RM      *ResourceManager
}

// idleRobots returns robot IDs with State == RobotIdle, ascending.
func (s *Snapshot) idleRobots() []RobotID {
	var out []RobotID
	for id, r := range s.Robots {
		if r.State == RobotIdle {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// pendingTasks returns task IDs with Status == TaskPending, ascending.
func (s *Snapshot) pendingTasks() []TaskID {
	var out []TaskID
	for id, t := range s.Tasks {
		if t.Status == TaskPending {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Assignment pairs a task with the robot chosen to perform it.
type Assignment struct {
	Task  TaskID
	Robot RobotID
}

// AllocationPolicy picks task/robot pairings from the current Snapshot.
// Implementations must not mutate s.
type AllocationPolicy interface {
	Allocate(s *Snapshot) []Assignment
}

// NearestRobotPolicy assigns each pending task (in ascending TaskID
// order, i.e. oldest first) to the idle robot whose current node has
// the shortest straight-line distance to the task's FromNode, ties
// broken by lowest RobotID.
type NearestRobotPolicy struct{}

func (NearestRobotPolicy) Allocate(s *Snapshot) []Assignment {
	idle := s.idleRobots()
	taken := make(map[RobotID]bool)
	var out []Assignment
	for _, tid := range s.pendingTasks() {
		task := s.Tasks[tid]
		fromNode, ok := s.Map.Node(task.FromNode)
		if !ok {
			continue
		}
		best := RobotID(0)
		bestDist := -1.0
		found := false
		for _, rid := range idle {
			if taken[rid] {
				continue
			}
			r := s.Robots[rid]
			rn, ok := s.Map.Node(r.CurrentNode())
			if !ok {
				continue
			}
			d := rn.Position.distance(fromNode.Position)
			if !found || d < bestDist {
				best, bestDist, found = rid, d, true
			}
		}
		if found {
			taken[best] = true
			out = append(out, Assignment{Task: tid, Robot: best})
		}
	}
	return out
}

// AuctionPolicy simulates a single-round sealed-bid auction: every idle
// robot bids its travel distance to each pending task, and tasks are
// awarded greedily in ascending bid order so that the globally cheapest
// pairings win first, rather than NearestRobotPolicy's task-arrival
// order which can strand a far robot with a task a closer robot could
// have taken.
type AuctionPolicy struct{}

type bid struct {
	task     TaskID
	robot    RobotID
	distance float64
}

func (AuctionPolicy) Allocate(s *Snapshot) []Assignment {
	idle := s.idleRobots()
	pending := s.pendingTasks()
	var bids []bid
	for _, tid := range pending {
		task := s.Tasks[tid]
		fromNode, ok := s.Map.Node(task.FromNode)
		if !ok {
			continue
		}
		for _, rid := range idle {
			r := s.Robots[rid]
			rn, ok := s.Map.Node(r.CurrentNode())
			if !ok {
				continue
			}
			bids = append(bids, bid{task: tid, robot: rid, distance: rn.Position.distance(fromNode.Position)})
		}
	}
	sort.Slice(bids, func(i, j int) bool {
		if bids[i].distance != bids[j].distance {
			return bids[i].distance < bids[j].distance
		}
		if bids[i].task != bids[j].task {
			return bids[i].task < bids[j].task
		}
		return bids[i].robot < bids[j].robot
	})

	taskTaken := make(map[TaskID]bool)
	robotTaken := make(map[RobotID]bool)
	var out []Assignment
	for _, b := range bids {
		if taskTaken[b.task] || robotTaken[b.robot] {
			continue
		}
		taskTaken[b.task] = true
		robotTaken[b.robot] = true
		out = append(out, Assignment{Task: b.task, Robot: b.robot})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Task < out[j].Task })
	return out
}

// WorkloadBalancedPolicy assigns pending tasks to the idle robots with
// the fewest completed tasks so far (the Completed map, which the
// kernel updates after each completed task), spreading load evenly
// rather than optimizing travel distance.
type WorkloadBalancedPolicy struct {
	Completed map[RobotID]int
}

func (p WorkloadBalancedPolicy) Allocate(s *Snapshot) []Assignment {
	idle := s.idleRobots()
	sort.Slice(idle, func(i, j int) bool {
		ci, cj := p.Completed[idle[i]], p.Completed[idle[j]]
		if ci != cj {
			return ci < cj
		}
		return idle[i] < idle[j]
	})
	pending := s.pendingTasks()
	var out []Assignment
	n := len(idle)
	if n == 0 {
		return nil
	}
	for i, tid := range pending {
		out = append(out, Assignment{Task: tid, Robot: idle[i%n]})
	}
	return out
}

// StationAssignmentPolicy picks which station instance of a kind a task
// should target, given several stations serve the same role.
type StationAssignmentPolicy interface {
	Assign(stations []*Station) *Station
}

// LeastQueuePolicy picks the station with the fewest queued robots,
// ties broken by lowest StationID.
type LeastQueuePolicy struct{}

func (LeastQueuePolicy) Assign(stations []*Station) *Station {
	return pickStation(stations, func(s *Station) float64 { return float64(s.QueueDepth()) })
}

// FastestServicePolicy picks the station with the lowest Utilization
// (most spare service capacity right now).
type FastestServicePolicy struct{}

func (FastestServicePolicy) Assign(stations []*Station) *Station {
	return pickStation(stations, func(s *Station) float64 { return s.Utilization() })
}

// DueTimePriorityPolicy delegates to LeastQueuePolicy for station
// selection, so its station choice matches LeastQueuePolicy. Due-time
// ordering comes only from PriorityPolicy, which orders pending tasks
// before allocation; station queues themselves stay FIFO.
type DueTimePriorityPolicy struct{}

func (DueTimePriorityPolicy) Assign(stations []*Station) *Station {
	return LeastQueuePolicy{}.Assign(stations)
}

func pickStation(stations []*Station, score func(*Station) float64) *Station {
	if len(stations) == 0 {
		return nil
	}
	sorted := append([]*Station(nil), stations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	best := sorted[0]
	bestScore := score(best)
	for _, s := range sorted[1:] {
		sc := score(s)
		if sc < bestScore {
			best, bestScore = s, sc
		}
	}
	return best
}

// BatchingPolicy groups pending tasks into batches dispatched together.
type BatchingPolicy interface {
	Batch(tasks []*Task) [][]TaskID
}

// NoBatching dispatches each task individually.
type NoBatching struct{}

func (NoBatching) Batch(tasks []*Task) [][]TaskID {
	out := make([][]TaskID, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, []TaskID{t.ID})
	}
	return out
}

// StationBatching groups pending tasks by their destination station
// node. The kernel only logs how many groups were formed; the
// allocator still gives each task its own robot and trip.
type StationBatching struct{}

func (StationBatching) Batch(tasks []*Task) [][]TaskID {
	groups := make(map[NodeID][]TaskID)
	var order []NodeID
	for _, t := range tasks {
		if _, ok := groups[t.ToNode]; !ok {
			order = append(order, t.ToNode)
		}
		groups[t.ToNode] = append(groups[t.ToNode], t.ID)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	var out [][]TaskID
	for _, n := range order {
		ids := groups[n]
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		out = append(out, ids)
	}
	return out
}

// ZoneBatching groups pending tasks by their source node (pick zone),
// mirroring StationBatching but keyed on FromNode — useful when the
// dominant travel cost is traversing between zones rather than between
// stations.
type ZoneBatching struct{}

func (ZoneBatching) Batch(tasks []*Task) [][]TaskID {
	groups := make(map[NodeID][]TaskID)
	var order []NodeID
	for _, t := range tasks {
		if _, ok := groups[t.FromNode]; !ok {
			order = append(order, t.FromNode)
		}
		groups[t.FromNode] = append(groups[t.FromNode], t.ID)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	var out [][]TaskID
	for _, n := range order {
		ids := groups[n]
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		out = append(out, ids)
	}
	return out
}

// PriorityPolicy orders pending tasks relative to one another before
// allocation runs, so higher-priority work is offered to the allocator
// first.
type PriorityPolicy interface {
	Order(tasks []*Task) []TaskID
}

// StrictPriorityPolicy orders strictly by due time (earliest first),
// tasks without a due time sort last, ties broken by TaskID.
type StrictPriorityPolicy struct{}

func (StrictPriorityPolicy) Order(tasks []*Task) []TaskID {
	sorted := append([]*Task(nil), tasks...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.HasDue != b.HasDue {
			return a.HasDue
		}
		if a.HasDue && a.DueAt != b.DueAt {
			return a.DueAt < b.DueAt
		}
		return a.ID < b.ID
	})
	out := make([]TaskID, len(sorted))
	for i, t := range sorted {
		out[i] = t.ID
	}
	return out
}

// WeightedFairPolicy interleaves tasks across orders round-robin so no
// single large order monopolizes the front of the queue, falling back
// to TaskID order within an order's own tasks.
type WeightedFairPolicy struct{}

func (WeightedFairPolicy) Order(tasks []*Task) []TaskID {
	byOrder := make(map[OrderID][]*Task)
	var orderIDs []OrderID
	for _, t := range tasks {
		if _, ok := byOrder[t.OrderID]; !ok {
			orderIDs = append(orderIDs, t.OrderID)
		}
		byOrder[t.OrderID] = append(byOrder[t.OrderID], t)
	}
	sort.Slice(orderIDs, func(i, j int) bool { return orderIDs[i] < orderIDs[j] })
	for _, oid := range orderIDs {
		ts := byOrder[oid]
		sort.Slice(ts, func(i, j int) bool { return ts[i].ID < ts[j].ID })
		byOrder[oid] = ts
	}

	var out []TaskID
	for {
		progressed := false
		for _, oid := range orderIDs {
			ts := byOrder[oid]
			if len(ts) == 0 {
				continue
			}
			out = append(out, ts[0].ID)
			byOrder[oid] = ts[1:]
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return out
}

// SlaDrivenPolicy orders by how close a task is to breaching its SLA
// right now (DueAt - now), tasks with no due time sort last.
type SlaDrivenPolicy struct {
	Now Time
}

func (p SlaDrivenPolicy) Order(tasks []*Task) []TaskID {
	sorted := append([]*Task(nil), tasks...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.HasDue != b.HasDue {
			return a.HasDue
		}
		if a.HasDue {
			ra, rb := a.DueAt-p.Now, b.DueAt-p.Now
			if ra != rb {
				return ra < rb
			}
		}
		return a.ID < b.ID
	})
	out := make([]TaskID, len(sorted))
	for i, t := range sorted {
		out[i] = t.ID
	}
	return out
}
