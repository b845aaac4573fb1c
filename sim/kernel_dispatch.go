package sim

import (
	"sort"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// deadlockCheckInterval is the spacing between periodic EvDeadlockCheck
// events, chosen short enough to catch a stuck cycle within a few
// seconds of simulated time without dominating the event log on large
// fleets.
const deadlockCheckInterval = 5.0

// metricsSampleInterval is the spacing between EvMetricsSample events
// that mirror live gauges into the optional Prometheus registry.
const metricsSampleInterval = 10.0

// dispatch is the single switch every scheduled Event passes through.
// Each case owns exactly one event family's state transition.
func (k *Kernel) dispatch(ev *Event) {
	now := k.sched.Clock()
	switch ev.Type {
	case EvSimulationEnd:
		// Terminal marker; Run and Step stop once it has been dispatched.
	case EvWarmupEnd:
		// No state change: warmup exclusion is applied when metrics are
		// recorded, by comparing against cfg.warmupEnd directly.
	case EvMetricsSample:
		k.sampleMetrics(now)
		k.sched.Schedule(&Event{Time: now + metricsSampleInterval, Type: EvMetricsSample})
	case EvOrderArrival:
		k.handleOrderArrival(now)
	case EvFailureOccurred:
		k.handleFailureOccurred(now, ev.RobotID)
	case EvMaintenanceDue:
		k.handleMaintenanceDue(now, ev.RobotID)
	case EvTaskAssignment:
		k.runAllocation(now)
	case EvRobotDepart:
		k.handleRobotDepart(now, ev.RobotID)
	case EvRobotArrive:
		k.handleRobotArrive(now, ev.RobotID)
	case EvServiceStart:
		k.handleServiceStart(now, ev.RobotID)
	case EvChargingStart:
		k.handleChargingStart(now, ev.RobotID)
	case EvMaintenanceStart:
		k.handleMaintenanceStart(now, ev.RobotID)
	case EvServiceEnd:
		k.handleServiceEnd(now, ev.RobotID)
	case EvChargingEnd:
		k.handleChargingEnd(now, ev.RobotID)
	case EvMaintenanceEnd:
		k.handleMaintenanceEnd(now, ev.RobotID)
	case EvQueueJoin:
		k.log(now, EvQueueJoin, "traffic", "robot queued", map[string]any{"robot": int(ev.RobotID)})
	case EvRobotWait:
		k.handleRobotWait(now, ev.RobotID, ev.EdgeID)
	case EvDeadlockCheck:
		k.handleDeadlockCheck(now)
		k.sched.Schedule(&Event{Time: now + deadlockCheckInterval, Type: EvDeadlockCheck})
	case EvReservationExpired:
		k.rm.ReleaseNodeReservation(ev.NodeID, ev.RobotID)
	case EvResourceGranted:
		if ev.ResourceGrant != nil {
			ev.ResourceGrant(k)
		}
	}
}

// scheduleNextArrival schedules the next EvOrderArrival at now plus a
// freshly drawn inter-arrival gap.
func (k *Kernel) scheduleNextArrival(now Time) {
	gap := k.orderGen.NextArrivalGap()
	if gap < 0 {
		gap = 0
	}
	k.sched.Schedule(&Event{Time: now + Time(gap), Type: EvOrderArrival})
}

func (k *Kernel) handleOrderArrival(now Time) {
	order, tasks := k.orderGen.Generate(now)
	k.orders[order.ID] = order
	for _, t := range tasks {
		k.tasks[t.ID] = t
	}
	k.metrics.RecordOrderArrival()
	k.log(now, EvOrderArrival, "orders", "order arrived", map[string]any{"order": int(order.ID), "lines": len(order.Lines)})

	k.scheduleNextArrival(now)
	k.sched.Schedule(&Event{Time: now, Type: EvTaskAssignment})
}

// runAllocation batches the policy pipeline: priority ordering decides
// which pending tasks are considered first, batching groups the
// ordered tasks into batches dispatched one at a time, and within each
// batch the allocation policy pairs idle robots with tasks over a
// Snapshot restricted to that batch's tasks — so a batch earlier in
// priority order is fully offered to the allocator, and whichever
// robots it consumes are no longer idle for the next batch.
func (k *Kernel) runAllocation(now Time) {
	snap := &Snapshot{Now: now, Robots: k.robots, Tasks: k.tasks, Map: k.m, RM: k.rm}

	var pending []*Task
	for _, id := range snap.pendingTasks() {
		pending = append(pending, k.tasks[id])
	}
	if len(pending) == 0 {
		return
	}

	ordered := k.cfg.priority.Order(pending)
	orderedTasks := make([]*Task, 0, len(ordered))
	for _, id := range ordered {
		orderedTasks = append(orderedTasks, k.tasks[id])
	}
	batches := k.cfg.batching.Batch(orderedTasks)
	k.log(now, EvTaskAssignment, "allocation", "allocation batch planned", map[string]any{"pending": len(pending), "batches": len(batches)})

	for _, batch := range batches {
		batchTasks := make(map[TaskID]*Task, len(batch))
		for _, id := range batch {
			if t := k.tasks[id]; t != nil && t.Status == TaskPending {
				batchTasks[id] = t
			}
		}
		if len(batchTasks) == 0 {
			continue
		}
		batchSnap := &Snapshot{Now: now, Robots: k.robots, Tasks: batchTasks, Map: k.m, RM: k.rm}
		assignments := k.cfg.allocation.Allocate(batchSnap)
		sort.Slice(assignments, func(i, j int) bool { return assignments[i].Task < assignments[j].Task })
		for _, a := range assignments {
			task, ok := k.tasks[a.Task]
			if !ok || task.Status != TaskPending {
				continue
			}
			robot, ok := k.robots[a.Robot]
			if !ok || robot.State != RobotIdle {
				continue
			}
			k.assignTask(now, task, robot)
		}
	}
}

func (k *Kernel) assignTask(now Time, task *Task, robot *Robot) {
	task.Assign(robot.ID, now)
	robot.State = RobotAssigned
	robot.HasTask = true
	robot.CurrentTask = task.ID

	if task.Kind == TaskPick && k.inventory != nil && !k.inventory.Empty() {
		node, ok := k.inventory.FindSourceNode(task.SKU, task.Quantity)
		if !ok {
			k.recordAnomaly(AnomalyStarvation, "no rack holds enough stock for pick", task.ID, robot.ID)
			task.Fail(now)
			k.metrics.RecordTaskFailed()
			robot.State = RobotIdle
			robot.HasTask = false
			return
		}
		task.FromNode = node
		k.inventory.Decrement(node, task.SKU, task.Quantity)
	}

	path, err := k.router.FindRoute(RouteQuery{
		From:             robot.CurrentNode(),
		To:               task.FromNode,
		CongestionAware:  k.cfg.congestionAware,
		CongestionWeight: k.cfg.congestionWeight,
		UseAStar:         k.cfg.useAStar,
	})
	if err != nil {
		k.recordAnomaly(AnomalyUnreachableTask, "no route to pick node", task.ID, robot.ID)
		task.Fail(now)
		k.metrics.RecordTaskFailed()
		robot.State = RobotIdle
		robot.HasTask = false
		return
	}
	robot.Route = path
	robot.RouteIdx = 0
	k.log(now, EvTaskAssignment, "allocation", "task assigned", map[string]any{"task": int(task.ID), "robot": int(robot.ID)})
	k.sched.Schedule(&Event{Time: now, Type: EvRobotDepart, RobotID: robot.ID})
}

// handleRobotDepart advances robot along its current Route one edge at
// a time, acquiring each edge slot before releasing the node slot it
// currently holds.
func (k *Kernel) handleRobotDepart(now Time, id RobotID) {
	robot, ok := k.robots[id]
	if !ok {
		return
	}
	if robot.RouteIdx >= len(robot.Route) {
		k.arriveAtDestination(now, robot)
		return
	}
	edgeID := robot.Route[robot.RouteIdx]
	if !k.rm.TryAcquireEdge(edgeID, id) {
		robot.State = RobotWaitingEdge
		k.sched.Schedule(&Event{Time: now, Type: EvQueueJoin, RobotID: id, EdgeID: edgeID})
		k.rm.EnqueueEdgeWaiter(edgeID, id, func() {
			k.sched.Schedule(&Event{
				Time: k.sched.Clock(), Type: EvResourceGranted, RobotID: id,
				ResourceGrant: func(kk *Kernel) { kk.handleRobotDepart(kk.sched.Clock(), id) },
			})
		})
		if k.cfg.traffic == TrafficRerouteOnWait {
			k.sched.Schedule(&Event{Time: now + Time(k.cfg.waitThreshold), Type: EvRobotWait, RobotID: id, EdgeID: edgeID})
		}
		return
	}

	fromNode := robot.CurrentNode()
	edge, _ := k.m.Edge(edgeID)
	toNode, _ := k.m.Other(edgeID, fromNode)
	travel := edge.Length / robot.Speed

	if k.cfg.traffic == TrafficReservation {
		until := now + Time(travel) + Time(k.cfg.reservationHorizon)
		if !k.rm.ReserveNode(toNode, id, now, until) {
			// The edge itself is free (we just acquired it) — only the
			// destination node's reservation table is full. Give the edge
			// back rather than hold it idle, and retry shortly: re-joining
			// the edge's FIFO waiter queue here would strand this robot,
			// since nothing else would ever release that edge to wake it.
			k.rm.ReleaseEdge(edgeID, id)
			jitter := Exponential{Lambda: 1}.Sample(k.rng.Stream(DomainTrafficJitter))
			k.sched.Schedule(&Event{Time: now + Time(jitter), Type: EvRobotDepart, RobotID: id})
			return
		}
		k.sched.Schedule(&Event{Time: until, Type: EvReservationExpired, RobotID: id, NodeID: toNode})
	}

	delete(k.rerouteAttempts, id)

	k.rm.ReleaseNode(fromNode, id)
	k.accumulateNodeBusy(id, fromNode, now)

	robot.Loc = OnEdge(edgeID, fromNode, toNode)
	robot.State = RobotTraveling
	k.edgeEnterTime[id] = now
	k.nodeEnterTime[id] = 0

	robot.DrainTravel(edge.Length)
	k.sched.Schedule(&Event{Time: now + Time(travel), Type: EvRobotArrive, RobotID: id, EdgeID: edgeID})
}

// routeDestination returns the node robot's remaining Route ultimately
// leads to, derived by walking the unconsumed edge path from its
// current node — used by the RerouteOnWait policy, which knows the
// blocked edge but must re-derive the final target to request a fresh
// route around it.
func (k *Kernel) routeDestination(robot *Robot) NodeID {
	node := robot.CurrentNode()
	for i := robot.RouteIdx; i < len(robot.Route); i++ {
		next, ok := k.m.Other(robot.Route[i], node)
		if !ok {
			break
		}
		node = next
	}
	return node
}

// handleRobotWait fires waitThresholdSeconds after a robot entered
// RobotWaitingEdge under the RerouteOnWait policy. If the robot is
// still queued for the same edge and has reroute attempts left, it
// requests a fresh route with that edge heavily penalized; a route
// that actually avoids the edge replaces the robot's remaining Route
// and the robot retries departure immediately. Otherwise it stays
// queued — either to be woken normally once the edge frees up, or
// (attempts exhausted) to wait it out under plain FIFO semantics.
func (k *Kernel) handleRobotWait(now Time, id RobotID, edgeID EdgeID) {
	robot := k.robots[id]
	if robot == nil || robot.State != RobotWaitingEdge {
		return
	}
	if robot.RouteIdx >= len(robot.Route) || robot.Route[robot.RouteIdx] != edgeID {
		return
	}
	if k.rerouteAttempts[id] >= k.cfg.maxRerouteAttempts {
		return
	}

	dest := k.routeDestination(robot)
	path, err := k.router.FindRoute(RouteQuery{
		From:             robot.CurrentNode(),
		To:               dest,
		CongestionAware:  k.cfg.congestionAware,
		CongestionWeight: k.cfg.congestionWeight,
		UseAStar:         k.cfg.useAStar,
		PenalizedEdges:   map[EdgeID]float64{edgeID: 1000},
	})
	k.rerouteAttempts[id]++

	if err != nil || len(path) == 0 || path[0] == edgeID {
		if k.rerouteAttempts[id] < k.cfg.maxRerouteAttempts {
			k.sched.Schedule(&Event{Time: now + Time(k.cfg.waitThreshold), Type: EvRobotWait, RobotID: id, EdgeID: edgeID})
		}
		return
	}

	k.rm.RemoveEdgeWaiter(edgeID, id)
	robot.Route = path
	robot.RouteIdx = 0
	delete(k.rerouteAttempts, id)
	k.handleRobotDepart(now, id)
}

func (k *Kernel) handleRobotArrive(now Time, id RobotID) {
	robot, ok := k.robots[id]
	if !ok {
		return
	}
	edgeID := robot.Loc.Edge
	toNode := robot.Loc.EdgeTo

	if !k.rm.TryAcquireNode(toNode, id) {
		robot.State = RobotWaitingNode
		k.sched.Schedule(&Event{Time: now, Type: EvQueueJoin, RobotID: id, NodeID: toNode})
		k.rm.EnqueueNodeWaiter(toNode, id, func() {
			k.sched.Schedule(&Event{
				Time: k.sched.Clock(), Type: EvResourceGranted, RobotID: id,
				ResourceGrant: func(kk *Kernel) { kk.finishHop(kk.sched.Clock(), id) },
			})
		})
		return
	}
	k.finishHop(now, id)
}

// finishHop releases the edge slot a robot just traversed (now that its
// destination node slot is held), advances it along the route, and
// either continues traveling or arrives at the task destination.
func (k *Kernel) finishHop(now Time, id RobotID) {
	robot, ok := k.robots[id]
	if !ok {
		return
	}
	edgeID := robot.Loc.Edge
	toNode := robot.Loc.EdgeTo
	k.rm.ReleaseEdge(edgeID, id)
	k.accumulateEdgeBusy(id, edgeID, now)
	if k.cfg.traffic == TrafficReservation {
		k.rm.ReleaseNodeReservation(toNode, id)
	}

	robot.Loc = AtNode(toNode)
	k.nodeEnterTime[id] = now
	robot.RouteIdx++
	if robot.RouteIdx >= len(robot.Route) {
		k.arriveAtDestination(now, robot)
		return
	}
	robot.State = RobotTraveling
	k.sched.Schedule(&Event{Time: now, Type: EvRobotDepart, RobotID: id})
}

// arriveAtDestination is reached once a robot's Route is exhausted: it
// has reached either the task's pick node (on the outbound leg) or its
// drop node (on the return leg with cargo), so it joins a station.
func (k *Kernel) arriveAtDestination(now Time, robot *Robot) {
	if _, ok := k.pendingCharge[robot.ID]; ok {
		k.sched.Schedule(&Event{Time: now, Type: EvChargingStart, RobotID: robot.ID})
		return
	}
	if _, ok := k.pendingMaintenance[robot.ID]; ok {
		k.sched.Schedule(&Event{Time: now, Type: EvMaintenanceStart, RobotID: robot.ID})
		return
	}
	if !robot.HasTask {
		robot.State = RobotIdle
		k.maybeRouteForCharging(now, robot)
		return
	}
	task := k.tasks[robot.CurrentTask]
	if task == nil {
		robot.State = RobotIdle
		robot.HasTask = false
		return
	}
	k.sched.Schedule(&Event{Time: now, Type: EvServiceStart, RobotID: robot.ID})
}

func (k *Kernel) stationAt(node NodeID) *Station { return k.stationsByNode[node] }

func (k *Kernel) handleServiceStart(now Time, id RobotID) {
	robot := k.robots[id]
	task := k.tasks[robot.CurrentTask]
	if robot == nil || task == nil {
		return
	}
	if task.Status == TaskAssigned {
		task.Start(now)
	}
	station := k.stationAt(robot.CurrentNode())
	if station == nil {
		// No station modeled at this node (e.g. a bare pick/drop node in
		// a minimal scenario): treat the visit as instantaneous service.
		k.completeServiceVisit(now, robot, task)
		return
	}
	robot.State = RobotServicing
	if station.Join(id) {
		svc := station.Service.Sample(k.rng.Stream(DomainStationsService))
		k.sched.Schedule(&Event{Time: now + Time(svc), Type: EvServiceEnd, RobotID: id, StationID: station.ID})
	} else {
		k.sched.Schedule(&Event{Time: now, Type: EvQueueJoin, RobotID: id, StationID: station.ID})
	}
}

func (k *Kernel) handleServiceEnd(now Time, id RobotID) {
	robot := k.robots[id]
	station := k.stations[k.findStationIDByRobot(id)]
	if robot == nil || station == nil {
		return
	}
	next, ok := station.Leave(id)
	if ok {
		svc := station.Service.Sample(k.rng.Stream(DomainStationsService))
		k.sched.Schedule(&Event{Time: now + Time(svc), Type: EvServiceEnd, RobotID: next, StationID: station.ID})
	}

	task := k.tasks[robot.CurrentTask]
	if task == nil {
		robot.State = RobotIdle
		return
	}
	k.completeServiceVisit(now, robot, task)
}

// completeServiceVisit decides, once a robot's station visit ends,
// whether the task still has a leg to travel (pick node reached, drop
// node still ahead) or is now fully done.
func (k *Kernel) completeServiceVisit(now Time, robot *Robot, task *Task) {
	if robot.CurrentNode() == task.FromNode && task.ToNode != task.FromNode {
		k.routeRobot(now, robot, task.ToNode)
		return
	}
	k.finishTaskAtNode(now, robot, task)
}

// findStationIDByRobot recovers which station id currently has robot
// id busy or queued by looking up the station at the robot's current
// node in stationsByNode; the StationID carried on EvServiceEnd is not
// consulted.
func (k *Kernel) findStationIDByRobot(id RobotID) StationID {
	robot := k.robots[id]
	if robot == nil {
		return 0
	}
	if st := k.stationAt(robot.CurrentNode()); st != nil {
		return st.ID
	}
	return 0
}

func (k *Kernel) routeRobot(now Time, robot *Robot, dest NodeID) {
	path, err := k.router.FindRoute(RouteQuery{
		From:             robot.CurrentNode(),
		To:               dest,
		CongestionAware:  k.cfg.congestionAware,
		CongestionWeight: k.cfg.congestionWeight,
		UseAStar:         k.cfg.useAStar,
	})
	if err != nil {
		task := k.tasks[robot.CurrentTask]
		if task != nil {
			k.recordAnomaly(AnomalyUnreachableTask, "no route to drop node", task.ID, robot.ID)
			task.Fail(now)
			k.metrics.RecordTaskFailed()
		}
		robot.State = RobotIdle
		robot.HasTask = false
		return
	}
	robot.Route = path
	robot.RouteIdx = 0
	robot.State = RobotTraveling
	k.sched.Schedule(&Event{Time: now, Type: EvRobotDepart, RobotID: robot.ID})
}

func (k *Kernel) finishTaskAtNode(now Time, robot *Robot, task *Task) {
	task.Complete(now)
	if task.Kind == TaskPutaway && k.inventory != nil {
		k.inventory.Increment(task.ToNode, task.SKU, task.Quantity)
	}
	late := task.IsLate(now)
	latency := float64(task.DoneAt - task.CreatedAt)
	if now >= k.cfg.warmupEnd {
		k.metrics.RecordTaskCompleted(latency, late)
	}
	k.completedByRobot[robot.ID]++
	if wb, ok := k.cfg.allocation.(WorkloadBalancedPolicy); ok {
		wb.Completed[robot.ID] = k.completedByRobot[robot.ID]
	}

	if order := k.orders[task.OrderID]; order != nil {
		if k.orderFullyDone(order) {
			order.Status = OrderFulfilled
			if now >= k.cfg.warmupEnd {
				k.metrics.RecordOrderFulfilled()
			}
		}
	}

	robot.State = RobotIdle
	robot.HasTask = false
	robot.CurrentTask = 0
	robot.Route = nil
	robot.RouteIdx = 0

	k.log(now, EvServiceEnd, "tasks", "task completed", map[string]any{"task": int(task.ID), "robot": int(robot.ID)})
	k.maybeRouteForCharging(now, robot)
	k.sched.Schedule(&Event{Time: now, Type: EvTaskAssignment})
}

func (k *Kernel) orderFullyDone(order *Order) bool {
	for _, tid := range order.TaskIDs {
		t := k.tasks[tid]
		if t == nil || t.Status != TaskCompleted {
			return false
		}
	}
	return true
}

// maybeRouteForCharging sends an idle robot to the nearest charging
// node once its battery has fallen to cfg.chargeThreshold.
func (k *Kernel) maybeRouteForCharging(now Time, robot *Robot) {
	if robot.State != RobotIdle || !robot.NeedsCharge(k.cfg.chargeThreshold) {
		return
	}
	cs := k.nearestChargingStation(robot.CurrentNode())
	if cs == nil {
		return
	}
	path, err := k.router.FindRoute(RouteQuery{From: robot.CurrentNode(), To: cs.Node, UseAStar: k.cfg.useAStar})
	if err != nil {
		return
	}
	robot.Route = path
	robot.RouteIdx = 0
	robot.State = RobotTraveling
	k.pendingCharge[robot.ID] = cs.ID
	k.sched.Schedule(&Event{Time: now, Type: EvRobotDepart, RobotID: robot.ID})
}

func (k *Kernel) nearestChargingStation(from NodeID) *ChargingStation {
	fromNode, ok := k.m.Node(from)
	if !ok || len(k.chargingStations) == 0 {
		return nil
	}
	ids := maps.Keys(k.chargingStations)
	slices.Sort(ids)
	var best *ChargingStation
	bestDist := -1.0
	for _, id := range ids {
		cs := k.chargingStations[id]
		n, ok := k.m.Node(cs.Node)
		if !ok {
			continue
		}
		d := fromNode.Position.distance(n.Position)
		if best == nil || d < bestDist {
			best, bestDist = cs, d
		}
	}
	return best
}

func (k *Kernel) handleChargingStart(now Time, id RobotID) {
	robot := k.robots[id]
	csID, ok := k.pendingCharge[id]
	if robot == nil || !ok {
		return
	}
	cs := k.chargingStations[csID]
	if cs == nil {
		return
	}
	robot.State = RobotCharging
	needed := robot.BatteryCapacity - robot.Battery
	if cs.Join(id) {
		duration := needed / cs.ChargeRate
		k.sched.Schedule(&Event{Time: now + Time(duration), Type: EvChargingEnd, RobotID: id, StationID: csID})
	}
}

func (k *Kernel) handleChargingEnd(now Time, id RobotID) {
	robot := k.robots[id]
	csID, ok := k.pendingCharge[id]
	if robot == nil || !ok {
		return
	}
	cs := k.chargingStations[csID]
	if cs == nil {
		return
	}
	next, ok := cs.Leave(id)
	if ok {
		other := k.robots[next]
		if other != nil {
			needed := other.BatteryCapacity - other.Battery
			duration := needed / cs.ChargeRate
			k.sched.Schedule(&Event{Time: now + Time(duration), Type: EvChargingEnd, RobotID: next, StationID: csID})
		}
	}
	robot.Charge(robot.BatteryCapacity)
	robot.State = RobotIdle
	delete(k.pendingCharge, id)
}

func (k *Kernel) handleFailureOccurred(now Time, id RobotID) {
	robot := k.robots[id]
	if robot == nil || robot.State == RobotFailed {
		return
	}
	k.dropAnyWait(robot)
	robot.FailCount++
	robot.State = RobotFailed
	k.metrics.RecordRobotFailure()
	if k.cfg.traffic == TrafficReservation && robot.Loc.Kind == LocationOnEdge {
		k.rm.ReleaseNodeReservation(robot.Loc.EdgeTo, id)
	}
	k.stabilizeLocation(now, robot, func(t Time) { k.routeToMaintenanceOrIdle(t, id) })
}

// routeToMaintenanceOrIdle runs once a failed robot's location has been
// stabilized (see stabilizeLocation): it drops the robot's in-flight
// task, if any, and either routes it to the nearest maintenance station
// or, if none is reachable, records AnomalyRobotStranded and leaves it
// idle to await its next failure timer.
func (k *Kernel) routeToMaintenanceOrIdle(now Time, id RobotID) {
	robot := k.robots[id]
	if robot == nil {
		return
	}
	if robot.HasTask {
		if task := k.tasks[robot.CurrentTask]; task != nil && task.Status != TaskCompleted {
			task.Status = TaskPending
			task.HasRobot = false
			task.Attempts++
		}
		robot.HasTask = false
		robot.CurrentTask = 0
	}

	ms := k.nearestMaintenanceStation(robot.CurrentNode())
	if ms == nil {
		k.recordAnomaly(AnomalyRobotStranded, "no maintenance station reachable", 0, id)
		robot.State = RobotIdle
		k.scheduleNextFailure(now, id)
		return
	}
	path, err := k.router.FindRoute(RouteQuery{From: robot.CurrentNode(), To: ms.Node, UseAStar: k.cfg.useAStar})
	if err != nil {
		k.recordAnomaly(AnomalyRobotStranded, "no maintenance station reachable", 0, id)
		robot.State = RobotIdle
		k.scheduleNextFailure(now, id)
		return
	}
	robot.Route = path
	robot.RouteIdx = 0
	robot.State = RobotTraveling
	k.pendingMaintenance[id] = ms.ID
	k.sched.Schedule(&Event{Time: now, Type: EvRobotDepart, RobotID: id})
}

// dropAnyWait removes a robot from whatever resource wait queue it
// currently occupies, used before rerouting a robot that fails or is
// forced back up by deadlock resolution.
func (k *Kernel) dropAnyWait(robot *Robot) {
	switch robot.State {
	case RobotWaitingEdge:
		if robot.RouteIdx < len(robot.Route) {
			k.rm.RemoveEdgeWaiter(robot.Route[robot.RouteIdx], robot.ID)
		}
	case RobotWaitingNode:
		if robot.Loc.Kind == LocationOnEdge {
			k.rm.RemoveNodeWaiter(robot.Loc.EdgeTo, robot.ID)
		}
	}
}

// stabilizeLocation handles a robot that breaks down mid-edge: it
// releases the edge slot it held and snaps the robot to the edge's
// origin node. next runs once that node is actually held — immediately
// if it has spare capacity, or once a freed slot grants it otherwise,
// the same wake-via-callback pattern ResourceManager uses for ordinary
// waiters. A robot not mid-edge has nothing to stabilize; next runs
// immediately at the same clock. A failed robot is towed rather than
// left occupying a traversal lane indefinitely.
func (k *Kernel) stabilizeLocation(now Time, robot *Robot, next func(Time)) {
	if robot.Loc.Kind != LocationOnEdge {
		next(now)
		return
	}
	edgeID, from := robot.Loc.Edge, robot.Loc.EdgeFrom
	k.rm.ReleaseEdge(edgeID, robot.ID)
	k.accumulateEdgeBusy(robot.ID, edgeID, now)
	robot.Loc = AtNode(from)

	if k.rm.TryAcquireNode(from, robot.ID) {
		k.nodeEnterTime[robot.ID] = now
		next(now)
		return
	}

	robot.State = RobotWaitingNode
	id := robot.ID
	k.rm.EnqueueNodeWaiter(from, id, func() {
		k.sched.Schedule(&Event{
			Time: k.sched.Clock(), Type: EvResourceGranted, RobotID: id,
			ResourceGrant: func(kk *Kernel) {
				t := kk.sched.Clock()
				kk.nodeEnterTime[id] = t
				next(t)
			},
		})
	})
}

func (k *Kernel) nearestMaintenanceStation(from NodeID) *MaintenanceStation {
	fromNode, ok := k.m.Node(from)
	if !ok || len(k.maintenanceStations) == 0 {
		return nil
	}
	ids := maps.Keys(k.maintenanceStations)
	slices.Sort(ids)
	var best *MaintenanceStation
	bestDist := -1.0
	for _, id := range ids {
		ms := k.maintenanceStations[id]
		n, ok := k.m.Node(ms.Node)
		if !ok {
			continue
		}
		d := fromNode.Position.distance(n.Position)
		if best == nil || d < bestDist {
			best, bestDist = ms, d
		}
	}
	return best
}

func (k *Kernel) handleMaintenanceStart(now Time, id RobotID) {
	robot := k.robots[id]
	msID, ok := k.pendingMaintenance[id]
	if robot == nil || !ok {
		return
	}
	ms := k.maintenanceStations[msID]
	if ms == nil {
		return
	}
	robot.State = RobotMaintenance
	if ms.Join(id) {
		repair := ms.Repair.Sample(k.rng.Stream(DomainRobotsMaintenance))
		k.sched.Schedule(&Event{Time: now + Time(repair), Type: EvMaintenanceEnd, RobotID: id, StationID: msID})
	}
}

func (k *Kernel) handleMaintenanceEnd(now Time, id RobotID) {
	robot := k.robots[id]
	msID, ok := k.pendingMaintenance[id]
	if robot == nil || !ok {
		return
	}
	ms := k.maintenanceStations[msID]
	if ms == nil {
		return
	}
	next, ok := ms.Leave(id)
	if ok {
		other := k.robots[next]
		if other != nil {
			repair := ms.Repair.Sample(k.rng.Stream(DomainRobotsMaintenance))
			k.sched.Schedule(&Event{Time: now + Time(repair), Type: EvMaintenanceEnd, RobotID: next, StationID: msID})
		}
	}
	robot.State = RobotIdle
	robot.FailCount = 0
	delete(k.pendingMaintenance, id)
	k.scheduleNextFailure(now, id)
}

func (k *Kernel) scheduleNextFailure(now Time, id RobotID) {
	if k.scenario.FailureRate == nil {
		return
	}
	gap := k.scenario.FailureRate.Sample(k.rng.Stream(DomainRobotsFailure))
	if gap < 0 {
		gap = 0
	}
	k.sched.Schedule(&Event{Time: now + Time(gap), Type: EvFailureOccurred, RobotID: id})
}

func (k *Kernel) handleMaintenanceDue(now Time, id RobotID) {
	robot := k.robots[id]
	if robot == nil || robot.State != RobotIdle {
		// A busy robot's scheduled maintenance is deferred to its next
		// idle moment rather than interrupting in-flight work; reschedule
		// a short check instead of dropping it.
		if k.scenario.MaintenanceEvery != nil {
			k.sched.Schedule(&Event{Time: now + 30, Type: EvMaintenanceDue, RobotID: id})
		}
		return
	}
	ms := k.nearestMaintenanceStation(robot.CurrentNode())
	if ms == nil {
		return
	}
	path, err := k.router.FindRoute(RouteQuery{From: robot.CurrentNode(), To: ms.Node, UseAStar: k.cfg.useAStar})
	if err != nil {
		return
	}
	robot.Route = path
	robot.RouteIdx = 0
	k.pendingMaintenance[id] = ms.ID
	k.sched.Schedule(&Event{Time: now, Type: EvRobotDepart, RobotID: id})

	if k.scenario.MaintenanceEvery != nil {
		gap := k.scenario.MaintenanceEvery.Sample(k.rng.Stream(DomainRobotsMaintenance))
		k.sched.Schedule(&Event{Time: now + Time(gap), Type: EvMaintenanceDue, RobotID: id})
	}
}

// handleDeadlockCheck builds the current wait-for graph from every
// node/edge with queued waiters, runs cycle detection, and applies the
// configured resolver to each cycle found.
func (k *Kernel) handleDeadlockCheck(now Time) {
	edges := k.buildWaitForGraph()
	if len(edges) == 0 {
		return
	}
	cycles := DetectCycles(edges)
	for _, cycle := range cycles {
		victims := k.traffic.Resolve(cycle, k.robots, k.edgeEnterTime, now)
		resolved := len(victims) > 0
		k.metrics.RecordDeadlock(resolved)
		if !resolved {
			k.recordAnomaly(AnomalyDeadlockUnresolved, "cycle pending wait-and-retry budget", 0, cycle[0])
			continue
		}
		for _, v := range victims {
			k.backUpRobot(now, v)
		}
	}
}

// buildWaitForGraph derives WaitEdge{From: waiter, To: occupant} for
// every node/edge currently holding at least one waiter.
func (k *Kernel) buildWaitForGraph() []WaitEdge {
	var edges []WaitEdge
	for _, nid := range k.m.NodeIDs() {
		waiters := k.rm.NodeWaiters(nid)
		if len(waiters) == 0 {
			continue
		}
		occupants := k.rm.NodeOccupants(nid)
		for _, w := range waiters {
			for _, occ := range occupants {
				edges = append(edges, WaitEdge{From: w, To: occ})
			}
		}
	}
	for _, eid := range k.m.EdgeIDs() {
		waiters := k.rm.EdgeWaiters(eid)
		if len(waiters) == 0 {
			continue
		}
		for _, w := range waiters {
			for _, occ := range k.edgeOccupants(eid) {
				edges = append(edges, WaitEdge{From: w, To: occ})
			}
		}
	}
	return edges
}

func (k *Kernel) edgeOccupants(id EdgeID) []RobotID {
	var out []RobotID
	for rid, r := range k.robots {
		if r.Loc.Kind == LocationOnEdge && r.Loc.Edge == id {
			out = append(out, rid)
		}
	}
	slices.Sort(out)
	return out
}

// backUpRobot forces a deadlock victim to abandon its current wait and
// retry routing shortly after, breaking the cycle. A robot waiting on
// a node still holds the edge it rode in on (finishHop only releases
// an edge once the destination node is acquired), so a RobotWaitingNode
// victim must also give up that held edge and fall back to the edge's
// origin node before it can retry departure; dropAnyWait only clears
// the wait-queue entry and never releases a held resource. If the
// origin node is itself at capacity, stabilizeLocation parks the robot
// as a node waiter there instead of retrying immediately — retryDepart
// only fires once that node is actually held.
func (k *Kernel) backUpRobot(now Time, id RobotID) {
	robot := k.robots[id]
	if robot == nil {
		return
	}
	if robot.State != RobotWaitingNode && robot.State != RobotWaitingEdge {
		return
	}
	k.dropAnyWait(robot)
	if robot.State != RobotWaitingNode {
		k.retryDepart(now, id)
		return
	}
	if k.cfg.traffic == TrafficReservation {
		k.rm.ReleaseNodeReservation(robot.Loc.EdgeTo, id)
	}
	k.stabilizeLocation(now, robot, func(t Time) { k.retryDepart(t, id) })
}

// retryDepart puts a deadlock victim back into RobotTraveling and
// schedules a jittered retry of its departure, once any resource it
// needed to give up has actually been released.
func (k *Kernel) retryDepart(now Time, id RobotID) {
	robot := k.robots[id]
	if robot == nil {
		return
	}
	robot.State = RobotTraveling
	jitter := Exponential{Lambda: 1}.Sample(k.rng.Stream(DomainTrafficJitter))
	k.sched.Schedule(&Event{Time: now + Time(jitter), Type: EvRobotDepart, RobotID: id})
}

func (k *Kernel) accumulateNodeBusy(id RobotID, node NodeID, now Time) {
	start, ok := k.nodeEnterTime[id]
	if !ok {
		return
	}
	if now >= k.cfg.warmupEnd {
		k.metrics.AccumulateNodeBusy(node, float64(now-start))
	}
}

func (k *Kernel) accumulateEdgeBusy(id RobotID, edge EdgeID, now Time) {
	start, ok := k.edgeEnterTime[id]
	if !ok {
		return
	}
	if now >= k.cfg.warmupEnd {
		k.metrics.AccumulateEdgeBusy(edge, float64(now-start))
	}
}

// sampleMetrics mirrors live gauges into the optional Prometheus
// registry: active-robot count and per-station queue depth.
func (k *Kernel) sampleMetrics(now Time) {
	if k.cfg.metrics == nil {
		return
	}
	active := 0
	for _, r := range k.robots {
		if r.State != RobotIdle {
			active++
		}
	}
	k.cfg.metrics.SetActiveRobots(active)
	for _, id := range k.sortedStationIDs() {
		k.cfg.metrics.SetStationQueueDepth(id, k.stations[id].QueueDepth())
	}
}

func (k *Kernel) sortedStationIDs() []StationID {
	ids := maps.Keys(k.stations)
	slices.Sort(ids)
	return ids
}
