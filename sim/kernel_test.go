package sim

import (
	"context"
	"testing"
)

// lineWarehouse builds a minimal three-node line: aisle(1) - pick(2) - drop(3),
// with no racks; a test that needs stock adds its own.
func lineWarehouse() ([]*Node, []*Edge) {
	nodes := []*Node{
		{ID: 1, Kind: NodeAisle, Capacity: 2},
		{ID: 2, Kind: NodePickStation, Capacity: 2},
		{ID: 3, Kind: NodeDropStation, Capacity: 2},
	}
	edges := []*Edge{
		{ID: 1, From: 1, To: 2, Length: 4, Capacity: 2, Bidirectional: true},
		{ID: 2, From: 2, To: 3, Length: 4, Capacity: 2, Bidirectional: true},
	}
	return nodes, edges
}

func newTestScenario(seed int64) *Scenario {
	nodes, edges := lineWarehouse()
	return &Scenario{
		Seed:   seed,
		Nodes:  nodes,
		Edges:  edges,
		Robots: []RobotSpec{{ID: 1, HomeNode: 1, Speed: 2, BatteryCapacity: 1000, DrainPerSecond: 0.01, DrainPerMeter: 0.01}},
		Orders: OrderGeneratorConfig{
			InterArrival: Constant{Value: 5},
			LineCount:    Constant{Value: 1},
			SKUCount:     1,
			SKURank:      Constant{Value: 1},
			QuantityMin:  1,
			QuantityMax:  1,
			PickNode:     2,
			DropNode:     3,
		},
	}
}

func TestKernelRunProducesDeterministicReport(t *testing.T) {
	s1 := newTestScenario(7)
	k1, err := New(s1, WithEndTime(200))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r1, err := k1.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	s2 := newTestScenario(7)
	k2, err := New(s2, WithEndTime(200))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r2, err := k2.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if r1.OrdersArrived != r2.OrdersArrived || r1.TasksCompleted != r2.TasksCompleted {
		t.Fatalf("same-seed runs diverged: %+v vs %+v", r1, r2)
	}
	if r1.OrdersArrived == 0 {
		t.Fatal("expected at least one order to arrive over 200 simulated seconds")
	}
}

func TestKernelRunTwiceReturnsErrAlreadyRun(t *testing.T) {
	k, err := New(newTestScenario(1), WithEndTime(50))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := k.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if _, err := k.Run(context.Background()); err != ErrAlreadyRun {
		t.Errorf("second Run error = %v, want ErrAlreadyRun", err)
	}
}

func TestKernelNewRejectsMissingEndTime(t *testing.T) {
	if _, err := New(newTestScenario(1)); err == nil {
		t.Fatal("expected an error when WithEndTime is never supplied")
	}
}

func TestKernelNewRejectsNilScenario(t *testing.T) {
	if _, err := New(nil, WithEndTime(10)); err == nil {
		t.Fatal("expected an error for a nil scenario")
	}
}

func TestKernelStepAdvancesOneEventAtATime(t *testing.T) {
	k, err := New(newTestScenario(1), WithEndTime(50))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	finished, err := k.Step(1)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if finished {
		t.Fatal("a single step should not finish a 50-second run immediately")
	}
	for i := 0; i < 10000 && !finished; i++ {
		finished, err = k.Step(1)
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
	}
	if !finished {
		t.Fatal("run never finished after many Step(1) calls")
	}
}

func TestKernelPauseStopsRunWithoutFinishing(t *testing.T) {
	k, err := New(newTestScenario(1), WithEndTime(500))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	k.Pause()
	report, err := k.Run(context.Background())
	if err != nil {
		t.Fatalf("Run while paused: %v", err)
	}
	_ = report
	if k.finished {
		t.Error("a paused Run should not mark the kernel finished")
	}

	k.Resume()
	if _, err := k.Run(context.Background()); err != nil {
		t.Fatalf("Run after Resume: %v", err)
	}
	if !k.finished {
		t.Error("Run to completion after Resume should mark the kernel finished")
	}
}

func TestKernelRunHonorsCtxCancellation(t *testing.T) {
	k, err := New(newTestScenario(1), WithEndTime(500))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = k.Run(ctx)
	if err == nil {
		t.Fatal("expected ctx.Err() to propagate from Run")
	}
	if !k.finished {
		t.Error("ctx-cancelled Run should still mark the kernel finished (not resumable)")
	}
}

// twoRobotContentionScenario builds a 1-2-3 line where node 2 has
// capacity 1, seeded with a second robot already parked there so a
// robot traveling in from node 1 is forced into RobotWaitingNode while
// still holding edge 1.
func twoRobotContentionScenario(seed int64) *Scenario {
	nodes := []*Node{
		{ID: 1, Capacity: 2},
		{ID: 2, Capacity: 1},
		{ID: 3, Capacity: 2},
	}
	edges := []*Edge{
		{ID: 1, From: 1, To: 2, Length: 4, Capacity: 1, Bidirectional: true},
		{ID: 2, From: 2, To: 3, Length: 4, Capacity: 1, Bidirectional: true},
	}
	return &Scenario{
		Seed:  seed,
		Nodes: nodes,
		Edges: edges,
		Robots: []RobotSpec{
			{ID: 1, HomeNode: 1, Speed: 2, BatteryCapacity: 1000, DrainPerSecond: 0.01, DrainPerMeter: 0.01},
			{ID: 2, HomeNode: 2, Speed: 2, BatteryCapacity: 1000, DrainPerSecond: 0.01, DrainPerMeter: 0.01},
		},
		Orders: OrderGeneratorConfig{
			InterArrival: Constant{Value: 1000},
			LineCount:    Constant{Value: 1},
			SKUCount:     1,
			SKURank:      Constant{Value: 1},
			QuantityMin:  1,
			QuantityMax:  1,
			PickNode:     2,
			DropNode:     3,
		},
	}
}

func TestBackUpRobotReleasesHeldEdgeForNodeWaitingVictim(t *testing.T) {
	k, err := New(twoRobotContentionScenario(1), WithEndTime(1000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	robot := k.robots[1]
	robot.Route = []EdgeID{1, 2}
	robot.RouteIdx = 0
	k.handleRobotDepart(0, 1)
	if robot.State != RobotTraveling {
		t.Fatalf("robot 1 state = %v, want RobotTraveling after departing onto edge 1", robot.State)
	}

	k.handleRobotArrive(1, 1)
	if robot.State != RobotWaitingNode {
		t.Fatalf("robot 1 state = %v, want RobotWaitingNode (node 2 held by robot 2)", robot.State)
	}
	if occupied, _ := k.rm.EdgeOccupancy(1); occupied != 1 {
		t.Fatalf("edge 1 occupancy = %d, want 1 (robot 1 should still hold it while waiting on node 2)", occupied)
	}

	k.backUpRobot(1, 1)

	if occupied, _ := k.rm.EdgeOccupancy(1); occupied != 0 {
		t.Errorf("edge 1 occupancy = %d, want 0 after backUpRobot released it", occupied)
	}
	if robot.Loc.Kind != LocationAtNode || robot.Loc.Node != 1 {
		t.Errorf("robot 1 Loc = %+v, want AtNode(1) after backing up to the edge's origin", robot.Loc)
	}
	if robot.State != RobotTraveling {
		t.Errorf("robot 1 state = %v, want RobotTraveling after backUpRobot", robot.State)
	}
	if k.rm.NodeWaiterCount(2) != 0 {
		t.Errorf("node 2 waiter count = %d, want 0 after dropAnyWait", k.rm.NodeWaiterCount(2))
	}
}

// tightOriginContentionScenario mirrors twoRobotContentionScenario but
// gives node 1 (the edge's origin) capacity 1 too, so it can be filled
// out from under a backed-up robot before it retries departure.
func tightOriginContentionScenario(seed int64) *Scenario {
	s := twoRobotContentionScenario(seed)
	s.Nodes[0].Capacity = 1
	return s
}

func TestBackUpRobotParksAsNodeWaiterWhenOriginNodeIsFull(t *testing.T) {
	k, err := New(tightOriginContentionScenario(1), WithEndTime(1000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	robot := k.robots[1]
	robot.Route = []EdgeID{1, 2}
	robot.RouteIdx = 0
	k.handleRobotDepart(0, 1)
	k.handleRobotArrive(1, 1)
	if robot.State != RobotWaitingNode {
		t.Fatalf("robot 1 state = %v, want RobotWaitingNode (node 2 held by robot 2)", robot.State)
	}

	// Node 1 (the edge's origin) was freed when robot 1 departed it;
	// fill it from under robot 1 before backing it up.
	if !k.rm.TryAcquireNode(1, 99) {
		t.Fatal("setup: expected node 1 to accept an occupant once robot 1 departed it")
	}

	func() {
		defer func() {
			if p := recover(); p != nil {
				t.Fatalf("backUpRobot panicked: %v", p)
			}
		}()
		k.backUpRobot(2, 1)
	}()

	if occupied, _ := k.rm.EdgeOccupancy(1); occupied != 0 {
		t.Errorf("edge 1 occupancy = %d, want 0 after backUpRobot released it", occupied)
	}
	if robot.Loc.Kind != LocationAtNode || robot.Loc.Node != 1 {
		t.Errorf("robot 1 Loc = %+v, want AtNode(1) after backing up to the edge's origin", robot.Loc)
	}
	if robot.State != RobotWaitingNode {
		t.Fatalf("robot 1 state = %v, want RobotWaitingNode (node 1 is full until robot 99 leaves)", robot.State)
	}
	if k.rm.NodeWaiterCount(1) != 1 {
		t.Errorf("node 1 waiter count = %d, want 1 while robot 1 waits to re-seat", k.rm.NodeWaiterCount(1))
	}

	// Freeing node 1 should grant robot 1 the slot and retry departure,
	// never a ReleaseNode on a node it never actually held.
	k.rm.ReleaseNode(1, 99)
	if finished, err := k.Step(1); err != nil || finished {
		t.Fatalf("Step: finished=%v err=%v", finished, err)
	}
	if robot.State != RobotTraveling {
		t.Errorf("robot 1 state = %v, want RobotTraveling after its retry was granted node 1", robot.State)
	}
	occupants := k.rm.NodeOccupants(1)
	if len(occupants) != 1 || occupants[0] != 1 {
		t.Errorf("node 1 occupants = %v, want [1]", occupants)
	}
}

// reservationContentionScenario gives every node capacity 2 so a
// robot's reservation can succeed even though the node is later filled
// to physical capacity by other occupants before the robot arrives.
func reservationContentionScenario(seed int64) *Scenario {
	nodes := []*Node{
		{ID: 1, Capacity: 2},
		{ID: 2, Capacity: 2},
		{ID: 3, Capacity: 2},
	}
	edges := []*Edge{
		{ID: 1, From: 1, To: 2, Length: 4, Capacity: 1, Bidirectional: true},
		{ID: 2, From: 2, To: 3, Length: 4, Capacity: 1, Bidirectional: true},
	}
	return &Scenario{
		Seed:  seed,
		Nodes: nodes,
		Edges: edges,
		Robots: []RobotSpec{
			{ID: 1, HomeNode: 1, Speed: 2, BatteryCapacity: 1000, DrainPerSecond: 0.01, DrainPerMeter: 0.01},
		},
		Orders: OrderGeneratorConfig{
			InterArrival: Constant{Value: 1000},
			LineCount:    Constant{Value: 1},
			SKUCount:     1,
			SKURank:      Constant{Value: 1},
			QuantityMin:  1,
			QuantityMax:  1,
			PickNode:     2,
			DropNode:     3,
		},
	}
}

func TestBackUpRobotReleasesNodeReservationUnderReservationPolicy(t *testing.T) {
	k, err := New(reservationContentionScenario(1), WithReservationPolicy(5), WithEndTime(1000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	robot := k.robots[1]
	robot.Route = []EdgeID{1, 2}
	robot.RouteIdx = 0
	k.handleRobotDepart(0, 1)
	if robot.State != RobotTraveling {
		t.Fatalf("robot 1 state = %v, want RobotTraveling after departing with a successful reservation", robot.State)
	}

	// Two other occupants fill node 2 to physical capacity before robot
	// 1 arrives, despite its live reservation there.
	if !k.rm.TryAcquireNode(2, 77) || !k.rm.TryAcquireNode(2, 78) {
		t.Fatal("setup: expected node 2 to accept two occupants up to its capacity of 2")
	}

	k.handleRobotArrive(2, 1)
	if robot.State != RobotWaitingNode {
		t.Fatalf("robot 1 state = %v, want RobotWaitingNode (node 2 physically full)", robot.State)
	}

	k.backUpRobot(2, 1)

	k.rm.ReleaseNode(2, 77)
	if !k.rm.ReserveNode(2, 50, 2, 10) {
		t.Error("expected node 2 to accept a fresh reservation once backUpRobot released robot 1's stale one")
	}
}

func TestDeadlockCheckResolvesTwoRobotEdgeNodeCycleWithoutPanicking(t *testing.T) {
	k, err := New(twoRobotContentionScenario(1), WithDeadlockResolver(ResolverLowestPriorityAborts, 3), WithEndTime(1000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r1, r2 := k.robots[1], k.robots[2]
	r1.Route = []EdgeID{1, 2}
	r1.RouteIdx = 0
	k.handleRobotDepart(0, 1)
	k.handleRobotArrive(1, 1)
	if r1.State != RobotWaitingNode {
		t.Fatalf("robot 1 state = %v, want RobotWaitingNode", r1.State)
	}

	r2.Route = []EdgeID{1}
	r2.RouteIdx = 0
	k.handleRobotDepart(1, 2)
	if r2.State != RobotWaitingEdge {
		t.Fatalf("robot 2 state = %v, want RobotWaitingEdge (edge 1 held by robot 1)", r2.State)
	}

	defer func() {
		if p := recover(); p != nil {
			t.Fatalf("handleDeadlockCheck panicked: %v", p)
		}
	}()
	k.handleDeadlockCheck(2)

	if r1.State == RobotWaitingNode && r2.State == RobotWaitingEdge {
		t.Error("expected the resolver to back at least one robot out of its wait")
	}
}

func TestKernelWithInventoryStarvesWhenStockExhausted(t *testing.T) {
	nodes, edges := lineWarehouse()
	nodes[1].Kind = NodeRack // a rack may only sit on a rack node
	s := &Scenario{
		Seed:   3,
		Nodes:  nodes,
		Edges:  edges,
		Robots: []RobotSpec{{ID: 1, HomeNode: 1, Speed: 2, BatteryCapacity: 1000, DrainPerSecond: 0.01, DrainPerMeter: 0.01}},
		Racks:  []RackSpec{{Node: 2, SKU: 1, Quantity: 1, Capacity: 5}},
		Orders: OrderGeneratorConfig{
			InterArrival: Constant{Value: 5},
			LineCount:    Constant{Value: 1},
			SKUCount:     1,
			SKURank:      Constant{Value: 1},
			QuantityMin:  1,
			QuantityMax:  1,
			PickNode:     2,
			DropNode:     3,
		},
	}
	k, err := New(s, WithEndTime(300))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	report, err := k.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.TasksFailed == 0 {
		t.Error("expected at least one task failure once the single-unit rack is exhausted")
	}
	foundStarvation := false
	for _, a := range report.Anomalies {
		if a.Kind == AnomalyStarvation {
			foundStarvation = true
		}
	}
	if !foundStarvation {
		t.Error("expected at least one AnomalyStarvation once the rack runs dry")
	}
}
