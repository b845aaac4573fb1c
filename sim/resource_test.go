package sim

import "testing"

func nodeOnlyMap() *Map {
	return NewMap(
		[]*Node{{ID: 1, Capacity: 1}, {ID: 2, Capacity: 1}},
		[]*Edge{{ID: 1, From: 1, To: 2, Length: 1, Capacity: 1, Bidirectional: true}},
	)
}

func TestResourceManagerNodeCapacityGating(t *testing.T) {
	rm := NewResourceManager(nodeOnlyMap())
	if !rm.TryAcquireNode(1, 10) {
		t.Fatal("first acquire on free node should succeed")
	}
	if rm.TryAcquireNode(1, 20) {
		t.Fatal("second acquire on a full node should fail")
	}
}

func TestResourceManagerDoubleAcquirePanics(t *testing.T) {
	rm := NewResourceManager(&Map{})
	rm.nodes = map[NodeID]*nodeSlot{1: {capacity: 2, occupied: map[RobotID]bool{}}}
	rm.TryAcquireNode(1, 10)
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on double-acquire")
		}
	}()
	rm.TryAcquireNode(1, 10)
}

func TestResourceManagerWaiterWakesInFIFOOrder(t *testing.T) {
	rm := NewResourceManager(&Map{})
	rm.nodes = map[NodeID]*nodeSlot{1: {capacity: 1, occupied: map[RobotID]bool{}}}
	rm.TryAcquireNode(1, 1)

	var woken []RobotID
	rm.EnqueueNodeWaiter(1, 2, func() { woken = append(woken, 2) })
	rm.EnqueueNodeWaiter(1, 3, func() { woken = append(woken, 3) })

	rm.ReleaseNode(1, 1)
	if len(woken) != 1 || woken[0] != 2 {
		t.Fatalf("first release should wake robot 2 only, got %v", woken)
	}

	rm.ReleaseNode(1, 2)
	if len(woken) != 2 || woken[1] != 3 {
		t.Fatalf("second release should wake robot 3 next, got %v", woken)
	}
}

func TestResourceManagerReleaseNotHeldPanics(t *testing.T) {
	rm := NewResourceManager(&Map{})
	rm.nodes = map[NodeID]*nodeSlot{1: {capacity: 1, occupied: map[RobotID]bool{}}}
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic releasing a node never acquired")
		}
	}()
	rm.ReleaseNode(1, 99)
}

func TestResourceManagerNodeOccupantsSortedAscending(t *testing.T) {
	rm := NewResourceManager(&Map{})
	rm.nodes = map[NodeID]*nodeSlot{1: {capacity: 5, occupied: map[RobotID]bool{}}}
	rm.TryAcquireNode(1, 30)
	rm.TryAcquireNode(1, 10)
	rm.TryAcquireNode(1, 20)

	got := rm.NodeOccupants(1)
	want := []RobotID{10, 20, 30}
	if len(got) != len(want) {
		t.Fatalf("NodeOccupants = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("NodeOccupants[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestResourceManagerRemoveWaiterDropsWithoutGrant(t *testing.T) {
	rm := NewResourceManager(&Map{})
	rm.nodes = map[NodeID]*nodeSlot{1: {capacity: 1, occupied: map[RobotID]bool{}}}
	rm.TryAcquireNode(1, 1)

	granted := false
	rm.EnqueueNodeWaiter(1, 2, func() { granted = true })
	rm.RemoveNodeWaiter(1, 2)
	rm.ReleaseNode(1, 1)

	if granted {
		t.Error("removed waiter should never be granted")
	}
	if rm.NodeWaiterCount(1) != 0 {
		t.Errorf("NodeWaiterCount = %d, want 0", rm.NodeWaiterCount(1))
	}
}

func TestResourceManagerReserveNodeRespectsCapacityAlongsideOccupancy(t *testing.T) {
	rm := NewResourceManager(&Map{})
	rm.nodes = map[NodeID]*nodeSlot{1: {capacity: 2, occupied: map[RobotID]bool{}}}
	rm.TryAcquireNode(1, 1)

	if !rm.ReserveNode(1, 2, 0, 100) {
		t.Fatal("reserving the one remaining slot (1 occupied + 1 reservation < capacity 2) should succeed")
	}
	if rm.ReserveNode(1, 3, 0, 100) {
		t.Fatal("a second reservation once occupancy+reservations reach capacity should fail")
	}
}

func TestResourceManagerReserveNodePrunesExpiredReservations(t *testing.T) {
	rm := NewResourceManager(&Map{})
	rm.nodes = map[NodeID]*nodeSlot{1: {capacity: 1, occupied: map[RobotID]bool{}}}

	if !rm.ReserveNode(1, 1, 0, 10) {
		t.Fatal("first reservation on an empty node should succeed")
	}
	if rm.ReserveNode(1, 2, 5, 20) {
		t.Fatal("a second reservation before the first expires should fail")
	}
	if !rm.ReserveNode(1, 2, 15, 20) {
		t.Fatal("a reservation requested after the prior one's until has passed should succeed (expired one pruned)")
	}
}

func TestResourceManagerReleaseNodeReservationIsNoOpForUnknownRobot(t *testing.T) {
	rm := NewResourceManager(&Map{})
	rm.nodes = map[NodeID]*nodeSlot{1: {capacity: 1, occupied: map[RobotID]bool{}}}
	rm.ReserveNode(1, 1, 0, 10)

	rm.ReleaseNodeReservation(1, 99)
	if rm.ReserveNode(1, 2, 1, 10) {
		t.Fatal("releasing an unrelated robot's reservation must not free robot 1's slot")
	}

	rm.ReleaseNodeReservation(1, 1)
	if !rm.ReserveNode(1, 2, 1, 10) {
		t.Fatal("releasing robot 1's reservation should free the slot for robot 2")
	}
}
