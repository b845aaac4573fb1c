package sim

import "testing"

func TestInventoryFindSourceNodeLowestNodeTieBreak(t *testing.T) {
	inv := NewInventory([]RackSpec{
		{Node: 20, SKU: 1, Quantity: 5, Capacity: 10},
		{Node: 5, SKU: 1, Quantity: 5, Capacity: 10},
	})
	node, ok := inv.FindSourceNode(1, 3)
	if !ok || node != 5 {
		t.Fatalf("FindSourceNode = (%d,%v), want (5,true)", node, ok)
	}
}

func TestInventoryFindSourceNodeSkipsInsufficientStock(t *testing.T) {
	inv := NewInventory([]RackSpec{
		{Node: 1, SKU: 1, Quantity: 2, Capacity: 10},
		{Node: 2, SKU: 1, Quantity: 8, Capacity: 10},
	})
	node, ok := inv.FindSourceNode(1, 5)
	if !ok || node != 2 {
		t.Fatalf("FindSourceNode = (%d,%v), want (2,true)", node, ok)
	}
}

func TestInventoryFindSourceNodeNoStockReturnsFalse(t *testing.T) {
	inv := NewInventory([]RackSpec{{Node: 1, SKU: 1, Quantity: 1, Capacity: 10}})
	if _, ok := inv.FindSourceNode(1, 5); ok {
		t.Fatal("expected no source node for an under-stocked sku")
	}
	if _, ok := inv.FindSourceNode(99, 1); ok {
		t.Fatal("expected no source node for an unknown sku")
	}
}

func TestInventoryDecrementClampAndFailure(t *testing.T) {
	inv := NewInventory([]RackSpec{{Node: 1, SKU: 1, Quantity: 5, Capacity: 10}})
	if !inv.Decrement(1, 1, 3) {
		t.Fatal("decrement within stock should succeed")
	}
	if inv.Available(1, 1) != 2 {
		t.Fatalf("Available = %d, want 2", inv.Available(1, 1))
	}
	if inv.Decrement(1, 1, 3) {
		t.Fatal("decrement exceeding remaining stock should fail")
	}
	if inv.Available(1, 1) != 2 {
		t.Fatalf("failed decrement should not partially apply, Available = %d, want 2", inv.Available(1, 1))
	}
}

func TestInventoryIncrementClampsAtCapacity(t *testing.T) {
	inv := NewInventory([]RackSpec{{Node: 1, SKU: 1, Quantity: 8, Capacity: 10}})
	inv.Increment(1, 1, 5)
	if inv.Available(1, 1) != 10 {
		t.Fatalf("Available = %d, want 10 (clamped at capacity)", inv.Available(1, 1))
	}
}

func TestInventoryIncrementCreatesNewBin(t *testing.T) {
	inv := NewInventory(nil)
	inv.Increment(7, 2, 4)
	if inv.Available(7, 2) != 4 {
		t.Fatalf("Available = %d, want 4", inv.Available(7, 2))
	}
	node, ok := inv.FindSourceNode(2, 4)
	if !ok || node != 7 {
		t.Fatalf("newly created bin should be findable, got (%d,%v)", node, ok)
	}
}

func TestInventoryTotalUnitsConservedAcrossPickAndPutaway(t *testing.T) {
	inv := NewInventory([]RackSpec{
		{Node: 1, SKU: 1, Quantity: 10, Capacity: 20},
		{Node: 2, SKU: 2, Quantity: 5, Capacity: 20},
	})
	before := inv.TotalUnits()
	inv.Decrement(1, 1, 4)
	inv.Increment(3, 1, 4)
	after := inv.TotalUnits()
	if before != after {
		t.Errorf("TotalUnits changed from %d to %d across a balanced pick+putaway", before, after)
	}
}

func TestInventoryEmpty(t *testing.T) {
	if !NewInventory(nil).Empty() {
		t.Error("Inventory built from no racks should report Empty")
	}
	if NewInventory([]RackSpec{{Node: 1, SKU: 1, Quantity: 1}}).Empty() {
		t.Error("Inventory built from at least one rack should not report Empty")
	}
}

func TestInventoryNodesAscending(t *testing.T) {
	inv := NewInventory([]RackSpec{
		{Node: 30, SKU: 1, Quantity: 1},
		{Node: 10, SKU: 1, Quantity: 1},
		{Node: 20, SKU: 2, Quantity: 1},
	})
	got := inv.Nodes()
	want := []NodeID{10, 20, 30}
	if len(got) != len(want) {
		t.Fatalf("Nodes() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Nodes()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}
