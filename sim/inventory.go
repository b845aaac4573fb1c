package sim

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Bin is one rack slot holding a single SKU at a fixed node. Capacity bounds Quantity from
// above so a Putaway can overflow a full bin, same as a Pick can
// underflow an empty one.
type Bin struct {
	Node     NodeID
	SKU      SKUID
	Quantity int
	Capacity int
}

// Inventory tracks every Bin in the warehouse, indexed for the two
// operations the kernel needs at speed: "which bin holds SKU s with
// at least n units" (pick routing) and "decrement/increment this
// bin" (pick/putaway completion). It holds no RNG and makes no
// scheduling decisions; it is pure bookkeeping called out from
// kernel_dispatch.go at pick and putaway time.
type Inventory struct {
	bins map[NodeID]map[SKUID]*Bin
	bySKU map[SKUID][]NodeID // nodes stocking sku, kept sorted ascending
}

// RackSpec seeds one Bin from a Scenario.
type RackSpec struct {
	Node     NodeID
	SKU      SKUID
	Quantity int
	Capacity int
}

// NewInventory builds an Inventory from the scenario's rack specs.
func NewInventory(specs []RackSpec) *Inventory {
	inv := &Inventory{
		bins:  make(map[NodeID]map[SKUID]*Bin),
		bySKU: make(map[SKUID][]NodeID),
	}
	for _, s := range specs {
		if inv.bins[s.Node] == nil {
			inv.bins[s.Node] = make(map[SKUID]*Bin)
		}
		inv.bins[s.Node][s.SKU] = &Bin{Node: s.Node, SKU: s.SKU, Quantity: s.Quantity, Capacity: s.Capacity}
		inv.bySKU[s.SKU] = append(inv.bySKU[s.SKU], s.Node)
	}
	for sku, nodes := range inv.bySKU {
		slices.Sort(nodes)
		inv.bySKU[sku] = nodes
	}
	return inv
}

// Empty reports whether no racks were configured, the common case for
// a scenario that does not model inventory at all — callers use this
// to skip rack-aware pick routing entirely rather than resolving
// every pick against a zero-bin Inventory.
func (inv *Inventory) Empty() bool { return len(inv.bySKU) == 0 }

// FindSourceNode returns the lowest-NodeID rack holding at least qty
// units of sku, the deterministic tie-break required when more than
// one bin could serve a pick.
func (inv *Inventory) FindSourceNode(sku SKUID, qty int) (NodeID, bool) {
	for _, node := range inv.bySKU[sku] {
		if b := inv.bins[node][sku]; b != nil && b.Quantity >= qty {
			return node, true
		}
	}
	return 0, false
}

// Decrement removes qty units of sku from the bin at node, clamped at
// zero. Returns false if the bin does not exist or already holds
// fewer than qty units, in which case no partial decrement occurs.
func (inv *Inventory) Decrement(node NodeID, sku SKUID, qty int) bool {
	b := inv.bins[node][sku]
	if b == nil || b.Quantity < qty {
		return false
	}
	b.Quantity -= qty
	return true
}

// Increment adds qty units of sku at node, clamped at the bin's
// Capacity (a Putaway that would overflow tops off the bin rather
// than erroring; replenishment overflow handling beyond simply
// clamping is out of scope). Creates the bin if it did not
// already exist, which lets a Putaway seed a brand-new SKU/node pair.
func (inv *Inventory) Increment(node NodeID, sku SKUID, qty int) {
	if inv.bins[node] == nil {
		inv.bins[node] = make(map[SKUID]*Bin)
	}
	b := inv.bins[node][sku]
	if b == nil {
		b = &Bin{Node: node, SKU: sku, Capacity: qty}
		inv.bins[node][sku] = b
		if !slices.Contains(inv.bySKU[sku], node) {
			inv.bySKU[sku] = append(inv.bySKU[sku], node)
			slices.Sort(inv.bySKU[sku])
		}
	}
	b.Quantity += qty
	if b.Capacity > 0 && b.Quantity > b.Capacity {
		b.Quantity = b.Capacity
	}
}

// Available reports the current quantity of sku at node, or 0 if no
// such bin exists.
func (inv *Inventory) Available(node NodeID, sku SKUID) int {
	b := inv.bins[node][sku]
	if b == nil {
		return 0
	}
	return b.Quantity
}

// TotalUnits sums every bin's Quantity, used by tests asserting
// conservation across pick/putaway traffic.
func (inv *Inventory) TotalUnits() int {
	total := 0
	for _, byNode := range inv.bins {
		for _, b := range byNode {
			total += b.Quantity
		}
	}
	return total
}

// Nodes returns every rack node ID carrying at least one bin,
// ascending, for validation and metrics.
func (inv *Inventory) Nodes() []NodeID {
	ids := maps.Keys(inv.bins)
	slices.Sort(ids)
	return ids
}
