package sim

import "math/rand"

// OrderStatus tracks how many of an order's tasks have completed.
type OrderStatus int

const (
	OrderOpen OrderStatus = iota
	OrderFulfilled
	OrderPartial // some lines completed, at least one failed permanently
)

// OrderLine is one SKU/quantity pair within an Order.
type OrderLine struct {
	SKU      SKUID
	Quantity int
}

// Order is a customer request decomposed into one or more Tasks at
// arrival time. DueAt is the SLA deadline, copied onto the order's
// Tasks, where priority policies and late-completion counting read it.
type Order struct {
	ID        OrderID
	ArrivedAt Time
	DueAt     Time
	Lines     []OrderLine
	TaskIDs   []TaskID
	Status    OrderStatus
}

// OrderGeneratorConfig bundles the distributions driving arrivals,
// line counts, and SKU selection. Each is sampled from its own
// RNG substream so that, e.g., widening the SKU catalog never shifts
// the arrival-time sequence.
type OrderGeneratorConfig struct {
	InterArrival Distribution // DomainOrdersArrival
	LineCount    Distribution // DomainOrdersLines, truncated toward zero, at least 1
	SKUCount     int          // size of the catalog Zipf draws rank from
	SKURank      Distribution // DomainOrdersSKU, a Zipf over [1, SKUCount]
	QuantityMin  int
	QuantityMax  int
	DueOffset    float64 // seconds after arrival; <=0 means no SLA due time
	PickNode     NodeID
	DropNode     NodeID
}

// OrderGenerator draws the next order-arrival event and materializes
// its lines and constituent Tasks. It holds no clock of its own
// — the kernel drives it by calling NextArrivalGap and Generate.
type OrderGenerator struct {
	cfg     OrderGeneratorConfig
	rng     *PartitionedRNG
	nextID  OrderID
	nextTID TaskID
}

// NewOrderGenerator builds a generator over cfg, drawing from rng's
// orders.* substreams.
func NewOrderGenerator(cfg OrderGeneratorConfig, rng *PartitionedRNG) *OrderGenerator {
	return &OrderGenerator{cfg: cfg, rng: rng}
}

// NextArrivalGap draws the next inter-arrival gap in seconds from the
// orders.arrival substream.
func (g *OrderGenerator) NextArrivalGap() float64 {
	return g.cfg.InterArrival.Sample(g.rng.Stream(DomainOrdersArrival))
}

// Generate materializes a new Order arriving at "now", including its
// Tasks. Task IDs are allocated from this generator's own monotonic
// counter so they remain dense and stable across a run regardless of
// how many orders preceded this one.
func (g *OrderGenerator) Generate(now Time) (*Order, []*Task) {
	g.nextID++
	order := &Order{ID: g.nextID, ArrivedAt: now, Status: OrderOpen}
	if g.cfg.DueOffset > 0 {
		order.DueAt = now + Time(g.cfg.DueOffset)
	}

	lineRNG := g.rng.Stream(DomainOrdersLines)
	nLines := int(g.cfg.LineCount.Sample(lineRNG))
	if nLines < 1 {
		nLines = 1
	}

	skuRNG := g.rng.Stream(DomainOrdersSKU)
	var tasks []*Task
	for i := 0; i < nLines; i++ {
		sku := g.drawSKU(skuRNG)
		qty := g.drawQuantity(skuRNG)
		order.Lines = append(order.Lines, OrderLine{SKU: sku, Quantity: qty})

		g.nextTID++
		task := &Task{
			ID:       g.nextTID,
			Kind:     TaskPick,
			Status:   TaskPending,
			OrderID:  order.ID,
			SKU:      sku,
			Quantity: qty,
			FromNode: g.cfg.PickNode,
			ToNode:   g.cfg.DropNode,
			CreatedAt: now,
		}
		if order.DueAt > 0 {
			task.DueAt = order.DueAt
			task.HasDue = true
		}
		tasks = append(tasks, task)
		order.TaskIDs = append(order.TaskIDs, task.ID)
	}
	return order, tasks
}

func (g *OrderGenerator) drawSKU(r *rand.Rand) SKUID {
	if g.cfg.SKUCount <= 0 {
		return 0
	}
	rank := int(g.cfg.SKURank.Sample(r))
	if rank < 1 {
		rank = 1
	}
	if rank > g.cfg.SKUCount {
		rank = g.cfg.SKUCount
	}
	return SKUID(rank)
}

func (g *OrderGenerator) drawQuantity(r *rand.Rand) int {
	lo, hi := g.cfg.QuantityMin, g.cfg.QuantityMax
	if hi <= lo {
		return lo
	}
	return lo + r.Intn(hi-lo+1)
}
