// Package emit provides event emission and observability for the
// Waremax simulation kernel, serving double duty as the Logger
// interface the kernel logs through and the delta sink behind
// Kernel.Subscribe — each record the kernel logs (order arrivals,
// allocation batches, task assignments, queue joins, task completions,
// the route-cache warning) is also the emit.Event pushed to
// subscribers; other dispatched simulation events produce no record.
package emit

// Event represents one observability record emitted during a
// simulation run.
type Event struct {
	// RunID identifies the simulation run (typically the scenario hash
	// plus seed) that emitted this event.
	RunID string

	// Clock is the simulation time at which this event was dispatched.
	Clock float64

	// Seq is the kernel's monotonic dispatch sequence number, letting a
	// reader reconstruct tie-break order from logs alone.
	Seq uint64

	// TypePriority is the dispatched event's tie-breaking priority band
	// (1..8, see sim.eventPriority) — included so a reader can verify
	// determinism without re-running the simulation.
	TypePriority int

	// Source names the entity that produced this record: a robot,
	// station, or task ID string, or empty for kernel-level events.
	Source string

	// Msg is a short machine-stable event name, e.g. "order arrived",
	// "task assigned".
	Msg string

	// Meta carries event-specific structured fields.
	Meta map[string]any
}
