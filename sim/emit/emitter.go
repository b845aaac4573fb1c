package emit

import "context"

// Emitter receives observability events from a running simulation.
// Implementations must not block the kernel's single-threaded dispatch
// loop for long — buffer or hand off to a goroutine if the backend is
// slow — and must never panic.
type Emitter interface {
	// Emit sends a single event to the configured backend.
	Emit(event Event)

	// EmitBatch sends multiple events in one operation, preserving
	// their relative order. Returns error only on catastrophic failure;
	// individual event failures should be handled internally.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until every buffered event has been delivered, or
	// ctx is done. Safe to call more than once.
	Flush(ctx context.Context) error
}
