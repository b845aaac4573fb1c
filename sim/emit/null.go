package emit

import "context"

// NullEmitter discards every event. Use it to run a simulation with
// zero observability overhead, e.g. inside a parameter sweep driver
// running thousands of scenarios where per-event logging would
// dominate wall-clock time.
type NullEmitter struct{}

// NewNullEmitter returns a NullEmitter.
func NewNullEmitter() *NullEmitter { return &NullEmitter{} }

func (n *NullEmitter) Emit(Event) {}

func (n *NullEmitter) EmitBatch(context.Context, []Event) error { return nil }

func (n *NullEmitter) Flush(context.Context) error { return nil }
