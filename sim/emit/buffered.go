package emit

import (
	"context"
	"sync"
)

// BufferedEmitter stores every event in memory, organized by RunID, and
// additionally fans events out to any subscriber callbacks registered
// via Subscribe — this is the concrete Emitter the Kernel hands
// Kernel.Subscribe callers under the hood.
// Safe for concurrent use since an OTel or external consumer may read
// history while the kernel continues dispatching.
type BufferedEmitter struct {
	mu          sync.RWMutex
	events      map[string][]Event
	subscribers []func(Event)
}

// NewBufferedEmitter returns an empty BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

// Subscribe registers fn to be called with every future event, in
// dispatch order. Returns an unsubscribe function.
func (b *BufferedEmitter) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := len(b.subscribers)
	b.subscribers = append(b.subscribers, fn)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if idx < len(b.subscribers) {
			b.subscribers[idx] = nil
		}
	}
}

func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	b.events[event.RunID] = append(b.events[event.RunID], event)
	subs := append([]func(Event){}, b.subscribers...)
	b.mu.Unlock()
	for _, fn := range subs {
		if fn != nil {
			fn(event)
		}
	}
}

func (b *BufferedEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, e := range events {
		b.Emit(e)
	}
	return nil
}

func (b *BufferedEmitter) Flush(context.Context) error { return nil }

// History returns every event recorded for runID, in dispatch order.
func (b *BufferedEmitter) History(runID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Event(nil), b.events[runID]...)
}

// Clear discards every event recorded for runID.
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.events, runID)
}
