package emit

import (
	"context"
	"testing"
)

func TestBufferedEmitterRecordsHistoryPerRun(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{RunID: "a", Msg: "one"})
	b.Emit(Event{RunID: "a", Msg: "two"})
	b.Emit(Event{RunID: "b", Msg: "other"})

	hist := b.History("a")
	if len(hist) != 2 || hist[0].Msg != "one" || hist[1].Msg != "two" {
		t.Fatalf("History(a) = %v, want [one two] in order", hist)
	}
	if len(b.History("b")) != 1 {
		t.Fatalf("History(b) = %v, want one event", b.History("b"))
	}
}

func TestBufferedEmitterSubscribeReceivesFutureEvents(t *testing.T) {
	b := NewBufferedEmitter()
	var seen []string
	unsub := b.Subscribe(func(e Event) { seen = append(seen, e.Msg) })

	b.Emit(Event{RunID: "a", Msg: "first"})
	unsub()
	b.Emit(Event{RunID: "a", Msg: "second"})

	if len(seen) != 1 || seen[0] != "first" {
		t.Fatalf("subscriber saw %v, want only [first] before unsubscribe", seen)
	}
}

func TestBufferedEmitterClearDropsHistory(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{RunID: "a", Msg: "x"})
	b.Clear("a")
	if len(b.History("a")) != 0 {
		t.Errorf("History(a) after Clear = %v, want empty", b.History("a"))
	}
}

func TestBufferedEmitterEmitBatchPreservesOrder(t *testing.T) {
	b := NewBufferedEmitter()
	err := b.EmitBatch(context.Background(), []Event{
		{RunID: "a", Msg: "1"},
		{RunID: "a", Msg: "2"},
		{RunID: "a", Msg: "3"},
	})
	if err != nil {
		t.Fatalf("EmitBatch: %v", err)
	}
	hist := b.History("a")
	for i, want := range []string{"1", "2", "3"} {
		if hist[i].Msg != want {
			t.Errorf("hist[%d] = %s, want %s", i, hist[i].Msg, want)
		}
	}
}

func TestNullEmitterDiscardsEverything(t *testing.T) {
	n := NewNullEmitter()
	n.Emit(Event{Msg: "whatever"})
	if err := n.EmitBatch(context.Background(), []Event{{Msg: "x"}}); err != nil {
		t.Errorf("EmitBatch: %v", err)
	}
	if err := n.Flush(context.Background()); err != nil {
		t.Errorf("Flush: %v", err)
	}
}
