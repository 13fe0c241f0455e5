package events

import "testing"

func TestSubscribeReceivesAll(t *testing.T) {
	b := NewBus()
	var got []Type
	b.Subscribe(func(e Event) { got = append(got, e.Type) })

	b.Emit(Event{Type: EventConnection})
	b.Emit(Event{Type: EventQueueFlushed})

	if len(got) != 2 || got[0] != EventConnection || got[1] != EventQueueFlushed {
		t.Errorf("got %v", got)
	}
}

func TestSubscribeTypesFilters(t *testing.T) {
	b := NewBus()
	var got []Type
	b.SubscribeTypes(func(e Event) { got = append(got, e.Type) }, EventShippingChanged)

	b.Emit(Event{Type: EventConnection})
	b.Emit(Event{Type: EventShippingChanged})

	if len(got) != 1 || got[0] != EventShippingChanged {
		t.Errorf("got %v", got)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := NewBus()
	n := 0
	id := b.Subscribe(func(Event) { n++ })

	b.Emit(Event{Type: EventConnection})
	b.Unsubscribe(id)
	b.Emit(Event{Type: EventConnection})

	if n != 1 {
		t.Errorf("n = %d, want 1", n)
	}
}

func TestEmitSetsTimestamp(t *testing.T) {
	b := NewBus()
	var got Event
	b.Subscribe(func(e Event) { got = e })

	b.Emit(Event{Type: EventOrderAvailable})
	if got.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}
