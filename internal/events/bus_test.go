package events

import (
	"io"
	"log/slog"
	"reflect"
	"testing"
)

func quietBus() *Bus {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNilBusPublish(t *testing.T) {
	var b *Bus
	// Must not panic.
	b.Publish(Event{Channel: DisplayChanged})
}

func TestNilBusSubscriberCount(t *testing.T) {
	var b *Bus
	if got := b.SubscriberCount(DisplayChanged); got != 0 {
		t.Errorf("SubscriberCount() on nil bus = %d, want 0", got)
	}
}

func TestPublishOrder(t *testing.T) {
	b := quietBus()
	var got []string
	b.Subscribe(DisplayChanged, func(Event) { got = append(got, "first") })
	b.Subscribe(DisplayChanged, func(Event) { got = append(got, "second") })
	b.Subscribe(DisplayChanged, func(Event) { got = append(got, "third") })

	b.Publish(Event{Channel: DisplayChanged})

	if want := []string{"first", "second", "third"}; !reflect.DeepEqual(got, want) {
		t.Errorf("delivery order = %v, want %v", got, want)
	}
}

func TestPublishChannelIsolation(t *testing.T) {
	b := quietBus()
	var display, keyboard int
	b.Subscribe(DisplayChanged, func(Event) { display++ })
	b.Subscribe(KeyboardChanged, func(Event) { keyboard++ })

	b.Publish(Event{Channel: KeyboardChanged, Fields: []string{"keyboard"}})

	if display != 0 || keyboard != 1 {
		t.Errorf("display=%d keyboard=%d, want 0 and 1", display, keyboard)
	}
}

func TestPublishSetsTimestamp(t *testing.T) {
	b := quietBus()
	var got Event
	b.Subscribe(DisplayChanged, func(e Event) { got = e })
	b.Publish(Event{Channel: DisplayChanged})
	if got.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
}

func TestUnsubscribe(t *testing.T) {
	b := quietBus()
	var calls int
	unsub := b.Subscribe(DisplayChanged, func(Event) { calls++ })
	b.Subscribe(DisplayChanged, func(Event) {})

	if got := b.SubscriberCount(DisplayChanged); got != 2 {
		t.Fatalf("SubscriberCount = %d, want 2", got)
	}
	unsub()
	unsub() // second call is a no-op

	if got := b.SubscriberCount(DisplayChanged); got != 1 {
		t.Errorf("SubscriberCount after unsubscribe = %d, want 1", got)
	}
	b.Publish(Event{Channel: DisplayChanged})
	if calls != 0 {
		t.Errorf("unsubscribed handler called %d times", calls)
	}
}

func TestPanickingHandler(t *testing.T) {
	b := quietBus()
	var reached bool
	b.Subscribe(DisplayChanged, func(Event) { panic("boom") })
	b.Subscribe(DisplayChanged, func(Event) { reached = true })

	b.Publish(Event{Channel: DisplayChanged})

	if !reached {
		t.Error("handler after a panicking one was not called")
	}
}
