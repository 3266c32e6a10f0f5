// Package events provides typed change channels between the hardware
// poller and its consumers. Handlers run synchronously on the
// publisher's goroutine, in registration order, so a consumer sees
// changes in the same order the poller detected them. The bus is
// nil-safe: calling Publish on a nil *Bus is a no-op.
package events

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Channel names a change stream.
type Channel string

// Change channels published by the poller.
const (
	// DisplayChanged fires when display power or brightness changes.
	DisplayChanged Channel = "display_changed"
	// KeyboardChanged fires when on-screen keyboard visibility changes.
	KeyboardChanged Channel = "keyboard_changed"
)

// Event is one change notification. Consumers read the new values from
// the shared hardware snapshot; the event only says which group moved.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Channel   Channel   `json:"channel"`
	// Fields lists the snapshot fields that changed.
	Fields []string `json:"fields,omitempty"`
}

// Handler consumes an Event.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus dispatches events to handlers subscribed per channel.
type Bus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   map[Channel][]subscription
}

// New creates a bus. A nil logger uses slog.Default.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger: logger,
		subs:   make(map[Channel][]subscription),
	}
}

// Subscribe registers h on ch and returns a function that removes it.
// The returned function is safe to call more than once.
func (b *Bus) Subscribe(ch Channel, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[ch] = append(b.subs[ch], subscription{id: id, handler: h})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(ch, id) })
	}
}

func (b *Bus) remove(ch Channel, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[ch]
	for i, s := range subs {
		if s.id == id {
			b.subs[ch] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers e to every handler on e.Channel, in registration
// order, before returning. A panicking handler is logged and does not
// stop delivery to the others.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	subs := b.subs[e.Channel]
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(s, e)
	}
}

func (b *Bus) deliver(s subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"channel", e.Channel,
				"subscription", s.id,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	s.handler(e)
}

// SubscriberCount returns the number of handlers on ch.
func (b *Bus) SubscriberCount(ch Channel) int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[ch])
}
