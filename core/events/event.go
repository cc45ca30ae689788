package events

import (
	"sync"

	"augmint/core/types"
)

// Event represents a structured state change emitted by a ledger module.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, archives).
type Emitter interface {
	Emit(Event)
}

// Journal is an emitter whose tail can be discarded when an operation rolls back.
type Journal interface {
	Emitter
	Mark() int
	Rewind(mark int)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer collects events for the operation in flight.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

func (b *Buffer) Emit(evt Event) {
	if evt == nil {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, evt)
	b.mu.Unlock()
}

// Mark returns the current length of the buffer.
func (b *Buffer) Mark() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Rewind drops every event emitted after mark.
func (b *Buffer) Rewind(mark int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if mark < 0 {
		mark = 0
	}
	if mark < len(b.events) {
		for i := mark; i < len(b.events); i++ {
			b.events[i] = nil
		}
		b.events = b.events[:mark]
	}
}

// Drain returns the buffered events and empties the buffer.
func (b *Buffer) Drain() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.events
	b.events = nil
	return out
}

// Fanout forwards each event to every non-nil emitter in order.
type Fanout []Emitter

func (f Fanout) Emit(evt Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}
