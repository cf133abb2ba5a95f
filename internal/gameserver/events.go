package gameserver

import (
	"sync"

	"github.com/cory-johannsen/npcfleet/internal/game/event"
)

// DefaultEventBufferSize bounds the host event buffer.
const DefaultEventBufferSize = 1024

// HostEventBuffer queues published events until the host drains them. When
// full the oldest event is dropped.
//
// It implements event.Bus and is safe for concurrent use.
type HostEventBuffer struct {
	mu      sync.Mutex
	events  []event.Event
	max     int
	dropped uint64
}

var _ event.Bus = (*HostEventBuffer)(nil)

// NewHostEventBuffer returns a buffer holding at most max events; max <= 0
// means DefaultEventBufferSize.
func NewHostEventBuffer(max int) *HostEventBuffer {
	if max <= 0 {
		max = DefaultEventBufferSize
	}
	return &HostEventBuffer{max: max}
}

// Publish implements event.Bus.
func (b *HostEventBuffer) Publish(e event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == b.max {
		copy(b.events, b.events[1:])
		b.events = b.events[:len(b.events)-1]
		b.dropped++
	}
	b.events = append(b.events, e)
}

// Drain returns up to limit buffered events, oldest first, and removes them.
// limit <= 0 drains everything.
func (b *HostEventBuffer) Drain(limit int) []event.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.events)
	if limit > 0 && limit < n {
		n = limit
	}
	out := append([]event.Event(nil), b.events[:n]...)
	b.events = append(b.events[:0], b.events[n:]...)
	return out
}

// Len returns the number of buffered events.
func (b *HostEventBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Dropped returns how many events were discarded because the buffer was full.
func (b *HostEventBuffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
