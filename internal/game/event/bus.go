package event

import (
	"sync"

	"go.uber.org/zap"
)

// Bus is the publishing capability the host provides.
//
// Implementations MUST be safe for concurrent use.
type Bus interface {
	Publish(e Event)
}

// Handler receives published events.
type Handler func(e Event)

// Subscription cancels a handler registration.
type Subscription interface {
	Unsubscribe()
}

// Subscriber registers handlers for event types.
type Subscriber interface {
	Subscribe(t Type, h Handler) Subscription
	SubscribeAll(h Handler) Subscription
}

// Dispatcher is a synchronous in-process Bus and Subscriber.
//
// Handlers run on the publishing goroutine, in registration order, without
// the dispatcher lock held, so a handler may publish or (un)subscribe.
// A panicking handler is logged and does not stop delivery to the others.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Type][]*registration
	all      []*registration
	nextID   uint64
	logger   *zap.Logger
}

type registration struct {
	id uint64
	h  Handler
}

type subscription struct {
	d    *Dispatcher
	t    Type
	any  bool
	id   uint64
	once sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() { s.d.remove(s) })
}

// NewDispatcher creates an empty Dispatcher.
//
// Precondition: logger must be non-nil.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[Type][]*registration),
		logger:   logger,
	}
}

// Subscribe registers h for events of type t.
//
// Postcondition: h receives every event of type t published after this call
// until the returned Subscription is cancelled.
func (d *Dispatcher) Subscribe(t Type, h Handler) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.handlers[t] = append(d.handlers[t], &registration{id: d.nextID, h: h})
	return &subscription{d: d, t: t, id: d.nextID}
}

// SubscribeAll registers h for every event.
func (d *Dispatcher) SubscribeAll(h Handler) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.all = append(d.all, &registration{id: d.nextID, h: h})
	return &subscription{d: d, any: true, id: d.nextID}
}

func (d *Dispatcher) remove(s *subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s.any {
		d.all = without(d.all, s.id)
		return
	}
	d.handlers[s.t] = without(d.handlers[s.t], s.id)
	if len(d.handlers[s.t]) == 0 {
		delete(d.handlers, s.t)
	}
}

func without(regs []*registration, id uint64) []*registration {
	out := regs[:0:0]
	for _, r := range regs {
		if r.id != id {
			out = append(out, r)
		}
	}
	return out
}

// Publish delivers e to the handlers registered for its type, then to the
// catch-all handlers.
func (d *Dispatcher) Publish(e Event) {
	if e.Type == "" {
		e.Type = TypeOf(e.Payload)
	}
	d.mu.RLock()
	targets := make([]*registration, 0, len(d.handlers[e.Type])+len(d.all))
	targets = append(targets, d.handlers[e.Type]...)
	targets = append(targets, d.all...)
	d.mu.RUnlock()

	for _, r := range targets {
		d.deliver(r, e)
	}
}

func (d *Dispatcher) deliver(r *registration, e Event) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("event handler panicked",
				zap.String("event", string(e.Type)),
				zap.Any("panic", rec),
			)
		}
	}()
	r.h(e)
}

// Recorder is a Bus that keeps every published event. It is meant for tests
// and headless tooling.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish appends e.
func (r *Recorder) Publish(e Event) {
	if e.Type == "" {
		e.Type = TypeOf(e.Payload)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the published events of type t, in order.
func (r *Recorder) OfType(t Type) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Reset discards all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Fanout publishes every event to each of its buses in order.
type Fanout []Bus

// Publish forwards e to every bus.
func (f Fanout) Publish(e Event) {
	for _, b := range f {
		b.Publish(e)
	}
}
