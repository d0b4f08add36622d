package events

import (
	"context"
	"log"
	"sync"
)

// Handler processes one event. Handlers run inside the dispatch loop;
// anything long-running should hand off to its own goroutine.
type Handler func(Event)

// Bus is an ordered pub/sub broker backed by a single bounded FIFO queue.
//
// Publish blocks when the queue is full: producers feel backpressure
// instead of the bus dropping events, so a fill is never lost. Dispatch
// is single-threaded; every handler for an event completes before the
// next event is delivered.
//
// Handlers must not use Publish for the events they produce: with the
// queue full, a blocking Publish from inside dispatch would wait on the
// very goroutine it is running on. They go through Emit instead, which
// lands in a dispatcher-local buffer drained ahead of the queue.
type Bus struct {
	mu    sync.RWMutex
	subs  map[Type][]Handler
	queue chan Event

	emitMu  sync.Mutex
	emitted []Event

	done chan struct{}
}

// NewBus creates a bus with the given queue capacity.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 256
	}
	return &Bus{
		subs:  make(map[Type][]Handler),
		queue: make(chan Event, capacity),
		done:  make(chan struct{}),
	}
}

// Subscribe registers a handler for an event type.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[t] = append(b.subs[t], h)
}

// Publish enqueues an event, blocking until queue space is available.
func (b *Bus) Publish(e Event) {
	b.queue <- e
}

// TryPublish enqueues without blocking and reports whether it succeeded.
func (b *Bus) TryPublish(e Event) bool {
	select {
	case b.queue <- e:
		return true
	default:
		return false
	}
}

// Emit buffers an event produced while dispatching. Buffered events are
// delivered, in emission order, before the next queued event; Emit never
// blocks, so handlers can always get their downstream events out even
// when producers have the queue saturated.
func (b *Bus) Emit(e Event) {
	b.emitMu.Lock()
	b.emitted = append(b.emitted, e)
	b.emitMu.Unlock()
}

// Emitter is the publishing surface handed to components that run
// inside handlers; its Publish forwards to Emit.
type Emitter struct {
	bus *Bus
}

// Emitter returns the non-blocking publisher for in-dispatch code.
func (b *Bus) Emitter() Emitter {
	return Emitter{bus: b}
}

// Publish forwards to the bus's dispatcher-local emission buffer.
func (e Emitter) Publish(ev Event) {
	e.bus.Emit(ev)
}

// Run drains the queue until the context is canceled, delivering events
// in strict enqueue order.
func (b *Bus) Run(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-b.queue:
			b.dispatch(e)
		}
	}
}

// Drain processes queued events until the queue is empty, then returns.
// Useful for deterministic stepping in backtests and tests.
func (b *Bus) Drain() {
	for {
		select {
		case e := <-b.queue:
			b.dispatch(e)
		default:
			return
		}
	}
}

// Done is closed once the dispatch loop has exited.
func (b *Bus) Done() <-chan struct{} {
	return b.done
}

// dispatch delivers one queued event, then everything the handlers
// emitted, transitively, before returning to the queue.
func (b *Bus) dispatch(e Event) {
	b.deliver(e)
	for {
		b.emitMu.Lock()
		if len(b.emitted) == 0 {
			b.emitMu.Unlock()
			return
		}
		next := b.emitted[0]
		b.emitted = b.emitted[1:]
		b.emitMu.Unlock()
		b.deliver(next)
	}
}

func (b *Bus) deliver(e Event) {
	b.mu.RLock()
	handlers := b.subs[e.EventType()]
	b.mu.RUnlock()

	for _, h := range handlers {
		b.invoke(h, e)
	}
}

// invoke isolates handler failures: a panicking handler is reported and
// must not halt delivery of subsequent events.
func (b *Bus) invoke(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("bus: handler panic on %s event: %v", e.EventType(), r)
		}
	}()
	h(e)
}
