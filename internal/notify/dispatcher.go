// Package notify decouples the monitoring loop from slow event consumers.
//
// The session calls Dispatcher.HandleEvent on its monitoring goroutine; the
// dispatcher only enqueues. A single worker drains the queue and hands each
// event to every sink in registration order.
package notify

import (
	"context"
	"log"
	"sync"

	"github.com/mirror-control/mcc/internal/mirror"
)

// Sink consumes events.
type Sink interface {
	HandleEvent(ev mirror.Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev mirror.Event)

// HandleEvent calls f(ev).
func (f SinkFunc) HandleEvent(ev mirror.Event) { f(ev) }

// DropRecorder is told about every event discarded on a full queue.
type DropRecorder interface {
	EventDropped()
}

// Dispatcher is a bounded event queue with one delivery worker.
type Dispatcher struct {
	queue chan mirror.Event
	sinks []Sink
	drops DropRecorder

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDispatcher creates a dispatcher holding up to size pending events.
func NewDispatcher(size int, sinks ...Sink) *Dispatcher {
	if size < 1 {
		size = 1
	}
	return &Dispatcher{
		queue: make(chan mirror.Event, size),
		sinks: sinks,
	}
}

// SetDropRecorder registers r for queue overflow reports.
func (d *Dispatcher) SetDropRecorder(r DropRecorder) {
	d.drops = r
}

// HandleEvent enqueues ev without blocking. When the queue is full the
// event is dropped.
func (d *Dispatcher) HandleEvent(ev mirror.Event) {
	select {
	case d.queue <- ev:
	default:
		log.Printf("notify: queue full, dropping %s event", ev.Type)
		if d.drops != nil {
			d.drops.EventDropped()
		}
	}
}

// Start launches the delivery worker. It runs until ctx is cancelled or
// Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done != nil {
		return
	}
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	go d.run(ctx, d.done)
}

// Stop ends the worker after delivering what is already queued.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (d *Dispatcher) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case ev := <-d.queue:
			d.deliver(ev)
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ev mirror.Event) {
	for _, s := range d.sinks {
		s.HandleEvent(ev)
	}
}
