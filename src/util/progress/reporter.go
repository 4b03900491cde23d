package progress

import (
	"sync"
	"sync/atomic"
)

// Sink presents progress to the user. Render is called from a single
// goroutine; Finish once with the last known state.
type Sink interface {
	Render(Event)
	Finish(Event)
}

// Reporter decouples producers from a possibly slow Sink. Observe never
// blocks: when the buffer is full the event is dropped. Events are
// cumulative, so a dropped event only costs an intermediate frame, and the
// latest state is always handed to Finish.
type Reporter struct {
	sink    Sink
	events  chan Event
	done    chan struct{}
	dropped atomic.Int64

	mu     sync.Mutex
	closed bool
	latest Event
	seen   bool
}

// NewReporter starts a Reporter rendering to sink.
func NewReporter(sink Sink, buffer int) *Reporter {
	if buffer < 1 {
		buffer = 1
	}
	r := &Reporter{
		sink:   sink,
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *Reporter) loop() {
	defer close(r.done)
	for ev := range r.events {
		r.sink.Render(ev)
	}
}

func (r *Reporter) Observe(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.latest, r.seen = ev, true
	select {
	case r.events <- ev:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded under backpressure.
func (r *Reporter) Dropped() int64 { return r.dropped.Load() }

// Close stops accepting events, waits for the render loop and finishes the
// sink if any event was observed. Close is idempotent.
func (r *Reporter) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.events)
	latest, seen := r.latest, r.seen
	r.mu.Unlock()

	<-r.done
	if seen {
		r.sink.Finish(latest)
	}
}
