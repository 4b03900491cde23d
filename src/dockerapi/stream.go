package dockerapi

import (
	"context"
	"io"
)

const streamBuffer = 64

// stream turns a push-style producer (log demuxer, fake exec) into the
// pull-based HelperStream. The producer blocks when the consumer lags, so
// output is never lost; the daemon buffers container logs meanwhile.
type stream struct {
	id     string
	events chan Event
	ctx    context.Context
	cancel context.CancelFunc
	err    error // set by the producer before events is closed
}

func newStream(parent context.Context, id string) *stream {
	ctx, cancel := context.WithCancel(parent)
	return &stream{id: id, events: make(chan Event, streamBuffer), ctx: ctx, cancel: cancel}
}

// run starts produce in its own goroutine. produce must emit the exit event
// itself; a non-nil return value is handed to the consumer after the last
// event instead of io.EOF.
func (s *stream) run(produce func(ctx context.Context) error) {
	go func() {
		s.err = produce(s.ctx)
		close(s.events)
	}()
}

func (s *stream) emit(ev Event) error {
	select {
	case s.events <- ev:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func (s *stream) exit(code int) error {
	return s.emit(Event{Kind: EventExit, ExitCode: code})
}

func (s *stream) writer(kind EventKind) io.Writer {
	return &eventWriter{s: s, kind: kind}
}

func (s *stream) ID() string { return s.id }

func (s *stream) Next(ctx context.Context) (Event, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			if s.err != nil {
				return Event{}, s.err
			}
			return Event{}, io.EOF
		}
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Close stops the producer and waits for it to finish.
func (s *stream) Close() error {
	s.cancel()
	for range s.events {
	}
	return nil
}

type eventWriter struct {
	s    *stream
	kind EventKind
}

func (w *eventWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	data := make([]byte, len(p))
	copy(data, p)
	if err := w.s.emit(Event{Kind: w.kind, Data: data}); err != nil {
		return 0, err
	}
	return len(p), nil
}
