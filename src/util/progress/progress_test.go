package progress_test

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"vsnap/src/util/progress"
)

func TestReader_ReportsFinalCountAtEOF(t *testing.T) {
	var reports []int64
	r := progress.NewReader(strings.NewReader(strings.Repeat("x", 1000)), time.Hour, func(done int64) {
		reports = append(reports, done)
	})
	if _, err := io.Copy(io.Discard, r); err != nil {
		t.Fatal(err)
	}
	if len(reports) == 0 || reports[len(reports)-1] != 1000 {
		t.Fatalf("reports = %v, want last 1000", reports)
	}
	if r.Count() != 1000 {
		t.Fatalf("count = %d", r.Count())
	}
}

func TestWriter_CountsAndFlushes(t *testing.T) {
	var buf bytes.Buffer
	var last int64
	w := progress.NewWriter(&buf, time.Hour, func(done int64) { last = done })
	for i := 0; i < 10; i++ {
		if _, err := w.Write([]byte("abc")); err != nil {
			t.Fatal(err)
		}
	}
	w.Flush()
	if last != 30 || w.Count() != 30 || buf.Len() != 30 {
		t.Fatalf("last %d count %d written %d", last, w.Count(), buf.Len())
	}
}

// blockingSink holds Render until released so the reporter's buffer fills.
type blockingSink struct {
	release  chan struct{}
	mu       sync.Mutex
	rendered []progress.Event
	finished []progress.Event
}

func (s *blockingSink) Render(ev progress.Event) {
	<-s.release
	s.mu.Lock()
	s.rendered = append(s.rendered, ev)
	s.mu.Unlock()
}

func (s *blockingSink) Finish(ev progress.Event) {
	s.mu.Lock()
	s.finished = append(s.finished, ev)
	s.mu.Unlock()
}

func TestReporter_NeverBlocksAndFinishesWithLatest(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	r := progress.NewReporter(sink, 2)

	done := make(chan struct{})
	go func() {
		for i := int64(1); i <= 100; i++ {
			r.Observe(progress.Event{Op: "archive", Done: i, Total: 100})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Observe blocked on a stalled sink")
	}
	if r.Dropped() == 0 {
		t.Fatalf("expected dropped events with a stalled sink")
	}

	close(sink.release)
	r.Close()
	r.Close()

	if len(sink.finished) != 1 || sink.finished[0].Done != 100 {
		t.Fatalf("finished = %+v, want one event with done=100", sink.finished)
	}
	// events that did get through arrive in order
	for i := 1; i < len(sink.rendered); i++ {
		if sink.rendered[i].Done < sink.rendered[i-1].Done {
			t.Fatalf("rendered out of order: %+v", sink.rendered)
		}
	}
	// observing after close is a no-op
	r.Observe(progress.Event{Done: 1})
}

func TestReporter_NoEventsNoFinish(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	r := progress.NewReporter(sink, 4)
	r.Close()
	if len(sink.finished) != 0 {
		t.Fatalf("finish called without events")
	}
}

func TestTerminalSink_PlainOutput(t *testing.T) {
	var buf bytes.Buffer
	s := progress.NewTerminalSink(&buf, "create")
	s.Render(progress.Event{Op: "archive", Done: 0, Total: 2000})
	s.Finish(progress.Event{Op: "archive", Done: 2000, Total: 2000})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	if strings.Contains(buf.String(), "\r") {
		t.Fatalf("carriage return written to a non-terminal")
	}
	if !strings.Contains(lines[1], "100.0%") || !strings.Contains(lines[1], "2.0 kB / 2.0 kB") {
		t.Fatalf("unexpected final line %q", lines[1])
	}
}

func TestTerminalSink_UnknownTotal(t *testing.T) {
	var buf bytes.Buffer
	s := progress.NewTerminalSink(&buf, "")
	s.Finish(progress.Event{Op: "extract", Done: 1500})
	if out := buf.String(); !strings.Contains(out, "extract") || !strings.Contains(out, "1.5 kB") {
		t.Fatalf("unexpected output %q", out)
	}
}
