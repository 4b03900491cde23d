package progress

import (
	"io"
	"sync"
	"time"
)

// Event is a cumulative byte-progress report. Done never decreases within
// one operation; Total is 0 when unknown.
type Event struct {
	Op    string
	Done  int64
	Total int64
}

// Observer receives progress events. Implementations must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(ev Event) { f(ev) }

// Discard drops every event.
var Discard Observer = ObserverFunc(func(Event) {})

// Reader wraps an io.Reader and periodically reports the number of bytes
// read so far to report.
type Reader struct {
	r          io.Reader
	report     func(done int64)
	interval   time.Duration
	read       int64
	mu         sync.Mutex
	lastReport time.Time
}

// NewReader creates a new progress Reader. A report is issued at most once
// per interval, plus a final one at EOF.
func NewReader(r io.Reader, interval time.Duration, report func(done int64)) *Reader {
	return &Reader{r: r, report: report, interval: interval}
}

func (p *Reader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.add(int64(n))
	}
	if err == io.EOF {
		p.Flush()
	}
	return n, err
}

func (p *Reader) add(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.read += n
	now := time.Now()
	if now.Sub(p.lastReport) >= p.interval {
		p.lastReport = now
		p.report(p.read)
	}
}

// Flush issues a report with the current count.
func (p *Reader) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.report(p.read)
}

// Count returns the number of bytes read so far.
func (p *Reader) Count() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.read
}

// Writer is the io.Writer counterpart of Reader.
type Writer struct {
	w      io.Writer
	reader Reader
}

// NewWriter creates a new progress Writer with the same reporting rules as
// NewReader. Call Flush after the last write.
func NewWriter(w io.Writer, interval time.Duration, report func(done int64)) *Writer {
	return &Writer{w: w, reader: Reader{report: report, interval: interval}}
}

func (p *Writer) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	if n > 0 {
		p.reader.add(int64(n))
	}
	return n, err
}

func (p *Writer) Flush() { p.reader.Flush() }

func (p *Writer) Count() int64 { return p.reader.Count() }
