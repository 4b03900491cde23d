package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"golang.org/x/time/rate"
)

const barWidth = 30

// TerminalSink draws a single self-updating progress line on a terminal and
// throttled plain lines on anything else (pipes, CI logs).
type TerminalSink struct {
	out   io.Writer
	label string
	tty   bool
	every *rate.Sometimes
	style *color.Color
}

// NewTerminalSink renders to out. label defaults to the event's Op.
func NewTerminalSink(out io.Writer, label string) *TerminalSink {
	tty := false
	if f, ok := out.(*os.File); ok {
		tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	interval := 2 * time.Second
	if tty {
		interval = 100 * time.Millisecond
	}
	return &TerminalSink{
		out:   out,
		label: label,
		tty:   tty,
		every: &rate.Sometimes{Interval: interval},
		style: color.New(color.FgGreen, color.Bold),
	}
}

func (t *TerminalSink) Render(ev Event) {
	t.every.Do(func() { t.print(ev) })
}

func (t *TerminalSink) Finish(ev Event) {
	t.print(ev)
	if t.tty {
		fmt.Fprintln(t.out)
	}
}

func (t *TerminalSink) print(ev Event) {
	if t.tty {
		fmt.Fprintf(t.out, "\r%s\x1b[K", t.line(ev))
		return
	}
	fmt.Fprintln(t.out, t.line(ev))
}

func (t *TerminalSink) line(ev Event) string {
	label := t.label
	if label == "" {
		label = ev.Op
	}
	label = t.style.Sprintf("%-8s", label)
	if ev.Total <= 0 {
		return fmt.Sprintf("%s %s", label, humanize.Bytes(uint64(max(ev.Done, 0))))
	}
	done := min(max(ev.Done, 0), ev.Total)
	pct := float64(done) / float64(ev.Total)
	filled := int(pct * barWidth)
	bar := strings.Repeat("=", filled)
	if filled < barWidth {
		bar += ">" + strings.Repeat(" ", barWidth-filled-1)
	}
	return fmt.Sprintf("%s [%s] %5.1f%% %s / %s", label, bar, pct*100,
		humanize.Bytes(uint64(done)), humanize.Bytes(uint64(ev.Total)))
}
