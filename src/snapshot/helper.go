package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"vsnap/src/archive"
	"vsnap/src/dockerapi"
	"vsnap/src/util/progress"
)

const stderrTail = 8 << 10

// helperResult is what a helper run left behind: its non-progress stdout
// messages and the tail of its stderr.
type helperResult struct {
	messages []archive.Message
	stderr   string
}

func (r helperResult) find(t archive.MessageType) (archive.Message, bool) {
	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].Type == t {
			return r.messages[i], true
		}
	}
	return archive.Message{}, false
}

// runHelper starts one helper container, forwards its progress to sink and
// waits for it to exit. The container is removed on every path. A nonzero
// exit status is returned as *exitError.
func (e *Engine) runHelper(ctx context.Context, op string, mounts []dockerapi.Mount, cmd []string, sink progress.Observer) (helperResult, error) {
	if sink == nil {
		sink = progress.Discard
	}
	spec := dockerapi.HelperSpec{
		Name:   "vsnap-helper-" + uuid.NewString(),
		Image:  e.image,
		Mounts: mounts,
		Cmd:    cmd,
		Labels: map[string]string{LabelHelper: "true"},
	}
	stream, err := e.client.RunHelper(ctx, spec)
	if err != nil {
		return helperResult{}, err
	}
	id := stream.ID()
	log := e.log.With("container", id, "op", op)
	log.Debug("helper started", "cmd", cmd)
	defer func() {
		cctx, cancel := e.cleanupContext(ctx)
		defer cancel()
		if err := e.client.KillAndRemove(cctx, id); err != nil {
			log.Warn("failed to remove helper container", "error", err)
		}
		stream.Close()
	}()

	var res helperResult
	tail := &tailBuffer{max: stderrTail}
	stdout := &lineSplitter{fn: func(line []byte) {
		m, ok := archive.ParseMessage(line)
		if !ok {
			log.Trace("helper stdout", "line", string(line))
			return
		}
		if m.Type == archive.TypeProgress {
			sink.Observe(progress.Event{Op: op, Done: m.Done, Total: m.Total})
			return
		}
		res.messages = append(res.messages, m)
	}}
	stderr := &lineSplitter{fn: func(line []byte) {
		log.Debug("helper stderr", "line", string(line))
	}}

	exited, code := false, 0
	for {
		ev, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			res.stderr = tail.String()
			return res, err
		}
		switch ev.Kind {
		case dockerapi.EventStdout:
			stdout.Write(ev.Data)
		case dockerapi.EventStderr:
			tail.Write(ev.Data)
			stderr.Write(ev.Data)
		case dockerapi.EventExit:
			exited, code = true, ev.ExitCode
		}
	}
	stdout.Flush()
	stderr.Flush()
	res.stderr = tail.String()

	if !exited {
		return res, errors.New("helper output ended without an exit status")
	}
	log.Debug("helper exited", "status", code)
	if code != 0 {
		return res, &exitError{Code: code}
	}
	return res, nil
}

func expect(res helperResult, t archive.MessageType) (archive.Message, error) {
	m, ok := res.find(t)
	if !ok {
		return archive.Message{}, fmt.Errorf("%w: helper reported no %s result", ErrHelperProcessFailed, t)
	}
	return m, nil
}

// lineSplitter calls fn for every complete line written to it.
type lineSplitter struct {
	buf []byte
	fn  func(line []byte)
}

func (s *lineSplitter) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	for {
		i := bytes.IndexByte(s.buf, '\n')
		if i < 0 {
			break
		}
		if line := bytes.TrimRight(s.buf[:i], "\r"); len(line) > 0 {
			s.fn(line)
		}
		s.buf = s.buf[i+1:]
	}
	return len(p), nil
}

// Flush hands any unterminated trailing line to fn.
func (s *lineSplitter) Flush() {
	if len(s.buf) > 0 {
		s.fn(s.buf)
		s.buf = nil
	}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return string(bytes.TrimSpace(t.buf)) }
