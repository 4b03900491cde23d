// Package snapshot implements the snapshot engine: it materialises a Docker
// volume into an archive held by a dedicated snapshot volume and extracts
// such archives back into volumes. All file work happens in short-lived
// helper containers; the engine only talks to the daemon.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"vsnap/src/archive"
	"vsnap/src/dockerapi"
	"vsnap/src/version"
)

const (
	defaultSizeConcurrency = 4
	defaultCleanupTimeout  = 30 * time.Second

	corruptExit = archive.ExitCorrupt
)

// Docker's volume name grammar.
var nameRE = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]+$`)

// Engine drives snapshot operations against one daemon. It holds no state
// between calls and is safe for concurrent use.
type Engine struct {
	client          dockerapi.Client
	image           string
	log             hclog.Logger
	now             func() time.Time
	sizeConcurrency int
	cleanupTimeout  time.Duration
}

type Option func(*Engine)

// WithImage sets the helper image.
func WithImage(image string) Option {
	return func(e *Engine) {
		if image != "" {
			e.image = image
		}
	}
}

func WithLogger(l hclog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithSizeConcurrency bounds the number of size helpers List runs at once.
func WithSizeConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.sizeConcurrency = n
		}
	}
}

// WithCleanupTimeout bounds rollback and container removal, which run
// detached from the caller's context.
func WithCleanupTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.cleanupTimeout = d
		}
	}
}

// New returns an Engine using client. The client stays owned by the caller.
func New(client dockerapi.Client, opts ...Option) *Engine {
	e := &Engine{
		client:          client,
		image:           version.DefaultImage(),
		log:             hclog.NewNullLogger(),
		now:             time.Now,
		sizeConcurrency: defaultSizeConcurrency,
		cleanupTimeout:  defaultCleanupTimeout,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Image returns the helper image the engine runs.
func (e *Engine) Image() string { return e.image }

func validateName(op, name string) error {
	if nameRE.MatchString(name) {
		return nil
	}
	return &Error{Op: op, Name: name, Kind: ErrInvalidName,
		Err: fmt.Errorf("%q must match %s", name, nameRE.String())}
}

// cleanupContext is detached from ctx's cancellation so rollback still runs
// after an interrupt.
func (e *Engine) cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.cleanupTimeout)
}

// rollback removes a volume the running operation created.
func (e *Engine) rollback(ctx context.Context, name string) Effects {
	cctx, cancel := e.cleanupContext(ctx)
	defer cancel()
	if err := e.client.RemoveVolume(cctx, name); err != nil && !dockerapi.IsNotFound(err) {
		e.log.Warn("rollback failed; volume left behind", "volume", name, "error", err)
		return EffectsRetained
	}
	e.log.Debug("rolled back volume", "volume", name)
	return EffectsCleanedUp
}

// createVolume creates name stamped with a fresh create token. When the
// create fails, the daemon may still have made the volume (a cancelled
// request it completed anyway); a volume carrying our token is removed and
// the returned Effects say so.
func (e *Engine) createVolume(ctx context.Context, name string, labels map[string]string) (dockerapi.Volume, Effects, error) {
	token := uuid.NewString()
	all := make(map[string]string, len(labels)+1)
	maps.Copy(all, labels)
	all[dockerapi.CreateTokenLabel] = token

	v, err := e.client.CreateVolume(ctx, name, all)
	if err == nil {
		return v, EffectsNone, nil
	}
	cctx, cancel := e.cleanupContext(ctx)
	defer cancel()
	got, ierr := e.client.InspectVolume(cctx, name)
	if ierr != nil || got.Labels[dockerapi.CreateTokenLabel] != token {
		return dockerapi.Volume{}, EffectsNone, err
	}
	e.log.Debug("volume created despite failed request", "volume", name)
	return dockerapi.Volume{}, e.rollback(ctx, name), err
}

// fail builds the error for a failed daemon or helper step. Cancellation
// wins over kind; daemon errors are translated so their kind is matchable.
func (e *Engine) fail(ctx context.Context, op, name string, kind error, effects Effects, stderr string, err error) *Error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		kind = ErrCancelled
	} else if k := daemonKind(err); k != nil && kind == nil {
		kind = k
	} else {
		err = translate(err)
	}
	return &Error{Op: op, Name: name, Kind: kind, Effects: effects, Stderr: stderr, Err: err}
}
