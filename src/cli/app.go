package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"vsnap/src/config"
	"vsnap/src/dockerapi"
	"vsnap/src/logging"
	"vsnap/src/snapshot"
	"vsnap/src/util/progress"
)

// ClientFactory opens a daemon client for host ("" means the environment
// default).
type ClientFactory func(ctx context.Context, host string) (dockerapi.Client, error)

type Option func(*app)

// WithClientFactory replaces the Docker connection, e.g. with a FakeClient.
func WithClientFactory(f ClientFactory) Option {
	return func(a *app) { a.connect = f }
}

// WithStdin sets where confirmation answers are read from.
func WithStdin(r io.Reader) Option {
	return func(a *app) { a.stdin = r }
}

// WithProgress replaces the terminal progress display.
func WithProgress(o progress.Observer) Option {
	return func(a *app) { a.observer = o }
}

// app carries the state shared by all commands of one invocation.
type app struct {
	stdout, stderr io.Writer
	stdin          io.Reader
	connect        ClientFactory
	observer       progress.Observer

	cfg config.Config
	log hclog.Logger
}

func newApp(stdout, stderr io.Writer, opts ...Option) *app {
	a := &app{
		stdout:  stdout,
		stderr:  stderr,
		stdin:   os.Stdin,
		connect: connectDocker,
		log:     hclog.NewNullLogger(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func connectDocker(ctx context.Context, host string) (dockerapi.Client, error) {
	c, err := dockerapi.Connect(ctx, host)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// init loads configuration and logging before any subcommand runs.
func (a *app) init(cmd *cobra.Command) error {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(config.Options{File: path, Overrides: flagOverrides(cmd)})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: a.stderr})
	return nil
}

// engine connects to the daemon and returns an engine plus the function
// that closes the connection.
func (a *app) engine(ctx context.Context) (*snapshot.Engine, dockerapi.Client, func(), error) {
	client, err := a.connect(ctx, a.cfg.DockerHost())
	if err != nil {
		if dockerapi.KindOf(err) == dockerapi.KindDaemonUnreachable {
			return nil, nil, nil, fmt.Errorf("%w: %w", snapshot.ErrDaemonUnreachable, err)
		}
		return nil, nil, nil, err
	}
	e := snapshot.New(client,
		snapshot.WithImage(a.cfg.Image),
		snapshot.WithLogger(a.log.Named("engine")),
		snapshot.WithSizeConcurrency(a.cfg.List.Concurrency),
	)
	closeFn := func() {
		if err := client.Close(); err != nil {
			a.log.Debug("closing docker client", "error", err)
		}
	}
	return e, client, closeFn, nil
}

// progress returns the observer for one operation and the function that
// finishes its display.
func (a *app) progress(label string) (progress.Observer, func()) {
	if a.observer != nil {
		return a.observer, func() {}
	}
	r := progress.NewReporter(progress.NewTerminalSink(a.stderr, label), 64)
	return r, func() {
		r.Close()
		if n := r.Dropped(); n > 0 {
			a.log.Trace("progress events dropped", "count", n)
		}
	}
}
