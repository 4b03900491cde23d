// Package runner is the command line of the helper image. It runs inside a
// short-lived container with the volumes mounted under /mnt and reports
// results to the engine as JSON lines on stdout.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"vsnap/src/archive"
	"vsnap/src/version"
)

const progressInterval = 250 * time.Millisecond

type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// Run executes the helper command line in args and returns the process exit
// code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return archive.ExitOK
	}
	fmt.Fprintln(stderr, "vsnap-runner:", err)
	return exitCode(err)
}

func exitCode(err error) int {
	var ue usageError
	switch {
	case errors.Is(err, archive.ErrCorrupt):
		return archive.ExitCorrupt
	case errors.As(err, &ue):
		return archive.ExitUsage
	case strings.HasPrefix(err.Error(), "unknown command"):
		return archive.ExitUsage
	}
	return archive.ExitFailure
}

// NewRootCmd returns the root cobra command of the helper.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "vsnap-runner",
		Short:         "Archive and extract volume contents inside a vsnap helper container",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })

	cmd.AddCommand(newArchiveCmd(stdout))
	cmd.AddCommand(newExtractCmd(stdout))
	cmd.AddCommand(newSizeCmd(stdout))
	cmd.AddCommand(newProbeCmd(stdout))
	cmd.AddCommand(newVerifyCmd(stdout))
	return cmd
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

func newArchiveCmd(stdout io.Writer) *cobra.Command {
	var compress bool
	cmd := &cobra.Command{
		Use:   "archive <source-dir> <snapshot-dir>",
		Short: "Write the source tree into a snapshot archive",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newProgress(stdout)
			if err := archive.Archive(cmd.Context(), args[0], args[1], compress, p.report); err != nil {
				return err
			}
			return p.finish()
		},
	}
	cmd.Flags().BoolVar(&compress, "compress", false, "Compress the archive with zstd")
	return cmd
}

func newExtractCmd(stdout io.Writer) *cobra.Command {
	var compress, clear bool
	cmd := &cobra.Command{
		Use:   "extract <snapshot-dir> <target-dir>",
		Short: "Unpack a snapshot archive into the target tree",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newProgress(stdout)
			if err := archive.Extract(cmd.Context(), args[0], args[1], compress, clear, p.report); err != nil {
				return err
			}
			return p.finish()
		},
	}
	cmd.Flags().BoolVar(&compress, "compress", false, "Archive is zstd-compressed")
	cmd.Flags().BoolVar(&clear, "clear", false, "Remove the target's contents before extracting")
	return cmd
}

func newSizeCmd(stdout io.Writer) *cobra.Command {
	var compress bool
	cmd := &cobra.Command{
		Use:   "size <snapshot-dir>",
		Short: "Print the archive size in bytes",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := archive.Size(args[0], compress)
			if err != nil {
				return err
			}
			return archive.WriteMessage(stdout, archive.Message{Type: archive.TypeSize, Bytes: n})
		},
	}
	cmd.Flags().BoolVar(&compress, "compress", false, "Archive is zstd-compressed")
	return cmd
}

func newProbeCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <dir>",
		Short: "Print the number of top-level entries in a directory",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := archive.Probe(args[0])
			if err != nil {
				return err
			}
			return archive.WriteMessage(stdout, archive.Message{Type: archive.TypeProbe, Entries: n})
		},
	}
}

func newVerifyCmd(stdout io.Writer) *cobra.Command {
	var compress bool
	cmd := &cobra.Command{
		Use:   "verify <snapshot-dir>",
		Short: "Read the whole archive and print its entry count",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newProgress(stdout)
			n, err := archive.Verify(cmd.Context(), args[0], compress, p.report)
			if err != nil {
				return err
			}
			if err := p.finish(); err != nil {
				return err
			}
			return archive.WriteMessage(stdout, archive.Message{Type: archive.TypeVerify, Entries: n})
		},
	}
	cmd.Flags().BoolVar(&compress, "compress", false, "Archive is zstd-compressed")
	return cmd
}

// progressWriter throttles progress lines; the last known state is always
// written by finish.
type progressWriter struct {
	out   io.Writer
	every rate.Sometimes

	mu          sync.Mutex
	done, total int64
	err         error
}

func newProgress(out io.Writer) *progressWriter {
	return &progressWriter{out: out, every: rate.Sometimes{Interval: progressInterval}}
}

func (p *progressWriter) report(done, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done, p.total = done, total
	p.every.Do(p.writeLocked)
}

func (p *progressWriter) writeLocked() {
	if p.err != nil {
		return
	}
	p.err = archive.WriteMessage(p.out, archive.Message{Type: archive.TypeProgress, Done: p.done, Total: p.total})
}

func (p *progressWriter) finish() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeLocked()
	return p.err
}
