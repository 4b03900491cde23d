// Package cli implements the vsnap command line on top of the snapshot
// engine.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"vsnap/src/snapshot"
)

// NewRootCmd returns the root cobra command for the vsnap CLI.
func NewRootCmd(stdout, stderr io.Writer, opts ...Option) *cobra.Command {
	a := newApp(stdout, stderr, opts...)
	cmd := &cobra.Command{
		Use:           "vsnap",
		Short:         "Snapshot and restore Docker volumes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	addGlobalFlags(cmd)

	cmd.AddCommand(newCreateCmd(a))
	cmd.AddCommand(newRestoreCmd(a))
	cmd.AddCommand(newListCmd(a))
	cmd.AddCommand(newDropCmd(a))
	cmd.AddCommand(newVerifyCmd(a))
	cmd.AddCommand(newVersionCmd(a))

	return cmd
}

// Execute runs the CLI with the process stdio and returns the exit code.
func Execute(ctx context.Context) int {
	return Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

// Run executes args against a fresh root command.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer, opts ...Option) int {
	root := NewRootCmd(stdout, stderr, opts...)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return snapshot.ExitOK
	}
	reportError(stderr, err)
	if ctx.Err() != nil && !errors.Is(err, snapshot.ErrCancelled) {
		return snapshot.ExitCancelled
	}
	return snapshot.ExitCode(err)
}

func reportError(w io.Writer, err error) {
	fmt.Fprintln(w, "Error:", err)
	var se *snapshot.Error
	if errors.As(err, &se) && se.Stderr != "" {
		fmt.Fprintln(w, "helper output:")
		for _, line := range strings.Split(se.Stderr, "\n") {
			fmt.Fprintln(w, "  "+line)
		}
	}
}
