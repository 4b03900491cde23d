package snapshot_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"vsnap/src/snapshot"
)

func TestError_MessageAndKinds(t *testing.T) {
	cause := errors.New("helper exited with status 1")
	err := &snapshot.Error{
		Op:      "create",
		Name:    "snap",
		Kind:    snapshot.ErrCreationFailed,
		Effects: snapshot.EffectsCleanedUp,
		Err:     fmt.Errorf("%w: %w", snapshot.ErrHelperProcessFailed, cause),
	}
	msg := err.Error()
	require.True(t, strings.HasPrefix(msg, "create snap: snapshot creation failed: "), msg)
	require.Contains(t, msg, "rolled back")
	require.ErrorIs(t, err, snapshot.ErrCreationFailed)
	require.ErrorIs(t, err, snapshot.ErrHelperProcessFailed)
	require.ErrorIs(t, err, cause)

	wrapped := fmt.Errorf("outer: %w", err)
	require.Equal(t, snapshot.EffectsCleanedUp, snapshot.EffectsOf(wrapped))
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, snapshot.ExitOK},
		{errors.New("boom"), snapshot.ExitUnknown},
		{&snapshot.Error{Kind: snapshot.ErrNotFound}, snapshot.ExitPrecondition},
		{&snapshot.Error{Kind: snapshot.ErrDestinationExists}, snapshot.ExitPrecondition},
		{&snapshot.Error{Kind: snapshot.ErrRestoreFailed}, snapshot.ExitFailed},
		{&snapshot.Error{Kind: snapshot.ErrRestoreFailed, Err: snapshot.ErrCorruptSnapshot}, snapshot.ExitCorrupt},
		{&snapshot.Error{Kind: snapshot.ErrCancelled, Err: context.Canceled}, snapshot.ExitCancelled},
		{fmt.Errorf("%w: dial unix", snapshot.ErrDaemonUnreachable), snapshot.ExitUnreachable},
	}
	for _, c := range cases {
		if got := snapshot.ExitCode(c.err); got != c.want {
			t.Errorf("ExitCode(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}
