package snapshot

import (
	"errors"
	"fmt"

	"vsnap/src/dockerapi"
)

// Error kinds. Every error returned by the Engine matches exactly one or
// more of these through errors.Is.
var (
	ErrDaemonUnreachable   = errors.New("docker daemon unreachable")
	ErrAlreadyExists       = errors.New("already exists")
	ErrNotFound            = errors.New("not found")
	ErrDestinationExists   = errors.New("destination exists and is not empty")
	ErrInvalidName         = errors.New("invalid volume name")
	ErrInUse               = errors.New("volume is in use")
	ErrHelperProcessFailed = errors.New("helper process failed")
	ErrCorruptSnapshot     = errors.New("corrupt snapshot")
	ErrCancelled           = errors.New("cancelled")
	ErrCreationFailed      = errors.New("snapshot creation failed")
	ErrRestoreFailed       = errors.New("snapshot restore failed")
)

// Effects tells the caller what state an operation left behind.
type Effects int

const (
	// EffectsNone: the operation failed before changing anything.
	EffectsNone Effects = iota
	// EffectsCleanedUp: partial changes were made and rolled back.
	EffectsCleanedUp
	// EffectsRetained: partial changes were made and are still in place.
	EffectsRetained
)

func (e Effects) String() string {
	switch e {
	case EffectsCleanedUp:
		return "partial changes were rolled back"
	case EffectsRetained:
		return "partial changes were left in place"
	}
	return "no changes were made"
}

// Error is returned by every Engine operation.
type Error struct {
	Op      string // create, restore, list, inspect, drop, verify
	Name    string // volume the failure is about
	Kind    error  // one of the Err* kinds; nil when unclassified
	Effects Effects
	Stderr  string // tail of the helper's stderr, when a helper ran
	Err     error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Name != "" {
		msg += " " + e.Name
	}
	if e.Kind != nil {
		msg += ": " + e.Kind.Error()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Effects != EffectsNone {
		msg += " (" + e.Effects.String() + ")"
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// EffectsOf returns the Effects recorded in err, EffectsNone if err carries
// no *Error.
func EffectsOf(err error) Effects {
	var se *Error
	if errors.As(err, &se) {
		return se.Effects
	}
	return EffectsNone
}

// Process exit codes used by the command line.
const (
	ExitOK           = 0
	ExitUnknown      = 1
	ExitPrecondition = 2
	ExitCorrupt      = 3
	ExitFailed       = 4
	ExitUnreachable  = 5
	ExitCancelled    = 130
)

// ExitCode maps err to a process exit code. More specific kinds win, so a
// restore that failed on a corrupt archive exits with ExitCorrupt.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrCancelled):
		return ExitCancelled
	case errors.Is(err, ErrDaemonUnreachable):
		return ExitUnreachable
	case errors.Is(err, ErrCorruptSnapshot):
		return ExitCorrupt
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrDestinationExists), errors.Is(err, ErrInvalidName),
		errors.Is(err, ErrInUse):
		return ExitPrecondition
	case errors.Is(err, ErrHelperProcessFailed), errors.Is(err, ErrCreationFailed),
		errors.Is(err, ErrRestoreFailed):
		return ExitFailed
	}
	return ExitUnknown
}

// exitError is a helper container that ran to completion with a nonzero
// status.
type exitError struct {
	Code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("helper exited with status %d", e.Code)
}

func (e *exitError) Is(target error) bool {
	switch target {
	case ErrHelperProcessFailed:
		return true
	case ErrCorruptSnapshot:
		return e.Code == corruptExit
	}
	return false
}

// daemonKind maps an adapter error to the engine kind it stands for, or nil.
func daemonKind(err error) error {
	switch dockerapi.KindOf(err) {
	case dockerapi.KindDaemonUnreachable:
		return ErrDaemonUnreachable
	case dockerapi.KindNotFound:
		return ErrNotFound
	case dockerapi.KindAlreadyExists:
		return ErrAlreadyExists
	case dockerapi.KindInUse:
		return ErrInUse
	}
	return nil
}

// translate tags adapter errors with their engine kind so errors.Is works
// across the package boundary.
func translate(err error) error {
	if k := daemonKind(err); k != nil && !errors.Is(err, k) {
		return fmt.Errorf("%w: %w", k, err)
	}
	return err
}
