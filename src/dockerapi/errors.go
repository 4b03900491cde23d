package dockerapi

import (
	"errors"
	"fmt"
)

// Kind classifies daemon failures.
type Kind int

const (
	KindUnknown Kind = iota
	KindAlreadyExists
	KindNotFound
	KindInUse
	KindDaemonUnreachable
	KindImagePullFailed
	KindContainerCreateFailed
)

func (k Kind) String() string {
	switch k {
	case KindAlreadyExists:
		return "already exists"
	case KindNotFound:
		return "not found"
	case KindInUse:
		return "in use"
	case KindDaemonUnreachable:
		return "daemon unreachable"
	case KindImagePullFailed:
		return "image pull failed"
	case KindContainerCreateFailed:
		return "container create failed"
	}
	return "unknown"
}

// Error carries the original daemon error tagged with a Kind.
type Error struct {
	Op   string // e.g. "volume create"
	Name string // volume, container or image the call was about
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Name != "" {
		msg += " " + e.Name
	}
	msg += ": " + e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// IsNotFound reports whether err is a daemon "not found" error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsAlreadyExists reports whether err is a daemon naming conflict.
func IsAlreadyExists(err error) bool { return KindOf(err) == KindAlreadyExists }

func newError(op, name string, kind Kind, err error) *Error {
	return &Error{Op: op, Name: name, Kind: kind, Err: err}
}

func notFound(op, resource, name string) *Error {
	return newError(op, name, KindNotFound, fmt.Errorf("no such %s: %s", resource, name))
}
