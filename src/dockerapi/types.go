package dockerapi

import (
	"context"
	"time"
)

// Volume models a Docker volume with the fields the engine reads.
type Volume struct {
	Name       string
	Driver     string
	Labels     map[string]string
	Mountpoint string
	CreatedAt  time.Time
}

// Mount binds a named volume into a helper container.
type Mount struct {
	Volume   string
	Target   string
	ReadOnly bool
}

// HelperSpec describes one short-lived helper container.
type HelperSpec struct {
	Name   string
	Image  string
	Mounts []Mount
	Cmd    []string
	Labels map[string]string
}

// EventKind tags an Event emitted by a running helper.
type EventKind int

const (
	EventStdout EventKind = iota
	EventStderr
	EventExit
)

func (k EventKind) String() string {
	switch k {
	case EventStdout:
		return "stdout"
	case EventStderr:
		return "stderr"
	case EventExit:
		return "exit"
	}
	return "unknown"
}

// Event is one item of a helper's output sequence. Data is set for stdout
// and stderr chunks, ExitCode for the final exit event.
type Event struct {
	Kind     EventKind
	Data     []byte
	ExitCode int
}

// HelperStream is the finite, pull-based output of a running helper
// container. Next returns io.EOF once the exit event has been consumed.
type HelperStream interface {
	ID() string
	Next(ctx context.Context) (Event, error)
	Close() error
}

// Client is a narrow interface over the Docker Engine API used by vsnap.
// Keep it small and focused on what the engine needs so it stays fakeable.
// Implementations never retry; every daemon error is returned as *Error.
type Client interface {
	// Volumes
	CreateVolume(ctx context.Context, name string, labels map[string]string) (Volume, error)
	RemoveVolume(ctx context.Context, name string) error
	InspectVolume(ctx context.Context, name string) (Volume, error)
	ListVolumes(ctx context.Context, labelFilter []string) ([]Volume, error)
	// VolumeUsers returns the names of running containers mounting name.
	VolumeUsers(ctx context.Context, name string) ([]string, error)

	// Helper containers
	RunHelper(ctx context.Context, spec HelperSpec) (HelperStream, error)
	KillAndRemove(ctx context.Context, containerID string) error

	Close() error
}
