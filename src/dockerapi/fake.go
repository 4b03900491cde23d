package dockerapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// ExecFunc runs a helper command in-process. Container mount targets in
// args have already been rewritten to the backing host directories.
type ExecFunc func(ctx context.Context, args []string, stdout, stderr io.Writer) int

// FakeClient is an in-memory implementation for unit tests. Each volume is
// backed by a directory under Root so helpers can operate on real files.
type FakeClient struct {
	Root string
	Exec ExecFunc

	// Unreachable makes every call fail as if the daemon were down.
	Unreachable bool
	// HelperErr, when set, is returned by RunHelper before any container exists.
	HelperErr error
	// AfterCreate runs once CreateVolume has stored the volume; a non-nil
	// result is returned with the volume left in place, like a request the
	// daemon completed after the caller gave up.
	AfterCreate func(name string) error
	// Users lists application containers per volume for VolumeUsers.
	Users map[string][]string

	mu      sync.Mutex
	volumes map[string]Volume
	live    map[string][]Mount
	created int
	removed int
	nextID  int
	closed  bool
}

func NewFake(root string) *FakeClient {
	return &FakeClient{
		Root:    root,
		volumes: map[string]Volume{},
		live:    map[string][]Mount{},
	}
}

// VolumePath returns the host directory backing a volume.
func (f *FakeClient) VolumePath(name string) string {
	return filepath.Join(f.Root, "volumes", name)
}

// AddVolume registers a volume without going through CreateVolume and
// returns its backing directory.
func (f *FakeClient) AddVolume(name string, labels map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addLocked(name, labels)
}

func (f *FakeClient) addLocked(name string, labels map[string]string) (string, error) {
	dir := f.VolumePath(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if labels == nil {
		labels = map[string]string{}
	}
	f.volumes[name] = Volume{
		Name:       name,
		Driver:     "local",
		Labels:     maps.Clone(labels),
		Mountpoint: dir,
		CreatedAt:  time.Now().UTC(),
	}
	return dir, nil
}

// HasVolume reports whether a volume with the given name exists.
func (f *FakeClient) HasVolume(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.volumes[name]
	return ok
}

// ContainersCreated returns how many helper containers were created.
func (f *FakeClient) ContainersCreated() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

// ContainersRemoved returns how many helper containers were removed.
func (f *FakeClient) ContainersRemoved() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.removed
}

// LiveContainers returns the IDs of containers not yet removed.
func (f *FakeClient) LiveContainers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.live))
	for id := range f.live {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (f *FakeClient) unreachable(op, name string) error {
	if f.Unreachable || f.closed {
		return newError(op, name, KindDaemonUnreachable, errors.New("cannot connect to the fake daemon"))
	}
	return nil
}

func (f *FakeClient) CreateVolume(ctx context.Context, name string, labels map[string]string) (Volume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.unreachable("volume create", name); err != nil {
		return Volume{}, err
	}
	if _, ok := f.volumes[name]; ok {
		// mimic the conflict RealClient reports
		return Volume{}, newError("volume create", name, KindAlreadyExists, fmt.Errorf("volume %s already exists", name))
	}
	if _, err := f.addLocked(name, labels); err != nil {
		return Volume{}, newError("volume create", name, KindUnknown, err)
	}
	if f.AfterCreate != nil {
		if err := f.AfterCreate(name); err != nil {
			return Volume{}, newError("volume create", name, KindUnknown, err)
		}
	}
	return f.volumes[name], nil
}

func (f *FakeClient) RemoveVolume(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.unreachable("volume remove", name); err != nil {
		return err
	}
	if _, ok := f.volumes[name]; !ok {
		return notFound("volume remove", "volume", name)
	}
	for id, mounts := range f.live {
		for _, m := range mounts {
			if m.Volume == name {
				return newError("volume remove", name, KindInUse, fmt.Errorf("volume is in use by container %s", id))
			}
		}
	}
	delete(f.volumes, name)
	if err := os.RemoveAll(f.VolumePath(name)); err != nil {
		return newError("volume remove", name, KindUnknown, err)
	}
	return nil
}

func (f *FakeClient) InspectVolume(ctx context.Context, name string) (Volume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.unreachable("volume inspect", name); err != nil {
		return Volume{}, err
	}
	v, ok := f.volumes[name]
	if !ok {
		return Volume{}, notFound("volume inspect", "volume", name)
	}
	v.Labels = maps.Clone(v.Labels)
	return v, nil
}

func (f *FakeClient) ListVolumes(ctx context.Context, labelFilter []string) ([]Volume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.unreachable("volume list", ""); err != nil {
		return nil, err
	}
	out := make([]Volume, 0, len(f.volumes))
	for _, v := range f.volumes {
		if matchLabels(v.Labels, labelFilter) {
			v.Labels = maps.Clone(v.Labels)
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// matchLabels applies Docker's label filter semantics: "key" requires the
// label to be present, "key=value" requires an exact value.
func matchLabels(labels map[string]string, filter []string) bool {
	for _, fl := range filter {
		key, want, hasValue := strings.Cut(fl, "=")
		got, ok := labels[key]
		if !ok || (hasValue && got != want) {
			return false
		}
	}
	return true
}

// VolumeUsers reports Users[name] plus any live helper mounting name.
func (f *FakeClient) VolumeUsers(ctx context.Context, name string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.unreachable("container list", name); err != nil {
		return nil, err
	}
	out := append([]string(nil), f.Users[name]...)
	for id, mounts := range f.live {
		for _, m := range mounts {
			if m.Volume == name {
				out = append(out, id)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *FakeClient) RunHelper(ctx context.Context, spec HelperSpec) (HelperStream, error) {
	f.mu.Lock()
	if err := f.unreachable("container create", spec.Name); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	if f.HelperErr != nil {
		f.mu.Unlock()
		return nil, newError("container create", spec.Name, KindContainerCreateFailed, f.HelperErr)
	}
	paths := make(map[string]string, len(spec.Mounts))
	for _, m := range spec.Mounts {
		if _, ok := f.volumes[m.Volume]; !ok {
			f.mu.Unlock()
			return nil, newError("container create", spec.Name, KindContainerCreateFailed, fmt.Errorf("no such volume: %s", m.Volume))
		}
		paths[m.Target] = f.VolumePath(m.Volume)
	}
	f.nextID++
	id := fmt.Sprintf("fake-%04d", f.nextID)
	f.created++
	f.live[id] = append([]Mount(nil), spec.Mounts...)
	exec := f.Exec
	f.mu.Unlock()

	args := rewriteArgs(spec.Cmd, paths)
	s := newStream(ctx, id)
	s.run(func(ctx context.Context) error {
		code := 0
		if exec != nil {
			code = exec(ctx, args, s.writer(EventStdout), s.writer(EventStderr))
		}
		return s.exit(code)
	})
	return s, nil
}

func rewriteArgs(cmd []string, paths map[string]string) []string {
	out := make([]string, len(cmd))
	for i, a := range cmd {
		out[i] = a
		for target, host := range paths {
			if a == target || strings.HasPrefix(a, target+"/") {
				out[i] = host + strings.TrimPrefix(a, target)
				break
			}
		}
	}
	return out
}

func (f *FakeClient) KillAndRemove(ctx context.Context, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.live[containerID]; !ok {
		return nil
	}
	delete(f.live, containerID)
	f.removed++
	return nil
}

func (f *FakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
