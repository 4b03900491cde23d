package dockerapi

import (
	"context"
	"fmt"
	"io"
	"maps"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
)

// CreateTokenLabel is stamped on every volume created through RealClient.
// Docker answers a create for an existing name with the existing volume, so
// the token tells the winner of a concurrent create apart from the losers.
// A caller may supply its own token in labels to recognise the volume later.
const CreateTokenLabel = "vsnap.create-token"

// RealClient wraps the official Docker Go client.
type RealClient struct {
	c *client.Client
}

// Connect builds a client from the environment (DOCKER_HOST etc.), or from
// host when it is non-empty, and pings the daemon.
func Connect(ctx context.Context, host string) (*RealClient, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	c, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, newError("connect", host, KindDaemonUnreachable, err)
	}
	if _, err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, newError("connect", c.DaemonHost(), KindDaemonUnreachable, err)
	}
	return &RealClient{c: c}, nil
}

func (r *RealClient) Close() error {
	return r.c.Close()
}

func (r *RealClient) CreateVolume(ctx context.Context, name string, labels map[string]string) (Volume, error) {
	const op = "volume create"
	if _, err := r.c.VolumeInspect(ctx, name); err == nil {
		return Volume{}, newError(op, name, KindAlreadyExists, fmt.Errorf("volume %s already exists", name))
	} else if !errdefs.IsNotFound(err) {
		return Volume{}, classify(op, name, err, KindAlreadyExists)
	}

	token := labels[CreateTokenLabel]
	if token == "" {
		token = uuid.NewString()
	}
	all := make(map[string]string, len(labels)+1)
	maps.Copy(all, labels)
	all[CreateTokenLabel] = token

	v, err := r.c.VolumeCreate(ctx, volume.CreateOptions{Name: name, Labels: all})
	if err != nil {
		return Volume{}, classify(op, name, err, KindAlreadyExists)
	}
	if v.Labels[CreateTokenLabel] != token {
		return Volume{}, newError(op, name, KindAlreadyExists, fmt.Errorf("volume %s was created concurrently", name))
	}
	return fromDockerVolume(v), nil
}

func (r *RealClient) RemoveVolume(ctx context.Context, name string) error {
	return classify("volume remove", name, r.c.VolumeRemove(ctx, name, false), KindInUse)
}

func (r *RealClient) InspectVolume(ctx context.Context, name string) (Volume, error) {
	v, err := r.c.VolumeInspect(ctx, name)
	if err != nil {
		return Volume{}, classify("volume inspect", name, err, KindUnknown)
	}
	return fromDockerVolume(v), nil
}

func (r *RealClient) ListVolumes(ctx context.Context, labelFilter []string) ([]Volume, error) {
	args := filters.NewArgs()
	for _, l := range labelFilter {
		args.Add("label", l)
	}
	resp, err := r.c.VolumeList(ctx, volume.ListOptions{Filters: args})
	if err != nil {
		return nil, classify("volume list", "", err, KindUnknown)
	}
	out := make([]Volume, 0, len(resp.Volumes))
	for _, v := range resp.Volumes {
		if v == nil {
			continue
		}
		out = append(out, fromDockerVolume(*v))
	}
	return out, nil
}

func (r *RealClient) VolumeUsers(ctx context.Context, name string) ([]string, error) {
	args := filters.NewArgs(filters.Arg("volume", name), filters.Arg("status", "running"))
	list, err := r.c.ContainerList(ctx, container.ListOptions{Filters: args})
	if err != nil {
		return nil, classify("container list", name, err, KindUnknown)
	}
	out := make([]string, 0, len(list))
	for _, c := range list {
		n := c.ID
		if len(c.Names) > 0 {
			n = strings.TrimPrefix(c.Names[0], "/")
		}
		out = append(out, n)
	}
	return out, nil
}

// RunHelper creates and starts a helper container and streams its output.
// The caller owns the container from the moment RunHelper returns and must
// call KillAndRemove with the stream's ID.
func (r *RealClient) RunHelper(ctx context.Context, spec HelperSpec) (HelperStream, error) {
	if err := r.ensureImage(ctx, spec.Image); err != nil {
		return nil, err
	}

	mounts := make([]mount.Mount, 0, len(spec.Mounts))
	for _, m := range spec.Mounts {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeVolume,
			Source:   m.Volume,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}
	cfg := &container.Config{
		Image:           spec.Image,
		Cmd:             spec.Cmd,
		Labels:          spec.Labels,
		AttachStdout:    true,
		AttachStderr:    true,
		NetworkDisabled: true,
	}
	hostCfg := &container.HostConfig{
		Mounts:      mounts,
		NetworkMode: "none",
	}

	created, err := r.c.ContainerCreate(ctx, cfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return nil, failed("container create", spec.Name, err, KindContainerCreateFailed)
	}
	id := created.ID

	if err := r.c.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		_ = r.KillAndRemove(context.WithoutCancel(ctx), id)
		return nil, failed("container start", spec.Name, err, KindContainerCreateFailed)
	}

	// Logs with Follow replay from the container's start, so nothing written
	// between start and this call is missed. The request is bound to the
	// stream so Close ends the read even if the container outlives it.
	s := newStream(ctx, id)
	logs, err := r.c.ContainerLogs(s.ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true, Follow: true})
	if err != nil {
		s.cancel()
		_ = r.KillAndRemove(context.WithoutCancel(ctx), id)
		return nil, classify("container logs", spec.Name, err, KindUnknown)
	}

	s.run(func(ctx context.Context) error {
		defer logs.Close()
		if _, err := stdcopy.StdCopy(s.writer(EventStdout), s.writer(EventStderr), logs); err != nil {
			return classify("container logs", spec.Name, err, KindUnknown)
		}
		waitC, errC := r.c.ContainerWait(ctx, id, container.WaitConditionNotRunning)
		select {
		case res := <-waitC:
			if res.Error != nil {
				return newError("container wait", spec.Name, KindUnknown, fmt.Errorf("%s", res.Error.Message))
			}
			return s.exit(int(res.StatusCode))
		case err := <-errC:
			return classify("container wait", spec.Name, err, KindUnknown)
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	return s, nil
}

// KillAndRemove force-removes a container, killing it first if it runs.
// A container that no longer exists is not an error.
func (r *RealClient) KillAndRemove(ctx context.Context, containerID string) error {
	err := r.c.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	if err == nil || errdefs.IsNotFound(err) {
		return nil
	}
	return classify("container remove", containerID, err, KindUnknown)
}

func (r *RealClient) ensureImage(ctx context.Context, ref string) error {
	_, _, err := r.c.ImageInspectWithRaw(ctx, ref)
	if err == nil {
		return nil
	}
	if !errdefs.IsNotFound(err) {
		return classify("image inspect", ref, err, KindUnknown)
	}
	rc, err := r.c.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return failed("image pull", ref, err, KindImagePullFailed)
	}
	defer rc.Close()
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return newError("image pull", ref, KindImagePullFailed, err)
	}
	return nil
}

// classify maps a Docker client error onto a Kind. conflict is reported for
// errdefs conflicts, since their meaning depends on the call.
func classify(op, name string, err error, conflict Kind) error {
	if err == nil {
		return nil
	}
	kind := KindUnknown
	switch {
	case client.IsErrConnectionFailed(err):
		kind = KindDaemonUnreachable
	case errdefs.IsNotFound(err):
		kind = KindNotFound
	case errdefs.IsConflict(err):
		kind = conflict
	}
	return newError(op, name, kind, err)
}

// failed tags err with kind unless the daemon could not be reached at all.
func failed(op, name string, err error, kind Kind) error {
	if client.IsErrConnectionFailed(err) {
		kind = KindDaemonUnreachable
	}
	return newError(op, name, kind, err)
}

func fromDockerVolume(v volume.Volume) Volume {
	created, _ := time.Parse(time.RFC3339, v.CreatedAt)
	return Volume{
		Name:       v.Name,
		Driver:     v.Driver,
		Labels:     v.Labels,
		Mountpoint: v.Mountpoint,
		CreatedAt:  created,
	}
}
