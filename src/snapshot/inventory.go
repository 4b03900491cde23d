package snapshot

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"vsnap/src/archive"
	"vsnap/src/dockerapi"
	"vsnap/src/util/progress"
)

// List returns every snapshot volume in daemon listing order. With
// computeSizes, the archive size of each snapshot is read by a helper;
// any failure there fails the whole listing.
func (e *Engine) List(ctx context.Context, computeSizes bool) ([]SnapshotInfo, error) {
	const op = "list"
	vols, err := e.client.ListVolumes(ctx, []string{LabelVersion})
	if err != nil {
		return nil, e.fail(ctx, op, "", nil, EffectsNone, "", err)
	}
	infos := make([]SnapshotInfo, 0, len(vols))
	for _, v := range vols {
		// the daemon filter is trusted only as far as the labels we can see
		if !IsSnapshot(v) {
			continue
		}
		snap, err := fromVolume(v)
		if err != nil {
			return nil, &Error{Op: op, Name: v.Name, Err: err}
		}
		infos = append(infos, snap.info())
	}
	if !computeSizes || len(infos) == 0 {
		return infos, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.sizeConcurrency)
	for i := range infos {
		g.Go(func() error {
			n, err := e.size(gctx, op, infos[i].Name, infos[i].Compressed)
			if err != nil {
				return err
			}
			infos[i].SizeBytes = &n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return infos, nil
}

// Inspect returns one snapshot, with its archive size when computeSize is
// set.
func (e *Engine) Inspect(ctx context.Context, name string, computeSize bool) (SnapshotInfo, error) {
	const op = "inspect"
	if err := validateName(op, name); err != nil {
		return SnapshotInfo{}, err
	}
	snap, err := e.resolve(ctx, op, name)
	if err != nil {
		return SnapshotInfo{}, err
	}
	info := snap.info()
	if computeSize {
		n, err := e.size(ctx, op, name, snap.Compressed)
		if err != nil {
			return SnapshotInfo{}, err
		}
		info.SizeBytes = &n
	}
	return info, nil
}

func (e *Engine) size(ctx context.Context, op, name string, compressed bool) (int64, error) {
	mounts := []dockerapi.Mount{{Volume: name, Target: archive.SnapshotDir, ReadOnly: true}}
	res, err := e.runHelper(ctx, "size", mounts, archive.SizeCommand(compressed), nil)
	if err != nil {
		var kind error
		if errors.Is(err, ErrCorruptSnapshot) {
			kind = ErrCorruptSnapshot
		}
		return 0, e.fail(ctx, op, name, kind, EffectsNone, res.stderr, err)
	}
	m, err := expect(res, archive.TypeSize)
	if err != nil {
		return 0, e.fail(ctx, op, name, nil, EffectsNone, res.stderr, err)
	}
	return m.Bytes, nil
}

// Verify reads a snapshot's complete archive in a read-only helper and
// returns the number of archive entries.
func (e *Engine) Verify(ctx context.Context, name string, sink progress.Observer) (int64, error) {
	const op = "verify"
	if err := validateName(op, name); err != nil {
		return 0, err
	}
	snap, err := e.resolve(ctx, op, name)
	if err != nil {
		return 0, err
	}
	mounts := []dockerapi.Mount{{Volume: name, Target: archive.SnapshotDir, ReadOnly: true}}
	res, err := e.runHelper(ctx, "verify", mounts, archive.VerifyCommand(snap.Compressed), sink)
	if err != nil {
		return 0, e.fail(ctx, op, name, nil, EffectsNone, res.stderr, err)
	}
	m, err := expect(res, archive.TypeVerify)
	if err != nil {
		return 0, e.fail(ctx, op, name, nil, EffectsNone, res.stderr, err)
	}
	return m.Entries, nil
}

// Drop removes a snapshot volume. Volumes without the snapshot marker are
// refused with ErrNotFound.
func (e *Engine) Drop(ctx context.Context, name string) error {
	const op = "drop"
	if err := validateName(op, name); err != nil {
		return err
	}
	if _, err := e.resolve(ctx, op, name); err != nil {
		return err
	}
	if err := e.client.RemoveVolume(ctx, name); err != nil {
		return e.fail(ctx, op, name, nil, EffectsNone, "", err)
	}
	e.log.Info("snapshot dropped", "snapshot", name)
	return nil
}
