package snapshot

import (
	"context"
	"fmt"

	"vsnap/src/archive"
	"vsnap/src/dockerapi"
	"vsnap/src/util/progress"
)

// Create archives the contents of the source volume into a new snapshot
// volume named snapshotName. The snapshot volume must not exist yet. On any
// failure after the snapshot volume was created it is removed again.
func (e *Engine) Create(ctx context.Context, source, snapshotName string, compress bool, sink progress.Observer) (Snapshot, error) {
	const op = "create"
	if err := validateName(op, source); err != nil {
		return Snapshot{}, err
	}
	if err := validateName(op, snapshotName); err != nil {
		return Snapshot{}, err
	}
	if source == snapshotName {
		return Snapshot{}, &Error{Op: op, Name: snapshotName, Kind: ErrAlreadyExists,
			Err: fmt.Errorf("snapshot name equals source volume %s", source)}
	}

	if _, err := e.client.InspectVolume(ctx, source); err != nil {
		return Snapshot{}, e.fail(ctx, op, source, nil, EffectsNone, "", err)
	}
	// writers may change the tree mid-archive; snapshotting still proceeds
	if users, err := e.client.VolumeUsers(ctx, source); err != nil {
		e.log.Warn("could not check containers using source", "volume", source, "error", err)
	} else if len(users) > 0 {
		e.log.Warn("source volume is in use, snapshot may be inconsistent", "volume", source, "containers", users)
	}
	switch _, err := e.client.InspectVolume(ctx, snapshotName); {
	case err == nil:
		return Snapshot{}, &Error{Op: op, Name: snapshotName, Kind: ErrAlreadyExists,
			Err: fmt.Errorf("volume %s already exists", snapshotName)}
	case !dockerapi.IsNotFound(err):
		return Snapshot{}, e.fail(ctx, op, snapshotName, nil, EffectsNone, "", err)
	}

	vol, effects, err := e.createVolume(ctx, snapshotName, snapshotLabels(source, compress, e.now()))
	if err != nil {
		// a concurrent creator took the name between inspect and create, or
		// the request was interrupted
		return Snapshot{}, e.fail(ctx, op, snapshotName, nil, effects, "", err)
	}
	snap, err := fromVolume(vol)
	if err != nil {
		effects := e.rollback(ctx, snapshotName)
		return Snapshot{}, e.fail(ctx, op, snapshotName, ErrCreationFailed, effects, "", err)
	}

	e.log.Info("creating snapshot", "source", source, "snapshot", snapshotName, "compressed", compress)
	mounts := []dockerapi.Mount{
		{Volume: source, Target: archive.SourceDir, ReadOnly: true},
		{Volume: snapshotName, Target: archive.SnapshotDir},
	}
	res, err := e.runHelper(ctx, "archive", mounts, archive.ArchiveCommand(compress), sink)
	if err != nil {
		effects := e.rollback(ctx, snapshotName)
		return Snapshot{}, e.fail(ctx, op, snapshotName, ErrCreationFailed, effects, res.stderr, err)
	}
	e.log.Info("snapshot created", "snapshot", snapshotName)
	return snap, nil
}
