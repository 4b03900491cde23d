package snapshot

import (
	"context"
	"fmt"

	"vsnap/src/archive"
	"vsnap/src/dockerapi"
	"vsnap/src/util/progress"
)

// RestoreOptions controls Restore.
type RestoreOptions struct {
	// Overwrite allows restoring into a non-empty destination. Its contents
	// are removed first; the result is never a merge.
	Overwrite bool
	// Drop removes the snapshot after a successful restore.
	Drop bool
}

// Restore extracts a snapshot into dest, creating dest when it does not
// exist. A destination the engine created is removed again on failure; an
// existing destination is left as the failed extract left it.
func (e *Engine) Restore(ctx context.Context, snapshotName, dest string, opts RestoreOptions, sink progress.Observer) error {
	const op = "restore"
	if err := validateName(op, snapshotName); err != nil {
		return err
	}
	if err := validateName(op, dest); err != nil {
		return err
	}
	snap, err := e.resolve(ctx, op, snapshotName)
	if err != nil {
		return err
	}
	if dest == snapshotName {
		return &Error{Op: op, Name: dest, Kind: ErrDestinationExists,
			Err: fmt.Errorf("cannot restore snapshot %s onto itself", snapshotName)}
	}
	// a broken layout is a precondition failure: nothing is created or cleared
	if _, err := e.size(ctx, op, snapshotName, snap.Compressed); err != nil {
		return err
	}

	created, clear := false, false
	switch _, err := e.client.InspectVolume(ctx, dest); {
	case err == nil:
		n, err := e.countEntries(ctx, dest)
		if err != nil {
			return err
		}
		if n > 0 {
			if !opts.Overwrite {
				return &Error{Op: op, Name: dest, Kind: ErrDestinationExists,
					Err: fmt.Errorf("volume %s has %d top-level entries; overwrite not requested", dest, n)}
			}
			clear = true
		}
	case dockerapi.IsNotFound(err):
		if _, effects, err := e.createVolume(ctx, dest, nil); err != nil {
			if dockerapi.IsAlreadyExists(err) && ctx.Err() == nil {
				return &Error{Op: op, Name: dest, Kind: ErrDestinationExists, Err: err}
			}
			return e.fail(ctx, op, dest, nil, effects, "", err)
		}
		created = true
	default:
		return e.fail(ctx, op, dest, nil, EffectsNone, "", err)
	}

	e.log.Info("restoring snapshot", "snapshot", snapshotName, "destination", dest,
		"compressed", snap.Compressed, "overwrite", clear)
	mounts := []dockerapi.Mount{
		{Volume: snapshotName, Target: archive.SnapshotDir, ReadOnly: true},
		{Volume: dest, Target: archive.TargetDir},
	}
	res, err := e.runHelper(ctx, "extract", mounts, archive.ExtractCommand(snap.Compressed, clear), sink)
	if err != nil {
		effects := EffectsRetained
		if created {
			effects = e.rollback(ctx, dest)
		}
		return e.fail(ctx, op, dest, ErrRestoreFailed, effects, res.stderr, err)
	}
	e.log.Info("snapshot restored", "snapshot", snapshotName, "destination", dest)

	if opts.Drop {
		if err := e.Drop(ctx, snapshotName); err != nil {
			return fmt.Errorf("restored %s but could not drop the snapshot: %w", dest, err)
		}
	}
	return nil
}

// countEntries runs a read-only probe helper on an existing volume.
func (e *Engine) countEntries(ctx context.Context, name string) (int64, error) {
	const op = "restore"
	mounts := []dockerapi.Mount{{Volume: name, Target: archive.TargetDir, ReadOnly: true}}
	res, err := e.runHelper(ctx, "probe", mounts, archive.ProbeCommand(), nil)
	if err != nil {
		return 0, e.fail(ctx, op, name, ErrHelperProcessFailed, EffectsNone, res.stderr, err)
	}
	m, err := expect(res, archive.TypeProbe)
	if err != nil {
		return 0, e.fail(ctx, op, name, nil, EffectsNone, res.stderr, err)
	}
	return m.Entries, nil
}

// resolve inspects name and reads its snapshot labels.
func (e *Engine) resolve(ctx context.Context, op, name string) (Snapshot, error) {
	v, err := e.client.InspectVolume(ctx, name)
	if err != nil {
		return Snapshot{}, e.fail(ctx, op, name, nil, EffectsNone, "", err)
	}
	snap, err := fromVolume(v)
	if err != nil {
		return Snapshot{}, &Error{Op: op, Name: name, Err: err}
	}
	return snap, nil
}
