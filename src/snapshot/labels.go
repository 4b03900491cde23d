package snapshot

import (
	"fmt"
	"strconv"
	"time"

	"vsnap/src/dockerapi"
)

// Reserved label namespace on snapshot volumes and helper containers.
const (
	LabelVersion     = "vsnap.version"
	LabelCompression = "vsnap.compression"
	LabelCreatedAt   = "vsnap.created-at"
	LabelSource      = "vsnap.source"
	LabelHelper      = "vsnap.helper"

	SchemaVersion = "1"
)

// Snapshot is a volume carrying the snapshot labels.
type Snapshot struct {
	Name       string
	Compressed bool
	CreatedAt  time.Time
	Source     string
}

// SnapshotInfo is one inventory entry. SizeBytes is the archive size and is
// only set when sizes were requested.
type SnapshotInfo struct {
	Name       string    `json:"name"`
	Compressed bool      `json:"compressed"`
	CreatedAt  time.Time `json:"created_at"`
	Source     string    `json:"source,omitempty"`
	SizeBytes  *int64    `json:"size_bytes,omitempty"`
}

func snapshotLabels(source string, compress bool, now time.Time) map[string]string {
	return map[string]string{
		LabelVersion:     SchemaVersion,
		LabelCompression: strconv.FormatBool(compress),
		LabelCreatedAt:   now.UTC().Format(time.RFC3339),
		LabelSource:      source,
	}
}

// IsSnapshot reports whether v carries the snapshot marker label.
func IsSnapshot(v dockerapi.Volume) bool {
	_, ok := v.Labels[LabelVersion]
	return ok
}

// fromVolume reads the snapshot labels of v. A missing marker is
// ErrNotFound; labels that do not parse are ErrCorruptSnapshot.
func fromVolume(v dockerapi.Volume) (Snapshot, error) {
	ver, ok := v.Labels[LabelVersion]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: volume %s is not a snapshot", ErrNotFound, v.Name)
	}
	if ver != SchemaVersion {
		return Snapshot{}, fmt.Errorf("%w: unsupported snapshot version %q", ErrCorruptSnapshot, ver)
	}
	var compressed bool
	switch c := v.Labels[LabelCompression]; c {
	case "true":
		compressed = true
	case "false":
	default:
		return Snapshot{}, fmt.Errorf("%w: invalid %s label %q", ErrCorruptSnapshot, LabelCompression, c)
	}
	created := v.CreatedAt
	if ts, err := time.Parse(time.RFC3339, v.Labels[LabelCreatedAt]); err == nil {
		created = ts
	}
	return Snapshot{
		Name:       v.Name,
		Compressed: compressed,
		CreatedAt:  created,
		Source:     v.Labels[LabelSource],
	}, nil
}

func (s Snapshot) info() SnapshotInfo {
	return SnapshotInfo{Name: s.Name, Compressed: s.Compressed, CreatedAt: s.CreatedAt, Source: s.Source}
}
