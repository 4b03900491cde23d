// Package archive defines the on-disk shape of a snapshot and implements
// the archive/extract work that runs inside the helper container.
//
// A snapshot volume holds exactly one file at its root: snapshot.tar, or
// snapshot.tar.zst when the snapshot is compressed. Whether the payload is
// compressed is recorded in the snapshot volume's labels and passed in
// explicitly; the byte stream is never sniffed.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Mount points used inside helper containers.
const (
	SourceDir   = "/mnt/source"
	SnapshotDir = "/mnt/snapshot"
	TargetDir   = "/mnt/target"
)

const (
	ArchiveFile           = "snapshot.tar"
	CompressedArchiveFile = "snapshot.tar.zst"

	partialSuffix = ".partial"
)

// ErrCorrupt reports a snapshot whose layout or archive stream is invalid.
var ErrCorrupt = errors.New("corrupt snapshot")

// ArchiveName returns the file name of the archive for the given
// compression setting.
func ArchiveName(compress bool) string {
	if compress {
		return CompressedArchiveFile
	}
	return ArchiveFile
}

// Locate checks that snapDir contains exactly one regular file named
// ArchiveName(compress) and returns its path and file info. Any other
// layout is ErrCorrupt.
func Locate(snapDir string, compress bool) (string, os.FileInfo, error) {
	entries, err := os.ReadDir(snapDir)
	if err != nil {
		return "", nil, fmt.Errorf("read snapshot dir: %w", err)
	}
	want := ArchiveName(compress)
	if len(entries) != 1 {
		return "", nil, fmt.Errorf("%w: expected only %s, found %d entries", ErrCorrupt, want, len(entries))
	}
	if entries[0].Name() != want {
		return "", nil, fmt.Errorf("%w: expected %s, found %s", ErrCorrupt, want, entries[0].Name())
	}
	path := filepath.Join(snapDir, want)
	info, err := os.Lstat(path)
	if err != nil {
		return "", nil, fmt.Errorf("stat archive: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", nil, fmt.Errorf("%w: %s is not a regular file", ErrCorrupt, want)
	}
	return path, info, nil
}
