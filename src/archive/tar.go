package archive

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"vsnap/src/util/progress"
)

const (
	reportInterval = 200 * time.Millisecond
	bufferSize     = 1 << 20
)

// ReportFunc receives cumulative progress; total is 0 when unknown.
type ReportFunc func(done, total int64)

// Archive writes the file tree under src as a tar stream into snapDir,
// wrapped in zstd when compress is set. Progress counts file content bytes
// against the size of all regular files under src.
//
// The archive is written under a temporary name and renamed once complete,
// so an interrupted run never leaves a well-formed-looking snapshot behind.
func Archive(ctx context.Context, src, snapDir string, compress bool, report ReportFunc) (err error) {
	if report == nil {
		report = func(int64, int64) {}
	}
	total, err := treeSize(ctx, src)
	if err != nil {
		return err
	}
	report(0, total)

	final := filepath.Join(snapDir, ArchiveName(compress))
	partial := final + partialSuffix
	f, err := os.OpenFile(partial, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(partial)
		}
	}()

	bw := bufio.NewWriterSize(f, bufferSize)
	var sink io.Writer = bw
	var enc *zstd.Encoder
	if compress {
		enc, err = zstd.NewWriter(bw, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("init zstd: %w", err)
		}
		sink = enc
	}
	tw := tar.NewWriter(sink)
	content := progress.NewWriter(tw, reportInterval, func(done int64) { report(done, total) })

	if err := filepath.WalkDir(src, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return addEntry(tw, content, src, p, d)
	}); err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("finish tar: %w", err)
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return fmt.Errorf("finish zstd: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush archive: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(partial, final); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	content.Flush()
	return nil
}

func addEntry(tw *tar.Writer, content io.Writer, root, p string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSocket != 0 {
		// sockets cannot be represented in tar
		return nil
	}
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return err
	}
	link := ""
	if info.Mode()&os.ModeSymlink != 0 {
		if link, err = os.Readlink(p); err != nil {
			return err
		}
	}
	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return fmt.Errorf("header for %s: %w", rel, err)
	}
	hdr.Name = entryName(filepath.ToSlash(rel), info.IsDir())
	hdr.Format = tar.FormatPAX
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write header %s: %w", rel, err)
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(content, f); err != nil {
		return fmt.Errorf("archive %s: %w", rel, err)
	}
	return nil
}

func entryName(rel string, dir bool) string {
	if rel == "." {
		return "./"
	}
	name := "./" + rel
	if dir {
		name += "/"
	}
	return name
}

func treeSize(ctx context.Context, root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", root, err)
	}
	return total, nil
}

// Extract validates the snapshot in snapDir and unpacks it into dst. With
// clear, dst's existing contents are removed first, so the result is
// exactly the archived tree rather than a merge. Progress counts archive
// bytes read against the archive file size.
func Extract(ctx context.Context, snapDir, dst string, compress, clear bool, report ReportFunc) error {
	if report == nil {
		report = func(int64, int64) {}
	}
	r, total, closeFn, err := openArchive(snapDir, compress, report)
	if err != nil {
		return err
	}
	defer closeFn()
	report(0, total)

	if clear {
		if err := clearDir(dst); err != nil {
			return err
		}
	}

	type dirMeta struct {
		path string
		hdr  *tar.Header
	}
	var dirs []dirMeta
	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return corrupt(err)
		}
		target, err := safeJoin(dst, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			dirs = append(dirs, dirMeta{path: target, hdr: hdr})
		case tar.TypeReg:
			if err := writeFile(tr, target, hdr); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := makeParent(target); err != nil {
				return err
			}
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
			chown(target, hdr)
		case tar.TypeLink:
			src, err := safeJoin(dst, hdr.Linkname)
			if err != nil {
				return err
			}
			if err := makeParent(target); err != nil {
				return err
			}
			_ = os.Remove(target)
			if err := os.Link(src, target); err != nil {
				return err
			}
		case tar.TypeFifo, tar.TypeChar, tar.TypeBlock:
			if err := makeParent(target); err != nil {
				return err
			}
			if err := makeSpecial(target, hdr); err != nil {
				return fmt.Errorf("create %s: %w", hdr.Name, err)
			}
			if err := applyMeta(target, hdr); err != nil {
				return err
			}
		default:
			return unsupported(hdr)
		}
	}

	// Directory modes and times last, deepest first, so read-only
	// directories do not block their own contents.
	for i := len(dirs) - 1; i >= 0; i-- {
		d := dirs[i]
		if err := applyMeta(d.path, d.hdr); err != nil {
			return err
		}
	}
	return nil
}

// Verify reads the complete archive without writing anything and returns
// the number of entries.
func Verify(ctx context.Context, snapDir string, compress bool, report ReportFunc) (int64, error) {
	if report == nil {
		report = func(int64, int64) {}
	}
	r, _, closeFn, err := openArchive(snapDir, compress, report)
	if err != nil {
		return 0, err
	}
	defer closeFn()

	var entries int64
	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return entries, err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return entries, corrupt(err)
		}
		if _, err := cleanName(hdr.Name); err != nil {
			return entries, err
		}
		if _, err := io.Copy(io.Discard, tr); err != nil {
			return entries, corrupt(err)
		}
		entries++
	}
}

// Size validates the snapshot layout and returns the archive size in bytes.
func Size(snapDir string, compress bool) (int64, error) {
	_, info, err := Locate(snapDir, compress)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Probe returns the number of top-level entries in dir.
func Probe(dir string) (int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	return int64(len(entries)), nil
}

// openArchive locates and opens the archive, returning a reader of the
// decompressed tar stream. Read errors on that stream are ErrCorrupt.
func openArchive(snapDir string, compress bool, report ReportFunc) (io.Reader, int64, func(), error) {
	p, info, err := Locate(snapDir, compress)
	if err != nil {
		return nil, 0, nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("open archive: %w", err)
	}
	total := info.Size()
	counted := progress.NewReader(bufio.NewReaderSize(f, bufferSize), reportInterval, func(done int64) { report(done, total) })
	var r io.Reader = counted
	closeFn := func() { f.Close() }
	if compress {
		dec, err := zstd.NewReader(counted)
		if err != nil {
			f.Close()
			return nil, 0, nil, corrupt(err)
		}
		r = dec
		closeFn = func() {
			dec.Close()
			f.Close()
		}
	}
	return &corruptReader{r: r}, total, closeFn, nil
}

type corruptReader struct{ r io.Reader }

func (c *corruptReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if err != nil && err != io.EOF {
		err = corrupt(err)
	}
	return n, err
}

func unsupported(hdr *tar.Header) error {
	return fmt.Errorf("entry %q has unsupported type %q", hdr.Name, hdr.Typeflag)
}

func corrupt(err error) error {
	if errors.Is(err, ErrCorrupt) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrCorrupt, err)
}

// cleanName normalises an archive entry name to a slash-separated path
// relative to the archive root. Names that would escape it are ErrCorrupt.
func cleanName(name string) (string, error) {
	clean := path.Clean(strings.TrimPrefix(name, "./"))
	if clean == "" {
		clean = "."
	}
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: entry %q escapes the destination", ErrCorrupt, name)
	}
	return clean, nil
}

// safeJoin resolves an archive entry name below dst.
func safeJoin(dst, name string) (string, error) {
	clean, err := cleanName(name)
	if err != nil {
		return "", err
	}
	if clean == "." {
		return dst, nil
	}
	target := filepath.Join(dst, filepath.FromSlash(clean))
	// no parent of target may be a symlink, or a crafted archive could write
	// through it
	for dir := filepath.Dir(target); len(dir) > len(dst); dir = filepath.Dir(dir) {
		if info, err := os.Lstat(dir); err == nil && info.Mode()&os.ModeSymlink != 0 {
			return "", fmt.Errorf("%w: entry %q traverses symlink %s", ErrCorrupt, name, dir)
		}
	}
	return target, nil
}

func makeParent(target string) error {
	return os.MkdirAll(filepath.Dir(target), 0o755)
}

func writeFile(r io.Reader, target string, hdr *tar.Header) error {
	if err := makeParent(target); err != nil {
		return err
	}
	_ = os.Remove(target)
	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return applyMeta(target, hdr)
}

func applyMeta(target string, hdr *tar.Header) error {
	chown(target, hdr)
	mode := hdr.FileInfo().Mode()
	if err := os.Chmod(target, mode.Perm()|mode&(os.ModeSetuid|os.ModeSetgid|os.ModeSticky)); err != nil {
		return err
	}
	if !hdr.ModTime.IsZero() {
		atime := hdr.AccessTime
		if atime.IsZero() {
			atime = hdr.ModTime
		}
		if err := os.Chtimes(target, atime, hdr.ModTime); err != nil {
			return err
		}
	}
	return nil
}

// chown restores ownership when running as root, which is the case inside
// the helper container. Failures are ignored; ownership is best effort.
func chown(target string, hdr *tar.Header) {
	if os.Geteuid() != 0 {
		return
	}
	_ = os.Lchown(target, hdr.Uid, hdr.Gid)
}

func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("clear %s: %w", e.Name(), err)
		}
	}
	return nil
}
