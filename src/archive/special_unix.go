//go:build linux || darwin

package archive

import (
	"archive/tar"
	"os"

	"golang.org/x/sys/unix"
)

// makeSpecial creates the fifo or device node hdr describes.
func makeSpecial(target string, hdr *tar.Header) error {
	perm := uint32(hdr.FileInfo().Mode().Perm())
	_ = os.Remove(target)
	dev := int(unix.Mkdev(uint32(hdr.Devmajor), uint32(hdr.Devminor)))
	switch hdr.Typeflag {
	case tar.TypeFifo:
		return unix.Mkfifo(target, perm)
	case tar.TypeChar:
		return unix.Mknod(target, unix.S_IFCHR|perm, dev)
	case tar.TypeBlock:
		return unix.Mknod(target, unix.S_IFBLK|perm, dev)
	}
	return unsupported(hdr)
}
