//go:build !linux && !darwin

package archive

import "archive/tar"

func makeSpecial(_ string, hdr *tar.Header) error {
	return unsupported(hdr)
}
