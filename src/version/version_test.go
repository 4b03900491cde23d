package version_test

import (
	"strings"
	"testing"

	"vsnap/src/version"
)

func TestVersionNonEmpty(t *testing.T) {
	if version.Version == "" {
		t.Fatalf("version string must not be empty")
	}
}

func TestDefaultImageTracksVersion(t *testing.T) {
	if img := version.DefaultImage(); !strings.HasSuffix(img, ":"+version.Version) {
		t.Fatalf("default image %q does not carry version %q", img, version.Version)
	}
}
