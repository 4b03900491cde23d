package version

// Version is the vsnap release. Overridden at build time with
// -ldflags "-X vsnap/src/version.Version=...".
var Version = "0.4.0"

// DefaultImage returns the helper image matching this build.
func DefaultImage() string {
	return "vsnap-runner:" + Version
}
