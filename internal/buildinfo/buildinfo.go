// Package buildinfo holds version metadata stamped into the binary at link time.
package buildinfo

import "fmt"

// Set with -ldflags "-X" on release builds.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// String formats the build metadata for startup banners.
func String() string {
	return fmt.Sprintf("NowPlaying Version: %s, Commit: %s, BuiltAt: %s", Version, Commit, BuildDate)
}

// UserAgent is sent on outbound HTTP requests.
func UserAgent() string {
	return "NowPlaying/" + Version
}
