// Package version holds build identity injected through ldflags. The
// georef binary prints it for -version and the API reports it on
// /api/health.
package version

var (
	// Version is the release tag, or "dev" for local builds.
	Version = "dev"
	// GitSHA is the git commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)
