// Package version holds build metadata injected with -ldflags.
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String returns a one-line description for -version output and logs.
func String() string {
	return fmt.Sprintf("nearfilter %s (commit %s, built %s)", Version, GitSHA, BuildTime)
}
