// Package version holds build metadata, set with -ldflags at release time.
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

// String renders the one-line banner printed by "bedmesh version".
func String() string {
	return fmt.Sprintf("bedmesh %s (commit %s, built %s)", Version, GitSHA, BuildTime)
}
