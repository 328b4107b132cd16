// Package version carries build metadata set through -ldflags.
package version

import "fmt"

var (
	// Version is the release version of clpe-bridge
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build metadata for -version and the startup log.
func String() string {
	return fmt.Sprintf("clpe-bridge %s (git %s, built %s)", Version, GitSHA, BuildTime)
}
