// Package version exposes build information for the dwarf2db binary.
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the semantic version (set by build flags).
	Version = "dev"

	// GitCommit is the git commit hash (set by build flags).
	GitCommit = "unknown"

	// BuildDate is the build timestamp (set by build flags).
	BuildDate = "unknown"

	// GoVersion is the Go version used to build.
	GoVersion = runtime.Version()
)

// String returns a single-line version summary.
func String() string {
	return fmt.Sprintf("dwarf2db %s (commit %s, built %s, %s)", Version, GitCommit, BuildDate, GoVersion)
}
