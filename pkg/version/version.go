// Package version holds build information injected with -ldflags -X.
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the release version, "dev" for local builds.
	Version = "dev"

	// GitCommit is the commit the binaries were built from.
	GitCommit = "unknown"

	// BuildDate is the build timestamp.
	BuildDate = "unknown"

	// GoVersion is the Go toolchain used for the build.
	GoVersion = runtime.Version()
)

// String returns a one-line summary such as "dev (unknown, go1.25.0)".
func String() string {
	return fmt.Sprintf("%s (%s, %s)", Version, GitCommit, GoVersion)
}
