// Package version carries build metadata set via -ldflags, e.g.
//
//	-X github.com/banshee-data/area-monitor/internal/version.Version=v0.3.0
package version

import "fmt"

var (
	Version   = "dev"
	GitSHA    = "unknown"
	BuildTime = "unknown"
)

// String formats the build metadata for -version output and logs.
func String() string {
	return fmt.Sprintf("area-monitor %s (%s, built %s)", Version, GitSHA, BuildTime)
}
