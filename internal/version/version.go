// Package version carries build identification for the forest service.
// The variables are overridden at link time:
//
//	go build -ldflags "-X .../internal/version.Version=v1.2.0 \
//	    -X .../internal/version.GitSHA=$(git rev-parse --short HEAD) \
//	    -X .../internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
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

// String returns a single-line build description for startup logs and the
// config endpoint.
func String() string {
	return fmt.Sprintf("%s (%s, built %s)", Version, GitSHA, BuildTime)
}
