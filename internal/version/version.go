// Package version provides build and version information for novelgraph.
package version

import "fmt"

// Version is the current release version of novelgraph.
// This can be overridden at build time using:
//
//	go build -ldflags "-X github.com/xchatlife/novelgraph/internal/version.Version=x.y.z"
var Version = "0.3.0"

// Commit is the source revision, set at build time like Version.
var Commit = "dev"

// String formats the version for CLI output.
func String() string {
	return fmt.Sprintf("novelgraph %s (%s)", Version, Commit)
}
