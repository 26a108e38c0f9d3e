// Package version exposes build metadata set via ldflags.
package version

import (
	"fmt"
	"runtime"
)

// Set via ldflags at build time:
//
//	go build -ldflags "-X github.com/soyeahso/maestro/internal/version.Version=0.3.0
//	  -X github.com/soyeahso/maestro/internal/version.Commit=abc123
//	  -X github.com/soyeahso/maestro/internal/version.Date=2026-10-01"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info returns a formatted version string.
func Info() string {
	return fmt.Sprintf("maestro %s (commit: %s, built: %s, %s/%s)",
		Version, Short(), Date, runtime.GOOS, runtime.GOARCH)
}

// Short returns the abbreviated commit hash.
func Short() string {
	if len(Commit) > 7 {
		return Commit[:7]
	}
	return Commit
}
