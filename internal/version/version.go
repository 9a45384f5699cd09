// Package version exposes build metadata for the trellis host.
package version

import (
	"fmt"
	"runtime"
)

// Set via ldflags at build time:
//
//	go build -ldflags "-X github.com/soyeahso/trellis/internal/version.Version=1.0.0
//	  -X github.com/soyeahso/trellis/internal/version.Commit=abc123
//	  -X github.com/soyeahso/trellis/internal/version.Date=2026-01-01"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// APIVersion is the version of the plugin contract exposed by this build.
const APIVersion = "1.0.0"

// Info returns a formatted version string.
func Info() string {
	return fmt.Sprintf("trellis %s (commit: %s, built: %s, plugin api %s, %s/%s)",
		Version, short(Commit), Date, APIVersion, runtime.GOOS, runtime.GOARCH)
}

func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
