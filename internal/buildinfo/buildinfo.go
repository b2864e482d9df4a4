// Package buildinfo carries version stamps injected with -ldflags.
package buildinfo

import (
	"fmt"
	"time"
)

// Set via -ldflags "-X github.com/xelth-com/examroom/internal/buildinfo.Version=..."
var (
	Version    = "dev"
	BuildTime  string // when the binary was compiled
	CommitHash string // short git commit hash
)

var started = time.Now().UTC()

// StartTime is when the process started, RFC 3339
var StartTime = started.Format(time.RFC3339)

// Uptime returns how long the process has been running
func Uptime() time.Duration {
	return time.Since(started).Truncate(time.Second)
}

// Summary is the one-line banner logged at startup
func Summary(component string) string {
	s := fmt.Sprintf("%s %s", component, Version)
	if CommitHash != "" {
		s += " (" + CommitHash + ")"
	}
	if BuildTime != "" {
		s += " built " + BuildTime
	}
	return s
}
