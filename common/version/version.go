// Package version holds build metadata injected with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/f9global/ferret9/common/version.Version=v1.2.0"
package version

import "log/slog"

var (
	Version   = "v0.0.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// String is the one-line form printed by "ferret9 version".
func String() string {
	return "ferret9 " + Version + " (" + GitCommit + ", built " + BuildTime + ")"
}

// Attr groups the build metadata for structured logs.
func Attr() slog.Attr {
	return slog.Group("build",
		"version", Version,
		"commit", GitCommit,
		"time", BuildTime,
	)
}
