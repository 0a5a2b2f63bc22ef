// Package version holds the build-time version string reported by the
// --version flag.
package version

// Version is overridden at build time via -ldflags "-X mcpsentry/internal/version.Version=...".
var Version = "dev"
