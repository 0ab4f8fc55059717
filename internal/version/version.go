// Package version holds the build version, overridable at link time with
// -ldflags "-X github.com/saworbit/logkeeper/internal/version.Version=...".
package version

var Version = "0.4.0"
