// Package version carries the build version injected at link time.
package version

// Version is overridden via -ldflags "-X ...version.Version=v1.2.3".
var Version = "dev"
