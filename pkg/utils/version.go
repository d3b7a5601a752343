// Package utils holds small helpers shared across the module that have no
// better home.
package utils

// Build identity, stamped at release time via -ldflags -X (see
// .dagger/build.go). The zero values mark a local development build.
var (
	Version   = "dev"
	Sha       = "HEAD"
	Buildtime = "dev"
)
