// Computercraft CI/CD
//
// Package main provides reproducible builds and tests locally and in GitHub actions.
// It is the main harness for handling nearly all dev operations.
package main

import (
	"context"

	"dagger/computercraft/internal/dagger"
)

// Computercraft is the main module for the computercraft CI/CD pipeline
type Computercraft struct {
	// Project source directory
	//
	// +private
	Source *dagger.Directory
}

// New creates a new Computercraft CI/CD module instance
func New(
	// Project source directory.
	//
	// +defaultPath="/"
	// +ignore=[".git", ".direnv", ".devenv", "build", "tmp"]
	source *dagger.Directory,
) *Computercraft {
	return &Computercraft{
		Source: source,
	}
}

// goContainer returns a Go container with the project source mounted and the
// module and build caches shared between runs.
//
// It is the shared foundation for tests, builds, and linting.
func (c *Computercraft) goContainer() *dagger.Container {
	return dag.Container().
		From("golang:1.25-bookworm").
		WithEnvVariable("PATH", "/go/bin:$PATH", dagger.ContainerWithEnvVariableOpts{Expand: true}).
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build")).
		WithWorkdir("/src").
		WithDirectory("/src", c.Source)
}

// Test runs the computercraft unit tests via "go test"
func (c *Computercraft) Test(ctx context.Context) (string, error) {
	return c.goContainer().
		WithExec([]string{"go", "test", "-v", "./..."}).
		Stdout(ctx)
}
