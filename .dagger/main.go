// Piecefinder CI/CD
//
// Package main provides reproducible builds and tests locally and in GitHub actions.
// It is the main harness for handling nearly all dev operations.
package main

import (
	"context"

	"dagger/piecefinder/internal/dagger"
)

// Piecefinder is the main module for the Piecefinder CI/CD pipeline
type Piecefinder struct {
	// Project source directory
	//
	// +private
	Source *dagger.Directory
}

// New creates a new Piecefinder CI/CD module instance
func New(
	// Project source directory.
	//
	// +defaultPath="/"
	// +ignore=[".git", ".direnv", ".devenv", "build", "tmp"]
	source *dagger.Directory,
) *Piecefinder {
	return &Piecefinder{
		Source: source,
	}
}

// goContainer returns a Debian Bookworm-based Go container with gcc,
// libsqlite3-dev, the OpenCV dev headers gocv builds against, CGO enabled,
// and the project source mounted.
//
// It is the shared foundation for tests, builds, and linting.
func (p *Piecefinder) goContainer() *dagger.Container {
	return dag.Container().
		From("golang:1.24-bookworm").
		WithExec([]string{"apt-get", "update"}).
		WithExec([]string{"apt-get", "install", "-y", "gcc", "libsqlite3-dev", "libopencv-dev", "libopencv-contrib-dev"}).
		WithEnvVariable("CGO_ENABLED", "1").
		WithEnvVariable("PATH", "/go/bin:$PATH", dagger.ContainerWithEnvVariableOpts{Expand: true}).
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build")).
		WithWorkdir("/src").
		WithDirectory("/src", p.Source)
}

// Test runs the piecefinder unit tests via "go test"
func (p *Piecefinder) Test(ctx context.Context) (string, error) {
	return p.goContainer().
		WithExec([]string{"go", "test", "-v", "./..."}).
		Stdout(ctx)
}
