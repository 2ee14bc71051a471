// Package storage holds the blob backends for distribution files. The index
// layer composes one of these with sidecar metadata; backends only move
// bytes and enumerate keys.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a project, version or file key is absent.
var ErrNotFound = errors.New("object not found")

// Store is the blob interface every backend implements. Keys are the
// (project, version, filename) triple of the on-disk index layout.
type Store interface {
	Put(ctx context.Context, name, version, filename string, content []byte) error
	Get(ctx context.Context, name, version, filename string) ([]byte, error)
	Exists(ctx context.Context, name, version, filename string) (bool, error)
	ListProjects(ctx context.Context) ([]string, error)
	ListVersions(ctx context.Context, name string) ([]string, error)
	ListFiles(ctx context.Context, name, version string) ([]string, error)
}
