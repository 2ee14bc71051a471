package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FilesystemStore keeps distributions under root/index/{name}/{version}/
// {filename}. This is the persisted external layout; sidecar files written
// by the index layer live in the same directories.
type FilesystemStore struct {
	root string
}

// NewFilesystem creates the index root if absent.
func NewFilesystem(root string) (*FilesystemStore, error) {
	if !filepath.IsAbs(root) {
		wd, _ := os.Getwd()
		root = filepath.Join(wd, root)
	}

	//nolint:gosec,mnd // Directory permissions 0755 are intentional
	if err := os.MkdirAll(filepath.Join(root, "index"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	return &FilesystemStore{root: root}, nil
}

func (s *FilesystemStore) Put(
	_ context.Context,
	name, version, filename string,
	content []byte,
) error {
	dir := filepath.Join(s.root, "index", name, version)

	//nolint:gosec,mnd // Directory permissions 0755 are intentional
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create version directory: %w", err)
	}
	//nolint:mnd // filemode constant
	if err := os.WriteFile(filepath.Join(dir, filename), content, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

func (s *FilesystemStore) Get(
	_ context.Context,
	name, version, filename string,
) ([]byte, error) {
	//nolint:gosec // G304: path components are validated by the index layer
	content, err := os.ReadFile(filepath.Join(s.root, "index", name, version, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return content, nil
}

func (s *FilesystemStore) Exists(
	_ context.Context,
	name, version, filename string,
) (bool, error) {
	_, err := os.Stat(filepath.Join(s.root, "index", name, version, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to stat file: %w", err)
	}

	return true, nil
}

func (s *FilesystemStore) ListProjects(_ context.Context) ([]string, error) {
	return s.listDir(filepath.Join(s.root, "index"), true)
}

func (s *FilesystemStore) ListVersions(_ context.Context, name string) ([]string, error) {
	return s.listDir(filepath.Join(s.root, "index", name), true)
}

func (s *FilesystemStore) ListFiles(
	_ context.Context,
	name, version string,
) ([]string, error) {
	return s.listDir(filepath.Join(s.root, "index", name, version), false)
}

func (s *FilesystemStore) listDir(path string, dirsOnly bool) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("failed to list directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if dirsOnly && !entry.IsDir() {
			continue
		}
		if !dirsOnly && entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}

	return names, nil
}
