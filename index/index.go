// Package index implements the local package index: versioned distribution
// files on a blob store, each with a JSON metadata sidecar, discovered and
// ordered by PEP 440 precedence.
package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"package-registry/storage"
)

const sidecarSuffix = ".json"

// Index answers version/file queries over a blob store and publishes new
// files. Listing and detail views are pure projections over sidecar state.
type Index struct {
	store storage.Store

	// publishMu serializes publishes per (name, version) so the duplicate
	// check and the write cannot interleave for the same triple.
	mu        sync.Mutex
	publishMu map[string]*sync.Mutex
}

func New(store storage.Store) *Index {
	return &Index{store: store, publishMu: make(map[string]*sync.Mutex)}
}

// Release is one resolved version of a project.
type Release struct {
	Name    string
	Version string
	Files   []*FileMetadata
}

// ListProjects enumerates local project names.
func (ix *Index) ListProjects(ctx context.Context) ([]string, error) {
	names, err := ix.store.ListProjects(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	return names, nil
}

// ListVersions returns the project's versions in descending PEP 440 order.
func (ix *Index) ListVersions(ctx context.Context, name string) ([]string, error) {
	if !validSegment(name) {
		return nil, ErrProjectNotFound
	}

	versions, err := ix.store.ListVersions(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrProjectNotFound
		}

		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	if len(versions) == 0 {
		return nil, ErrProjectNotFound
	}

	return sortVersionsDesc(versions), nil
}

// Resolve selects a version of the project: the exact one when given, the
// highest final release when empty. Pre-releases resolve implicitly only
// when the project has nothing else.
func (ix *Index) Resolve(ctx context.Context, name, version string) (*Release, error) {
	versions, err := ix.ListVersions(ctx, name)
	if err != nil {
		return nil, err
	}

	if version == "" {
		version = latestVersion(versions)
	} else {
		found := false
		for _, v := range versions {
			if v == version {
				found = true

				break
			}
		}
		if !found {
			return nil, ErrVersionNotFound
		}
	}

	files, err := ix.Files(ctx, name, version)
	if err != nil {
		return nil, err
	}

	return &Release{Name: name, Version: version, Files: files}, nil
}

// Files loads every sidecar of one project version. A blob without a
// sidecar is skipped: it was never fully published.
func (ix *Index) Files(ctx context.Context, name, version string) ([]*FileMetadata, error) {
	if !validSegment(name) || !validSegment(version) {
		return nil, ErrVersionNotFound
	}

	entries, err := ix.store.ListFiles(ctx, name, version)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrVersionNotFound
		}

		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	present := make(map[string]bool, len(entries))
	for _, entry := range entries {
		present[entry] = true
	}

	var files []*FileMetadata
	for _, entry := range entries {
		if strings.HasSuffix(entry, sidecarSuffix) {
			continue
		}
		if !present[entry+sidecarSuffix] {
			continue
		}

		meta, err := ix.Metadata(ctx, name, version, entry)
		if err != nil {
			log.Warn().
				Err(err).
				Str("project", name).
				Str("version", version).
				Str("filename", entry).
				Msg("skipping file with unreadable sidecar")

			continue
		}
		files = append(files, meta)
	}

	return files, nil
}

// Metadata loads one file's sidecar descriptor.
func (ix *Index) Metadata(
	ctx context.Context,
	name, version, filename string,
) (*FileMetadata, error) {
	if !validSegment(name) || !validSegment(version) || !validSegment(filename) {
		return nil, ErrFileNotFound
	}

	content, err := ix.store.Get(ctx, name, version, filename+sidecarSuffix)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrFileNotFound
		}

		return nil, fmt.Errorf("failed to read sidecar: %w", err)
	}

	return parseSidecar(content)
}

// File returns the raw distribution bytes.
func (ix *Index) File(
	ctx context.Context,
	name, version, filename string,
) ([]byte, error) {
	if !validSegment(name) || !validSegment(version) || !validSegment(filename) {
		return nil, ErrFileNotFound
	}

	content, err := ix.store.Get(ctx, name, version, filename)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrFileNotFound
		}

		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return content, nil
}

// Publish stores one distribution file and its sidecar. A (name, version,
// filename) triple that already exists is a conflict regardless of content;
// published files are immutable.
func (ix *Index) Publish(ctx context.Context, meta *FileMetadata, content []byte) error {
	if err := validateUpload(meta); err != nil {
		return err
	}

	unlock := ix.lockVersion(meta.Name + "/" + meta.Version)
	defer unlock()

	exists, err := ix.store.Exists(ctx, meta.Name, meta.Version, meta.Filename)
	if err != nil {
		return fmt.Errorf("failed to check for existing file: %w", err)
	}
	if exists {
		return ErrDuplicateFile
	}

	if err := ix.store.Put(ctx, meta.Name, meta.Version, meta.Filename, content); err != nil {
		return fmt.Errorf("failed to store file: %w", err)
	}

	sidecar, err := meta.encode()
	if err != nil {
		return err
	}
	if err := ix.store.Put(
		ctx, meta.Name, meta.Version, meta.Filename+sidecarSuffix, sidecar,
	); err != nil {
		return fmt.Errorf("failed to store sidecar: %w", err)
	}

	log.Info().
		Str("project", meta.Name).
		Str("version", meta.Version).
		Str("filename", meta.Filename).
		Msg("published file")

	return nil
}

// SimpleDetail projects every file across every version into the simple-API
// detail shape.
func (ix *Index) SimpleDetail(
	ctx context.Context,
	name, urlBase string,
) (*SimpleDetail, error) {
	versions, err := ix.ListVersions(ctx, name)
	if err != nil {
		return nil, err
	}

	detail := &SimpleDetail{Meta: NewAPIMeta(), Name: name, Files: []FileLink{}}
	for _, version := range versions {
		files, err := ix.Files(ctx, name, version)
		if err != nil {
			return nil, err
		}
		for _, meta := range files {
			detail.Files = append(detail.Files, fileLinkFromMeta(meta, urlBase))
		}
	}

	return detail, nil
}

// Detail projects the resolved version into the JSON-API document, with the
// full descending version list attached.
func (ix *Index) Detail(
	ctx context.Context,
	name, version, urlBase string,
) (*Doc, error) {
	release, err := ix.Resolve(ctx, name, version)
	if err != nil {
		return nil, err
	}
	versions, err := ix.ListVersions(ctx, name)
	if err != nil {
		return nil, err
	}

	doc := &Doc{
		URLs:            []ReleaseFile{},
		Vulnerabilities: []any{},
		Versions:        versions,
		Local:           true,
	}
	if len(release.Files) > 0 {
		doc.Info = infoFromMeta(release.Files[0])
	} else {
		doc.Info = Info{Name: name, Version: release.Version}
	}
	for _, meta := range release.Files {
		doc.URLs = append(doc.URLs, releaseFileFromMeta(meta, urlBase))
	}

	return doc, nil
}

func (ix *Index) lockVersion(key string) func() {
	ix.mu.Lock()
	lock, ok := ix.publishMu[key]
	if !ok {
		lock = &sync.Mutex{}
		ix.publishMu[key] = lock
	}
	ix.mu.Unlock()

	lock.Lock()

	return lock.Unlock
}
