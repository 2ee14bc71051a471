package index

import "errors"

var (
	// ErrProjectNotFound is returned when no local version directory
	// exists for a project name.
	ErrProjectNotFound = errors.New("unknown project")

	// ErrVersionNotFound is returned when a requested version does not
	// exist exactly; no nearest-match resolution is performed.
	ErrVersionNotFound = errors.New("unknown version")

	// ErrFileNotFound is returned for a missing distribution file.
	ErrFileNotFound = errors.New("requested file does not exist")

	// ErrDuplicateFile is returned when publishing a (name, version,
	// filename) triple that already exists. Published files are immutable.
	ErrDuplicateFile = errors.New("cannot overwrite an existing version of a package")

	// ErrInvalidUpload is returned when an upload is missing required
	// identifying metadata, or a name, version or filename carries path
	// syntax instead of a plain component.
	ErrInvalidUpload = errors.New("upload requires a plain name, version and filename")
)
