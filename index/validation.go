package index

import "strings"

// validSegment reports whether s can stand as a single path component of
// the backing store layout. Dot entries and separator characters would
// splice the lookup outside the project's own directory.
func validSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}

	return !strings.ContainsAny(s, "/\\")
}

// validateUpload checks the identifying triple before anything touches the
// store. Segments carrying path syntax are rejected, not joined.
func validateUpload(meta *FileMetadata) error {
	if meta == nil ||
		!validSegment(meta.Name) ||
		!validSegment(meta.Version) ||
		!validSegment(meta.Filename) {
		return ErrInvalidUpload
	}

	return nil
}
