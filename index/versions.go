package index

import (
	"regexp"
	"sort"

	pep440 "github.com/aquasecurity/go-pep440-version"
)

// sortVersionsDesc orders version strings by descending PEP 440 precedence:
// release segments compare numerically, pre-releases sort below and
// post-releases above the plain release. Unparseable strings sort below
// every valid version, amongst themselves lexicographically.
func sortVersionsDesc(versions []string) []string {
	type parsed struct {
		raw     string
		version pep440.Version
		valid   bool
	}

	items := make([]parsed, 0, len(versions))
	for _, raw := range versions {
		v, err := pep440.Parse(raw)
		items = append(items, parsed{raw: raw, version: v, valid: err == nil})
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch {
		case a.valid && b.valid:
			return b.version.LessThan(a.version)
		case a.valid:
			return true
		case b.valid:
			return false
		default:
			return a.raw > b.raw
		}
	})

	sorted := make([]string, len(items))
	for i, item := range items {
		sorted[i] = item.raw
	}

	return sorted
}

// preReleasePattern matches the PEP 440 pre-release and dev segments in any
// of their spelled variants (2.0a1, 2.0-alpha.1, 2.0rc1, 2.0.dev3, 2.0dev3).
var preReleasePattern = regexp.MustCompile(
	`(?i)\d[-_.]?(a|b|c|rc|alpha|beta|pre|preview)[-_.]?\d*|\d[-_.]?dev[-_.]?\d*`,
)

// latestVersion picks the version an unqualified lookup resolves to from a
// descending-sorted list: the highest final release. Pre-releases only win
// when no final release exists at all.
func latestVersion(sorted []string) string {
	for _, raw := range sorted {
		if _, err := pep440.Parse(raw); err != nil {
			continue
		}
		if !preReleasePattern.MatchString(raw) {
			return raw
		}
	}

	return sorted[0]
}
