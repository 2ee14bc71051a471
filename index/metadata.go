package index

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FileMetadata is the full upload descriptor persisted as a {filename}.json
// sidecar next to the distribution blob. Field set follows the PyPI legacy
// upload API.
type FileMetadata struct {
	MetadataVersion        string    `json:"metadata_version"`
	Name                   string    `json:"name"`
	Version                string    `json:"version"`
	Platform               []string  `json:"platform,omitempty"`
	SupportedPlatform      []string  `json:"supported_platform,omitempty"`
	Summary                string    `json:"summary,omitempty"`
	Description            string    `json:"description,omitempty"`
	DescriptionContentType string    `json:"description_content_type,omitempty"`
	Keywords               string    `json:"keywords,omitempty"`
	HomePage               string    `json:"home_page,omitempty"`
	DownloadURL            string    `json:"download_url,omitempty"`
	Author                 string    `json:"author,omitempty"`
	AuthorEmail            string    `json:"author_email,omitempty"`
	Maintainer             string    `json:"maintainer,omitempty"`
	MaintainerEmail        string    `json:"maintainer_email,omitempty"`
	License                string    `json:"license,omitempty"`
	Classifiers            []string  `json:"classifiers,omitempty"`
	RequiresDist           []string  `json:"requires_dist,omitempty"`
	RequiresPython         string    `json:"requires_python,omitempty"`
	RequiresExternal       []string  `json:"requires_external,omitempty"`
	ProjectURLs            []string  `json:"project_urls,omitempty"`
	ProvidesDist           []string  `json:"provides_dist,omitempty"`
	ObsoletesDist          []string  `json:"obsoletes_dist,omitempty"`
	Comment                string    `json:"comment,omitempty"`
	Filetype               string    `json:"filetype,omitempty"`
	MD5Digest              string    `json:"md5_digest,omitempty"`
	SHA256Digest           string    `json:"sha256_digest,omitempty"`
	Blake2_256Digest       string    `json:"blake2_256_digest,omitempty"`
	PyVersion              string    `json:"pyversion,omitempty"`
	Filename               string    `json:"filename"`
	Size                   int64     `json:"size,omitempty"`
	UploadTime             time.Time `json:"upload_time"`
}

func parseSidecar(content []byte) (*FileMetadata, error) {
	meta := &FileMetadata{}
	if err := json.Unmarshal(content, meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata sidecar: %w", err)
	}

	return meta, nil
}

func (m *FileMetadata) encode() ([]byte, error) {
	content, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata sidecar: %w", err)
	}

	return content, nil
}

// AsMetadata renders the descriptor in the core-metadata key:value text
// format served for {filename}.metadata requests. Repeated fields emit one
// line per value; Project-URL and Classifier keep their spec names instead
// of the mechanical title-casing.
func (m *FileMetadata) AsMetadata() string {
	var b strings.Builder

	writeOne := func(key, value string) {
		if value != "" {
			b.WriteString(key + ": " + value + "\n")
		}
	}
	writeMany := func(key string, values []string) {
		for _, value := range values {
			writeOne(key, value)
		}
	}

	writeOne("Metadata-Version", m.MetadataVersion)
	writeOne("Name", m.Name)
	writeOne("Version", m.Version)
	writeMany("Platform", m.Platform)
	writeMany("Supported-Platform", m.SupportedPlatform)
	writeOne("Summary", m.Summary)
	writeOne("Description", m.Description)
	writeOne("Description-Content-Type", m.DescriptionContentType)
	writeOne("Keywords", m.Keywords)
	writeOne("Home-Page", m.HomePage)
	writeOne("Download-Url", m.DownloadURL)
	writeOne("Author", m.Author)
	writeOne("Author-Email", m.AuthorEmail)
	writeOne("Maintainer", m.Maintainer)
	writeOne("Maintainer-Email", m.MaintainerEmail)
	writeOne("License", m.License)
	writeMany("Classifier", m.Classifiers)
	writeMany("Requires-Dist", m.RequiresDist)
	writeOne("Requires-Python", m.RequiresPython)
	writeMany("Requires-External", m.RequiresExternal)
	writeMany("Project-URL", m.ProjectURLs)
	writeMany("Provides-Dist", m.ProvidesDist)
	writeMany("Obsoletes-Dist", m.ObsoletesDist)
	writeOne("Comment", m.Comment)
	writeOne("Filetype", m.Filetype)
	writeOne("Md5-Digest", m.MD5Digest)
	writeOne("Sha256-Digest", m.SHA256Digest)
	writeOne("Pyversion", m.PyVersion)
	writeOne("Filename", m.Filename)
	if !m.UploadTime.IsZero() {
		writeOne("Upload-Time", m.UploadTime.Format(time.RFC3339))
	}

	return b.String()
}
