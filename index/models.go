package index

import (
	"fmt"
	"time"
)

const apiVersion = "1.1"

// APIMeta is the simple-repository-API response header block.
type APIMeta struct {
	APIVersion string `json:"api-version"`
}

func NewAPIMeta() APIMeta {
	return APIMeta{APIVersion: apiVersion}
}

type ProjectRef struct {
	Name string `json:"name"`
}

// ProjectList is the simple-API project index: local projects only, so
// proxied upstream content never duplicates into discovery.
type ProjectList struct {
	Meta     APIMeta      `json:"meta"`
	Projects []ProjectRef `json:"projects"`
}

type Digests struct {
	MD5    string `json:"md5,omitempty"`
	SHA256 string `json:"sha256,omitempty"`
}

// FileLink is one downloadable file in the simple-API project detail.
type FileLink struct {
	Filename       string  `json:"filename"`
	URL            string  `json:"url"`
	Hashes         Digests `json:"hashes"`
	RequiresPython *string `json:"requires-python,omitempty"`
	DistInfoMeta   *bool   `json:"dist-info-metadata,omitempty"`
	Yanked         *bool   `json:"yanked,omitempty"`
}

// SimpleDetail is the simple-API project detail: every file across every
// version.
type SimpleDetail struct {
	Meta  APIMeta    `json:"meta"`
	Name  string     `json:"name"`
	Files []FileLink `json:"files"`
}

// Info is the project metadata block of the JSON-API document, populated
// from the resolved version's sidecar fields.
type Info struct {
	Author                 string   `json:"author,omitempty"`
	AuthorEmail            string   `json:"author_email,omitempty"`
	Classifiers            []string `json:"classifiers,omitempty"`
	Description            string   `json:"description,omitempty"`
	DescriptionContentType string   `json:"description_content_type,omitempty"`
	DownloadURL            string   `json:"download_url,omitempty"`
	HomePage               string   `json:"home_page,omitempty"`
	Keywords               string   `json:"keywords,omitempty"`
	License                string   `json:"license,omitempty"`
	Maintainer             string   `json:"maintainer,omitempty"`
	MaintainerEmail        string   `json:"maintainer_email,omitempty"`
	Name                   string   `json:"name"`
	Platform               []string `json:"platform,omitempty"`
	ProjectURLs            []string `json:"project_urls,omitempty"`
	RequiresDist           []string `json:"requires_dist,omitempty"`
	RequiresPython         string   `json:"requires_python,omitempty"`
	Summary                string   `json:"summary,omitempty"`
	Version                string   `json:"version"`
}

// ReleaseFile is one file entry in the JSON-API document.
type ReleaseFile struct {
	CommentText    string    `json:"comment_text,omitempty"`
	Digests        Digests   `json:"digests"`
	Filename       string    `json:"filename"`
	Packagetype    string    `json:"packagetype,omitempty"`
	PythonVersion  string    `json:"python_version,omitempty"`
	RequiresPython string    `json:"requires_python,omitempty"`
	Size           int64     `json:"size,omitempty"`
	UploadTime     time.Time `json:"upload_time"`
	URL            string    `json:"url"`
}

// Doc is the JSON-API package document. Local is false for documents
// reshaped from upstream mirrors.
type Doc struct {
	Info            Info          `json:"info"`
	URLs            []ReleaseFile `json:"urls"`
	Vulnerabilities []any         `json:"vulnerabilities"`
	Versions        []string      `json:"versions,omitempty"`
	Local           bool          `json:"local"`
}

func fileURL(urlBase string, meta *FileMetadata) string {
	return fmt.Sprintf("%s/files/%s/%s/%s", urlBase, meta.Name, meta.Version, meta.Filename)
}

func fileLinkFromMeta(meta *FileMetadata, urlBase string) FileLink {
	link := FileLink{
		Filename: meta.Filename,
		URL:      fileURL(urlBase, meta),
		Hashes:   Digests{MD5: meta.MD5Digest, SHA256: meta.SHA256Digest},
	}
	if meta.RequiresPython != "" {
		requires := meta.RequiresPython
		link.RequiresPython = &requires
	}
	hasMeta := true
	link.DistInfoMeta = &hasMeta

	return link
}

func releaseFileFromMeta(meta *FileMetadata, urlBase string) ReleaseFile {
	return ReleaseFile{
		CommentText:    meta.Comment,
		Digests:        Digests{MD5: meta.MD5Digest, SHA256: meta.SHA256Digest},
		Filename:       meta.Filename,
		Packagetype:    meta.Filetype,
		PythonVersion:  meta.PyVersion,
		RequiresPython: meta.RequiresPython,
		Size:           meta.Size,
		UploadTime:     meta.UploadTime,
		URL:            fileURL(urlBase, meta),
	}
}

func infoFromMeta(meta *FileMetadata) Info {
	return Info{
		Author:                 meta.Author,
		AuthorEmail:            meta.AuthorEmail,
		Classifiers:            meta.Classifiers,
		Description:            meta.Description,
		DescriptionContentType: meta.DescriptionContentType,
		DownloadURL:            meta.DownloadURL,
		HomePage:               meta.HomePage,
		Keywords:               meta.Keywords,
		License:                meta.License,
		Maintainer:             meta.Maintainer,
		MaintainerEmail:        meta.MaintainerEmail,
		Name:                   meta.Name,
		Platform:               meta.Platform,
		ProjectURLs:            meta.ProjectURLs,
		RequiresDist:           meta.RequiresDist,
		RequiresPython:         meta.RequiresPython,
		Summary:                meta.Summary,
		Version:                meta.Version,
	}
}
