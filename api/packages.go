package api

import (
	"crypto/md5" //nolint:gosec // digest compatibility, not security
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"package-registry/auth"
	"package-registry/index"
)

const simpleContentType = "application/vnd.pypi.simple.v1+json"

// urlBase reconstructs the externally visible prefix so file links in
// responses point back at this server.
func (s *Server) urlBase(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}

	return scheme + "://" + c.Request.Host + strings.TrimSuffix(s.cfg.API.PathBase, "/")
}

// viewAccess reports whether the principal may read the project at all.
func (s *Server) viewAccess(c *gin.Context, project string) (bool, error) {
	_, ok, err := s.resolver.AccessLevel(c.Request.Context(), principal(c), project)

	return ok, err
}

// listPackages returns the simple-API project index. Only projects the
// caller can view are listed; everything else stays invisible.
func (s *Server) listPackages(c *gin.Context) {
	names, err := s.idx.ListProjects(c.Request.Context())
	if err != nil {
		abortWithError(c, err, "project listing")

		return
	}

	list := index.ProjectList{
		Meta:     index.NewAPIMeta(),
		Projects: []index.ProjectRef{},
	}
	for _, name := range names {
		viewable, err := s.viewAccess(c, name)
		if err != nil {
			abortWithError(c, err, "project listing")

			return
		}
		if viewable {
			list.Projects = append(list.Projects, index.ProjectRef{Name: name})
		}
	}

	c.Header("Content-Type", simpleContentType)
	c.JSON(http.StatusOK, list)
}

// simpleDetail serves the simple-API project detail. Local projects need
// view access; misses fall through to the mirror chain unless ?local=true.
func (s *Server) simpleDetail(c *gin.Context) {
	name := c.Param("name")
	localOnly, _ := strconv.ParseBool(c.DefaultQuery("local", "false"))

	detail, err := s.idx.SimpleDetail(c.Request.Context(), name, s.urlBase(c))
	if err == nil {
		viewable, aerr := s.viewAccess(c, name)
		if aerr != nil {
			abortWithError(c, aerr, "project detail")

			return
		}
		if !viewable {
			// Indistinguishable from a project that does not exist.
			abortWithError(c, index.ErrProjectNotFound, "project detail")

			return
		}

		c.Header("Content-Type", simpleContentType)
		c.JSON(http.StatusOK, detail)

		return
	}

	if errors.Is(err, index.ErrProjectNotFound) && !localOnly && s.fed.Enabled() {
		remote, ferr := s.fed.SimpleDetail(c.Request.Context(), name)
		if ferr == nil {
			c.Header("Content-Type", simpleContentType)
			c.JSON(http.StatusOK, remote)

			return
		}
	}

	abortWithError(c, err, "project detail")
}

// packageDetail serves the JSON-API package document. An absent :version
// resolves to the latest local release. ?local=true disables federation.
func (s *Server) packageDetail(c *gin.Context) {
	name := c.Param("name")
	version := c.Param("version")
	localOnly, _ := strconv.ParseBool(c.DefaultQuery("local", "false"))

	ctx := c.Request.Context()
	doc, err := s.idx.Detail(ctx, name, version, s.urlBase(c))
	if err == nil {
		viewable, aerr := s.viewAccess(c, name)
		if aerr != nil {
			abortWithError(c, aerr, "package detail")

			return
		}
		if !viewable {
			abortWithError(c, index.ErrProjectNotFound, "package detail")

			return
		}

		c.JSON(http.StatusOK, doc)

		return
	}

	missing := errors.Is(err, index.ErrProjectNotFound) ||
		errors.Is(err, index.ErrVersionNotFound)
	if missing && !localOnly && s.fed.Enabled() {
		if errors.Is(err, index.ErrVersionNotFound) {
			// The project itself is local; keep it hidden from principals
			// without view access instead of consulting mirrors.
			viewable, aerr := s.viewAccess(c, name)
			if aerr != nil {
				abortWithError(c, aerr, "package detail")

				return
			}
			if !viewable {
				abortWithError(c, index.ErrProjectNotFound, "package detail")

				return
			}
		}

		remote, ferr := s.fed.Detail(ctx, name, version)
		if ferr == nil {
			c.JSON(http.StatusOK, remote)

			return
		}
	}

	abortWithError(c, err, "package detail")
}

// uploadPackage accepts one distribution file in the legacy multipart
// upload format. Publishing to an existing project needs edit access;
// introducing a new project needs the server-wide create permission.
func (s *Server) uploadPackage(c *gin.Context) {
	meta, content, err := parseUploadForm(c)
	if err != nil {
		abortWithError(c, err, "package upload")

		return
	}

	ctx := c.Request.Context()
	allowed, err := s.mayPublish(c, meta.Name)
	if err != nil {
		abortWithError(c, err, "package upload")

		return
	}
	if !allowed {
		abortWithError(
			c,
			errForbidden("You are not permitted to publish this package."),
			"package upload",
		)

		return
	}

	if err := s.idx.Publish(ctx, meta, content); err != nil {
		abortWithError(c, err, "package upload")

		return
	}

	c.Status(http.StatusOK)
}

// mayPublish applies the upload rule: edit on the project when it already
// exists, otherwise the server-wide create permission.
func (s *Server) mayPublish(c *gin.Context, name string) (bool, error) {
	ctx := c.Request.Context()
	p := principal(c)

	_, err := s.idx.ListVersions(ctx, name)
	switch {
	case err == nil:
		level, ok, aerr := s.resolver.AccessLevel(ctx, p, name)
		if aerr != nil {
			return false, aerr
		}

		return ok && level.Covers(auth.PermEdit), nil
	case errors.Is(err, index.ErrProjectNotFound):
		return s.resolver.HasServerPermission(ctx, p, auth.PermCreate)
	default:
		return false, err
	}
}

// parseUploadForm maps the multipart legacy-upload fields onto the sidecar
// descriptor and reads the distribution blob. Missing client digests are
// computed server-side.
func parseUploadForm(c *gin.Context) (*index.FileMetadata, []byte, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, nil, errValidation("A multipart upload form is required.")
	}

	first := func(key string) string {
		values := form.Value[key]
		if len(values) == 0 {
			return ""
		}

		return values[0]
	}

	meta := &index.FileMetadata{
		MetadataVersion:        first("metadata_version"),
		Name:                   first("name"),
		Version:                first("version"),
		Platform:               form.Value["platform"],
		SupportedPlatform:      form.Value["supported_platform"],
		Summary:                first("summary"),
		Description:            first("description"),
		DescriptionContentType: first("description_content_type"),
		Keywords:               first("keywords"),
		HomePage:               first("home_page"),
		DownloadURL:            first("download_url"),
		Author:                 first("author"),
		AuthorEmail:            first("author_email"),
		Maintainer:             first("maintainer"),
		MaintainerEmail:        first("maintainer_email"),
		License:                first("license"),
		Classifiers:            form.Value["classifiers"],
		RequiresDist:           form.Value["requires_dist"],
		RequiresPython:         first("requires_python"),
		RequiresExternal:       form.Value["requires_external"],
		ProjectURLs:            form.Value["project_urls"],
		ProvidesDist:           form.Value["provides_dist"],
		ObsoletesDist:          form.Value["obsoletes_dist"],
		Comment:                first("comment"),
		Filetype:               first("filetype"),
		MD5Digest:              first("md5_digest"),
		SHA256Digest:           first("sha256_digest"),
		Blake2_256Digest:       first("blake2_256_digest"),
		PyVersion:              first("pyversion"),
		UploadTime:             time.Now().UTC(),
	}

	files := form.File["content"]
	if len(files) == 0 {
		return nil, nil, errValidation("The upload must include a content file.")
	}
	header := files[0]
	meta.Filename = header.Filename
	meta.Size = header.Size

	file, err := header.Open()
	if err != nil {
		return nil, nil, errValidation("The uploaded file could not be read.")
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, nil, errValidation("The uploaded file could not be read.")
	}

	if meta.MD5Digest == "" {
		digest := md5.Sum(content) //nolint:gosec
		meta.MD5Digest = hex.EncodeToString(digest[:])
	}
	if meta.SHA256Digest == "" {
		digest := sha256.Sum256(content)
		meta.SHA256Digest = hex.EncodeToString(digest[:])
	}

	return meta, content, nil
}
