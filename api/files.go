package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"package-registry/index"
)

const metadataSuffix = ".metadata"

// downloadFile serves a stored distribution blob, or its core-metadata
// rendering when the filename carries the .metadata suffix. Access follows
// the project read rule: no view grant means the file does not exist.
func (s *Server) downloadFile(c *gin.Context) {
	name := c.Param("name")
	version := c.Param("version")
	filename := c.Param("filename")

	viewable, err := s.viewAccess(c, name)
	if err != nil {
		abortWithError(c, err, "file download")

		return
	}
	if !viewable {
		abortWithError(c, index.ErrFileNotFound, "file download")

		return
	}

	ctx := c.Request.Context()
	if stripped, ok := strings.CutSuffix(filename, metadataSuffix); ok {
		meta, err := s.idx.Metadata(ctx, name, version, stripped)
		if err != nil {
			abortWithError(c, err, "file download")

			return
		}

		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(meta.AsMetadata()))

		return
	}

	content, err := s.idx.File(ctx, name, version, filename)
	if err != nil {
		abortWithError(c, err, "file download")

		return
	}

	c.Data(http.StatusOK, "application/octet-stream", content)
}
