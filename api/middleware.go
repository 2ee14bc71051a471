package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"package-registry/auth"
)

const principalKey = "registry.principal"

// requestLogger emits one structured event per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request handled")
	}
}

// authenticate resolves the Authorization header into a Principal and stores
// it on the request context. With the auth feature disabled every request
// acts as the administrator.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.cfg.Features.Auth {
			c.Set(principalKey, auth.Admin{Username: s.cfg.Auth.Admin.Username})
			c.Next()

			return
		}

		principal, err := s.authn.Authenticate(
			c.Request.Context(),
			c.GetHeader("Authorization"),
		)
		if err != nil {
			abortWithError(c, err, "authentication")

			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// guardAuthEnabled hides the account surface entirely when the auth feature
// is switched off.
func (s *Server) guardAuthEnabled() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.cfg.Features.Auth {
			c.AbortWithStatusJSON(
				http.StatusNotFound,
				gin.H{"detail": "Not Found"},
			)

			return
		}

		c.Next()
	}
}

// principal returns the Principal the auth middleware attached.
func principal(c *gin.Context) auth.Principal {
	value, ok := c.Get(principalKey)
	if !ok {
		return auth.Anonymous{}
	}
	p, ok := value.(auth.Principal)
	if !ok {
		return auth.Anonymous{}
	}

	return p
}

// requireAdmin aborts with 403 unless the principal's effective permissions
// include meta.admin.
func (s *Server) requireAdmin(c *gin.Context) bool {
	isAdmin, err := s.resolver.IsAdmin(c.Request.Context(), principal(c))
	if err != nil {
		abortWithError(c, err, "permission resolution")

		return false
	}
	if !isAdmin {
		abortWithError(
			c,
			errForbidden("Administrative access is required."),
			"authorization",
		)

		return false
	}

	return true
}
