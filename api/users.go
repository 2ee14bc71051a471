package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"package-registry/auth"
	"package-registry/orm"
)

// userTarget is the resolved subject of /users/:method/:value. The
// administrator is addressable but has no stored row.
type userTarget struct {
	admin bool
	user  *orm.User
}

// resolveUserTarget parses the lookup selector. An unknown method is a
// validation error; an unknown user is a miss. A false return means the
// request was already aborted.
func (s *Server) resolveUserTarget(c *gin.Context) (*userTarget, bool) {
	method := c.Param("method")
	value := c.Param("value")

	var (
		user *orm.User
		err  error
	)
	switch method {
	case "name":
		if s.cfg.Auth.Admin.Enabled && value == s.cfg.Auth.Admin.Username {
			return &userTarget{admin: true}, true
		}
		user, err = s.dir.UserByUsername(c.Request.Context(), value)
	case "id":
		if s.cfg.Auth.Admin.Enabled && value == auth.AdminID {
			return &userTarget{admin: true}, true
		}
		user, err = s.dir.UserByID(c.Request.Context(), value)
	default:
		abortWithError(
			c,
			errValidation("User lookup method must be one of: name, id."),
			"user lookup",
		)

		return nil, false
	}
	if err != nil {
		abortWithError(c, err, "user lookup")

		return nil, false
	}

	return &userTarget{user: user}, true
}

func (s *Server) listUsers(c *gin.Context) {
	users, err := s.dir.ListUsers(c.Request.Context())
	if err != nil {
		abortWithError(c, err, "user listing")

		return
	}

	redacted := make([]*RedactedAuth, 0, len(users)+1)
	if s.cfg.Auth.Admin.Enabled {
		redacted = append(redacted, s.redactAdmin())
	}
	for _, user := range users {
		entry, err := s.redactUser(c.Request.Context(), user)
		if err != nil {
			abortWithError(c, err, "user listing")

			return
		}
		redacted = append(redacted, entry)
	}

	c.JSON(http.StatusOK, redacted)
}

func (s *Server) createUser(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}

	var body UserCreation
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithError(c, errValidation("A username is required."), "user creation")

		return
	}
	if s.cfg.Auth.Admin.Enabled && body.Username == s.cfg.Auth.Admin.Username {
		abortWithError(
			c,
			errConflict("The administrator username is reserved."),
			"user creation",
		)

		return
	}

	user, err := auth.NewUser(body.Username, body.Password)
	if err != nil {
		abortWithError(c, err, "user creation")

		return
	}
	if err := s.dir.CreateUser(c.Request.Context(), user); err != nil {
		abortWithError(c, err, "user creation")

		return
	}

	redacted, err := s.redactUser(c.Request.Context(), *user)
	if err != nil {
		abortWithError(c, err, "user creation")

		return
	}

	c.JSON(http.StatusOK, redacted)
}

func (s *Server) currentUser(c *gin.Context) {
	redacted, err := s.redactPrincipal(c.Request.Context(), principal(c))
	if err != nil {
		abortWithError(c, err, "current user")

		return
	}

	c.JSON(http.StatusOK, redacted)
}

// deleteCurrentUser removes the caller's own account. Only stored users can
// self-delete; the administrator and tokens cannot.
func (s *Server) deleteCurrentUser(c *gin.Context) {
	user, ok := principal(c).(auth.User)
	if !ok {
		abortWithError(
			c,
			errForbidden("Only user accounts can delete themselves."),
			"account deletion",
		)

		return
	}

	if err := s.dir.DeleteUser(c.Request.Context(), user.ID()); err != nil {
		abortWithError(c, err, "account deletion")

		return
	}

	c.Status(http.StatusOK)
}

// changePassword rehashes the caller's password. A nil or empty password
// makes the account passwordless.
func (s *Server) changePassword(c *gin.Context) {
	p, ok := principal(c).(auth.User)
	if !ok {
		abortWithError(
			c,
			errForbidden("Only user accounts have a password."),
			"password change",
		)

		return
	}

	var body PasswordChange
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithError(c, errValidation("Invalid password payload."), "password change")

		return
	}

	user, err := s.dir.UserByID(c.Request.Context(), p.ID())
	if err != nil {
		abortWithError(c, err, "password change")

		return
	}

	if body.Password == nil || *body.Password == "" {
		user.PasswordHash = nil
		user.PasswordSalt = nil
	} else {
		hash, salt, err := auth.HashPassword(*body.Password)
		if err != nil {
			abortWithError(c, err, "password change")

			return
		}
		user.PasswordHash = &hash
		user.PasswordSalt = &salt
	}

	if err := s.dir.SaveUser(c.Request.Context(), user); err != nil {
		abortWithError(c, err, "password change")

		return
	}

	c.Status(http.StatusOK)
}

// listTokens returns the caller's tokens with secrets withheld.
func (s *Server) listTokens(c *gin.Context) {
	p, ok := principal(c).(auth.User)
	if !ok {
		abortWithError(
			c,
			errForbidden("Only user accounts own tokens."),
			"token listing",
		)

		return
	}

	tokens, err := s.dir.TokensForUser(c.Request.Context(), p.ID())
	if err != nil {
		abortWithError(c, err, "token listing")

		return
	}

	redacted := make([]*RedactedAuth, 0, len(tokens))
	for _, token := range tokens {
		entry, err := s.redactToken(c.Request.Context(), token)
		if err != nil {
			abortWithError(c, err, "token listing")

			return
		}
		redacted = append(redacted, entry)
	}

	c.JSON(http.StatusOK, redacted)
}

// createToken mints an API token bound to the caller. The secret appears in
// this response and nowhere else. Requested groups must be ones the caller
// is a member of: tokens never out-privilege their owner.
func (s *Server) createToken(c *gin.Context) {
	p, ok := principal(c).(auth.User)
	if !ok {
		abortWithError(
			c,
			errForbidden("Only user accounts can mint tokens."),
			"token creation",
		)

		return
	}

	var body TokenCreation
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithError(c, errValidation("Invalid token payload."), "token creation")

		return
	}

	owned := make(map[string]bool, len(p.GroupIDs()))
	for _, id := range p.GroupIDs() {
		owned[id] = true
	}
	for _, id := range body.Groups {
		if !owned[id] {
			abortWithError(
				c,
				errValidation("Tokens can only join groups their owner belongs to."),
				"token creation",
			)

			return
		}
	}

	secret, err := newTokenSecret()
	if err != nil {
		abortWithError(c, err, "token creation")

		return
	}

	ownerID := p.ID()
	token := &orm.Token{
		ID:          orm.NewID(),
		Secret:      secret,
		Description: body.Description,
		LinkedUser:  &ownerID,
		Groups:      body.Groups,
	}
	if err := s.dir.CreateToken(c.Request.Context(), token); err != nil {
		abortWithError(c, err, "token creation")

		return
	}

	redacted, err := s.redactToken(c.Request.Context(), *token)
	if err != nil {
		abortWithError(c, err, "token creation")

		return
	}

	c.JSON(http.StatusOK, TokenCreated{RedactedAuth: *redacted, Secret: secret})
}

func (s *Server) getUser(c *gin.Context) {
	target, ok := s.resolveUserTarget(c)
	if !ok {
		return
	}

	if target.admin {
		c.JSON(http.StatusOK, s.redactAdmin())

		return
	}

	redacted, err := s.redactUser(c.Request.Context(), *target.user)
	if err != nil {
		abortWithError(c, err, "user lookup")

		return
	}

	c.JSON(http.StatusOK, redacted)
}

// deleteUser removes a user by selector. Admin access is required unless
// the target is the caller's own account.
func (s *Server) deleteUser(c *gin.Context) {
	target, ok := s.resolveUserTarget(c)
	if !ok {
		return
	}
	if target.admin {
		abortWithError(
			c,
			errForbidden("The administrator account cannot be deleted."),
			"user deletion",
		)

		return
	}

	p := principal(c)
	if p.ID() != target.user.ID && !s.requireAdmin(c) {
		return
	}

	if err := s.dir.DeleteUser(c.Request.Context(), target.user.ID); err != nil {
		abortWithError(c, err, "user deletion")

		return
	}

	c.Status(http.StatusOK)
}
