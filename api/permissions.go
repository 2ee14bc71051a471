package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"package-registry/auth"
	"package-registry/orm"
)

// validatePermissionSpec enforces the scope rule: package permissions carry
// a project, server permissions never do.
func validatePermissionSpec(spec *PermissionSpec) error {
	perm := auth.Permission(spec.Permission)
	switch {
	case perm.Server():
		if spec.Project != nil {
			return errValidation("Server permissions do not take a project.")
		}
	case perm.Package():
		if spec.Project == nil || *spec.Project == "" {
			return errValidation("Package permissions require a project.")
		}
	default:
		return errValidation("Unknown permission: " + spec.Permission)
	}

	return nil
}

// mayEditGrant applies the delegation rule: server permissions are
// admin-only to hand out; package permissions can also be delegated by a
// principal holding manage on the same project.
func (s *Server) mayEditGrant(c *gin.Context, spec *PermissionSpec) (bool, error) {
	ctx := c.Request.Context()
	p := principal(c)

	isAdmin, err := s.resolver.IsAdmin(ctx, p)
	if err != nil {
		return false, err
	}
	if isAdmin {
		return true, nil
	}
	if auth.Permission(spec.Permission).Server() {
		return false, nil
	}

	level, ok, err := s.resolver.AccessLevel(ctx, p, *spec.Project)
	if err != nil {
		return false, err
	}

	return ok && level == auth.PermManage, nil
}

// permissionsOf lists the direct grants on one target as wire specs.
func (s *Server) permissionsOf(
	ctx context.Context,
	targetType, targetID string,
	project *string,
) ([]PermissionSpec, error) {
	grants, err := s.dir.GrantsForTarget(ctx, targetType, targetID, project)
	if err != nil {
		return nil, err
	}

	specs := make([]PermissionSpec, 0, len(grants))
	for _, grant := range grants {
		specs = append(specs, PermissionSpec{
			Permission: grant.Permission,
			Project:    grant.Project,
		})
	}

	return specs, nil
}

// grantTarget is the subject of a permissions route.
type grantTarget struct {
	targetType string
	targetID   string
}

// resolveUserGrantTarget maps /users/:method/:value onto a grant target.
// The administrator's permissions are synthetic and cannot be edited or
// enumerated as stored rows.
func (s *Server) resolveUserGrantTarget(c *gin.Context) (*grantTarget, bool) {
	target, ok := s.resolveUserTarget(c)
	if !ok {
		return nil, false
	}
	if target.admin {
		abortWithError(
			c,
			errValidation("The administrator's permissions are implicit."),
			"permission lookup",
		)

		return nil, false
	}

	return &grantTarget{targetType: orm.TargetAuth, targetID: target.user.ID}, true
}

func (s *Server) resolveGroupGrantTarget(c *gin.Context) (*grantTarget, bool) {
	group, ok := s.resolveGroupTarget(c)
	if !ok {
		return nil, false
	}

	return &grantTarget{targetType: orm.TargetGroup, targetID: group.ID}, true
}

func (s *Server) userPermissions(c *gin.Context) {
	target, ok := s.resolveUserGrantTarget(c)
	if !ok {
		return
	}
	s.servePermissions(c, target)
}

func (s *Server) groupPermissions(c *gin.Context) {
	target, ok := s.resolveGroupGrantTarget(c)
	if !ok {
		return
	}
	s.servePermissions(c, target)
}

func (s *Server) servePermissions(c *gin.Context, target *grantTarget) {
	var project *string
	if value := c.Param("project"); value != "" {
		project = &value
	}

	specs, err := s.permissionsOf(
		c.Request.Context(), target.targetType, target.targetID, project,
	)
	if err != nil {
		abortWithError(c, err, "permission listing")

		return
	}

	c.JSON(http.StatusOK, specs)
}

func (s *Server) addUserPermission(c *gin.Context) {
	target, ok := s.resolveUserGrantTarget(c)
	if !ok {
		return
	}
	s.addPermission(c, target)
}

func (s *Server) addGroupPermission(c *gin.Context) {
	target, ok := s.resolveGroupGrantTarget(c)
	if !ok {
		return
	}
	s.addPermission(c, target)
}

// addPermission creates a grant on the target. Granting an already-held
// permission is a no-op; both paths answer with the target's full set.
func (s *Server) addPermission(c *gin.Context, target *grantTarget) {
	spec, ok := s.bindPermissionSpec(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	existing, err := s.permissionsOf(ctx, target.targetType, target.targetID, nil)
	if err != nil {
		abortWithError(c, err, "permission grant")

		return
	}

	held := false
	for _, it := range existing {
		if it.Permission == spec.Permission && equalProject(it.Project, spec.Project) {
			held = true

			break
		}
	}

	if !held {
		grant := &orm.PermissionGrant{
			Permission: spec.Permission,
			TargetType: target.targetType,
			TargetID:   target.targetID,
			Project:    spec.Project,
		}
		if err := s.dir.CreateGrant(ctx, grant); err != nil {
			abortWithError(c, err, "permission grant")

			return
		}
		existing = append(existing, *spec)
	}

	c.JSON(http.StatusOK, existing)
}

func (s *Server) deleteUserPermission(c *gin.Context) {
	target, ok := s.resolveUserGrantTarget(c)
	if !ok {
		return
	}
	s.deletePermission(c, target)
}

func (s *Server) deleteGroupPermission(c *gin.Context) {
	target, ok := s.resolveGroupGrantTarget(c)
	if !ok {
		return
	}
	s.deletePermission(c, target)
}

// deletePermission removes the exact (permission, project) grant from the
// target. Revoking an absent grant is a no-op.
func (s *Server) deletePermission(c *gin.Context, target *grantTarget) {
	spec, ok := s.bindPermissionSpec(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := s.dir.DeleteGrant(
		ctx, target.targetType, target.targetID, spec.Permission, spec.Project,
	); err != nil {
		abortWithError(c, err, "permission revocation")

		return
	}

	specs, err := s.permissionsOf(ctx, target.targetType, target.targetID, nil)
	if err != nil {
		abortWithError(c, err, "permission revocation")

		return
	}

	c.JSON(http.StatusOK, specs)
}

// bindPermissionSpec parses, validates, and authorizes a grant edit. A
// false return means the request was already aborted.
func (s *Server) bindPermissionSpec(c *gin.Context) (*PermissionSpec, bool) {
	var spec PermissionSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		abortWithError(
			c,
			errValidation("A permission is required."),
			"permission edit",
		)

		return nil, false
	}
	if err := validatePermissionSpec(&spec); err != nil {
		abortWithError(c, err, "permission edit")

		return nil, false
	}

	allowed, err := s.mayEditGrant(c, &spec)
	if err != nil {
		abortWithError(c, err, "permission edit")

		return nil, false
	}
	if !allowed {
		abortWithError(
			c,
			errForbidden("You are not permitted to edit this permission."),
			"permission edit",
		)

		return nil, false
	}

	return &spec, true
}

func equalProject(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}

	return *a == *b
}
