package api

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"package-registry/orm"
)

// resolveGroupTarget parses /groups/:method/:value. A false return means
// the request was already aborted.
func (s *Server) resolveGroupTarget(c *gin.Context) (*orm.Group, bool) {
	method := c.Param("method")
	value := c.Param("value")

	var (
		group *orm.Group
		err   error
	)
	switch method {
	case "name":
		group, err = s.dir.GroupByName(c.Request.Context(), value)
	case "id":
		group, err = s.dir.GroupByID(c.Request.Context(), value)
	default:
		abortWithError(
			c,
			errValidation("Group lookup method must be one of: name, id."),
			"group lookup",
		)

		return nil, false
	}
	if err != nil {
		abortWithError(c, err, "group lookup")

		return nil, false
	}

	return group, true
}

func (s *Server) listGroups(c *gin.Context) {
	groups, err := s.dir.ListGroups(c.Request.Context())
	if err != nil {
		abortWithError(c, err, "group listing")

		return
	}

	infos := make([]GroupInfo, 0, len(groups))
	for _, group := range groups {
		infos = append(infos, groupInfo(group))
	}

	c.JSON(http.StatusOK, infos)
}

func (s *Server) createGroup(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}

	var body GroupCreation
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithError(c, errValidation("A group name is required."), "group creation")

		return
	}

	group := &orm.Group{
		ID:          orm.NewID(),
		Name:        body.Name,
		DisplayName: body.DisplayName,
	}
	if err := s.dir.CreateGroup(c.Request.Context(), group); err != nil {
		abortWithError(c, err, "group creation")

		return
	}

	c.JSON(http.StatusOK, groupInfo(*group))
}

func (s *Server) getGroup(c *gin.Context) {
	group, ok := s.resolveGroupTarget(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, groupInfo(*group))
}

// deleteGroup removes a group, its grants, and its membership references.
func (s *Server) deleteGroup(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	group, ok := s.resolveGroupTarget(c)
	if !ok {
		return
	}

	if err := s.dir.DeleteGroup(c.Request.Context(), group.ID); err != nil {
		abortWithError(c, err, "group deletion")

		return
	}

	c.Status(http.StatusOK)
}

func (s *Server) groupMembers(c *gin.Context) {
	group, ok := s.resolveGroupTarget(c)
	if !ok {
		return
	}

	users, tokens, err := s.dir.MembersOf(c.Request.Context(), group.ID)
	if err != nil {
		abortWithError(c, err, "group members")

		return
	}

	members := make([]*RedactedAuth, 0, len(users)+len(tokens))
	for _, user := range users {
		entry, err := s.redactUser(c.Request.Context(), user)
		if err != nil {
			abortWithError(c, err, "group members")

			return
		}
		members = append(members, entry)
	}
	for _, token := range tokens {
		entry, err := s.redactToken(c.Request.Context(), token)
		if err != nil {
			abortWithError(c, err, "group members")

			return
		}
		members = append(members, entry)
	}

	c.JSON(http.StatusOK, members)
}

// addGroupMember joins a user or token to the group. Adding an existing
// member is a no-op.
func (s *Server) addGroupMember(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	group, ok := s.resolveGroupTarget(c)
	if !ok {
		return
	}

	spec, ok := bindMemberSpec(c)
	if !ok {
		return
	}

	if err := s.updateMembership(c, group.ID, spec, true); err != nil {
		abortWithError(c, err, "group membership")

		return
	}

	c.Status(http.StatusOK)
}

// removeGroupMember detaches a user or token from the group. Removing a
// non-member is a no-op.
func (s *Server) removeGroupMember(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	group, ok := s.resolveGroupTarget(c)
	if !ok {
		return
	}

	spec, ok := bindMemberSpec(c)
	if !ok {
		return
	}

	if err := s.updateMembership(c, group.ID, spec, false); err != nil {
		abortWithError(c, err, "group membership")

		return
	}

	c.Status(http.StatusOK)
}

func bindMemberSpec(c *gin.Context) (*MemberSpec, bool) {
	var spec MemberSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		abortWithError(
			c,
			errValidation("Member updates require auth_type and auth_id."),
			"group membership",
		)

		return nil, false
	}
	if spec.AuthType != "user" && spec.AuthType != "token" {
		abortWithError(
			c,
			errValidation("Member auth_type must be one of: user, token."),
			"group membership",
		)

		return nil, false
	}

	return &spec, true
}

// updateMembership edits the membership list stored on the member row.
func (s *Server) updateMembership(
	c *gin.Context,
	groupID string,
	spec *MemberSpec,
	join bool,
) error {
	ctx := c.Request.Context()

	apply := func(groups []string) []string {
		if join {
			if slices.Contains(groups, groupID) {
				return groups
			}

			return append(groups, groupID)
		}

		return slices.DeleteFunc(groups, func(id string) bool {
			return id == groupID
		})
	}

	if spec.AuthType == "user" {
		user, err := s.dir.UserByID(ctx, spec.AuthID)
		if err != nil {
			return err
		}
		user.Groups = apply(user.Groups)

		return s.dir.SaveUser(ctx, user)
	}

	token, err := s.dir.TokenByID(ctx, spec.AuthID)
	if err != nil {
		return err
	}
	token.Groups = apply(token.Groups)

	return s.dir.SaveToken(ctx, token)
}
