package auth

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"package-registry/orm"
)

// fakeGrants filters stored grants the way the database query does.
type fakeGrants struct {
	grants []orm.PermissionGrant
}

func (f *fakeGrants) GrantsForTargets(
	_ context.Context,
	targetIDs []string,
	project *string,
) ([]orm.PermissionGrant, error) {
	var out []orm.PermissionGrant
	for _, grant := range f.grants {
		if !slices.Contains(targetIDs, grant.TargetID) {
			continue
		}
		if project != nil && grant.Project != nil && *grant.Project != *project {
			continue
		}
		out = append(out, grant)
	}

	return out, nil
}

func userPrincipal(id string, groups ...string) User {
	return User{Record: orm.User{ID: id, Username: "u-" + id, Groups: groups}}
}

func TestPermissionCovers(t *testing.T) {
	t.Parallel()

	assert.True(t, PermManage.Covers(PermView))
	assert.True(t, PermManage.Covers(PermEdit))
	assert.True(t, PermEdit.Covers(PermView))
	assert.True(t, PermView.Covers(PermView))

	assert.False(t, PermView.Covers(PermEdit))
	assert.False(t, PermEdit.Covers(PermManage))

	// Server and package scopes never satisfy each other by rank.
	assert.False(t, PermCreate.Covers(PermView))
	assert.False(t, PermManage.Covers(PermCreate))
}

func TestResolverAdministrator(t *testing.T) {
	t.Parallel()

	// Zero stored grants: everything comes from the synthetic set.
	resolver := NewResolver(&fakeGrants{})
	ctx := context.Background()
	admin := Admin{Username: "root"}

	isAdmin, err := resolver.IsAdmin(ctx, admin)
	require.NoError(t, err)
	assert.True(t, isAdmin)

	for _, project := range []string{"anything", "else"} {
		level, ok, err := resolver.AccessLevel(ctx, admin, project)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, PermManage, level)
	}

	ok, err := resolver.HasServerPermission(ctx, admin, PermCreate)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResolverAnonymous(t *testing.T) {
	t.Parallel()

	project := "pkg"
	resolver := NewResolver(&fakeGrants{grants: []orm.PermissionGrant{
		{Permission: string(PermView), TargetID: "someone", Project: &project},
	}})
	ctx := context.Background()

	grants, err := resolver.EffectivePermissions(ctx, Anonymous{}, nil)
	require.NoError(t, err)
	assert.Empty(t, grants)

	_, ok, err := resolver.AccessLevel(ctx, Anonymous{}, "pkg")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolverAccessLevel(t *testing.T) {
	t.Parallel()

	project := "libfoo"
	other := "libbar"
	source := &fakeGrants{grants: []orm.PermissionGrant{
		{Permission: string(PermView), TargetType: orm.TargetAuth, TargetID: "u1", Project: &project},
		{Permission: string(PermEdit), TargetType: orm.TargetGroup, TargetID: "g1", Project: &project},
		{Permission: string(PermManage), TargetType: orm.TargetGroup, TargetID: "g2", Project: &other},
	}}
	resolver := NewResolver(source)
	ctx := context.Background()

	t.Run("DirectGrantOnly", func(t *testing.T) {
		t.Parallel()

		level, ok, err := resolver.AccessLevel(ctx, userPrincipal("u1"), project)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, PermView, level)
	})

	t.Run("GroupRaisesLevel", func(t *testing.T) {
		t.Parallel()

		// Joining g1 adds pkg.edit; the direct pkg.view must not mask it.
		level, ok, err := resolver.AccessLevel(ctx, userPrincipal("u1", "g1"), project)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, PermEdit, level)
	})

	t.Run("ProjectScopeIsExact", func(t *testing.T) {
		t.Parallel()

		// g2 only grants manage on libbar, not libfoo.
		level, ok, err := resolver.AccessLevel(ctx, userPrincipal("u2", "g2"), project)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, level)

		level, ok, err = resolver.AccessLevel(ctx, userPrincipal("u2", "g2"), other)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, PermManage, level)
	})

	t.Run("NoGrants", func(t *testing.T) {
		t.Parallel()

		_, ok, err := resolver.AccessLevel(ctx, userPrincipal("u3"), project)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestResolverStoredAdminGrant(t *testing.T) {
	t.Parallel()

	source := &fakeGrants{grants: []orm.PermissionGrant{
		{Permission: string(PermAdmin), TargetType: orm.TargetAuth, TargetID: "u1"},
	}}
	resolver := NewResolver(source)
	ctx := context.Background()

	isAdmin, err := resolver.IsAdmin(ctx, userPrincipal("u1"))
	require.NoError(t, err)
	assert.True(t, isAdmin)

	// meta.admin implies every server permission and manage everywhere.
	ok, err := resolver.HasServerPermission(ctx, userPrincipal("u1"), PermCreate)
	require.NoError(t, err)
	assert.True(t, ok)

	level, ok, err := resolver.AccessLevel(ctx, userPrincipal("u1"), "any-project")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, PermManage, level)
}
