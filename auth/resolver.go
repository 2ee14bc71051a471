package auth

import (
	"context"

	"package-registry/orm"
)

// Permission is a grant value. Server permissions apply registry-wide and
// carry no project; package permissions always carry one.
type Permission string

const (
	PermAdmin  Permission = "meta.admin"
	PermCreate Permission = "meta.create"
	PermManage Permission = "pkg.manage"
	PermEdit   Permission = "pkg.edit"
	PermView   Permission = "pkg.view"
)

// Server reports whether p is a server-wide permission.
func (p Permission) Server() bool {
	return p == PermAdmin || p == PermCreate
}

// Package reports whether p is a project-scoped permission.
func (p Permission) Package() bool {
	return p == PermManage || p == PermEdit || p == PermView
}

// rank orders package permissions by decreasing power: manage > edit > view.
func (p Permission) rank() int {
	switch p {
	case PermManage:
		return 3
	case PermEdit:
		return 2
	case PermView:
		return 1
	default:
		return 0
	}
}

// Covers reports whether holding p satisfies a requirement of q.
func (p Permission) Covers(q Permission) bool {
	if p == q {
		return true
	}
	if p.Package() && q.Package() {
		return p.rank() >= q.rank()
	}

	return false
}

// GrantSource is the slice of the document store the resolver reads.
// *orm.DB satisfies it.
type GrantSource interface {
	GrantsForTargets(
		ctx context.Context,
		targetIDs []string,
		project *string,
	) ([]orm.PermissionGrant, error)
}

// Resolver aggregates direct and group-inherited grants into a principal's
// effective permission set. Resolution is a per-request computation; nothing
// is memoized across requests.
type Resolver struct {
	source GrantSource
}

func NewResolver(source GrantSource) *Resolver {
	return &Resolver{source: source}
}

// EffectivePermissions returns the union of grants directly targeting the
// principal and grants targeting any of its groups. When project is given,
// server-scoped grants are always included and project grants only on exact
// match. The administrator receives a synthetic meta.admin grant regardless
// of stored rows; anonymous principals receive nothing.
func (r *Resolver) EffectivePermissions(
	ctx context.Context,
	principal Principal,
	project *string,
) ([]orm.PermissionGrant, error) {
	switch p := principal.(type) {
	case Admin:
		return []orm.PermissionGrant{{
			ID:         AdminID,
			Permission: string(PermAdmin),
			TargetType: orm.TargetAuth,
			TargetID:   p.ID(),
		}}, nil
	case Anonymous:
		return nil, nil
	case User, Token:
		targets := append([]string{principal.ID()}, principal.GroupIDs()...)

		return r.source.GrantsForTargets(ctx, targets, project)
	default:
		return nil, nil
	}
}

// IsAdmin reports whether meta.admin is in the principal's effective set.
func (r *Resolver) IsAdmin(ctx context.Context, principal Principal) (bool, error) {
	grants, err := r.EffectivePermissions(ctx, principal, nil)
	if err != nil {
		return false, err
	}

	for _, grant := range grants {
		if Permission(grant.Permission) == PermAdmin {
			return true, nil
		}
	}

	return false, nil
}

// HasServerPermission reports whether the principal holds the given server
// permission; meta.admin implies every server permission.
func (r *Resolver) HasServerPermission(
	ctx context.Context,
	principal Principal,
	required Permission,
) (bool, error) {
	grants, err := r.EffectivePermissions(ctx, principal, nil)
	if err != nil {
		return false, err
	}

	for _, grant := range grants {
		held := Permission(grant.Permission)
		if held == required || held == PermAdmin {
			return true, nil
		}
	}

	return false, nil
}

// AccessLevel returns the single highest package permission the principal
// holds on the project, or ok=false when it holds none. Any one grant is
// sufficient; a lower-ranked grant from one group never masks a higher one
// obtained elsewhere. The administrator is always at manage.
func (r *Resolver) AccessLevel(
	ctx context.Context,
	principal Principal,
	project string,
) (Permission, bool, error) {
	if _, isAdmin := principal.(Admin); isAdmin {
		return PermManage, true, nil
	}

	grants, err := r.EffectivePermissions(ctx, principal, &project)
	if err != nil {
		return "", false, err
	}

	var best Permission
	for _, grant := range grants {
		held := Permission(grant.Permission)
		if held == PermAdmin {
			// Stored admin grants also dominate package access.
			return PermManage, true, nil
		}
		if held.Package() && held.rank() > best.rank() {
			best = held
		}
	}

	if best == "" {
		return "", false, nil
	}

	return best, true, nil
}
