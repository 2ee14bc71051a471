package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"

	"package-registry/auth"
	"package-registry/orm"
)

// GroupInfo is the wire shape of a group.
type GroupInfo struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	DisplayName *string `json:"display_name"`
}

// RedactedAuth is the public view of a principal: no password hashes, no
// token secrets.
type RedactedAuth struct {
	ID     *string       `json:"id"`
	Type   string        `json:"type"`
	Name   *string       `json:"name"`
	Groups []GroupInfo   `json:"groups"`
	Linked *RedactedAuth `json:"linked,omitempty"`
}

// TokenCreated is returned exactly once, on mint; the secret is not
// retrievable afterwards.
type TokenCreated struct {
	RedactedAuth
	Secret string `json:"secret"`
}

type UserCreation struct {
	Username string  `json:"username" binding:"required"`
	Password *string `json:"password"`
}

type PasswordChange struct {
	Password *string `json:"password"`
}

type TokenCreation struct {
	Description *string  `json:"description"`
	Groups      []string `json:"groups"`
}

type GroupCreation struct {
	Name        string  `json:"name" binding:"required"`
	DisplayName *string `json:"display_name"`
}

type MemberSpec struct {
	AuthType string `json:"auth_type" binding:"required"`
	AuthID   string `json:"auth_id" binding:"required"`
}

type PermissionSpec struct {
	Permission string  `json:"permission" binding:"required"`
	Project    *string `json:"project,omitempty"`
}

func groupInfo(group orm.Group) GroupInfo {
	return GroupInfo{
		ID:          group.ID,
		Name:        group.Name,
		DisplayName: group.DisplayName,
	}
}

// groupInfos expands group ids into wire shapes, dropping ids whose group
// no longer exists.
func (s *Server) groupInfos(ctx context.Context, ids []string) ([]GroupInfo, error) {
	groups, err := s.dir.GroupsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	infos := make([]GroupInfo, 0, len(groups))
	for _, group := range groups {
		infos = append(infos, groupInfo(group))
	}

	return infos, nil
}

func (s *Server) redactUser(ctx context.Context, user orm.User) (*RedactedAuth, error) {
	groups, err := s.groupInfos(ctx, user.Groups)
	if err != nil {
		return nil, err
	}

	id := user.ID
	name := user.Username

	return &RedactedAuth{
		ID:     &id,
		Type:   string(auth.TypeUser),
		Name:   &name,
		Groups: groups,
	}, nil
}

func (s *Server) redactToken(ctx context.Context, token orm.Token) (*RedactedAuth, error) {
	groups, err := s.groupInfos(ctx, token.Groups)
	if err != nil {
		return nil, err
	}

	id := token.ID
	redacted := &RedactedAuth{
		ID:     &id,
		Type:   string(auth.TypeToken),
		Name:   token.Description,
		Groups: groups,
	}

	if token.LinkedUser == nil {
		return redacted, nil
	}
	linked, err := s.dir.UserByID(ctx, *token.LinkedUser)
	if err != nil {
		var notFoundErr *orm.NotFoundError
		if errors.As(err, &notFoundErr) {
			return redacted, nil
		}

		return nil, err
	}
	redacted.Linked, err = s.redactUser(ctx, *linked)
	if err != nil {
		return nil, err
	}

	return redacted, nil
}

func (s *Server) redactAdmin() *RedactedAuth {
	id := auth.AdminID
	name := s.cfg.Auth.Admin.Username

	return &RedactedAuth{
		ID:     &id,
		Type:   string(auth.TypeAdmin),
		Name:   &name,
		Groups: []GroupInfo{},
	}
}

// redactPrincipal renders whoever is on the request.
func (s *Server) redactPrincipal(
	ctx context.Context,
	p auth.Principal,
) (*RedactedAuth, error) {
	switch v := p.(type) {
	case auth.User:
		return s.redactUser(ctx, v.Record)
	case auth.Token:
		return s.redactToken(ctx, v.Record)
	case auth.Admin:
		return s.redactAdmin(), nil
	default:
		return &RedactedAuth{
			Type:   string(auth.TypeAnonymous),
			Groups: []GroupInfo{},
		}, nil
	}
}

// newTokenSecret mints a 256-bit URL-safe secret.
func newTokenSecret() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(raw), nil
}
