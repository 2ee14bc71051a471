package auth

import "package-registry/orm"

// PrincipalType discriminates the closed set of principal variants.
type PrincipalType string

const (
	TypeUser      PrincipalType = "user"
	TypeToken     PrincipalType = "token"
	TypeAdmin     PrincipalType = "admin"
	TypeAnonymous PrincipalType = "anonymous"
)

// AdminID is the synthetic id of the configured administrator, which never
// persists a principal row.
const AdminID = "_admin"

// Principal is the resolved identity of a request. It is a sealed sum:
// exactly one of User, Token, Admin or Anonymous per request. Dispatch by
// type switch, not by probing fields.
type Principal interface {
	sealed()

	// ID returns the stored row id, AdminID for the administrator, or ""
	// for anonymous requests.
	ID() string
	Type() PrincipalType
	// Name returns the human-facing identifier: username for users and the
	// administrator, the description for tokens, "" for anonymous.
	Name() string
	// GroupIDs returns the principal's group memberships. Admin and
	// Anonymous belong to no groups.
	GroupIDs() []string
}

// User is a stored username/password principal.
type User struct {
	Record orm.User
}

func (User) sealed()              {}
func (u User) ID() string         { return u.Record.ID }
func (User) Type() PrincipalType  { return TypeUser }
func (u User) Name() string       { return u.Record.Username }
func (u User) GroupIDs() []string { return u.Record.Groups }

// Token is a stored API-token principal, optionally linked to a user.
type Token struct {
	Record orm.Token
}

func (Token) sealed()             {}
func (t Token) ID() string        { return t.Record.ID }
func (Token) Type() PrincipalType { return TypeToken }
func (t Token) Name() string {
	if t.Record.Description != nil {
		return *t.Record.Description
	}

	return ""
}
func (t Token) GroupIDs() []string { return t.Record.Groups }

// Admin is the configured administrator. It holds the highest server
// permission implicitly and never owns grant rows.
type Admin struct {
	Username string
}

func (Admin) sealed()             {}
func (Admin) ID() string          { return AdminID }
func (Admin) Type() PrincipalType { return TypeAdmin }
func (a Admin) Name() string      { return a.Username }
func (Admin) GroupIDs() []string  { return nil }

// Anonymous is an unauthenticated request. It holds no permissions.
type Anonymous struct{}

func (Anonymous) sealed()             {}
func (Anonymous) ID() string          { return "" }
func (Anonymous) Type() PrincipalType { return TypeAnonymous }
func (Anonymous) Name() string        { return "" }
func (Anonymous) GroupIDs() []string  { return nil }
