package orm

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// User is a stored principal that authenticates with username + password.
// PasswordHash and PasswordSalt are nil for passwordless users, which accept
// only an empty password. Group membership is stored on the member row.
type User struct {
	ID           string                      `gorm:"primaryKey;size:32"            json:"id"`
	Username     string                      `gorm:"uniqueIndex;size:255;not null" json:"username"`
	PasswordHash *string                     `gorm:"size:64"                       json:"password_hash"`
	PasswordSalt *string                     `gorm:"size:64"                       json:"password_salt"`
	Groups       datatypes.JSONSlice[string] `json:"groups"`
}

// Token is a stored principal whose secret is the credential itself.
type Token struct {
	ID          string                      `gorm:"primaryKey;size:32"            json:"id"`
	Secret      string                      `gorm:"uniqueIndex;size:255;not null" json:"token"`
	Description *string                     `gorm:"size:255"                      json:"description"`
	LinkedUser  *string                     `gorm:"size:32"                       json:"linked_user"`
	Groups      datatypes.JSONSlice[string] `json:"groups"`
}

type Group struct {
	ID          string  `gorm:"primaryKey;size:32"            json:"id"`
	Name        string  `gorm:"uniqueIndex;size:255;not null" json:"name"`
	DisplayName *string `gorm:"size:255"                      json:"display_name"`
}

// Grant target types. Grants targeting "auth" apply to a single user or
// token id; grants targeting "group" apply to every member of the group.
const (
	TargetGroup = "group"
	TargetAuth  = "auth"
)

// PermissionGrant assigns one permission string to a target, optionally
// scoped to a project. Server permissions carry a nil Project; package
// permissions always carry one.
type PermissionGrant struct {
	ID         string  `gorm:"primaryKey;size:32"  json:"id"`
	Permission string  `gorm:"size:32;not null;index" json:"permission"`
	TargetType string  `gorm:"size:8;not null"     json:"target_type"`
	TargetID   string  `gorm:"size:32;not null;index" json:"target_id"`
	Project    *string `gorm:"size:255;index"      json:"project"`
}

// NewID returns a 32-char hex row id.
func NewID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
