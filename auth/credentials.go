package auth

import (
	"context"
	"crypto/subtle"
	"errors"

	"package-registry/config"
	"package-registry/orm"
)

// ErrInvalidCredentials is returned for every authentication mismatch. The
// same error covers unknown usernames and wrong passwords so that lookups
// cannot probe which usernames exist.
var ErrInvalidCredentials = errors.New("invalid credentials")

// CredentialSource is the slice of the document store the credential checks
// need. *orm.DB satisfies it.
type CredentialSource interface {
	UserByUsername(ctx context.Context, username string) (*orm.User, error)
	TokenBySecret(ctx context.Context, secret string) (*orm.Token, error)
}

// CredentialStore verifies passwords and token secrets against stored
// principals. It is read-only; credential creation and rotation happen in
// the API mutation paths.
type CredentialStore struct {
	source CredentialSource
	admin  config.AdminConfig
}

func NewCredentialStore(source CredentialSource, admin config.AdminConfig) *CredentialStore {
	return &CredentialStore{source: source, admin: admin}
}

// Verify resolves a username/password pair to a Principal.
//
// The configured administrator short-circuits to an exact string compare:
// its password is an operational secret, not a stored principal. Everything
// else goes through the salted KDF. Passwordless users accept only an empty
// password.
func (s *CredentialStore) Verify(
	ctx context.Context,
	username, password string,
) (Principal, error) {
	if s.admin.Enabled && username == s.admin.Username {
		if subtle.ConstantTimeCompare([]byte(password), []byte(s.admin.Password)) == 1 {
			return Admin{Username: s.admin.Username}, nil
		}

		return nil, ErrInvalidCredentials
	}

	user, err := s.source.UserByUsername(ctx, username)
	if err != nil {
		var notFound *orm.NotFoundError
		if errors.As(err, &notFound) {
			return nil, ErrInvalidCredentials
		}

		return nil, err
	}

	if !verifyPassword(user, password) {
		return nil, ErrInvalidCredentials
	}

	return User{Record: *user}, nil
}

// VerifyToken resolves a token secret to a Principal. The secret itself is
// the credential; no hashing is involved.
func (s *CredentialStore) VerifyToken(ctx context.Context, secret string) (Principal, error) {
	if secret == "" {
		return nil, ErrInvalidCredentials
	}

	token, err := s.source.TokenBySecret(ctx, secret)
	if err != nil {
		var notFound *orm.NotFoundError
		if errors.As(err, &notFound) {
			return nil, ErrInvalidCredentials
		}

		return nil, err
	}

	return Token{Record: *token}, nil
}
