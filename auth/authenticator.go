package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
)

// TokenUsername is the reserved username that routes the Basic credential's
// password field to token lookup instead of user lookup.
const TokenUsername = "_token_"

// ErrUnauthorized is returned when a credential is required but absent or
// structurally unusable.
var ErrUnauthorized = errors.New("authentication required")

// Authenticator turns an Authorization header into a Principal. It is the
// composition point over CredentialStore; it holds no state of its own.
type Authenticator struct {
	creds          *CredentialStore
	allowAnonymous bool
}

func NewAuthenticator(creds *CredentialStore, allowAnonymous bool) *Authenticator {
	return &Authenticator{creds: creds, allowAnonymous: allowAnonymous}
}

// Authenticate parses a Basic credential header. An absent header yields
// Anonymous when the deployment allows it and ErrUnauthorized otherwise.
// Malformed headers and failed verifications are never distinguished beyond
// the 401-class errors.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (Principal, error) {
	if header == "" {
		if a.allowAnonymous {
			return Anonymous{}, nil
		}

		return nil, ErrUnauthorized
	}

	scheme, payload, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Basic") {
		return nil, ErrUnauthorized
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, ErrUnauthorized
	}

	username, secret, found := strings.Cut(string(decoded), ":")
	if !found {
		return nil, ErrUnauthorized
	}

	if username == TokenUsername {
		return a.creds.VerifyToken(ctx, secret)
	}

	return a.creds.Verify(ctx, username, secret)
}
