package auth

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"package-registry/config"
)

func basicHeader(username, secret string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+secret))
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	admin := config.AdminConfig{Username: "root", Password: "toor", Enabled: true}
	creds := NewCredentialStore(testSource(t), admin)
	ctx := context.Background()

	t.Run("MissingHeaderAnonymousAllowed", func(t *testing.T) {
		t.Parallel()

		authn := NewAuthenticator(creds, true)
		principal, err := authn.Authenticate(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, TypeAnonymous, principal.Type())
	})

	t.Run("MissingHeaderAnonymousForbidden", func(t *testing.T) {
		t.Parallel()

		authn := NewAuthenticator(creds, false)
		_, err := authn.Authenticate(ctx, "")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("UserCredential", func(t *testing.T) {
		t.Parallel()

		authn := NewAuthenticator(creds, false)
		principal, err := authn.Authenticate(ctx, basicHeader("alice", "s3cret"))
		require.NoError(t, err)
		assert.Equal(t, TypeUser, principal.Type())
		assert.Equal(t, "alice", principal.Name())
	})

	t.Run("TokenCredential", func(t *testing.T) {
		t.Parallel()

		// The reserved username routes the password field to token lookup.
		authn := NewAuthenticator(creds, false)
		principal, err := authn.Authenticate(ctx, basicHeader(TokenUsername, "tok-abc"))
		require.NoError(t, err)
		assert.Equal(t, TypeToken, principal.Type())
	})

	t.Run("AdminCredential", func(t *testing.T) {
		t.Parallel()

		authn := NewAuthenticator(creds, false)
		principal, err := authn.Authenticate(ctx, basicHeader("root", "toor"))
		require.NoError(t, err)
		assert.Equal(t, TypeAdmin, principal.Type())
	})

	t.Run("MalformedHeaders", func(t *testing.T) {
		t.Parallel()

		authn := NewAuthenticator(creds, true)
		for _, header := range []string{
			"Bearer sometoken",
			"Basic",
			"Basic not-base64!!",
			"Basic " + base64.StdEncoding.EncodeToString([]byte("no-separator")),
		} {
			_, err := authn.Authenticate(ctx, header)
			assert.ErrorIs(t, err, ErrUnauthorized, "header %q", header)
		}
	})

	t.Run("BadCredential", func(t *testing.T) {
		t.Parallel()

		authn := NewAuthenticator(creds, false)
		_, err := authn.Authenticate(ctx, basicHeader("alice", "wrong"))
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}
