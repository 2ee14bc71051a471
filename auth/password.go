package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"package-registry/orm"
)

// KDF parameters are fixed by the stored credential format: hex salt, hex
// PBKDF2-HMAC-SHA256 key, 100000 iterations.
const (
	kdfIterations = 100000
	kdfKeyLen     = 32
	saltLen       = 32
)

// HashPassword derives a fresh salted hash for storage. Both return values
// are hex strings.
func HashPassword(password string) (hash, salt string, err error) {
	rawSalt := make([]byte, saltLen)
	if _, err := rand.Read(rawSalt); err != nil {
		return "", "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := pbkdf2.Key([]byte(password), rawSalt, kdfIterations, kdfKeyLen, sha256.New)

	return hex.EncodeToString(key), hex.EncodeToString(rawSalt), nil
}

// NewUser builds a storable user row. A nil password produces a passwordless
// user, which verifies only against an empty password.
func NewUser(username string, password *string) (*orm.User, error) {
	user := &orm.User{ID: orm.NewID(), Username: username}
	if password == nil || *password == "" {
		return user, nil
	}

	hash, salt, err := HashPassword(*password)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = &hash
	user.PasswordSalt = &salt

	return user, nil
}

// verifyPassword checks a supplied password against a stored user row.
func verifyPassword(user *orm.User, password string) bool {
	if password == "" {
		return user.PasswordHash == nil
	}
	if user.PasswordHash == nil || user.PasswordSalt == nil {
		return false
	}

	rawSalt, err := hex.DecodeString(*user.PasswordSalt)
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(*user.PasswordHash)
	if err != nil {
		return false
	}

	got := pbkdf2.Key([]byte(password), rawSalt, kdfIterations, len(want), sha256.New)

	return subtle.ConstantTimeCompare(got, want) == 1
}
