// Package security provides admin key verification
package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidAdminKey is returned when the presented admin key does not match
// the configured hash.
var ErrInvalidAdminKey = errors.New("invalid admin key")

// VerifyAdminKey compares a presented admin key against the configured bcrypt
// hash. The plaintext key is never stored or logged.
func VerifyAdminKey(presented, storedHash string) error {
	if storedHash == "" {
		return errors.New("admin key not configured")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(presented)); err != nil {
		return ErrInvalidAdminKey
	}
	return nil
}

// HashAdminKey produces a bcrypt hash for an admin key. Used by operators to
// seed ADMIN_KEY_HASH.
func HashAdminKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
