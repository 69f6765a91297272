package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt ignores input beyond 72 bytes; reject such passwords outright so the
// full passphrase is always what gets verified.
const maxPasswordBytes = 72

var (
	errEmptyPassword = errors.New("password is empty")
	errLongPassword  = errors.New("password exceeds 72 bytes")
	errEmptyHash     = errors.New("password hash is empty")
)

// HashPassword derives a bcrypt hash from a plaintext password.
func HashPassword(password string) (string, error) {
	switch {
	case len(password) == 0:
		return "", errEmptyPassword
	case len(password) > maxPasswordBytes:
		return "", errLongPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password against a stored bcrypt hash.
// A nil return means the password matches.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errEmptyHash
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
