package auth

import "errors"

var (
	// ErrInvalidCredentials covers unknown email, missing hash and wrong
	// password alike, so the caller cannot probe which emails exist.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrInvalidToken covers unknown, revoked and expired refresh tokens as
	// well as malformed or expired access tokens.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrInvalidResetCode covers unknown, expired and already-used codes.
	ErrInvalidResetCode = errors.New("auth: invalid or expired reset code")
	// ErrNoTenant reports that an operation requiring a resolved tenant ran
	// without one. Misrouting, not a user mistake.
	ErrNoTenant = errors.New("auth: no resolved tenant")

	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
	ErrInvalidInput  = errors.New("auth: invalid input")
	ErrUnauthorized  = errors.New("auth: unauthorized")
)
