package auth

import "errors"

var (
	// ErrValidation marks malformed, user-correctable input.
	ErrValidation = errors.New("auth: invalid input")
	// ErrDuplicateUser is returned when registering an email that exists.
	ErrDuplicateUser = errors.New("auth: user already exists")
	// ErrInvalidCredentials covers both unknown email and wrong password so
	// callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrInvalidToken marks a malformed, expired or badly signed token.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrTokenRevoked marks a structurally valid refresh token whose session
	// is gone: already rotated, explicitly revoked, or stolen and replayed.
	ErrTokenRevoked = errors.New("auth: token revoked")
	// ErrUserNotFound marks a token whose account no longer exists.
	ErrUserNotFound = errors.New("auth: user not found")
	// ErrUnauthenticated marks a request without a usable identity.
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	// ErrForbidden marks a role or membership denial.
	ErrForbidden = errors.New("auth: forbidden")

	// Store-level sentinels.
	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
)
