package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates rejected input.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden indicates the principal lacks the required access.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidCredentials indicates login failure. Missing users and wrong
	// passwords share this error.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenExpired indicates an access token past its expiry claim.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid indicates a malformed, tampered or revoked access token.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrRefreshTokenInvalid indicates an unknown or already used refresh token.
	ErrRefreshTokenInvalid = errors.New("refresh token invalid")
	// ErrRefreshTokenExpired indicates a refresh token past its lifetime.
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// ErrUnknownRole occurs when a role is outside the fixed role table.
	ErrUnknownRole = errors.New("unknown role")
	// ErrUnknownMenu occurs when a menu id does not exist in the tree.
	ErrUnknownMenu = errors.New("unknown menu")
	// ErrInvalidPrincipal occurs when a principal cannot be resolved (e.g. no roles).
	ErrInvalidPrincipal = errors.New("invalid principal")
	// ErrGrantConflict is reported by the grant store on a concurrent write.
	ErrGrantConflict = errors.New("grant conflict")
)
