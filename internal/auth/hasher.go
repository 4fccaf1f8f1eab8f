package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/retail-authz/internal/shared"
)

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Compare returns shared.ErrInvalidCredentials on mismatch.
	Compare(hash, password string) error
}

// BcryptHasher implements PasswordHasher with bcrypt. A zero Cost uses
// bcrypt.DefaultCost.
type BcryptHasher struct {
	Cost int
}

// Hash implements PasswordHasher.
func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Compare implements PasswordHasher.
func (h BcryptHasher) Compare(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword), errors.Is(err, bcrypt.ErrHashTooShort):
		return shared.ErrInvalidCredentials
	default:
		return err
	}
}
