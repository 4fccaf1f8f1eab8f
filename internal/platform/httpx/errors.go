// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/retail-authz/internal/shared"
)

// unauthorizedDetail is shared by credential and token failures so callers
// cannot tell an unknown account from a bad or revoked token.
const unauthorizedDetail = "invalid credentials or token"

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrInvalidCredentials), errors.Is(err, shared.ErrTokenInvalid):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "unauthorized", unauthorizedDetail)
	case errors.Is(err, shared.ErrTokenExpired):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "token_expired", "access token expired")
	case errors.Is(err, shared.ErrRefreshTokenInvalid):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "refresh_token_invalid", "refresh token invalid")
	case errors.Is(err, shared.ErrRefreshTokenExpired):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "refresh_token_expired", "refresh token expired")
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", "forbidden", "")
	case errors.Is(err, shared.ErrInvalidPrincipal):
		Problem(w, http.StatusForbidden, "Forbidden", "invalid_principal", err.Error())
	case errors.Is(err, shared.ErrUnknownMenu):
		Problem(w, http.StatusNotFound, "Not Found", "unknown_menu", err.Error())
	case errors.Is(err, shared.ErrUnknownRole):
		Problem(w, http.StatusBadRequest, "Validation Failed", "unknown_role", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", "not_found", err.Error())
	case errors.Is(err, shared.ErrGrantConflict), errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Conflict", "conflict", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", "validation_failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "internal", "")
	}
}
