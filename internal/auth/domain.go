package auth

import (
	"context"
	"time"

	"github.com/odyssey-erp/retail-authz/internal/rbac"
	"github.com/odyssey-erp/retail-authz/internal/users"
)

// SessionState is the lifecycle position of an access token.
type SessionState string

const (
	StateUnauthenticated SessionState = "UNAUTHENTICATED"
	StateAuthenticated   SessionState = "AUTHENTICATED"
	StateExpired         SessionState = "EXPIRED"
	StateRevoked         SessionState = "REVOKED"
)

// Session is the result of a login or refresh.
type Session struct {
	ID               string         `json:"sessionId"`
	Principal        rbac.Principal `json:"principal"`
	IssuedAt         time.Time      `json:"issuedAt"`
	ExpiresAt        time.Time      `json:"expiresAt"`
	AccessToken      string         `json:"accessToken"`
	TokenType        string         `json:"tokenType"`
	RefreshToken     string         `json:"refreshToken"`
	RefreshExpiresAt time.Time      `json:"refreshExpiresAt"`
}

// UserLookup finds accounts by login name. Missing accounts are reported
// with shared.ErrNotFound.
type UserLookup interface {
	FindByUsername(ctx context.Context, username string) (users.User, error)
}

// Observer records authentication outcomes.
type Observer interface {
	ObserveLogin(outcome string)
	ObserveValidation(outcome string)
}
