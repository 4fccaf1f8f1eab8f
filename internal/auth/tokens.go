package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/retail-authz/internal/rbac"
	"github.com/odyssey-erp/retail-authz/internal/shared"
)

// MinSecretLength is the shortest accepted HMAC signing secret.
const MinSecretLength = 32

// accessClaims is the JWT body of an access token.
type accessClaims struct {
	Roles   []string `json:"roles"`
	OrgID   string   `json:"org_id,omitempty"`
	OrgType string   `json:"org_type"`
	jwt.RegisteredClaims
}

// tokenSigner mints and verifies HS256 access tokens.
type tokenSigner struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func newTokenSigner(secret []byte, issuer string, ttl time.Duration) (*tokenSigner, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: signing secret must be at least %d bytes", MinSecretLength)
	}
	if ttl <= 0 {
		return nil, errors.New("auth: access token ttl must be positive")
	}
	return &tokenSigner{secret: secret, issuer: issuer, ttl: ttl}, nil
}

// sign returns a token for p issued at now together with its id and expiry.
func (s *tokenSigner) sign(p rbac.Principal, now time.Time) (token, jti string, exp time.Time, err error) {
	jti = uuid.NewString()
	issued := now.UTC().Truncate(time.Second)
	exp = issued.Add(s.ttl)
	claims := accessClaims{
		Roles:   p.RoleNames(),
		OrgID:   p.OrganizationID,
		OrgType: string(p.OrganizationType),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   p.UserID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return token, jti, exp, nil
}

// parse verifies raw at now. Expiry maps to shared.ErrTokenExpired and every
// other failure to shared.ErrTokenInvalid.
func (s *tokenSigner) parse(raw string, now time.Time) (*accessClaims, error) {
	return s.parseWith(raw,
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
}

// parseIgnoringExpiry verifies the signature only.
func (s *tokenSigner) parseIgnoringExpiry(raw string) (*accessClaims, error) {
	return s.parseWith(raw, jwt.WithoutClaimsValidation())
}

func (s *tokenSigner) parseWith(raw string, opts ...jwt.ParserOption) (*accessClaims, error) {
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, shared.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrTokenInvalid, err)
	}
	if !token.Valid || claims.ID == "" || claims.ExpiresAt == nil {
		return nil, shared.ErrTokenInvalid
	}
	return claims, nil
}

// principal rebuilds the principal carried by c.
func (c *accessClaims) principal() (rbac.Principal, error) {
	p, err := rbac.NewPrincipal(c.Subject, c.Roles, c.OrgID, c.OrgType)
	if err != nil {
		return rbac.Principal{}, fmt.Errorf("%w: %v", shared.ErrTokenInvalid, err)
	}
	return p, nil
}
