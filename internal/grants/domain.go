package grants

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/retail-authz/internal/menus"
	"github.com/odyssey-erp/retail-authz/internal/shared"
)

// PermissionID identifies a grant record.
type PermissionID string

// ParsePermissionID trims raw and rejects blank input.
func ParsePermissionID(raw string) (PermissionID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: permission id must not be blank", shared.ErrValidation)
	}
	return PermissionID(trimmed), nil
}

// NewPermissionID generates a fresh identifier.
func NewPermissionID() PermissionID {
	return PermissionID(uuid.NewString())
}

// TargetType names the kind of entity a grant is addressed to.
type TargetType string

const (
	TargetUser         TargetType = "USER"
	TargetRole         TargetType = "ROLE"
	TargetStore        TargetType = "STORE"
	TargetHeadquarters TargetType = "HEADQUARTERS"
)

// Valid reports whether t is a known target type.
func (t TargetType) Valid() bool {
	switch t {
	case TargetUser, TargetRole, TargetStore, TargetHeadquarters:
		return true
	}
	return false
}

// PermissionType is the access level carried by a grant.
type PermissionType string

const (
	// PermissionNone means no permission was resolved.
	PermissionNone   PermissionType = ""
	PermissionRead   PermissionType = "READ"
	PermissionWrite  PermissionType = "WRITE"
	PermissionDelete PermissionType = "DELETE"
	PermissionAdmin  PermissionType = "ADMIN"
)

// Rank orders permission types: ADMIN > DELETE > WRITE > READ > none.
// Unknown values rank as none.
func (p PermissionType) Rank() int {
	switch p {
	case PermissionRead:
		return 1
	case PermissionWrite:
		return 2
	case PermissionDelete:
		return 3
	case PermissionAdmin:
		return 4
	}
	return 0
}

// Valid reports whether p is one of the four grantable types.
func (p PermissionType) Valid() bool {
	return p.Rank() > 0
}

// Covers reports whether p satisfies a requirement of min. Nothing covers an
// invalid requirement and PermissionNone covers nothing.
func (p PermissionType) Covers(min PermissionType) bool {
	return p.Valid() && min.Valid() && p.Rank() >= min.Rank()
}

// ParsePermissionType normalises raw input.
func ParsePermissionType(raw string) (PermissionType, error) {
	p := PermissionType(strings.ToUpper(strings.TrimSpace(raw)))
	if !p.Valid() {
		return PermissionNone, fmt.Errorf("%w: unknown permission type %q", shared.ErrValidation, raw)
	}
	return p, nil
}

// Max returns the higher ranked of a and b.
func Max(a, b PermissionType) PermissionType {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Grant binds a menu node, a target and a permission type.
type Grant struct {
	ID         PermissionID   `json:"id"`
	MenuID     menus.MenuID   `json:"menuId"`
	TargetType TargetType     `json:"targetType"`
	TargetID   string         `json:"targetId"`
	Permission PermissionType `json:"permissionType"`
	GrantedAt  time.Time      `json:"grantedAt"`
	GrantedBy  string         `json:"grantedBy"`
	ExpiresAt  *time.Time     `json:"expiresAt,omitempty"`
	Active     bool           `json:"active"`
	RevokedAt  *time.Time     `json:"revokedAt,omitempty"`
	RevokedBy  string         `json:"revokedBy,omitempty"`
}

// EffectiveAt reports whether the grant applies at now: it must be active
// and either open-ended or expiring strictly after now.
func (g Grant) EffectiveAt(now time.Time) bool {
	return g.Active && (g.ExpiresAt == nil || g.ExpiresAt.After(now))
}

// Target addresses a set of grant recipients of one type.
type Target struct {
	Type TargetType
	IDs  []string
}
