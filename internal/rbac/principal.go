package rbac

import (
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-erp/retail-authz/internal/grants"
	"github.com/odyssey-erp/retail-authz/internal/roles"
	"github.com/odyssey-erp/retail-authz/internal/shared"
)

// OrgType classifies the organization a principal belongs to.
type OrgType string

const (
	OrgSystem       OrgType = "SYSTEM"
	OrgHeadquarters OrgType = "HEADQUARTERS"
	OrgStore        OrgType = "STORE"
)

// Valid reports whether t is a known organization type.
func (t OrgType) Valid() bool {
	switch t {
	case OrgSystem, OrgHeadquarters, OrgStore:
		return true
	}
	return false
}

// Principal describes the authenticated actor.
type Principal struct {
	UserID           string       `json:"userId"`
	Roles            []roles.Role `json:"roles"`
	OrganizationID   string       `json:"organizationId,omitempty"`
	OrganizationType OrgType      `json:"organizationType"`
}

// NewPrincipal normalises raw claims into a validated Principal.
func NewPrincipal(userID string, rawRoles []string, orgID, orgType string) (Principal, error) {
	p := Principal{
		UserID:           strings.TrimSpace(userID),
		OrganizationID:   strings.TrimSpace(orgID),
		OrganizationType: OrgType(strings.ToUpper(strings.TrimSpace(orgType))),
	}
	for _, raw := range rawRoles {
		role, err := roles.Parse(raw)
		if err != nil {
			return Principal{}, fmt.Errorf("%w: %v", shared.ErrInvalidPrincipal, err)
		}
		p.Roles = append(p.Roles, role)
	}
	if err := p.Validate(); err != nil {
		return Principal{}, err
	}
	return p, nil
}

// Validate checks the principal is resolvable.
func (p Principal) Validate() error {
	if p.UserID == "" {
		return fmt.Errorf("%w: user id required", shared.ErrInvalidPrincipal)
	}
	if len(p.Roles) == 0 {
		return fmt.Errorf("%w: at least one role required", shared.ErrInvalidPrincipal)
	}
	for _, r := range p.Roles {
		if !r.Valid() {
			return fmt.Errorf("%w: role %q", shared.ErrInvalidPrincipal, r)
		}
	}
	if !p.OrganizationType.Valid() {
		return fmt.Errorf("%w: organization type %q", shared.ErrInvalidPrincipal, p.OrganizationType)
	}
	if p.OrganizationType != OrgSystem && p.OrganizationID == "" {
		return fmt.Errorf("%w: organization id required for %s", shared.ErrInvalidPrincipal, p.OrganizationType)
	}
	return nil
}

// IsSystem reports whether p acts on behalf of the system organization.
func (p Principal) IsSystem() bool {
	return p.OrganizationType == OrgSystem
}

// IsAdmin reports whether p carries an admin role.
func (p Principal) IsAdmin() bool {
	return roles.AnyAdmin(p.Roles)
}

// RoleNames returns the roles as plain strings.
func (p Principal) RoleNames() []string {
	out := make([]string, len(p.Roles))
	for i, r := range p.Roles {
		out[i] = string(r)
	}
	return out
}

// Targets lists the grant recipients p is reachable through.
func (p Principal) Targets() []grants.Target {
	targets := []grants.Target{
		{Type: grants.TargetUser, IDs: []string{p.UserID}},
		{Type: grants.TargetRole, IDs: p.RoleNames()},
	}
	switch p.OrganizationType {
	case OrgStore:
		targets = append(targets, grants.Target{Type: grants.TargetStore, IDs: []string{p.OrganizationID}})
	case OrgHeadquarters:
		targets = append(targets, grants.Target{Type: grants.TargetHeadquarters, IDs: []string{p.OrganizationID}})
	}
	return targets
}

// matches reports whether g is addressed to p.
func (p Principal) matches(g grants.Grant) bool {
	for _, t := range p.Targets() {
		if t.Type != g.TargetType {
			continue
		}
		for _, id := range t.IDs {
			if id == g.TargetID {
				return true
			}
		}
	}
	return false
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored by the auth middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
