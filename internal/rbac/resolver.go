package rbac

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/retail-authz/internal/grants"
	"github.com/odyssey-erp/retail-authz/internal/menus"
	"github.com/odyssey-erp/retail-authz/internal/shared"
)

// MenuAccess is one node of a resolved menu tree.
type MenuAccess struct {
	menus.MenuNode
	Permission grants.PermissionType `json:"permissionType,omitempty"`
	Inherited  bool                  `json:"inherited"`
	HasAccess  bool                  `json:"hasAccess"`
	Children   []*MenuAccess         `json:"children"`
}

// Decision is the outcome of a single-node check.
type Decision struct {
	MenuID     menus.MenuID          `json:"menuId"`
	Permission grants.PermissionType `json:"permissionType,omitempty"`
	Inherited  bool                  `json:"inherited"`
	Allowed    bool                  `json:"allowed"`
}

// Resolver computes effective menu permissions over one tree and one grant
// view. It performs no I/O; callers supply consistent snapshots.
//
// Grants addressed to the principal directly, to any of its roles or to its
// organization all count. The highest effective permission on a node wins.
// ADMIN on a node extends to every descendant; lower types stay on the node
// they were granted on. SYSTEM principals hold ADMIN everywhere.
type Resolver struct {
	Tree  *menus.Tree
	Store grants.Store
	Now   func() time.Time
}

func (r Resolver) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

// Resolve returns the principal's menu forest. Without showAll, inactive
// nodes and branches with no reachable access are left out.
func (r Resolver) Resolve(p Principal, showAll bool) ([]*MenuAccess, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	direct := r.directPermissions(p)
	out := []*MenuAccess{}
	for _, root := range r.Tree.Roots() {
		if node := r.build(root, direct, false, showAll); node != nil {
			out = append(out, node)
		}
	}
	return out, nil
}

func (r Resolver) build(node menus.MenuNode, direct map[menus.MenuID]grants.PermissionType, ancestorAdmin, showAll bool) *MenuAccess {
	if !showAll && !node.Active {
		return nil
	}
	perm, inherited := effective(direct[node.ID], ancestorAdmin)
	access := &MenuAccess{
		MenuNode:   node,
		Permission: perm,
		Inherited:  inherited,
		HasAccess:  perm.Valid(),
		Children:   []*MenuAccess{},
	}
	for _, child := range r.Tree.Children(node.ID) {
		if c := r.build(child, direct, perm == grants.PermissionAdmin, showAll); c != nil {
			access.Children = append(access.Children, c)
		}
	}
	if !showAll && !access.HasAccess && len(access.Children) == 0 {
		return nil
	}
	return access
}

// Check decides whether p holds at least min on menuID. Inactive menus, and
// menus below an inactive ancestor, are never allowed.
func (r Resolver) Check(p Principal, menuID menus.MenuID, min grants.PermissionType) (Decision, error) {
	if err := p.Validate(); err != nil {
		return Decision{}, err
	}
	node, ok := r.Tree.Get(menuID)
	if !ok {
		return Decision{}, fmt.Errorf("rbac: check %s: %w", menuID, shared.ErrUnknownMenu)
	}
	ancestors, err := r.Tree.AncestorsOf(menuID)
	if err != nil {
		return Decision{}, err
	}

	active := node.Active
	for _, a := range ancestors {
		active = active && a.Active
	}

	var own grants.PermissionType
	ancestorAdmin := false
	if p.IsSystem() {
		own = grants.PermissionAdmin
	} else {
		now := r.now()
		own = r.highestOn(p, menuID, now)
		for _, a := range ancestors {
			if r.highestOn(p, a.ID, now) == grants.PermissionAdmin {
				ancestorAdmin = true
				break
			}
		}
	}
	perm, inherited := effective(own, ancestorAdmin)
	return Decision{
		MenuID:     menuID,
		Permission: perm,
		Inherited:  inherited,
		Allowed:    active && perm.Covers(min),
	}, nil
}

// directPermissions returns the highest effective permission per node from
// grants addressed to p. Grants on nodes outside the tree are ignored.
func (r Resolver) directPermissions(p Principal) map[menus.MenuID]grants.PermissionType {
	direct := make(map[menus.MenuID]grants.PermissionType)
	if p.IsSystem() {
		for node := range r.Tree.Flatten() {
			direct[node.ID] = grants.PermissionAdmin
		}
		return direct
	}
	now := r.now()
	for _, target := range p.Targets() {
		for _, g := range r.Store.GrantsForTargets(target.Type, target.IDs) {
			if !g.EffectiveAt(now) {
				continue
			}
			if _, ok := r.Tree.Get(g.MenuID); !ok {
				continue
			}
			direct[g.MenuID] = grants.Max(direct[g.MenuID], g.Permission)
		}
	}
	return direct
}

func (r Resolver) highestOn(p Principal, menuID menus.MenuID, now time.Time) grants.PermissionType {
	var best grants.PermissionType
	for _, g := range r.Store.GrantsFor(menuID) {
		if g.EffectiveAt(now) && p.matches(g) {
			best = grants.Max(best, g.Permission)
		}
	}
	return best
}

func effective(own grants.PermissionType, ancestorAdmin bool) (grants.PermissionType, bool) {
	if ancestorAdmin && own != grants.PermissionAdmin {
		return grants.PermissionAdmin, true
	}
	return own, false
}
