package grants

import "github.com/odyssey-erp/retail-authz/internal/menus"

// Store is the read-only grant view consumed by the resolver. Implementations
// must return a consistent snapshot for the lifetime of one resolution.
type Store interface {
	// GrantsFor returns every grant attached to exactly menuID, effective or not.
	GrantsFor(menuID menus.MenuID) []Grant
	// GrantsForTargets returns grants addressed to any of targetIDs of targetType.
	GrantsForTargets(targetType TargetType, targetIDs []string) []Grant
}

type targetKey struct {
	kind TargetType
	id   string
}

// Snapshot is an immutable in-memory Store. It is safe for concurrent readers.
type Snapshot struct {
	byMenu   map[menus.MenuID][]Grant
	byTarget map[targetKey][]Grant
}

// NewSnapshot indexes a copy of grants.
func NewSnapshot(grants []Grant) *Snapshot {
	s := &Snapshot{
		byMenu:   make(map[menus.MenuID][]Grant),
		byTarget: make(map[targetKey][]Grant),
	}
	for _, g := range grants {
		s.byMenu[g.MenuID] = append(s.byMenu[g.MenuID], g)
		key := targetKey{kind: g.TargetType, id: g.TargetID}
		s.byTarget[key] = append(s.byTarget[key], g)
	}
	return s
}

// GrantsFor implements Store.
func (s *Snapshot) GrantsFor(menuID menus.MenuID) []Grant {
	return append([]Grant(nil), s.byMenu[menuID]...)
}

// GrantsForTargets implements Store.
func (s *Snapshot) GrantsForTargets(targetType TargetType, targetIDs []string) []Grant {
	seen := make(map[string]struct{}, len(targetIDs))
	var out []Grant
	for _, id := range targetIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, s.byTarget[targetKey{kind: targetType, id: id}]...)
	}
	return out
}

var _ Store = (*Snapshot)(nil)
