package roles

import (
	"fmt"
	"strings"

	"github.com/odyssey-erp/retail-authz/internal/shared"
)

var levels = func() map[Role]int {
	m := make(map[Role]int, len(definitions))
	for _, d := range definitions {
		m[d.Role] = d.Level
	}
	return m
}()

// Parse normalises raw input into a known Role.
func Parse(raw string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := levels[role]; !ok {
		return "", fmt.Errorf("roles: parse %q: %w", raw, shared.ErrUnknownRole)
	}
	return role, nil
}

// LevelOf returns the numeric authority level of role.
func LevelOf(role Role) (int, error) {
	level, ok := levels[role]
	if !ok {
		return 0, fmt.Errorf("roles: level of %q: %w", string(role), shared.ErrUnknownRole)
	}
	return level, nil
}

// Valid reports whether role belongs to the fixed set.
func (r Role) Valid() bool {
	_, ok := levels[r]
	return ok
}

// CanManage reports whether a strictly outranks b. Unknown roles never manage
// and are never managed.
func CanManage(a, b Role) bool {
	la, okA := levels[a]
	lb, okB := levels[b]
	return okA && okB && la > lb
}

// HasHigherOrEqualLevel reports whether a ranks at least as high as b.
func HasHigherOrEqualLevel(a, b Role) bool {
	la, okA := levels[a]
	lb, okB := levels[b]
	return okA && okB && la >= lb
}

// IsAdmin is true for the two highest roles.
func IsAdmin(role Role) bool {
	return levels[role] >= adminLevel
}

// AnyAdmin reports whether any of the roles is administrative.
func AnyAdmin(set []Role) bool {
	for _, r := range set {
		if IsAdmin(r) {
			return true
		}
	}
	return false
}

// Highest returns the highest ranked known role of set.
func Highest(set []Role) (Role, bool) {
	var (
		best  Role
		level int
	)
	for _, r := range set {
		if l, ok := levels[r]; ok && l > level {
			best, level = r, l
		}
	}
	return best, level > 0
}

// All lists the role table ordered from highest to lowest level.
func All() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	for i := range out {
		out[i].Admin = IsAdmin(out[i].Role)
	}
	return out
}
