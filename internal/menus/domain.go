package menus

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/odyssey-erp/retail-authz/internal/shared"
)

// MenuID identifies a menu node. The zero value is never a valid id.
type MenuID string

// ParseMenuID trims raw and rejects blank input.
func ParseMenuID(raw string) (MenuID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: menu id must not be blank", shared.ErrValidation)
	}
	return MenuID(trimmed), nil
}

// NewMenuID generates a fresh identifier.
func NewMenuID() MenuID {
	return MenuID(uuid.NewString())
}

func (id MenuID) String() string { return string(id) }

// Type classifies a menu node.
type Type string

const (
	TypeCategory Type = "CATEGORY"
	TypeMenu     Type = "MENU"
	TypeFunction Type = "FUNCTION"
)

// Valid reports whether t is a known menu type.
func (t Type) Valid() bool {
	switch t {
	case TypeCategory, TypeMenu, TypeFunction:
		return true
	}
	return false
}

// MenuNode is a single entry of the menu forest.
type MenuNode struct {
	ID           MenuID  `json:"id"`
	Code         string  `json:"code"`
	Name         string  `json:"name"`
	Path         string  `json:"path,omitempty"`
	ParentID     *MenuID `json:"parentId,omitempty"`
	Level        int     `json:"menuLevel"`
	DisplayOrder int     `json:"displayOrder"`
	Type         Type    `json:"menuType"`
	Active       bool    `json:"active"`
}

// IsRoot reports whether the node has no parent.
func (n MenuNode) IsRoot() bool {
	return n.ParentID == nil
}
