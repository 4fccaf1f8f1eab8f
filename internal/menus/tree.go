package menus

import (
	"errors"
	"fmt"
	"iter"
	"sort"

	"github.com/odyssey-erp/retail-authz/internal/shared"
)

// ErrInvalidTree is returned when nodes do not form a valid forest.
var ErrInvalidTree = errors.New("menus: invalid tree")

// Tree is an immutable, validated menu forest. It is safe for concurrent use.
type Tree struct {
	nodes    map[MenuID]MenuNode
	children map[MenuID][]MenuID
	roots    []MenuID
}

// NewTree validates nodes and builds the forest. Sibling order follows
// DisplayOrder, then the order nodes were supplied in. A zero Level is filled
// in from the node's depth; a non-zero Level must match it.
func NewTree(nodes []MenuNode) (*Tree, error) {
	t := &Tree{
		nodes:    make(map[MenuID]MenuNode, len(nodes)),
		children: make(map[MenuID][]MenuID),
	}
	order := make(map[MenuID]int, len(nodes))
	for i, n := range nodes {
		if _, err := ParseMenuID(string(n.ID)); err != nil {
			return nil, fmt.Errorf("%w: node %d: %v", ErrInvalidTree, i, err)
		}
		if _, dup := t.nodes[n.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidTree, n.ID)
		}
		if n.Type != "" && !n.Type.Valid() {
			return nil, fmt.Errorf("%w: node %s has unknown type %q", ErrInvalidTree, n.ID, n.Type)
		}
		t.nodes[n.ID] = n
		order[n.ID] = i
	}

	for _, n := range nodes {
		if n.ParentID == nil {
			t.roots = append(t.roots, n.ID)
			continue
		}
		if _, ok := t.nodes[*n.ParentID]; !ok {
			return nil, fmt.Errorf("%w: node %s references missing parent %s", ErrInvalidTree, n.ID, *n.ParentID)
		}
		t.children[*n.ParentID] = append(t.children[*n.ParentID], n.ID)
	}

	byDisplay := func(ids []MenuID) {
		sort.SliceStable(ids, func(i, j int) bool {
			a, b := t.nodes[ids[i]], t.nodes[ids[j]]
			if a.DisplayOrder != b.DisplayOrder {
				return a.DisplayOrder < b.DisplayOrder
			}
			return order[ids[i]] < order[ids[j]]
		})
	}
	byDisplay(t.roots)
	for _, ids := range t.children {
		byDisplay(ids)
	}

	// Every node must be reachable from a root; anything left over sits on a cycle.
	visited := make(map[MenuID]bool, len(t.nodes))
	var walk func(id MenuID, depth int) error
	walk = func(id MenuID, depth int) error {
		visited[id] = true
		n := t.nodes[id]
		if n.Level != 0 && n.Level != depth {
			return fmt.Errorf("%w: node %s has level %d, expected %d", ErrInvalidTree, id, n.Level, depth)
		}
		n.Level = depth
		t.nodes[id] = n
		for _, child := range t.children[id] {
			if err := walk(child, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	for _, root := range t.roots {
		if err := walk(root, 1); err != nil {
			return nil, err
		}
	}
	if len(visited) != len(t.nodes) {
		for _, n := range nodes {
			if !visited[n.ID] {
				return nil, fmt.Errorf("%w: cycle through node %s", ErrInvalidTree, n.ID)
			}
		}
	}
	return t, nil
}

// Len returns the number of nodes.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Get returns the node with id.
func (t *Tree) Get(id MenuID) (MenuNode, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// Roots returns the root nodes in display order.
func (t *Tree) Roots() []MenuNode {
	return t.collect(t.roots)
}

// Children returns the ordered children of id. Leaves and unknown ids yield
// an empty slice.
func (t *Tree) Children(id MenuID) []MenuNode {
	return t.collect(t.children[id])
}

// AncestorsOf returns the ancestors of id ordered from the root down to the
// immediate parent.
func (t *Tree) AncestorsOf(id MenuID) ([]MenuNode, error) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("menus: ancestors of %s: %w", id, shared.ErrUnknownMenu)
	}
	var chain []MenuNode
	for n.ParentID != nil {
		n = t.nodes[*n.ParentID]
		chain = append(chain, n)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// Flatten yields every node in pre-order with siblings in display order.
// Each call starts a fresh traversal.
func (t *Tree) Flatten() iter.Seq[MenuNode] {
	return func(yield func(MenuNode) bool) {
		var visit func(ids []MenuID) bool
		visit = func(ids []MenuID) bool {
			for _, id := range ids {
				if !yield(t.nodes[id]) {
					return false
				}
				if !visit(t.children[id]) {
					return false
				}
			}
			return true
		}
		visit(t.roots)
	}
}

func (t *Tree) collect(ids []MenuID) []MenuNode {
	out := make([]MenuNode, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.nodes[id])
	}
	return out
}
