package menus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/retail-authz/internal/shared"
)

func ptr(id MenuID) *MenuID { return &id }

func sampleNodes() []MenuNode {
	return []MenuNode{
		{ID: "sales", Code: "SALES", Name: "Sales", Type: TypeCategory, DisplayOrder: 2, Active: true},
		{ID: "store", Code: "STORE", Name: "Store", Type: TypeCategory, DisplayOrder: 1, Active: true},
		{ID: "pos", Code: "POS", Name: "POS", ParentID: ptr("sales"), Type: TypeMenu, DisplayOrder: 1, Active: true},
		{ID: "orders", Code: "ORDERS", Name: "Orders", ParentID: ptr("sales"), Type: TypeMenu, DisplayOrder: 1, Active: true},
		{ID: "refund", Code: "REFUND", Name: "Refund", ParentID: ptr("orders"), Type: TypeFunction, Active: true},
		{ID: "returns", Code: "RETURNS", Name: "Returns", ParentID: ptr("sales"), Type: TypeMenu, DisplayOrder: 0, Active: true},
	}
}

func ids(nodes []MenuNode) []MenuID {
	out := make([]MenuID, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

func TestNewTreeOrdersSiblingsByDisplayOrderThenInsertion(t *testing.T) {
	tree, err := NewTree(sampleNodes())
	require.NoError(t, err)

	require.Equal(t, []MenuID{"store", "sales"}, ids(tree.Roots()))
	require.Equal(t, []MenuID{"returns", "pos", "orders"}, ids(tree.Children("sales")))
}

func TestNewTreeComputesLevels(t *testing.T) {
	tree, err := NewTree(sampleNodes())
	require.NoError(t, err)

	refund, ok := tree.Get("refund")
	require.True(t, ok)
	require.Equal(t, 3, refund.Level)
	sales, _ := tree.Get("sales")
	require.Equal(t, 1, sales.Level)
}

func TestNewTreeRejectsInconsistentLevel(t *testing.T) {
	nodes := sampleNodes()
	nodes[4].Level = 2
	_, err := NewTree(nodes)
	require.ErrorIs(t, err, ErrInvalidTree)
}

func TestNewTreeRejectsMissingParent(t *testing.T) {
	nodes := append(sampleNodes(), MenuNode{ID: "orphan", ParentID: ptr("nowhere")})
	_, err := NewTree(nodes)
	require.ErrorIs(t, err, ErrInvalidTree)
}

func TestNewTreeRejectsCycles(t *testing.T) {
	nodes := append(sampleNodes(),
		MenuNode{ID: "a", ParentID: ptr("b")},
		MenuNode{ID: "b", ParentID: ptr("a")},
	)
	_, err := NewTree(nodes)
	require.ErrorIs(t, err, ErrInvalidTree)

	_, err = NewTree([]MenuNode{{ID: "self", ParentID: ptr("self")}})
	require.ErrorIs(t, err, ErrInvalidTree)
}

func TestNewTreeRejectsBlankAndDuplicateIDs(t *testing.T) {
	_, err := NewTree([]MenuNode{{ID: "  "}})
	require.ErrorIs(t, err, ErrInvalidTree)

	_, err = NewTree([]MenuNode{{ID: "x"}, {ID: "x"}})
	require.ErrorIs(t, err, ErrInvalidTree)
}

func TestChildrenOfUnknownOrLeafIsEmpty(t *testing.T) {
	tree, err := NewTree(sampleNodes())
	require.NoError(t, err)

	require.Empty(t, tree.Children("refund"))
	require.Empty(t, tree.Children("missing"))
}

func TestAncestorsOf(t *testing.T) {
	tree, err := NewTree(sampleNodes())
	require.NoError(t, err)

	chain, err := tree.AncestorsOf("refund")
	require.NoError(t, err)
	require.Equal(t, []MenuID{"sales", "orders"}, ids(chain))

	chain, err = tree.AncestorsOf("sales")
	require.NoError(t, err)
	require.Empty(t, chain)

	_, err = tree.AncestorsOf("missing")
	require.ErrorIs(t, err, shared.ErrUnknownMenu)
}

func TestFlattenIsPreOrderAndRestartable(t *testing.T) {
	tree, err := NewTree(sampleNodes())
	require.NoError(t, err)

	want := []MenuID{"store", "sales", "returns", "pos", "orders", "refund"}
	for range 2 {
		var got []MenuID
		for n := range tree.Flatten() {
			got = append(got, n.ID)
		}
		require.Equal(t, want, got)
	}

	var first []MenuID
	for n := range tree.Flatten() {
		first = append(first, n.ID)
		if len(first) == 2 {
			break
		}
	}
	require.Equal(t, want[:2], first)
}

func TestParseMenuID(t *testing.T) {
	_, err := ParseMenuID("   ")
	require.ErrorIs(t, err, shared.ErrValidation)

	id, err := ParseMenuID(" M1 ")
	require.NoError(t, err)
	require.Equal(t, MenuID("M1"), id)

	require.NotEqual(t, NewMenuID(), NewMenuID())
}
