package layout

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func model(name string, stringCount, nodeCount int) *Node {
	return &Node{Name: name, Type: TypeModel, Strings: IntPtr(stringCount), Nodes: IntPtr(nodeCount)}
}

func group(name string, children ...*Node) *Node {
	return &Node{Name: name, Type: TypeGroup, Children: children}
}

func root(children ...*Node) *Node {
	return &Node{Name: RootName, Type: TypeRoot, Children: children}
}

func rowNames(rows []Row) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Name)
	}
	return out
}

func TestHiddenGroupPrunesNestedModels(t *testing.T) {
	tree := root(group("House", model("Tree1", 1, 50)))

	rows := Compute(NewIndex(tree), Filter{ShowGroups: false, ShowModels: true}).Rows()
	assert.Equal(t, []string{"ROOT"}, rowNames(rows))

	visible, markup := ComputeVisibility(tree, Filter{ShowGroups: false, ShowModels: true})
	require.True(t, visible)
	assert.Empty(t, markup.Children)
}

func TestMatchingDescendantKeepsAncestors(t *testing.T) {
	tree := root(
		group("House", model("Tree1", 1, 50), model("Arch-1", 1, 100)),
		group("Yard", model("Star", 3, 200)),
	)
	rows := Compute(NewIndex(tree), Filter{SearchText: "arch", ShowGroups: true, ShowModels: true}).Rows()
	assert.Equal(t, []string{"ROOT", "House", "Arch-1"}, rowNames(rows))
	assert.Equal(t, []int{0, 1, 2}, []int{rows[0].Depth, rows[1].Depth, rows[2].Depth})
}

func TestSearchIsCaseInsensitiveAndOrderPreserving(t *testing.T) {
	tree := root(model("zeta", 1, 1), model("Alpha", 1, 1), model("ALPHA-2", 1, 1))
	rows := Compute(NewIndex(tree), Filter{SearchText: "ALP", ShowGroups: true, ShowModels: true}).Rows()
	assert.Equal(t, []string{"ROOT", "Alpha", "ALPHA-2"}, rowNames(rows))
}

func TestRootHiddenWhenNothingMatches(t *testing.T) {
	tree := root(model("Tree1", 1, 1))
	visible, markup := ComputeVisibility(tree, Filter{SearchText: "nope", ShowGroups: true, ShowModels: true})
	assert.False(t, visible)
	assert.Nil(t, markup)
}

func TestModelBadgeUsesQuestionMarkForMissingCounts(t *testing.T) {
	tree := root(&Node{Name: "Mystery", Type: TypeModel}, model("Known", 4, 400))
	rows := Compute(NewIndex(tree), DefaultFilter()).Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, "", rows[0].Badge)
	assert.Equal(t, "strings: ?, nodes: ?", rows[1].Badge)
	assert.Equal(t, "strings: 4, nodes: 400", rows[2].Badge)
	assert.Equal(t, "  • Known  [strings: 4, nodes: 400]", FormatRow(rows[2]))
}

func TestComputeIsDeterministic(t *testing.T) {
	tree := root(group("A", model("a1", 1, 1), group("B", model("b1", 1, 1))), model("c", 1, 1))
	f := Filter{SearchText: "1", ShowGroups: true, ShowModels: true}
	first := Compute(NewIndex(tree), f).Rows()
	second := Compute(NewIndex(tree), f).Rows()
	assert.Equal(t, first, second)
}

// reference visibility written straight from the rule, without the arena.
func referenceVisible(n *Node, f Filter, out map[*Node]bool) bool {
	eligible := (n.Type == TypeGroup && f.ShowGroups) || (n.Type == TypeModel && f.ShowModels) || n.Name == RootName
	if !eligible {
		return false
	}
	child := false
	for _, c := range n.Children {
		if referenceVisible(c, f, out) {
			child = true
		}
	}
	vis := strings.Contains(strings.ToLower(n.Name), strings.ToLower(f.SearchText)) || child
	out[n] = vis
	return vis
}

func randomTree(r *rand.Rand, depth int, counter *int) *Node {
	*counter++
	names := []string{"Tree", "Arch", "Star", "Window", "Matrix", "Roof"}
	name := fmt.Sprintf("%s-%d", names[r.Intn(len(names))], *counter)
	if depth == 0 || r.Intn(3) == 0 {
		return &Node{Name: name, Type: TypeModel}
	}
	g := &Node{Name: name, Type: TypeGroup}
	if r.Intn(4) == 0 {
		g.Type = TypeModel
	}
	kids := r.Intn(4)
	for i := 0; i < kids; i++ {
		g.Children = append(g.Children, randomTree(r, depth-1, counter))
	}
	return g
}

func TestVisibilityMatchesReferenceRule(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	searches := []string{"", "tree", "ARCH-1", "9", "zzz"}
	for iter := 0; iter < 200; iter++ {
		counter := 0
		tree := root()
		tops := 1 + r.Intn(4)
		for i := 0; i < tops; i++ {
			tree.Children = append(tree.Children, randomTree(r, 3, &counter))
		}
		f := Filter{
			SearchText: searches[r.Intn(len(searches))],
			ShowGroups: r.Intn(2) == 0,
			ShowModels: r.Intn(2) == 0,
		}

		want := map[*Node]bool{}
		referenceVisible(tree, f, want)

		idx := NewIndex(tree)
		v := Compute(idx, f)
		for i := 0; i < idx.Len(); i++ {
			e := idx.Entry(i)
			if v.Visible(i) != want[e.Node] {
				t.Fatalf("iter %d: node %q visible=%v want %v (filter %+v)", iter, e.Node.Name, v.Visible(i), want[e.Node], f)
			}
			if !f.Eligible(e.Node) {
				assertSubtreeHidden(t, idx, v, i)
			}
		}
	}
}

func assertSubtreeHidden(t *testing.T, idx *Index, v Visibility, i int) {
	t.Helper()
	if v.Visible(i) {
		t.Fatalf("node %q inside an ineligible subtree is visible", idx.Entry(i).Node.Name)
	}
	for _, c := range idx.Entry(i).Children {
		assertSubtreeHidden(t, idx, v, c)
	}
}

func TestCountModels(t *testing.T) {
	tree := root(group("G", model("a", 1, 1), model("b", 1, 1)), model("c", 1, 1))
	assert.Equal(t, 3, CountModels(tree))
	assert.Equal(t, 0, CountModels(nil))
}
