package layout

import "strings"

// Entry is one arena slot. Parent is -1 for the root.
type Entry struct {
	Node     *Node
	Depth    int
	Parent   int
	Children []int
}

// Index flattens a tree into a pre-order arena so visibility can be kept in
// a parallel slice instead of on the nodes themselves.
type Index struct {
	entries []Entry
}

func NewIndex(root *Node) *Index {
	idx := &Index{}
	if root != nil {
		idx.add(root, 0, -1)
	}
	return idx
}

func (x *Index) add(n *Node, depth, parent int) int {
	pos := len(x.entries)
	x.entries = append(x.entries, Entry{Node: n, Depth: depth, Parent: parent})
	for _, c := range n.Children {
		if c == nil {
			continue
		}
		child := x.add(c, depth+1, pos)
		x.entries[pos].Children = append(x.entries[pos].Children, child)
	}
	return pos
}

func (x *Index) Len() int {
	return len(x.entries)
}

func (x *Index) Entry(i int) Entry {
	return x.entries[i]
}

// Eligible reports whether the node's type passes the group/model toggles.
// The root is always eligible by name.
func (f Filter) Eligible(n *Node) bool {
	if n == nil {
		return false
	}
	return (n.Type == TypeGroup && f.ShowGroups) ||
		(n.Type == TypeModel && f.ShowModels) ||
		n.Name == RootName
}

func (f Filter) Matches(n *Node) bool {
	return strings.Contains(strings.ToLower(n.Name), strings.ToLower(f.SearchText))
}

// Visibility is the result of applying a Filter to an Index. Visible[i]
// parallels the arena entries.
type Visibility struct {
	index   *Index
	visible []bool
}

// Compute evaluates the filter root-first. An ineligible node hides its
// whole subtree without its children being visited; an eligible node is
// visible when it matches the search or any child is visible.
func Compute(idx *Index, f Filter) Visibility {
	v := Visibility{index: idx, visible: make([]bool, idx.Len())}
	if idx.Len() > 0 {
		v.eval(0, f)
	}
	return v
}

func (v *Visibility) eval(i int, f Filter) bool {
	e := v.index.entries[i]
	if !f.Eligible(e.Node) {
		return false
	}
	anyChild := false
	for _, c := range e.Children {
		if v.eval(c, f) {
			anyChild = true
		}
	}
	v.visible[i] = f.Matches(e.Node) || anyChild
	return v.visible[i]
}

func (v Visibility) Visible(i int) bool {
	return i >= 0 && i < len(v.visible) && v.visible[i]
}

func (v Visibility) Count() int {
	n := 0
	for _, ok := range v.visible {
		if ok {
			n++
		}
	}
	return n
}

// Row is a rendered tree line.
type Row struct {
	Index int      `json:"-" yaml:"-"`
	Name  string   `json:"name" yaml:"name"`
	Type  NodeType `json:"type" yaml:"type"`
	Depth int      `json:"depth" yaml:"depth"`
	Badge string   `json:"badge,omitempty" yaml:"badge,omitempty"`
}

// Rows lists visible nodes in arena order, which is the parser order.
func (v Visibility) Rows() []Row {
	rows := make([]Row, 0, v.Count())
	for i, ok := range v.visible {
		if !ok {
			continue
		}
		e := v.index.entries[i]
		row := Row{Index: i, Name: e.Node.Name, Type: e.Node.Type, Depth: e.Depth}
		if e.Node.Type == TypeModel {
			row.Badge = Badge(e.Node.Strings, e.Node.Nodes)
		}
		rows = append(rows, row)
	}
	return rows
}

// MarkupNode is the renderable projection of a visible subtree.
type MarkupNode struct {
	Name     string
	Type     NodeType
	Depth    int
	Badge    string
	Children []*MarkupNode
}

// Markup returns the rendering rooted at entry i, or nil when it is hidden.
func (v Visibility) Markup(i int) *MarkupNode {
	if !v.Visible(i) {
		return nil
	}
	e := v.index.entries[i]
	m := &MarkupNode{Name: e.Node.Name, Type: e.Node.Type, Depth: e.Depth}
	if e.Node.Type == TypeModel {
		m.Badge = Badge(e.Node.Strings, e.Node.Nodes)
	}
	for _, c := range e.Children {
		if child := v.Markup(c); child != nil {
			m.Children = append(m.Children, child)
		}
	}
	return m
}

// ComputeVisibility is the single-call form: whether the root renders and
// what it renders as.
func ComputeVisibility(root *Node, f Filter) (bool, *MarkupNode) {
	v := Compute(NewIndex(root), f)
	m := v.Markup(0)
	return m != nil, m
}
