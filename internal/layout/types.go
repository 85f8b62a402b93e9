package layout

import "strconv"

type NodeType string

const (
	TypeRoot  NodeType = "root"
	TypeGroup NodeType = "group"
	TypeModel NodeType = "model"
)

// RootName is the name the parser gives the synthetic top node.
const RootName = "ROOT"

// Node is one entry of the layout hierarchy as returned by /inspect-layout.
// Children keep parser order.
type Node struct {
	Name     string   `json:"name"`
	Type     NodeType `json:"type"`
	Children []*Node  `json:"children,omitempty"`
	Strings  *int     `json:"strings,omitempty"`
	Nodes    *int     `json:"nodes,omitempty"`
}

type Filter struct {
	SearchText string `json:"searchText"`
	ShowGroups bool   `json:"showGroups"`
	ShowModels bool   `json:"showModels"`
}

func DefaultFilter() Filter {
	return Filter{ShowGroups: true, ShowModels: true}
}

// Badge renders the strings/nodes counts shown next to model rows.
func Badge(strings, nodes *int) string {
	return "strings: " + countOrUnknown(strings) + ", nodes: " + countOrUnknown(nodes)
}

func countOrUnknown(v *int) string {
	if v == nil {
		return "?"
	}
	return strconv.Itoa(*v)
}

// CountModels walks the whole tree, ignoring any filter.
func CountModels(root *Node) int {
	if root == nil {
		return 0
	}
	n := 0
	if root.Type == TypeModel {
		n++
	}
	for _, c := range root.Children {
		n += CountModels(c)
	}
	return n
}

func IntPtr(v int) *int {
	return &v
}
