package layout

import (
	"strings"

	"seqgen/internal/reqtoken"
)

type Status int

const (
	StatusEmpty Status = iota
	StatusLoading
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "empty"
	}
}

// Tree owns the inspected layout and the filter state for one layout file.
// Responses are applied only when they carry the latest request token.
type Tree struct {
	root   *Node
	index  *Index
	filter Filter
	status Status
	err    error
	source string
	tokens reqtoken.Tracker
}

func NewTree() *Tree {
	return &Tree{filter: DefaultFilter(), index: NewIndex(nil)}
}

// Begin marks a new inspection of source as in flight and returns its token.
func (t *Tree) Begin(source string) reqtoken.Token {
	t.status = StatusLoading
	t.err = nil
	t.source = source
	return t.tokens.Next()
}

func (t *Tree) Apply(tok reqtoken.Token, root *Node) bool {
	if !t.tokens.IsCurrent(tok) {
		return false
	}
	t.root = root
	t.index = NewIndex(root)
	t.status = StatusReady
	t.err = nil
	return true
}

func (t *Tree) Fail(tok reqtoken.Token, err error) bool {
	if !t.tokens.IsCurrent(tok) {
		return false
	}
	t.root = nil
	t.index = NewIndex(nil)
	t.status = StatusFailed
	t.err = err
	return true
}

func (t *Tree) Status() Status { return t.status }

func (t *Tree) Err() error { return t.err }

func (t *Tree) Source() string { return t.source }

func (t *Tree) Root() *Node { return t.root }

func (t *Tree) Filter() Filter { return t.filter }

func (t *Tree) SetFilter(f Filter) { t.filter = f }

func (t *Tree) SetSearch(text string) { t.filter.SearchText = text }

func (t *Tree) ToggleGroups() { t.filter.ShowGroups = !t.filter.ShowGroups }

func (t *Tree) ToggleModels() { t.filter.ShowModels = !t.filter.ShowModels }

func (t *Tree) ModelCount() int { return CountModels(t.root) }

func (t *Tree) Rows() []Row {
	return Compute(t.index, t.filter).Rows()
}

// FormatRow renders a row as plain text: two spaces per depth level, a type
// marker, the name and, for models, the count badge.
func FormatRow(r Row) string {
	var b strings.Builder
	b.WriteString(strings.Repeat("  ", r.Depth))
	switch r.Type {
	case TypeGroup:
		b.WriteString("▸ ")
	case TypeModel:
		b.WriteString("• ")
	}
	b.WriteString(r.Name)
	if r.Badge != "" {
		b.WriteString("  [")
		b.WriteString(r.Badge)
		b.WriteString("]")
	}
	return b.String()
}

func FormatRows(rows []Row) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, FormatRow(r))
	}
	return out
}
