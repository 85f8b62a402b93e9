// Package recommend holds the grouping suggestions returned for a layout and
// the user's checked subset of them.
package recommend

import (
	"encoding/json"
	"fmt"
	"strings"

	"seqgen/internal/reqtoken"
)

// PayloadField is the multipart field that carries the selection.
const PayloadField = "selected_recommendations"

type Recommendation struct {
	Name    string   `json:"name"`
	Reason  string   `json:"reason"`
	Members []string `json:"members"`
}

type State int

const (
	StateNotFetched State = iota
	StateLoading
	StateEmpty
	StateLoaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateEmpty:
		return "empty"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return "not_fetched"
	}
}

type Item struct {
	Recommendation
	Checked bool
}

// Selector presents recommendations as default-checked items in the order
// the server returned them.
type Selector struct {
	state  State
	items  []Item
	err    error
	tokens reqtoken.Tracker
}

func NewSelector() *Selector {
	return &Selector{}
}

func (s *Selector) Begin() reqtoken.Token {
	s.state = StateLoading
	s.items = nil
	s.err = nil
	return s.tokens.Next()
}

// Apply installs a fetch result if tok is still current. An empty result
// moves to StateEmpty, which is distinct from never having fetched.
func (s *Selector) Apply(tok reqtoken.Token, recs []Recommendation) bool {
	if !s.tokens.IsCurrent(tok) {
		return false
	}
	s.err = nil
	s.items = make([]Item, 0, len(recs))
	seen := make(map[string]bool, len(recs))
	for _, r := range recs {
		if seen[r.Name] {
			continue
		}
		seen[r.Name] = true
		s.items = append(s.items, Item{Recommendation: r, Checked: true})
	}
	if len(s.items) == 0 {
		s.state = StateEmpty
	} else {
		s.state = StateLoaded
	}
	return true
}

func (s *Selector) Fail(tok reqtoken.Token, err error) bool {
	if !s.tokens.IsCurrent(tok) {
		return false
	}
	s.state = StateFailed
	s.items = nil
	s.err = err
	return true
}

// Reset forgets everything, including any request still in flight.
func (s *Selector) Reset() {
	s.tokens.Invalidate()
	s.state = StateNotFetched
	s.items = nil
	s.err = nil
}

func (s *Selector) State() State { return s.state }

func (s *Selector) Err() error { return s.err }

func (s *Selector) Len() int { return len(s.items) }

func (s *Selector) Items() []Item {
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Selector) Toggle(i int) bool {
	if i < 0 || i >= len(s.items) {
		return false
	}
	s.items[i].Checked = !s.items[i].Checked
	return true
}

// Only leaves exactly the named items checked. Unknown names are an error
// and leave the selection untouched.
func (s *Selector) Only(names []string) error {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.TrimSpace(n)] = true
	}
	known := make(map[string]bool, len(s.items))
	for _, it := range s.items {
		known[it.Name] = true
	}
	var missing []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if !known[n] {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("unknown recommendation(s): %s", strings.Join(missing, ", "))
	}
	for i := range s.items {
		s.items[i].Checked = want[s.items[i].Name]
	}
	return nil
}

// CurrentSelection returns the checked names in display order.
func (s *Selector) CurrentSelection() []string {
	out := make([]string, 0, len(s.items))
	for _, it := range s.items {
		if it.Checked {
			out = append(out, it.Name)
		}
	}
	return out
}

// Payload returns the JSON-encoded selection and whether the field should be
// sent at all. Only a loaded list is sent; an empty selection from a loaded
// list is sent as [].
func (s *Selector) Payload() (string, bool) {
	if s.state != StateLoaded {
		return "", false
	}
	raw, err := json.Marshal(s.CurrentSelection())
	if err != nil {
		return "", false
	}
	return string(raw), true
}
