package mockserver

import (
	"fmt"
	"sort"
	"strings"

	"seqgen/internal/recommend"
)

var keywordFamilies = []struct {
	name     string
	keywords []string
}{
	{"mega_tree", []string{"mega", "megatree", "tree"}},
	{"arches", []string{"arch", "arches"}},
	{"matrix", []string{"matrix", "panel", "screen"}},
	{"windows", []string{"window", "windows"}},
	{"roofline", []string{"roof", "eaves", "gutter", "ridge"}},
	{"garland", []string{"garland", "swag"}},
	{"spinner", []string{"spinner", "starburst"}},
	{"stars", []string{"star", "stars"}},
}

const (
	largeNodes   = 500
	largeStrings = 24
	smallNodes   = 200
	minMembers   = 2
)

// recommendGroups suggests groupings by keyword, by Name-N prefix family and
// by size. Each suggestion needs at least two members.
func recommendGroups(models []modelInfo) []recommend.Recommendation {
	var recs []recommend.Recommendation
	add := func(name, reason string, members []string) {
		members = uniqueSorted(members)
		if len(members) < minMembers {
			return
		}
		recs = append(recs, recommend.Recommendation{Name: name, Reason: reason, Members: members})
	}

	for _, fam := range keywordFamilies {
		var members []string
		for _, m := range models {
			lower := strings.ToLower(m.Name)
			for _, kw := range fam.keywords {
				if strings.Contains(lower, kw) {
					members = append(members, m.Name)
					break
				}
			}
		}
		add(fam.name, "keyword-match", members)
	}

	prefixes := map[string][]string{}
	var order []string
	for _, m := range models {
		parts := strings.Split(strings.ReplaceAll(m.Name, ":", "-"), "-")
		if len(parts) < 2 {
			continue
		}
		prefix := strings.TrimSpace(parts[0])
		if _, ok := prefixes[prefix]; !ok {
			order = append(order, prefix)
		}
		prefixes[prefix] = append(prefixes[prefix], m.Name)
	}
	for _, prefix := range order {
		add(fmt.Sprintf("%s_family", prefix), "prefix-family", prefixes[prefix])
	}

	var large, small []string
	for _, m := range models {
		nodes, strs := deref(m.Nodes), deref(m.Strings)
		if nodes >= largeNodes || strs >= largeStrings {
			large = append(large, m.Name)
		}
		if nodes > 0 && nodes < smallNodes {
			small = append(small, m.Name)
		}
	}
	add("large_props", "size-large", large)
	add("small_props", "size-small", small)

	return dedupeByName(recs)
}

// dedupeByName keeps the position of the first suggestion with a name and
// the content of the last.
func dedupeByName(recs []recommend.Recommendation) []recommend.Recommendation {
	pos := map[string]int{}
	out := make([]recommend.Recommendation, 0, len(recs))
	for _, r := range recs {
		if i, ok := pos[r.Name]; ok {
			out[i] = r
			continue
		}
		pos[r.Name] = len(out)
		out = append(out, r)
	}
	return out
}

func uniqueSorted(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
