package mockserver

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"seqgen/internal/layout"
)

type point struct {
	X float64
	Y float64
}

type modelInfo struct {
	Name    string
	Strings *int
	Nodes   *int
	Points  []point
}

type groupInfo struct {
	Name    string
	Members []string
}

type parsedLayout struct {
	Models []modelInfo
	Groups []groupInfo
}

var errNoModels = errors.New("layout has no models")

// parseLayout reads <model> and <modelGroup> elements anywhere in the
// document. Duplicate names keep their first occurrence.
func parseLayout(r io.Reader) (*parsedLayout, error) {
	dec := xml.NewDecoder(r)
	out := &parsedLayout{}
	seenModel := map[string]bool{}
	seenGroup := map[string]bool{}
	current := -1
	depth := 0
	sawRoot := false

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse layout xml: %w", err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			sawRoot = true
			depth++
			switch el.Name.Local {
			case "model":
				m := modelInfo{
					Name:    firstAttr(el, "name", "Model"),
					Strings: intAttr(el, "StringCount", "strings"),
					Nodes:   intAttr(el, "Nodes", "nodes"),
				}
				current = -1
				if m.Name != "" && !seenModel[m.Name] {
					seenModel[m.Name] = true
					out.Models = append(out.Models, m)
					current = len(out.Models) - 1
				}
			case "node":
				if current >= 0 {
					x, xErr := strconv.ParseFloat(firstAttr(el, "x"), 64)
					y, yErr := strconv.ParseFloat(firstAttr(el, "y"), 64)
					if xErr == nil && yErr == nil {
						out.Models[current].Points = append(out.Models[current].Points, point{X: x, Y: y})
					}
				}
			case "modelGroup":
				name := firstAttr(el, "name")
				if name == "" || seenGroup[name] {
					continue
				}
				seenGroup[name] = true
				out.Groups = append(out.Groups, groupInfo{Name: name, Members: splitMembers(firstAttr(el, "models"))})
			}
		case xml.EndElement:
			depth--
			if el.Name.Local == "model" {
				current = -1
			}
		}
	}
	if !sawRoot || depth != 0 {
		return nil, errors.New("parse layout xml: no document element")
	}
	return out, nil
}

func firstAttr(el xml.StartElement, names ...string) string {
	for _, n := range names {
		for _, a := range el.Attr {
			if a.Name.Local == n && strings.TrimSpace(a.Value) != "" {
				return strings.TrimSpace(a.Value)
			}
		}
	}
	return ""
}

func intAttr(el xml.StartElement, names ...string) *int {
	raw := firstAttr(el, names...)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &v
}

func splitMembers(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// tree builds ROOT -> groups -> members. Groups that are members of another
// group nest under it; models in no group hang directly off ROOT.
func (p *parsedLayout) tree() *layout.Node {
	models := make(map[string]modelInfo, len(p.Models))
	for _, m := range p.Models {
		models[m.Name] = m
	}
	groups := make(map[string]groupInfo, len(p.Groups))
	for _, g := range p.Groups {
		groups[g.Name] = g
	}

	grouped := map[string]bool{}
	nested := map[string]bool{}
	for _, g := range p.Groups {
		for _, member := range g.Members {
			if _, ok := groups[member]; ok && member != g.Name {
				nested[member] = true
				continue
			}
			if _, ok := models[member]; ok {
				grouped[member] = true
			}
		}
	}

	var build func(g groupInfo, path map[string]bool) *layout.Node
	build = func(g groupInfo, path map[string]bool) *layout.Node {
		node := &layout.Node{Name: g.Name, Type: layout.TypeGroup}
		path[g.Name] = true
		defer delete(path, g.Name)
		for _, member := range g.Members {
			if sub, ok := groups[member]; ok {
				if !path[member] {
					node.Children = append(node.Children, build(sub, path))
				}
				continue
			}
			if m, ok := models[member]; ok {
				node.Children = append(node.Children, modelNode(m))
			}
		}
		return node
	}

	root := &layout.Node{Name: layout.RootName, Type: layout.TypeRoot}
	for _, g := range p.Groups {
		if nested[g.Name] {
			continue
		}
		root.Children = append(root.Children, build(g, map[string]bool{}))
	}
	for _, m := range p.Models {
		if !grouped[m.Name] {
			root.Children = append(root.Children, modelNode(m))
		}
	}
	return root
}

func modelNode(m modelInfo) *layout.Node {
	return &layout.Node{Name: m.Name, Type: layout.TypeModel, Strings: m.Strings, Nodes: m.Nodes}
}
