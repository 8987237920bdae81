/*
Copyright © 2024 the mixmodels authors.
This file is part of mixmodels.

mixmodels is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

mixmodels is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with mixmodels.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package codelist loads the hierarchical code lists (regions, years,
// commodities, technologies, relations) that define the categorical
// dimensions of the model.
package codelist

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// DefaultRoot is the ID of the root of region hierarchies.
const DefaultRoot = "World"

// Keys with special meaning in a code list entry. All other keys are
// stored as annotations.
const (
	keyParent      = "parent"
	keyName        = "name"
	keyDescription = "description"
	keyChild       = "child"
)

// Code is a single entry in a code list.
type Code struct {
	ID          string
	Name        string
	Description string

	// Parent is nil for the root and for top-level codes in flat lists.
	Parent   *Code
	Children []*Code

	// Annotations holds the free-form keys of the entry, for example
	// units, reporting categories, or per-dataset mapping keys.
	Annotations map[string]interface{}
}

// IsLeaf returns whether c has no children.
func (c *Code) IsLeaf() bool { return len(c.Children) == 0 }

// Annotation returns the annotation with the given key.
func (c *Code) Annotation(key string) (interface{}, bool) {
	v, ok := c.Annotations[key]
	return v, ok
}

// StringAnnotation returns the annotation with the given key as a string.
func (c *Code) StringAnnotation(key string) (string, bool) {
	v, ok := c.Annotations[key]
	if !ok {
		return "", false
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", false
	}
	return s, true
}

// StringsAnnotation returns the annotation with the given key as a
// slice of strings. Scalar annotations are returned as a single-element slice.
func (c *Code) StringsAnnotation(key string) ([]string, bool) {
	v, ok := c.Annotations[key]
	if !ok {
		return nil, false
	}
	if s, err := cast.ToStringE(v); err == nil {
		return []string{s}, true
	}
	s, err := cast.ToStringSliceE(v)
	if err != nil {
		return nil, false
	}
	return s, true
}

// BoolAnnotation returns the annotation with the given key as a bool.
// def is returned if the annotation is absent.
func (c *Code) BoolAnnotation(key string, def bool) (bool, error) {
	v, ok := c.Annotations[key]
	if !ok {
		return def, nil
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def, fmt.Errorf("codelist: code %q annotation %q: %v", c.ID, key, err)
	}
	return b, nil
}

func (c *Code) String() string { return c.ID }

// Options control how a code list is interpreted.
type Options struct {
	// Root is the ID of the code every other code must descend from.
	// If Root is empty the list is flat: codes without a parent are
	// top-level codes.
	Root string
}

// DefaultOptions returns the options for the given kind of code list.
// Node lists are hierarchies rooted at DefaultRoot; the others are flat.
func DefaultOptions(kind string) Options {
	if kind == "node" {
		return Options{Root: DefaultRoot}
	}
	return Options{}
}

// List is a loaded code list.
type List struct {
	// Source is the file the list was read from, if any.
	Source string

	root  *Code
	top   []*Code
	codes map[string]*Code
	order []string
}

// StructureError is returned when a code list is malformed: a missing or
// undeclared parent, a cycle, a code listed under more than one parent,
// or a duplicate entry.
type StructureError struct {
	Source string
	Code   string
	Reason string
}

func (e *StructureError) Error() string {
	src := e.Source
	if src == "" {
		src = "<input>"
	}
	if e.Code == "" {
		return fmt.Sprintf("codelist: %s: %s", src, e.Reason)
	}
	return fmt.Sprintf("codelist: %s: code %q: %s", src, e.Code, e.Reason)
}

type entry struct {
	id          string
	parent      string
	name        string
	description string
	children    []string
	annotations map[string]interface{}
}

// Open loads the code list of the given kind and id from dir, i.e.
// the file dir/kind/id.yaml.
func Open(dir, kind, id string, opts Options) (*List, error) {
	return LoadFile(filepath.Join(dir, kind, id+".yaml"), opts)
}

// LoadFile loads a code list from the given YAML file.
func LoadFile(path string, opts Options) (*List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("codelist: %v", err)
	}
	defer f.Close()
	l, err := parse(f, path, opts)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Parse reads a code list from r.
func Parse(r io.Reader, opts Options) (*List, error) {
	return parse(r, "", opts)
}

func parse(r io.Reader, source string, opts Options) (*List, error) {
	b, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("codelist: reading %s: %v", source, err)
	}
	entries, err := decodeEntries(b, source)
	if err != nil {
		return nil, err
	}
	return build(entries, source, opts)
}

// decodeEntries walks the YAML document so that declaration order is kept
// and duplicate IDs are detected.
func decodeEntries(b []byte, source string) ([]*entry, error) {
	var doc yaml.Node
	dec := yaml.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, &StructureError{Source: source, Reason: "empty code list"}
		}
		return nil, &StructureError{Source: source, Reason: err.Error()}
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) == 1 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, &StructureError{Source: source, Reason: "top level must be a mapping of code IDs"}
	}
	seen := make(map[string]bool)
	var entries []*entry
	for i := 0; i+1 < len(root.Content); i += 2 {
		k, v := root.Content[i], root.Content[i+1]
		id := strings.TrimSpace(k.Value)
		if id == "" {
			return nil, &StructureError{Source: source, Reason: fmt.Sprintf("empty code ID at line %d", k.Line)}
		}
		if seen[id] {
			return nil, &StructureError{Source: source, Code: id, Reason: fmt.Sprintf("duplicate entry at line %d", k.Line)}
		}
		seen[id] = true

		e := &entry{id: id, annotations: make(map[string]interface{})}
		fields := make(map[string]interface{})
		if !(v.Kind == yaml.ScalarNode && (v.Tag == "!!null" || v.Value == "")) {
			if err := v.Decode(&fields); err != nil {
				return nil, &StructureError{Source: source, Code: id, Reason: err.Error()}
			}
		}
		for key, val := range fields {
			switch key {
			case keyParent:
				e.parent = strings.TrimSpace(cast.ToString(val))
			case keyName:
				e.name = cast.ToString(val)
			case keyDescription:
				e.description = strings.TrimSpace(cast.ToString(val))
			case keyChild:
				children, err := cast.ToSliceE(val)
				if err != nil {
					return nil, &StructureError{Source: source, Code: id, Reason: "child must be a list"}
				}
				for _, c := range children {
					cs := strings.TrimSpace(cast.ToString(c))
					if cs == "" {
						return nil, &StructureError{Source: source, Code: id, Reason: "empty child ID"}
					}
					e.children = append(e.children, cs)
				}
			default:
				e.annotations[key] = val
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func build(entries []*entry, source string, opts Options) (*List, error) {
	l := &List{Source: source, codes: make(map[string]*Code)}
	declared := make(map[string]*entry)
	for _, e := range entries {
		declared[e.id] = e
		l.codes[e.id] = &Code{
			ID:          e.id,
			Name:        e.name,
			Description: e.description,
			Annotations: e.annotations,
		}
		l.order = append(l.order, e.id)
	}

	// Parents implied by child lists. Children that are not declared
	// themselves become leaf codes.
	implied := make(map[string]string)
	for _, e := range entries {
		for _, c := range e.children {
			if c == e.id {
				return nil, &StructureError{Source: source, Code: c, Reason: "code lists itself as a child"}
			}
			if p, ok := implied[c]; ok {
				return nil, &StructureError{Source: source, Code: c,
					Reason: fmt.Sprintf("listed as a child of both %q and %q", p, e.id)}
			}
			implied[c] = e.id
			if _, ok := l.codes[c]; !ok {
				l.codes[c] = &Code{ID: c, Annotations: map[string]interface{}{}}
				l.order = append(l.order, c)
			}
		}
	}

	if opts.Root != "" {
		if _, ok := l.codes[opts.Root]; !ok {
			return nil, &StructureError{Source: source, Code: opts.Root, Reason: "root code is not declared"}
		}
	}

	for _, id := range l.order {
		c := l.codes[id]
		var explicit string
		if e, ok := declared[id]; ok {
			explicit = e.parent
		}
		parent := implied[id]
		if explicit != "" {
			if _, ok := declared[explicit]; !ok {
				return nil, &StructureError{Source: source, Code: id,
					Reason: fmt.Sprintf("parent %q is not declared", explicit)}
			}
			if parent != "" && parent != explicit {
				return nil, &StructureError{Source: source, Code: id,
					Reason: fmt.Sprintf("declares parent %q but is listed as a child of %q", explicit, parent)}
			}
			parent = explicit
		}
		switch {
		case id == opts.Root && parent != "":
			return nil, &StructureError{Source: source, Code: id, Reason: fmt.Sprintf("root code has parent %q", parent)}
		case id == opts.Root:
			l.root = c
		case parent == "" && opts.Root != "":
			return nil, &StructureError{Source: source, Code: id, Reason: "no parent declared"}
		case parent == "":
			l.top = append(l.top, c)
		default:
			c.Parent = l.codes[parent]
		}
	}

	// Children follow the order of child lists, then explicit parent
	// declarations in file order.
	linked := make(map[string]bool)
	for _, e := range entries {
		p := l.codes[e.id]
		for _, cid := range e.children {
			p.Children = append(p.Children, l.codes[cid])
			linked[cid] = true
		}
	}
	for _, id := range l.order {
		c := l.codes[id]
		if c.Parent != nil && !linked[id] {
			c.Parent.Children = append(c.Parent.Children, c)
		}
	}

	if err := l.checkCycles(); err != nil {
		return nil, err
	}
	return l, nil
}

// checkCycles makes sure that every parent chain ends at a code with no
// parent within len(codes) steps.
func (l *List) checkCycles() error {
	for _, id := range l.order {
		c := l.codes[id]
		steps := 0
		for p := c.Parent; p != nil; p = p.Parent {
			steps++
			if steps > len(l.codes) || p == c {
				return &StructureError{Source: l.Source, Code: id, Reason: "parent chain contains a cycle"}
			}
		}
	}
	return nil
}

// Root returns the root code, or nil for flat lists.
func (l *List) Root() *Code { return l.root }

// TopLevel returns the codes without a parent. For hierarchical lists this
// is only the root.
func (l *List) TopLevel() []*Code {
	if l.root != nil {
		return []*Code{l.root}
	}
	return l.top
}

// Len returns the number of codes, including implicit leaves.
func (l *List) Len() int { return len(l.codes) }

// IDs returns the IDs of all codes in declaration order, followed by
// implicit leaves in the order they were first listed.
func (l *List) IDs() []string {
	o := make([]string, len(l.order))
	copy(o, l.order)
	return o
}

// Code returns the code with the given ID.
func (l *List) Code(id string) (*Code, error) {
	c, ok := l.codes[id]
	if !ok {
		return nil, fmt.Errorf("codelist: %s: no code %q", l.sourceName(), id)
	}
	return c, nil
}

// Has returns whether the list contains the given ID.
func (l *List) Has(id string) bool {
	_, ok := l.codes[id]
	return ok
}

func (l *List) sourceName() string {
	if l.Source == "" {
		return "<input>"
	}
	return l.Source
}

// Ancestors returns the parent chain of id, nearest first.
func (l *List) Ancestors(id string) ([]*Code, error) {
	c, err := l.Code(id)
	if err != nil {
		return nil, err
	}
	var o []*Code
	for p := c.Parent; p != nil; p = p.Parent {
		o = append(o, p)
	}
	return o, nil
}

// Depth returns the number of ancestors of id.
func (l *List) Depth(id string) (int, error) {
	a, err := l.Ancestors(id)
	return len(a), err
}

// Leaves returns the leaf descendants of id in tree order. If id is
// itself a leaf, it is returned.
func (l *List) Leaves(id string) ([]*Code, error) {
	c, err := l.Code(id)
	if err != nil {
		return nil, err
	}
	var o []*Code
	var walk func(c *Code)
	walk = func(c *Code) {
		if c.IsLeaf() {
			o = append(o, c)
			return
		}
		for _, ch := range c.Children {
			walk(ch)
		}
	}
	walk(c)
	return o, nil
}

// AtDepth returns the codes at the given depth below the top level, in
// tree order. Depth 1 of a region list gives the regions.
func (l *List) AtDepth(depth int) []*Code {
	var o []*Code
	var walk func(c *Code, d int)
	walk = func(c *Code, d int) {
		if d == depth {
			o = append(o, c)
			return
		}
		for _, ch := range c.Children {
			walk(ch, d+1)
		}
	}
	for _, t := range l.TopLevel() {
		walk(t, 0)
	}
	return o
}

// CheckTree verifies that every code's parent chain terminates at the
// root (or a top-level code for flat lists) without cycles.
func (l *List) CheckTree() error {
	if err := l.checkCycles(); err != nil {
		return err
	}
	if l.root == nil {
		return nil
	}
	for _, id := range l.order {
		c := l.codes[id]
		top := c
		for top.Parent != nil {
			top = top.Parent
		}
		if top != l.root {
			return &StructureError{Source: l.Source, Code: id,
				Reason: fmt.Sprintf("parent chain ends at %q instead of %q", top.ID, l.root.ID)}
		}
	}
	return nil
}

// CheckDisjoint verifies that no leaf appears under more than one of the
// codes at the given depth.
func (l *List) CheckDisjoint(depth int) error {
	owner := make(map[string]string)
	for _, r := range l.AtDepth(depth) {
		leaves, err := l.Leaves(r.ID)
		if err != nil {
			return err
		}
		for _, c := range leaves {
			if prev, ok := owner[c.ID]; ok && prev != r.ID {
				return &StructureError{Source: l.Source, Code: c.ID,
					Reason: fmt.Sprintf("appears in both %q and %q", prev, r.ID)}
			}
			owner[c.ID] = r.ID
		}
	}
	return nil
}

// CoverageError lists reference codes missing from an exhaustive code list.
type CoverageError struct {
	Source  string
	Missing []string
}

func (e *CoverageError) Error() string {
	return fmt.Sprintf("codelist: %s is marked exhaustive but is missing %d codes: %s",
		e.Source, len(e.Missing), strings.Join(e.Missing, ", "))
}

// Exhaustive returns whether the root of the list carries the annotation
// `exhaustive: true`.
func (l *List) Exhaustive() bool {
	if l.root == nil {
		return false
	}
	b, err := l.root.BoolAnnotation("exhaustive", false)
	return err == nil && b
}

// CheckCoverage verifies that every code in reference is a leaf of the
// list. Lists that are not marked exhaustive always pass.
func (l *List) CheckCoverage(reference []string) error {
	if !l.Exhaustive() {
		return nil
	}
	leaves, err := l.Leaves(l.root.ID)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(leaves))
	for _, c := range leaves {
		have[c.ID] = true
	}
	var missing []string
	for _, r := range reference {
		if !have[r] {
			missing = append(missing, r)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &CoverageError{Source: l.sourceName(), Missing: missing}
	}
	return nil
}
