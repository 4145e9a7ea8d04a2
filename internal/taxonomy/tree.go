// Package taxonomy builds the ingredient forest from flat records and answers
// ancestry, subtree, and substitution queries against it.
//
// A Tree is immutable once Build returns. It may be shared by any number of
// concurrent readers; rebuilding produces a new instance.
package taxonomy

import (
	"fmt"
	"sort"

	"amari/pkg/domain"
)

// Tree is a rooted forest of ingredient nodes keyed by slug.
type Tree struct {
	nodes    map[string]domain.IngredientNode
	children map[string][]string
	roots    []string
}

// Build places records into a new forest. Records may arrive in any order:
// placement repeats until a full pass places nothing, so a child listed before
// its parent is picked up on a later pass.
func Build(records []domain.IngredientNode) (*Tree, error) {
	if err := validateRecords(records); err != nil {
		return nil, err
	}

	t := &Tree{
		nodes:    make(map[string]domain.IngredientNode, len(records)),
		children: make(map[string][]string),
	}

	pending := make([]domain.IngredientNode, 0, len(records))
	for _, r := range records {
		pending = append(pending, r.Clone())
	}

	for len(pending) > 0 {
		next := make([]domain.IngredientNode, 0, len(pending))
		placed := 0
		for _, r := range pending {
			if r.IsRoot() || t.Contains(r.Parent) {
				t.place(r)
				placed++
				continue
			}
			next = append(next, r)
		}
		if placed == 0 {
			return nil, unresolvable(next)
		}
		pending = next
	}

	sort.Strings(t.roots)
	for parent := range t.children {
		sort.Strings(t.children[parent])
	}
	return t, nil
}

func (t *Tree) place(r domain.IngredientNode) {
	t.nodes[r.Slug] = r
	if r.IsRoot() {
		t.roots = append(t.roots, r.Slug)
		return
	}
	t.children[r.Parent] = append(t.children[r.Parent], r.Slug)
}

// validateRecords rejects malformed and duplicate records before placement.
// The smallest offending slug is reported so the outcome does not depend on
// input order.
func validateRecords(records []domain.IngredientNode) error {
	var invalid []*ConstructionError
	counts := make(map[string]int, len(records))
	for _, r := range records {
		if reason := recordProblem(r); reason != "" {
			invalid = append(invalid, &ConstructionError{Kind: InvalidRecord, Slug: r.Slug, Reason: reason})
			continue
		}
		counts[r.Slug]++
	}
	if len(invalid) > 0 {
		sort.Slice(invalid, func(i, j int) bool {
			if invalid[i].Slug != invalid[j].Slug {
				return invalid[i].Slug < invalid[j].Slug
			}
			return invalid[i].Reason < invalid[j].Reason
		})
		return invalid[0]
	}
	var dups []string
	for slug, n := range counts {
		if n > 1 {
			dups = append(dups, slug)
		}
	}
	if len(dups) > 0 {
		sort.Strings(dups)
		return &ConstructionError{Kind: DuplicateSlug, Slug: dups[0]}
	}
	return nil
}

func recordProblem(r domain.IngredientNode) string {
	switch {
	case r.Slug == "":
		return "empty slug"
	case !r.Kind.Valid():
		return fmt.Sprintf("unknown kind %q", r.Kind)
	case r.IsRoot() && r.Parent != "":
		return fmt.Sprintf("category declares parent %q", r.Parent)
	case !r.IsRoot() && r.Parent == "":
		return fmt.Sprintf("%s has no parent", r.Kind)
	case r.Parent == r.Slug:
		return "node is its own parent"
	}
	return ""
}

func unresolvable(pending []domain.IngredientNode) error {
	sort.Slice(pending, func(i, j int) bool { return pending[i].Slug < pending[j].Slug })
	r := pending[0]
	return &ConstructionError{
		Kind:   UnresolvableParent,
		Slug:   r.Slug,
		Reason: fmt.Sprintf("parent %q never placed", r.Parent),
	}
}

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Contains reports whether slug is a node of the tree.
func (t *Tree) Contains(slug string) bool {
	_, ok := t.nodes[slug]
	return ok
}

// Roots returns the category slugs, sorted.
func (t *Tree) Roots() []string {
	return append([]string(nil), t.roots...)
}

// Node returns the record for slug.
func (t *Tree) Node(slug string) (domain.IngredientNode, error) {
	n, ok := t.nodes[slug]
	if !ok {
		return domain.IngredientNode{}, notFound(slug)
	}
	return n.Clone(), nil
}

// Parent returns the parent record of slug. Root categories have no parent
// and yield ErrNotFound.
func (t *Tree) Parent(slug string) (domain.IngredientNode, error) {
	n, ok := t.nodes[slug]
	if !ok {
		return domain.IngredientNode{}, notFound(slug)
	}
	if n.IsRoot() {
		return domain.IngredientNode{}, fmt.Errorf("%w: %s is a root category", ErrNotFound, slug)
	}
	return t.nodes[n.Parent].Clone(), nil
}

// Parents returns the ancestor chain of slug, nearest first, ending with the
// root category. It is empty for a root.
func (t *Tree) Parents(slug string) ([]string, error) {
	n, ok := t.nodes[slug]
	if !ok {
		return nil, notFound(slug)
	}
	parents := []string{}
	for !n.IsRoot() {
		parents = append(parents, n.Parent)
		n = t.nodes[n.Parent]
	}
	return parents, nil
}

// Children returns the sorted slugs whose parent is slug.
func (t *Tree) Children(slug string) ([]string, error) {
	if !t.Contains(slug) {
		return nil, notFound(slug)
	}
	return append([]string{}, t.children[slug]...), nil
}

// Siblings returns the other children of slug's parent. Roots have none.
func (t *Tree) Siblings(slug string) ([]string, error) {
	n, ok := t.nodes[slug]
	if !ok {
		return nil, notFound(slug)
	}
	out := []string{}
	if n.IsRoot() {
		return out, nil
	}
	for _, s := range t.children[n.Parent] {
		if s != slug {
			out = append(out, s)
		}
	}
	return out, nil
}

// Descendants returns every slug below slug, sorted. slug itself is excluded.
func (t *Tree) Descendants(slug string) ([]string, error) {
	if !t.Contains(slug) {
		return nil, notFound(slug)
	}
	out := []string{}
	stack := append([]string(nil), t.children[slug]...)
	for len(stack) > 0 {
		last := len(stack) - 1
		s := stack[last]
		stack = stack[:last]
		out = append(out, s)
		stack = append(stack, t.children[s]...)
	}
	sort.Strings(out)
	return out, nil
}

// Records returns a copy of every node, sorted by slug.
func (t *Tree) Records() []domain.IngredientNode {
	out := make([]domain.IngredientNode, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, n.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}
