// Package inventory expands explicitly owned ingredients into the full set of
// ingredients an inventory can satisfy.
package inventory

import (
	"sort"

	"amari/internal/taxonomy"
	"amari/pkg/domain"
)

// Set is an unordered set of ingredient slugs.
type Set map[string]struct{}

// Has reports whether slug is a member.
func (s Set) Has(slug string) bool {
	_, ok := s[slug]
	return ok
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for slug := range s {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}

// Item is one member of an expanded inventory. ImpliedBy lists the owned
// slugs whose implication produced it and is empty for owned items that
// nothing else implies.
type Item struct {
	Slug      string   `json:"slug"`
	Explicit  bool     `json:"explicit"`
	ImpliedBy []string `json:"implied_by"`
}

// Expansion is the detailed result of expanding an owned set.
type Expansion struct {
	Items map[string]Item `json:"implicit_items"`
}

// Set returns the expansion as a plain slug set.
func (e Expansion) Set() Set {
	out := make(Set, len(e.Items))
	for slug := range e.Items {
		out[slug] = struct{}{}
	}
	return out
}

// ImpliedBy returns the owned slugs that imply slug, excluding slug itself.
func (e Expansion) ImpliedBy(slug string) []string {
	item, ok := e.Items[slug]
	if !ok {
		return nil
	}
	return append([]string{}, item.ImpliedBy...)
}

// Expander computes implicit items with the same resolver the substitution
// queries use.
type Expander struct {
	resolver *taxonomy.SubstitutionResolver
}

// NewExpander returns an expander bound to resolver.
func NewExpander(resolver *taxonomy.SubstitutionResolver) *Expander {
	return &Expander{resolver: resolver}
}

// Expand returns owned plus every ancestor implied by an owned slug.
// Owned slugs absent from the tree are kept as-is and imply nothing.
func (e *Expander) Expand(owned []string) Set {
	return e.ExpandDetailed(owned).Set()
}

// ExpandDetailed is Expand with per-item provenance.
func (e *Expander) ExpandDetailed(owned []string) Expansion {
	items := make(map[string]Item, len(owned))
	for _, slug := range owned {
		item := items[slug]
		item.Slug = slug
		item.Explicit = true
		items[slug] = item
	}
	for _, slug := range owned {
		implies, _, err := e.resolver.Implies(slug)
		if err != nil {
			continue
		}
		for _, implied := range implies {
			item := items[implied]
			item.Slug = implied
			if !containsString(item.ImpliedBy, slug) {
				item.ImpliedBy = append(item.ImpliedBy, slug)
			}
			items[implied] = item
		}
	}
	for slug, item := range items {
		if item.ImpliedBy == nil {
			item.ImpliedBy = []string{}
		}
		sort.Strings(item.ImpliedBy)
		items[slug] = item
	}
	return Expansion{Items: items}
}

// Expand is a convenience wrapper building a one-off resolver.
func Expand(owned []string, tree *taxonomy.Tree, policy taxonomy.Policy) Set {
	return NewExpander(taxonomy.NewSubstitutionResolver(tree, policy)).Expand(owned)
}

// Expanded is an inventory together with its implicit items.
type Expanded struct {
	ID            string          `json:"id"`
	DisplayName   string          `json:"display_name"`
	Items         []string        `json:"items"`
	ImplicitItems map[string]Item `json:"implicit_items"`
}

// ExpandInventory expands inv.Items.
func (e *Expander) ExpandInventory(inv domain.Inventory) Expanded {
	items := append([]string{}, inv.Items...)
	sort.Strings(items)
	return Expanded{
		ID:            inv.ID,
		DisplayName:   inv.DisplayName,
		Items:         items,
		ImplicitItems: e.ExpandDetailed(inv.Items).Items,
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
