// Package resolution classifies recipe components against an inventory.
package resolution

import (
	"fmt"

	"amari/internal/inventory"
	"amari/internal/taxonomy"
	"amari/pkg/domain"
)

// SpecNotFoundError is returned when a requested spec slug is not part of the
// cocktail.
type SpecNotFoundError struct {
	Cocktail string
	Spec     string
}

func (e SpecNotFoundError) Error() string {
	return fmt.Sprintf("cocktail %s has no spec %s", e.Cocktail, e.Spec)
}

// Is lets callers match any spec lookup failure with errors.Is(err, taxonomy.ErrNotFound).
func (e SpecNotFoundError) Is(target error) bool {
	return target == taxonomy.ErrNotFound
}

// Resolver resolves recipes against inventories using one tree snapshot.
type Resolver struct {
	tree     *taxonomy.Tree
	expander *inventory.Expander
}

// NewResolver binds a resolver to the tree behind subs.
func NewResolver(subs *taxonomy.SubstitutionResolver) *Resolver {
	return &Resolver{tree: subs.Tree(), expander: inventory.NewExpander(subs)}
}

// Resolve returns one summary per spec of cocktail, or only the named spec
// when specSlug is non-empty. Declared spec and component order is kept.
func (r *Resolver) Resolve(inv domain.Inventory, cocktail domain.Cocktail, specSlug string) ([]domain.RecipeResolutionSummary, error) {
	exp := r.expander.ExpandDetailed(inv.Items)
	if specSlug != "" {
		spec, ok := cocktail.Spec(specSlug)
		if !ok {
			return nil, SpecNotFoundError{Cocktail: cocktail.Slug, Spec: specSlug}
		}
		return []domain.RecipeResolutionSummary{r.resolveSpec(inv, exp, cocktail.Slug, spec)}, nil
	}
	out := make([]domain.RecipeResolutionSummary, 0, len(cocktail.Specs))
	for _, spec := range cocktail.Specs {
		out = append(out, r.resolveSpec(inv, exp, cocktail.Slug, spec))
	}
	return out, nil
}

// ResolveAll resolves every spec of every cocktail, expanding the inventory
// once.
func (r *Resolver) ResolveAll(inv domain.Inventory, cocktails []domain.Cocktail) []domain.RecipeResolutionSummary {
	exp := r.expander.ExpandDetailed(inv.Items)
	var out []domain.RecipeResolutionSummary
	for _, c := range cocktails {
		for _, spec := range c.Specs {
			out = append(out, r.resolveSpec(inv, exp, c.Slug, spec))
		}
	}
	return out
}

func (r *Resolver) resolveSpec(inv domain.Inventory, exp inventory.Expansion, cocktailSlug string, spec domain.Spec) domain.RecipeResolutionSummary {
	summary := domain.RecipeResolutionSummary{
		InventoryID:  inv.ID,
		CocktailSlug: cocktailSlug,
		SpecSlug:     spec.Slug,
		Components:   make([]domain.ComponentResolution, 0, len(spec.Components)+len(spec.Garnish)),
		StatusCount:  make(map[domain.Status]int, len(domain.Statuses)),
		Resolvable:   true,
	}
	for _, status := range domain.Statuses {
		summary.StatusCount[status] = 0
	}
	add := func(c domain.Component, role domain.ComponentRole) {
		res := r.classify(inv, exp, c, role)
		summary.Components = append(summary.Components, res)
		summary.StatusCount[res.Status]++
		if res.Status == domain.StatusMissing && !res.Optional {
			summary.Resolvable = false
		}
	}
	for _, c := range spec.Components {
		add(c, domain.RoleComponent)
	}
	for _, c := range spec.Garnish {
		add(c, domain.RoleGarnish)
	}
	return summary
}

func (r *Resolver) classify(inv domain.Inventory, exp inventory.Expansion, c domain.Component, role domain.ComponentRole) domain.ComponentResolution {
	res := domain.ComponentResolution{
		Slug:        c.Slug,
		Role:        role,
		Optional:    c.Optional,
		Status:      domain.StatusMissing,
		Substitutes: []string{},
		Parents:     []string{},
	}
	if parents, err := r.tree.Parents(c.Slug); err == nil {
		res.Parents = parents
	}
	switch {
	case inv.Owns(c.Slug):
		res.Status = domain.StatusDirect
	case len(exp.ImpliedBy(c.Slug)) > 0:
		res.Status = domain.StatusImplied
		res.Substitutes = exp.ImpliedBy(c.Slug)
	}
	return res
}
