package core

import (
	"context"
	"fmt"

	"amari/pkg/domain"
)

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(IngredientParentRule())
	engine.Register(InventoryItemsRule())
	engine.Register(CocktailComponentsRule())
	return engine
}

// IngredientParentRule blocks ingredient writes that would leave the taxonomy
// unbuildable: invalid kinds, missing or misplaced parents, and cycles.
func IngredientParentRule() domain.Rule {
	return ingredientParentRule{}
}

type ingredientParentRule struct{}

func (ingredientParentRule) Name() string { return "ingredient_parent_integrity" }

func (r ingredientParentRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityIngredient || change.After == nil {
			continue
		}
		ing, ok := change.After.(domain.Ingredient)
		if !ok {
			continue
		}
		if msg := r.check(view, ing); msg != "" {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  msg,
				Entity:   domain.EntityIngredient,
				ID:       ing.Slug,
			})
		}
	}
	return res, nil
}

func (ingredientParentRule) check(view domain.RuleView, ing domain.Ingredient) string {
	if !ing.Kind.Valid() {
		return fmt.Sprintf("ingredient %s has unknown kind %q", ing.Slug, ing.Kind)
	}
	if ing.IsRoot() {
		if ing.Parent != "" {
			return fmt.Sprintf("category %s cannot have parent %s", ing.Slug, ing.Parent)
		}
		return ""
	}
	if ing.Parent == "" {
		return fmt.Sprintf("%s %s requires a parent", ing.Kind, ing.Slug)
	}
	seen := map[string]struct{}{ing.Slug: {}}
	current := ing.Parent
	for current != "" {
		if _, loop := seen[current]; loop {
			return fmt.Sprintf("ingredient %s parent chain loops through %s", ing.Slug, current)
		}
		seen[current] = struct{}{}
		parent, ok := view.FindIngredient(current)
		if !ok {
			return fmt.Sprintf("ingredient %s references missing parent %s", ing.Slug, current)
		}
		current = parent.Parent
	}
	return ""
}

// InventoryItemsRule warns about inventory items unknown to the taxonomy.
// Such items are kept but imply nothing.
func InventoryItemsRule() domain.Rule {
	return inventoryItemsRule{}
}

type inventoryItemsRule struct{}

func (inventoryItemsRule) Name() string { return "inventory_items_known" }

func (r inventoryItemsRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityInventory || change.After == nil {
			continue
		}
		inv, ok := change.After.(domain.Inventory)
		if !ok {
			continue
		}
		for _, item := range inv.Items {
			if _, known := view.FindIngredient(item); !known {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     r.Name(),
					Severity: domain.SeverityWarn,
					Message:  fmt.Sprintf("inventory %s item %s is not in the taxonomy", inv.ID, item),
					Entity:   domain.EntityInventory,
					ID:       inv.ID,
				})
			}
		}
	}
	return res, nil
}

// CocktailComponentsRule logs recipe components that reference unknown
// ingredients. They resolve as MISSING.
func CocktailComponentsRule() domain.Rule {
	return cocktailComponentsRule{}
}

type cocktailComponentsRule struct{}

func (cocktailComponentsRule) Name() string { return "cocktail_components_known" }

func (r cocktailComponentsRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityCocktail || change.After == nil {
			continue
		}
		cocktail, ok := change.After.(domain.Cocktail)
		if !ok {
			continue
		}
		for _, spec := range cocktail.Specs {
			for _, comp := range append(append([]domain.Component(nil), spec.Components...), spec.Garnish...) {
				if _, known := view.FindIngredient(comp.Slug); known {
					continue
				}
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     r.Name(),
					Severity: domain.SeverityLog,
					Message:  fmt.Sprintf("cocktail %s spec %s component %s is not in the taxonomy", cocktail.Slug, spec.Slug, comp.Slug),
					Entity:   domain.EntityCocktail,
					ID:       cocktail.Slug,
				})
			}
		}
	}
	return res, nil
}
