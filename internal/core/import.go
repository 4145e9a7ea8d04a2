package core

import (
	"context"
	"fmt"

	"amari/internal/catalog"
	"amari/internal/taxonomy"
	"amari/pkg/domain"
)

// ImportSummary counts records written by Import.
type ImportSummary struct {
	IngredientsCreated int `json:"ingredients_created"`
	IngredientsUpdated int `json:"ingredients_updated"`
	CocktailsCreated   int `json:"cocktails_created"`
	CocktailsUpdated   int `json:"cocktails_updated"`
	InventoriesCreated int `json:"inventories_created"`
	InventoriesUpdated int `json:"inventories_updated"`
}

// Import upserts a catalog in one transaction. The resulting taxonomy is
// built before anything is written, so a catalog that would leave the tree
// unbuildable returns the taxonomy.ConstructionError and changes nothing.
func (s *Service) Import(ctx context.Context, c catalog.Catalog) (ImportSummary, Result, error) {
	var summary ImportSummary
	if err := c.Validate(); err != nil {
		return summary, Result{}, err
	}
	// Duplicates inside the catalog are reported before merging hides them.
	if _, err := taxonomy.Build(c.Ingredients); err != nil {
		if ce, ok := taxonomy.AsConstructionError(err); ok && ce.Kind == taxonomy.DuplicateSlug {
			return summary, Result{}, err
		}
	}

	res, err := s.run(ctx, "import_catalog", func(tx Transaction) error {
		merged := make(map[string]domain.IngredientNode)
		for _, ing := range tx.Snapshot().ListIngredients() {
			merged[ing.Slug] = ing.IngredientNode
		}
		for _, node := range c.Ingredients {
			merged[node.Slug] = node
		}
		records := make([]domain.IngredientNode, 0, len(merged))
		for _, node := range merged {
			records = append(records, node)
		}
		if _, err := taxonomy.Build(records); err != nil {
			return fmt.Errorf("import catalog: %w", err)
		}

		for _, node := range c.Ingredients {
			node := node
			if _, exists := tx.FindIngredient(node.Slug); exists {
				if _, err := tx.UpdateIngredient(node.Slug, func(ing *Ingredient) error {
					ing.IngredientNode = node
					return nil
				}); err != nil {
					return err
				}
				summary.IngredientsUpdated++
				continue
			}
			if _, err := tx.CreateIngredient(Ingredient{IngredientNode: node}); err != nil {
				return err
			}
			summary.IngredientsCreated++
		}
		for _, cocktail := range c.Cocktails {
			cocktail := cocktail
			if _, exists := tx.Snapshot().FindCocktail(cocktail.Slug); exists {
				if _, err := tx.UpdateCocktail(cocktail.Slug, func(ct *Cocktail) error {
					ct.DisplayName = cocktail.DisplayName
					ct.Specs = cocktail.Specs
					return nil
				}); err != nil {
					return err
				}
				summary.CocktailsUpdated++
				continue
			}
			if _, err := tx.CreateCocktail(cocktail); err != nil {
				return err
			}
			summary.CocktailsCreated++
		}
		for _, inv := range c.Inventories {
			inv := inv
			if _, exists := tx.FindInventory(inv.ID); exists {
				if _, err := tx.UpdateInventory(inv.ID, func(current *Inventory) error {
					current.DisplayName = inv.DisplayName
					current.Items = inv.Items
					return nil
				}); err != nil {
					return err
				}
				summary.InventoriesUpdated++
				continue
			}
			if _, err := tx.CreateInventory(inv); err != nil {
				return err
			}
			summary.InventoriesCreated++
		}
		return nil
	})
	if err != nil {
		return ImportSummary{}, res, err
	}
	if summary.IngredientsCreated+summary.IngredientsUpdated > 0 {
		s.taxonomyChanged(ctx)
	}
	if summary.CocktailsCreated+summary.CocktailsUpdated > 0 {
		s.cocktailsChanged(ctx)
	}
	s.logger.Info("catalog imported",
		"ingredients", summary.IngredientsCreated+summary.IngredientsUpdated,
		"cocktails", summary.CocktailsCreated+summary.CocktailsUpdated,
		"inventories", summary.InventoriesCreated+summary.InventoriesUpdated)
	return summary, res, nil
}

// ExportCatalog returns the stored records in import format. Importing the
// result into an empty service reproduces the current state.
func (s *Service) ExportCatalog(ctx context.Context) (catalog.Catalog, error) {
	var out catalog.Catalog
	err := s.observe(ctx, "export_catalog", func(ctx context.Context) error {
		return s.store.View(ctx, func(v TransactionView) error {
			for _, ing := range v.ListIngredients() {
				out.Ingredients = append(out.Ingredients, ing.IngredientNode)
			}
			for _, c := range v.ListCocktails() {
				c.Timestamps = domain.Timestamps{}
				out.Cocktails = append(out.Cocktails, c)
			}
			for _, inv := range v.ListInventories() {
				inv.Timestamps = domain.Timestamps{}
				out.Inventories = append(out.Inventories, inv)
			}
			return nil
		})
	})
	return out, err
}
