package core

import (
	"context"

	"amari/internal/resolution"
	"amari/pkg/domain"
)

// ResolveRecipe resolves one cocktail (or one of its specs when specSlug is
// set) against an inventory and stores the summaries.
func (s *Service) ResolveRecipe(ctx context.Context, inventoryID, cocktailSlug, specSlug string) ([]RecipeResolutionSummary, error) {
	var out []RecipeResolutionSummary
	err := s.observe(ctx, "resolve_recipe", func(ctx context.Context) error {
		st, err := s.state(ctx)
		if err != nil {
			return err
		}
		_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			inv, ok := tx.FindInventory(inventoryID)
			if !ok {
				return domain.ErrNotFound{Entity: domain.EntityInventory, ID: inventoryID}
			}
			cocktail, ok := tx.Snapshot().FindCocktail(cocktailSlug)
			if !ok {
				return domain.ErrNotFound{Entity: domain.EntityCocktail, ID: cocktailSlug}
			}
			summaries, err := st.resolver.Resolve(inv, cocktail, specSlug)
			if err != nil {
				return err
			}
			for _, summary := range summaries {
				if _, err := tx.PutResolution(summary); err != nil {
					return err
				}
			}
			out = summaries
			return nil
		})
		return err
	})
	return out, err
}

// ResolveInventory resolves every spec of every cocktail against an
// inventory. Stored summaries for the inventory are replaced.
func (s *Service) ResolveInventory(ctx context.Context, inventoryID string) ([]RecipeResolutionSummary, Result, error) {
	var out []RecipeResolutionSummary
	var res Result
	err := s.observe(ctx, "resolve_inventory", func(ctx context.Context) error {
		st, err := s.state(ctx)
		if err != nil {
			return err
		}
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			inv, ok := tx.FindInventory(inventoryID)
			if !ok {
				return domain.ErrNotFound{Entity: domain.EntityInventory, ID: inventoryID}
			}
			view := tx.Snapshot()
			out = st.resolver.ResolveAll(inv, view.ListCocktails())
			fresh := make(map[string]struct{}, len(out))
			for _, summary := range out {
				fresh[summary.Key()] = struct{}{}
				if _, err := tx.PutResolution(summary); err != nil {
					return err
				}
			}
			for _, stale := range view.ListResolutions(inventoryID) {
				if _, ok := fresh[stale.Key()]; ok {
					continue
				}
				if err := tx.DeleteResolution(stale.Key()); err != nil {
					return err
				}
			}
			return nil
		})
		return err
	})
	return out, res, err
}

// ListResolutions returns the stored summaries of an inventory.
func (s *Service) ListResolutions(ctx context.Context, inventoryID string) ([]RecipeResolution, error) {
	var out []RecipeResolution
	err := s.observe(ctx, "list_resolutions", func(ctx context.Context) error {
		return s.store.View(ctx, func(v TransactionView) error {
			if _, ok := v.FindInventory(inventoryID); !ok {
				return domain.ErrNotFound{Entity: domain.EntityInventory, ID: inventoryID}
			}
			out = v.ListResolutions(inventoryID)
			return nil
		})
	})
	return out, err
}

// DeleteResolutions drops every stored summary of an inventory and reports
// how many were removed.
func (s *Service) DeleteResolutions(ctx context.Context, inventoryID string) (int, Result, error) {
	removed := 0
	res, err := s.run(ctx, "delete_resolutions", func(tx Transaction) error {
		if _, ok := tx.FindInventory(inventoryID); !ok {
			return domain.ErrNotFound{Entity: domain.EntityInventory, ID: inventoryID}
		}
		for _, r := range tx.Snapshot().ListResolutions(inventoryID) {
			if err := tx.DeleteResolution(r.Key()); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		removed = 0
	}
	return removed, res, err
}

// InventoryReport resolves every cocktail against an inventory without
// storing the summaries and aggregates the outcome.
func (s *Service) InventoryReport(ctx context.Context, inventoryID string, limit int) (resolution.Report, error) {
	var out resolution.Report
	err := s.observe(ctx, "inventory_report", func(ctx context.Context) error {
		st, err := s.state(ctx)
		if err != nil {
			return err
		}
		return s.store.View(ctx, func(v TransactionView) error {
			inv, ok := v.FindInventory(inventoryID)
			if !ok {
				return domain.ErrNotFound{Entity: domain.EntityInventory, ID: inventoryID}
			}
			summaries := st.resolver.ResolveAll(inv, v.ListCocktails())
			out = resolution.BuildReport(inventoryID, summaries, limit)
			return nil
		})
	})
	return out, err
}
