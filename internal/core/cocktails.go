package core

import (
	"context"

	"amari/pkg/domain"
)

// ListCocktails returns every stored cocktail ordered by slug.
func (s *Service) ListCocktails(ctx context.Context) ([]Cocktail, error) {
	var out []Cocktail
	err := s.observe(ctx, "list_cocktails", func(ctx context.Context) error {
		return s.store.View(ctx, func(v TransactionView) error {
			out = v.ListCocktails()
			return nil
		})
	})
	return out, err
}

// GetCocktail returns one cocktail.
func (s *Service) GetCocktail(ctx context.Context, slug string) (Cocktail, error) {
	var out Cocktail
	err := s.observe(ctx, "get_cocktail", func(ctx context.Context) error {
		return s.store.View(ctx, func(v TransactionView) error {
			c, ok := v.FindCocktail(slug)
			if !ok {
				return domain.ErrNotFound{Entity: domain.EntityCocktail, ID: slug}
			}
			out = c
			return nil
		})
	})
	return out, err
}

// CreateCocktail persists a new cocktail.
func (s *Service) CreateCocktail(ctx context.Context, cocktail Cocktail) (Cocktail, Result, error) {
	var created Cocktail
	res, err := s.run(ctx, "create_cocktail", func(tx Transaction) error {
		var err error
		created, err = tx.CreateCocktail(cocktail)
		return err
	})
	if err == nil {
		s.cocktailsChanged(ctx)
	}
	return created, res, err
}

// UpdateCocktail mutates a cocktail using the provided mutator.
func (s *Service) UpdateCocktail(ctx context.Context, slug string, mutator func(*Cocktail) error) (Cocktail, Result, error) {
	var updated Cocktail
	res, err := s.run(ctx, "update_cocktail", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateCocktail(slug, mutator)
		return err
	})
	if err == nil {
		s.cocktailsChanged(ctx)
	}
	return updated, res, err
}

// DeleteCocktail removes a cocktail and its stored resolutions.
func (s *Service) DeleteCocktail(ctx context.Context, slug string) (Result, error) {
	res, err := s.run(ctx, "delete_cocktail", func(tx Transaction) error {
		return tx.DeleteCocktail(slug)
	})
	if err == nil {
		s.cocktailsChanged(ctx)
	}
	return res, err
}

func (s *Service) cocktailsChanged(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, CacheCocktailIndex); err != nil {
		s.logger.Warn("cache invalidation failed", "key", CacheCocktailIndex, "err", err)
	}
}
