package core

import (
	"context"

	"amari/internal/taxonomy"
	"amari/pkg/domain"
)

// ListIngredients returns every stored ingredient ordered by slug.
func (s *Service) ListIngredients(ctx context.Context) ([]Ingredient, error) {
	var out []Ingredient
	err := s.observe(ctx, "list_ingredients", func(ctx context.Context) error {
		return s.store.View(ctx, func(v TransactionView) error {
			out = v.ListIngredients()
			return nil
		})
	})
	return out, err
}

// GetIngredient returns the stored ingredient record.
func (s *Service) GetIngredient(ctx context.Context, slug string) (Ingredient, error) {
	var out Ingredient
	err := s.observe(ctx, "get_ingredient", func(ctx context.Context) error {
		return s.store.View(ctx, func(v TransactionView) error {
			ing, ok := v.FindIngredient(slug)
			if !ok {
				return domain.ErrNotFound{Entity: domain.EntityIngredient, ID: slug}
			}
			out = ing
			return nil
		})
	})
	return out, err
}

// CreateIngredient persists a new taxonomy node and invalidates the tree.
func (s *Service) CreateIngredient(ctx context.Context, node IngredientNode) (Ingredient, Result, error) {
	var created Ingredient
	res, err := s.run(ctx, "create_ingredient", func(tx Transaction) error {
		var err error
		created, err = tx.CreateIngredient(Ingredient{IngredientNode: node})
		return err
	})
	if err == nil {
		s.taxonomyChanged(ctx)
	}
	return created, res, err
}

// UpdateIngredient mutates an ingredient and invalidates the tree.
func (s *Service) UpdateIngredient(ctx context.Context, slug string, mutator func(*Ingredient) error) (Ingredient, Result, error) {
	var updated Ingredient
	res, err := s.run(ctx, "update_ingredient", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateIngredient(slug, mutator)
		return err
	})
	if err == nil {
		s.taxonomyChanged(ctx)
	}
	return updated, res, err
}

// DeleteIngredient removes a leaf ingredient and invalidates the tree.
func (s *Service) DeleteIngredient(ctx context.Context, slug string) (Result, error) {
	res, err := s.run(ctx, "delete_ingredient", func(tx Transaction) error {
		return tx.DeleteIngredient(slug)
	})
	if err == nil {
		s.taxonomyChanged(ctx)
	}
	return res, err
}

func (s *Service) taxonomyChanged(ctx context.Context) {
	s.InvalidateTree()
	if err := s.cache.Invalidate(ctx, CacheIngredientIndex); err != nil {
		s.logger.Warn("cache invalidation failed", "key", CacheIngredientIndex, "err", err)
	}
	if err := s.cache.Invalidate(ctx, CacheIngredientTree); err != nil {
		s.logger.Warn("cache invalidation failed", "key", CacheIngredientTree, "err", err)
	}
}

// Node returns the tree node for slug.
func (s *Service) Node(ctx context.Context, slug string) (IngredientNode, error) {
	var out IngredientNode
	err := s.treeQuery(ctx, "ingredient_node", func(st *treeState) error {
		var err error
		out, err = st.tree.Node(slug)
		return err
	})
	return out, err
}

// Parent returns the parent node of slug. Categories have none.
func (s *Service) Parent(ctx context.Context, slug string) (IngredientNode, error) {
	var out IngredientNode
	err := s.treeQuery(ctx, "ingredient_parent", func(st *treeState) error {
		var err error
		out, err = st.tree.Parent(slug)
		return err
	})
	return out, err
}

// Parents returns the ancestor chain of slug, nearest first.
func (s *Service) Parents(ctx context.Context, slug string) ([]string, error) {
	var out []string
	err := s.treeQuery(ctx, "ingredient_parents", func(st *treeState) error {
		var err error
		out, err = st.tree.Parents(slug)
		return err
	})
	return out, err
}

// Children returns the direct children of slug.
func (s *Service) Children(ctx context.Context, slug string) ([]string, error) {
	var out []string
	err := s.treeQuery(ctx, "ingredient_children", func(st *treeState) error {
		var err error
		out, err = st.tree.Children(slug)
		return err
	})
	return out, err
}

// Subtree returns the nested subtree rooted at slug.
func (s *Service) Subtree(ctx context.Context, slug string) (*taxonomy.SubtreeNode, error) {
	var out *taxonomy.SubtreeNode
	err := s.treeQuery(ctx, "ingredient_subtree", func(st *treeState) error {
		var err error
		out, err = st.tree.Subtree(slug)
		return err
	})
	return out, err
}

// Forest returns the whole taxonomy keyed by root category.
func (s *Service) Forest(ctx context.Context) (map[string]*taxonomy.SubtreeNode, error) {
	var out map[string]*taxonomy.SubtreeNode
	err := s.treeQuery(ctx, "ingredient_tree", func(st *treeState) error {
		out = st.tree.Forest()
		return nil
	})
	return out, err
}

// Substitutions returns the substitution record for slug.
func (s *Service) Substitutions(ctx context.Context, slug string) (taxonomy.Substitution, error) {
	var out taxonomy.Substitution
	err := s.treeQuery(ctx, "ingredient_substitution", func(st *treeState) error {
		var err error
		out, err = st.subs.Substitutions(slug)
		return err
	})
	return out, err
}

func (s *Service) treeQuery(ctx context.Context, operation string, fn func(*treeState) error) error {
	return s.observe(ctx, operation, func(ctx context.Context) error {
		st, err := s.state(ctx)
		if err != nil {
			return err
		}
		return fn(st)
	})
}
