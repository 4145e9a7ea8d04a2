package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"amari/internal/taxonomy"
	"amari/pkg/domain"
)

// Registered cache keys.
const (
	CacheIngredientIndex = "ingredient_index"
	CacheIngredientTree  = "ingredient_tree"
	CacheCocktailIndex   = "cocktail_index"
)

// IngredientIndexEntry is one row of the ingredient listing.
type IngredientIndexEntry struct {
	Slug        string      `json:"slug"`
	DisplayName string      `json:"display_name"`
	Kind        domain.Kind `json:"kind"`
	Parent      string      `json:"parent,omitempty"`
	Aliases     []string    `json:"aliases,omitempty"`
}

// CocktailIndexEntry is one row of the cocktail listing.
type CocktailIndexEntry struct {
	Slug        string `json:"slug"`
	DisplayName string `json:"display_name"`
}

// CocktailIndex groups cocktails by the lower-cased first character of their
// display name. Names starting with anything but a letter share "#".
type CocktailIndex map[string][]CocktailIndexEntry

func (s *Service) registerCaches() {
	s.cache.Register(CacheIngredientIndex, func(ctx context.Context) ([]byte, error) {
		ings, err := s.ListIngredients(ctx)
		if err != nil {
			return nil, err
		}
		entries := make([]IngredientIndexEntry, 0, len(ings))
		for _, ing := range ings {
			entries = append(entries, IngredientIndexEntry{
				Slug:        ing.Slug,
				DisplayName: ing.DisplayName,
				Kind:        ing.Kind,
				Parent:      ing.Parent,
				Aliases:     ing.Aliases,
			})
		}
		return json.Marshal(entries)
	})
	s.cache.Register(CacheIngredientTree, func(ctx context.Context) ([]byte, error) {
		forest, err := s.Forest(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(forest)
	})
	s.cache.Register(CacheCocktailIndex, func(ctx context.Context) ([]byte, error) {
		cocktails, err := s.ListCocktails(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(buildCocktailIndex(cocktails))
	})
}

func buildCocktailIndex(cocktails []Cocktail) CocktailIndex {
	index := CocktailIndex{}
	for _, c := range cocktails {
		name := c.DisplayName
		if name == "" {
			name = c.Slug
		}
		key := "#"
		for _, r := range strings.TrimSpace(name) {
			if unicode.IsLetter(r) {
				key = string(unicode.ToLower(r))
			}
			break
		}
		index[key] = append(index[key], CocktailIndexEntry{Slug: c.Slug, DisplayName: c.DisplayName})
	}
	for key := range index {
		entries := index[key]
		sort.Slice(entries, func(i, j int) bool {
			return strings.ToLower(entries[i].DisplayName) < strings.ToLower(entries[j].DisplayName)
		})
	}
	return index
}

// IngredientIndex returns the cached ingredient listing.
func (s *Service) IngredientIndex(ctx context.Context) ([]IngredientIndexEntry, error) {
	var out []IngredientIndexEntry
	if err := s.cached(ctx, CacheIngredientIndex, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CachedForest returns the whole taxonomy from the cache.
func (s *Service) CachedForest(ctx context.Context) (map[string]*taxonomy.SubtreeNode, error) {
	var out map[string]*taxonomy.SubtreeNode
	if err := s.cached(ctx, CacheIngredientTree, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CocktailNameIndex returns the cached cocktail listing.
func (s *Service) CocktailNameIndex(ctx context.Context) (CocktailIndex, error) {
	var out CocktailIndex
	if err := s.cached(ctx, CacheCocktailIndex, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) cached(ctx context.Context, key string, dst any) error {
	b, err := s.cache.Retrieve(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("decode cache %s: %w", key, err)
	}
	return nil
}

// CacheKeys lists registered cache keys.
func (s *Service) CacheKeys() []string {
	return s.cache.Keys()
}

// InvalidateCache drops one cache entry.
func (s *Service) InvalidateCache(ctx context.Context, key string) error {
	err := s.cache.Invalidate(ctx, key)
	if err == nil {
		s.logger.Info("cache invalidated", "key", key)
	}
	return err
}

// PopulateCache recomputes one cache entry.
func (s *Service) PopulateCache(ctx context.Context, key string) error {
	return s.cache.Populate(ctx, key)
}
