// Package catalog loads seed data (ingredients, cocktails, inventories) from YAML.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"amari/internal/taxonomy"
	"amari/pkg/domain"
)

//go:embed seed.yaml
var seedYAML []byte

// Catalog is the on-disk import format.
type Catalog struct {
	Ingredients []domain.IngredientNode `json:"ingredients" yaml:"ingredients"`
	Cocktails   []domain.Cocktail       `json:"cocktails" yaml:"cocktails"`
	Inventories []domain.Inventory      `json:"inventories" yaml:"inventories"`
}

// Seed returns the catalog bundled with the binary.
func Seed() (Catalog, error) {
	return Parse(seedYAML)
}

// LoadFile reads and validates a catalog file.
func LoadFile(path string) (Catalog, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator supplied path
	if err != nil {
		return Catalog{}, fmt.Errorf("reading catalog file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates catalog YAML. Unknown fields are rejected.
func Parse(data []byte) (Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Catalog{}, fmt.Errorf("parsing catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

// Validate checks cocktail and inventory records. Ingredient records are
// checked by Tree, which reports taxonomy construction errors.
func (c Catalog) Validate() error {
	cocktails := make(map[string]struct{}, len(c.Cocktails))
	for i, ct := range c.Cocktails {
		if ct.Slug == "" {
			return fmt.Errorf("cocktail %d: empty slug", i)
		}
		if _, dup := cocktails[ct.Slug]; dup {
			return fmt.Errorf("cocktail %s: duplicate slug", ct.Slug)
		}
		cocktails[ct.Slug] = struct{}{}
		specs := make(map[string]struct{}, len(ct.Specs))
		for _, spec := range ct.Specs {
			if spec.Slug == "" {
				return fmt.Errorf("cocktail %s: spec with empty slug", ct.Slug)
			}
			if _, dup := specs[spec.Slug]; dup {
				return fmt.Errorf("cocktail %s: duplicate spec %s", ct.Slug, spec.Slug)
			}
			specs[spec.Slug] = struct{}{}
			for _, comp := range append(append([]domain.Component(nil), spec.Components...), spec.Garnish...) {
				if comp.Slug == "" {
					return fmt.Errorf("cocktail %s spec %s: component with empty slug", ct.Slug, spec.Slug)
				}
			}
		}
	}
	inventories := make(map[string]struct{}, len(c.Inventories))
	for i, inv := range c.Inventories {
		if inv.ID == "" {
			return fmt.Errorf("inventory %d: empty id", i)
		}
		if _, dup := inventories[inv.ID]; dup {
			return fmt.Errorf("inventory %s: duplicate id", inv.ID)
		}
		inventories[inv.ID] = struct{}{}
	}
	return nil
}

// Tree builds the ingredient taxonomy described by the catalog.
func (c Catalog) Tree() (*taxonomy.Tree, error) {
	return taxonomy.Build(c.Ingredients)
}

// Marshal renders the catalog back to YAML.
func (c Catalog) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
