// Package domain defines the persistent entities, value types, and rule
// evaluation primitives shared by the amari taxonomy and resolution layers.
package domain

import (
	"fmt"
	"time"
)

// EntityType identifies the type of record stored in the domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityIngredient identifies an ingredient taxonomy record.
	EntityIngredient EntityType = "ingredient"
	// EntityCocktail identifies a cocktail recipe record.
	EntityCocktail EntityType = "cocktail"
	// EntityInventory identifies an inventory of owned ingredients.
	EntityInventory EntityType = "inventory"
	// EntityResolution identifies a stored recipe resolution summary.
	EntityResolution EntityType = "recipe_resolution"
)

// Kind is the taxonomy level of an ingredient node.
type Kind string

// Taxonomy levels, root first.
const (
	KindCategory   Kind = "category"
	KindFamily     Kind = "family"
	KindIngredient Kind = "ingredient"
	KindProduct    Kind = "product"
	// KindIndex is a derived grouping defined by match conditions. Matching
	// logic treats it as a normal node.
	KindIndex Kind = "index"
)

// Valid reports whether k is one of the known taxonomy kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindCategory, KindFamily, KindIngredient, KindProduct, KindIndex:
		return true
	default:
		return false
	}
}

// ParseKind normalises a raw kind string.
func ParseKind(raw string) (Kind, error) {
	k := Kind(raw)
	if !k.Valid() {
		return "", fmt.Errorf("unknown ingredient kind %q", raw)
	}
	return k, nil
}

// IngredientNode is a flat record describing one taxonomy entry. Parent is
// empty only for category roots.
type IngredientNode struct {
	Slug        string   `json:"slug" yaml:"slug"`
	DisplayName string   `json:"display_name" yaml:"display_name"`
	Kind        Kind     `json:"kind" yaml:"kind"`
	Parent      string   `json:"parent,omitempty" yaml:"parent,omitempty"`
	Aliases     []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Elements    []string `json:"elements,omitempty" yaml:"elements,omitempty"`
}

// IsRoot reports whether the node is a category root.
func (n IngredientNode) IsRoot() bool {
	return n.Kind == KindCategory
}

// Clone returns a deep copy of the node.
func (n IngredientNode) Clone() IngredientNode {
	cp := n
	cp.Aliases = append([]string(nil), n.Aliases...)
	cp.Elements = append([]string(nil), n.Elements...)
	return cp
}

// Timestamps contains the bookkeeping fields for stored records. Zero values
// are omitted so catalog exports stay importable.
type Timestamps struct {
	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Ingredient is the persisted form of an IngredientNode.
type Ingredient struct {
	IngredientNode
	Timestamps
}

// Component is one ingredient usage inside a recipe spec. It references the
// taxonomy weakly by slug.
type Component struct {
	Slug        string   `json:"slug" yaml:"slug"`
	DisplayName string   `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Quantity    *float64 `json:"quantity,omitempty" yaml:"quantity,omitempty"`
	Unit        string   `json:"unit,omitempty" yaml:"unit,omitempty"`
	Optional    bool     `json:"optional" yaml:"optional"`
	Preparation string   `json:"preparation,omitempty" yaml:"preparation,omitempty"`
	Notes       []string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Spec is a single recipe variant of a cocktail.
type Spec struct {
	Slug        string      `json:"slug" yaml:"slug"`
	DisplayName string      `json:"display_name" yaml:"display_name"`
	Components  []Component `json:"components" yaml:"components"`
	Garnish     []Component `json:"garnish,omitempty" yaml:"garnish,omitempty"`
}

// Cocktail groups one or more specs under a drink name.
type Cocktail struct {
	Slug        string `json:"slug" yaml:"slug"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	Specs       []Spec `json:"specs" yaml:"specs"`
	Timestamps  `yaml:"-"`
}

// Spec returns the spec with the given slug.
func (c Cocktail) Spec(slug string) (Spec, bool) {
	for _, s := range c.Specs {
		if s.Slug == slug {
			return s, true
		}
	}
	return Spec{}, false
}

// Inventory is a named set of explicitly owned ingredient slugs.
type Inventory struct {
	ID          string   `json:"id" yaml:"id"`
	DisplayName string   `json:"display_name" yaml:"display_name"`
	Items       []string `json:"items" yaml:"items"`
	Timestamps  `yaml:"-"`
}

// Owns reports whether slug is an explicit inventory item.
func (i Inventory) Owns(slug string) bool {
	for _, item := range i.Items {
		if item == slug {
			return true
		}
	}
	return false
}

// Status classifies how a recipe component is satisfied by an inventory.
type Status string

// Resolution statuses.
const (
	StatusDirect  Status = "DIRECT"
	StatusImplied Status = "IMPLIED"
	StatusMissing Status = "MISSING"
)

// Statuses lists every resolution status in display order.
var Statuses = []Status{StatusDirect, StatusImplied, StatusMissing}

// ComponentRole distinguishes primary components from garnish.
type ComponentRole string

// Component roles.
const (
	RoleComponent ComponentRole = "component"
	RoleGarnish   ComponentRole = "garnish"
)

// ComponentResolution records how one spec component was classified.
type ComponentResolution struct {
	Slug        string        `json:"slug"`
	Role        ComponentRole `json:"role"`
	Optional    bool          `json:"optional"`
	Status      Status        `json:"status"`
	Substitutes []string      `json:"substitutes"`
	Parents     []string      `json:"parents"`
}

// RecipeResolutionSummary is the per (cocktail, spec) outcome of resolving a
// recipe against an inventory.
type RecipeResolutionSummary struct {
	InventoryID  string                `json:"inventory_id"`
	CocktailSlug string                `json:"cocktail_slug"`
	SpecSlug     string                `json:"spec_slug"`
	Components   []ComponentResolution `json:"components"`
	StatusCount  map[Status]int        `json:"status_count"`
	Resolvable   bool                  `json:"resolvable"`
}

// Key returns the storage key of the summary.
func (s RecipeResolutionSummary) Key() string {
	return ResolutionKey(s.InventoryID, s.CocktailSlug, s.SpecSlug)
}

// ResolutionKey builds the storage key for an inventory/cocktail/spec triple.
func ResolutionKey(inventoryID, cocktailSlug, specSlug string) string {
	return inventoryID + "/" + cocktailSlug + "/" + specSlug
}

// RecipeResolution is a stored resolution summary. It is regenerable derived
// data, never a source of truth.
type RecipeResolution struct {
	RecipeResolutionSummary
	Timestamps
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action enumerates the kind of mutation captured in a Change.
type Action string

// Change actions.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ErrNotFound is returned by stores when a referenced record does not exist.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ErrConflict is returned by stores when a create collides with an existing record.
type ErrConflict struct {
	Entity EntityType
	ID     string
}

func (e ErrConflict) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Entity, e.ID)
}
