package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateIngredient(Ingredient) (Ingredient, error)
	UpdateIngredient(slug string, mutator func(*Ingredient) error) (Ingredient, error)
	DeleteIngredient(slug string) error
	CreateCocktail(Cocktail) (Cocktail, error)
	UpdateCocktail(slug string, mutator func(*Cocktail) error) (Cocktail, error)
	DeleteCocktail(slug string) error
	CreateInventory(Inventory) (Inventory, error)
	UpdateInventory(id string, mutator func(*Inventory) error) (Inventory, error)
	DeleteInventory(id string) error
	PutResolution(RecipeResolutionSummary) (RecipeResolution, error)
	DeleteResolution(key string) error
	FindIngredient(slug string) (Ingredient, bool)
	FindInventory(id string) (Inventory, bool)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	ListIngredients() []Ingredient
	FindIngredient(slug string) (Ingredient, bool)
	ListCocktails() []Cocktail
	FindCocktail(slug string) (Cocktail, bool)
	ListInventories() []Inventory
	FindInventory(id string) (Inventory, bool)
	ListResolutions(inventoryID string) []RecipeResolution
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetIngredient(slug string) (Ingredient, bool)
	ListIngredients() []Ingredient
	GetCocktail(slug string) (Cocktail, bool)
	ListCocktails() []Cocktail
	GetInventory(id string) (Inventory, bool)
	ListInventories() []Inventory
	ListResolutions(inventoryID string) []RecipeResolution
}
