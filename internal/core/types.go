package core

import "amari/pkg/domain"

type (
	Ingredient              = domain.Ingredient
	IngredientNode          = domain.IngredientNode
	Cocktail                = domain.Cocktail
	Inventory               = domain.Inventory
	RecipeResolution        = domain.RecipeResolution
	RecipeResolutionSummary = domain.RecipeResolutionSummary
	Result                  = domain.Result
	Change                  = domain.Change
	Violation               = domain.Violation
	RulesEngine             = domain.RulesEngine
	Rule                    = domain.Rule
	Transaction             = domain.Transaction
	TransactionView         = domain.TransactionView
	PersistentStore         = domain.PersistentStore
)
