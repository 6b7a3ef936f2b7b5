package types

import (
	"github.com/google/uuid"
)

// RegisterRequest is the body of POST /auth/register
type RegisterRequest struct {
	Name     string `json:"name" binding:"required,max=100"`
	Username string `json:"username" binding:"required,min=3,max=50,alphanum"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// CreateIngredientRequest adds an ingredient to the catalog.
type CreateIngredientRequest struct {
	Name            string  `json:"name" validate:"required,max=64"`
	Unit            string  `json:"unit" validate:"required,oneof=g kg ml l tsp tbsp cup oz piece bunch stick slice pinch clove can jar pack sheet head leaf filet sprig"`
	Description     string  `json:"description" validate:"max=500"`
	Image           string  `json:"image" validate:"omitempty,max=255"`
	CaloriesPerUnit float64 `json:"calories_per_unit" validate:"gte=0,lte=10000"`
	ProteinPerUnit  float64 `json:"protein_per_unit" validate:"gte=0,lte=10000"`
	FatPerUnit      float64 `json:"fat_per_unit" validate:"gte=0,lte=10000"`
	CarbsPerUnit    float64 `json:"carbs_per_unit" validate:"gte=0,lte=10000"`
	SugarPerUnit    float64 `json:"sugar_per_unit" validate:"gte=0,lte=10000"`
	FiberPerUnit    float64 `json:"fiber_per_unit" validate:"gte=0,lte=10000"`
	SodiumPerUnit   float64 `json:"sodium_per_unit" validate:"gte=0,lte=10000"`
}

// RecipeIngredientInput references a catalog ingredient by id.
type RecipeIngredientInput struct {
	IngredientID       uuid.UUID `json:"ingredient_id" validate:"required"`
	QuantityPerServing float64   `json:"quantity_per_serving" validate:"gte=0,lte=100000"`
}

// RecipeRequest is the body for creating a recipe and for replacing one on update.
type RecipeRequest struct {
	Name             string                  `json:"name" validate:"required,max=255"`
	Type             string                  `json:"type" validate:"required,oneof=Breakfast Lunch Dinner Snack Dessert Drink"`
	Description      string                  `json:"description" validate:"required"`
	InstructionSteps []string                `json:"instruction_steps" validate:"required,min=1,dive,required"`
	Servings         int                     `json:"servings" validate:"min=1,max=1000"`
	Image            string                  `json:"image" validate:"omitempty,max=255"`
	IsPublic         *bool                   `json:"is_public"`
	Ingredients      []RecipeIngredientInput `json:"ingredients" validate:"dive"`
}

// NutritionPreviewRequest is the recipe wizard's draft used to preview nutrition.
type NutritionPreviewRequest struct {
	Servings    int                     `json:"servings" validate:"min=1,max=1000"`
	Ingredients []RecipeIngredientInput `json:"ingredients" validate:"dive"`
}

// ContactRequest is the body of POST /contact
type ContactRequest struct {
	Name    string `json:"name" validate:"required,max=100"`
	Email   string `json:"email" validate:"required,email"`
	Subject string `json:"subject" validate:"max=200"`
	Message string `json:"message" validate:"required,max=5000"`
}
