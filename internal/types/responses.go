package types

import (
	"time"

	"github.com/google/uuid"

	"github.com/pageza/cookbook/backend/internal/models"
	"github.com/pageza/cookbook/backend/internal/nutrition"
)

// UserResponse is the public view of a user
type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// NewUserResponse strips private fields from u.
func NewUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

// AuthResponse is returned by register and login
type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// IngredientPage is one page of ingredient search results
type IngredientPage struct {
	Ingredients []models.Ingredient `json:"ingredients"`
	Page        int                 `json:"page"`
	Limit       int                 `json:"limit"`
	Total       int64               `json:"total"`
	HasMore     bool                `json:"has_more"`
}

// RecipeListItem is a recipe card with its per-serving nutrition
type RecipeListItem struct {
	ID          uuid.UUID            `json:"id"`
	Name        string               `json:"name"`
	Type        string               `json:"type"`
	Description string               `json:"description"`
	Servings    int                  `json:"servings"`
	Image       string               `json:"image,omitempty"`
	IsPublic    bool                 `json:"is_public"`
	AuthorID    uuid.UUID            `json:"author_id"`
	AuthorName  string               `json:"author_name,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	Nutrition   nutrition.PerServing `json:"nutrition"`
}

// RecipePage is one page of recipe cards
type RecipePage struct {
	Recipes []RecipeListItem `json:"recipes"`
	Page    int              `json:"page"`
	Limit   int              `json:"limit"`
	Total   int64            `json:"total"`
	HasMore bool             `json:"has_more"`
}

// RecipeDetail is a full recipe with its nutrition summary
type RecipeDetail struct {
	Recipe     models.Recipe     `json:"recipe"`
	AuthorName string            `json:"author_name,omitempty"`
	IsFavorite bool              `json:"is_favorite"`
	Nutrition  nutrition.Summary `json:"nutrition"`
}

// NutritionPreview is the nutrition of a recipe draft
type NutritionPreview struct {
	Servings   int                  `json:"servings"`
	Total      nutrition.Totals     `json:"total"`
	PerServing nutrition.PerServing `json:"per_serving"`
}

// ScaledIngredients is the response of the scale endpoint
type ScaledIngredients struct {
	RecipeID         uuid.UUID              `json:"recipe_id"`
	Servings         int                    `json:"servings"`
	OriginalServings int                    `json:"original_servings"`
	Ingredients      []nutrition.ScaledLine `json:"ingredients"`
}
