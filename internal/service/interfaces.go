package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/pageza/cookbook/backend/internal/models"
	"github.com/pageza/cookbook/backend/internal/types"
)

// IAuthService defines the interface for authentication operations
type IAuthService interface {
	Register(ctx context.Context, req *types.RegisterRequest) (*models.User, error)
	Login(ctx context.Context, email, password string) (*models.User, error)
	GenerateToken(user *models.User) (string, error)
	ValidateToken(token string) (*types.TokenClaims, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

// IIngredientService defines the interface for ingredient catalog operations
type IIngredientService interface {
	Search(ctx context.Context, query string, page, limit int) (*types.IngredientPage, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Ingredient, error)
	Create(ctx context.Context, req *types.CreateIngredientRequest, userID *uuid.UUID) (*models.Ingredient, error)
}

// IRecipeService defines the interface for recipe operations
type IRecipeService interface {
	Create(ctx context.Context, authorID uuid.UUID, req *types.RecipeRequest, uploads []Upload) (*models.Recipe, error)
	Update(ctx context.Context, id, userID uuid.UUID, req *types.RecipeRequest, uploads []Upload) (*models.Recipe, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*models.Recipe, error)
	Detail(ctx context.Context, id uuid.UUID, requestedServings int, viewerID *uuid.UUID) (*types.RecipeDetail, error)
	Scale(ctx context.Context, id uuid.UUID, requestedServings int, viewerID *uuid.UUID) (*types.ScaledIngredients, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]types.RecipeListItem, error)
	ListPublic(ctx context.Context, page, limit int) (*types.RecipePage, error)
	Search(ctx context.Context, query string, limit int) ([]types.RecipeListItem, error)
	Favorite(ctx context.Context, userID, recipeID uuid.UUID) error
	Unfavorite(ctx context.Context, userID, recipeID uuid.UUID) error
	Favorites(ctx context.Context, userID uuid.UUID) ([]types.RecipeListItem, error)
	PreviewNutrition(ctx context.Context, req *types.NutritionPreviewRequest) (*types.NutritionPreview, error)
}

// IContactService defines the interface for contact form submissions
type IContactService interface {
	Submit(ctx context.Context, req *types.ContactRequest, userID *uuid.UUID, userAgent string) (*models.ContactMessage, error)
}

// IEmailService defines the interface for email operations
type IEmailService interface {
	SendEmail(to, subject, body string) error
	SendContactNotification(msg *models.ContactMessage) error
}

// ImageStore persists encoded image bytes and returns their public URL.
type ImageStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, key string) error
}
