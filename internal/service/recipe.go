package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pageza/cookbook/backend/internal/models"
	"github.com/pageza/cookbook/backend/internal/nutrition"
	"github.com/pageza/cookbook/backend/internal/types"
)

const (
	DefaultRecipePageLimit = 12
	MaxRecipePageLimit     = 50
	maxImagesPerRecipe     = 6
)

var (
	ErrRecipeNotFound    = errors.New("recipe not found")
	ErrForbidden         = errors.New("not allowed to modify this recipe")
	ErrUnknownIngredient = errors.New("unknown ingredient")
	ErrUploadsDisabled   = errors.New("image uploads are not configured")
)

// RecipeService handles recipe operations
type RecipeService struct {
	db       *gorm.DB
	images   *ImageService
	validate *validator.Validate
	log      *zap.Logger
}

// NewRecipeService creates a new RecipeService instance. images may be nil,
// in which case requests carrying uploads are rejected.
func NewRecipeService(db *gorm.DB, images *ImageService, log *zap.Logger) *RecipeService {
	return &RecipeService{
		db:       db,
		images:   images,
		validate: newValidator(),
		log:      log,
	}
}

// Create stores a new recipe authored by authorID together with its ingredient lines and uploads.
func (s *RecipeService) Create(ctx context.Context, authorID uuid.UUID, req *types.RecipeRequest, uploads []Upload) (*models.Recipe, error) {
	normalizeRecipeRequest(req)
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}

	catalog, err := s.loadIngredients(ctx, req.Ingredients)
	if err != nil {
		return nil, err
	}

	recipe := models.Recipe{ID: uuid.New(), AuthorID: authorID}
	applyRecipeRequest(&recipe, req, catalog)

	stored, err := s.storeUploads(ctx, uploads)
	if err != nil {
		return nil, err
	}
	if recipe.Image == "" && len(stored) > 0 {
		recipe.Image = stored[0].URL
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&recipe).Error; err != nil {
			return fmt.Errorf("failed to create recipe: %w", err)
		}
		if err := createLines(tx, recipe.ID, req.Ingredients); err != nil {
			return err
		}
		return createImages(tx, recipe.ID, stored)
	})
	if err != nil {
		s.discard(ctx, stored)
		return nil, err
	}

	s.log.Info("Recipe created",
		zap.String("recipe_id", recipe.ID.String()),
		zap.String("author_id", authorID.String()),
		zap.Int("ingredients", len(req.Ingredients)))
	return s.Get(ctx, recipe.ID)
}

// Update replaces the recipe's fields and ingredient lines. New uploads replace the existing images.
func (s *RecipeService) Update(ctx context.Context, id, userID uuid.UUID, req *types.RecipeRequest, uploads []Upload) (*models.Recipe, error) {
	normalizeRecipeRequest(req)
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}

	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.AuthorID != userID {
		return nil, ErrForbidden
	}

	catalog, err := s.loadIngredients(ctx, req.Ingredients)
	if err != nil {
		return nil, err
	}

	stored, err := s.storeUploads(ctx, uploads)
	if err != nil {
		return nil, err
	}

	recipe := *existing
	recipe.Ingredients = nil
	recipe.Images = nil
	recipe.Author = nil
	applyRecipeRequest(&recipe, req, catalog)
	if recipe.Image == "" {
		if len(stored) > 0 {
			recipe.Image = stored[0].URL
		} else {
			recipe.Image = existing.Image
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(&recipe).Error; err != nil {
			return fmt.Errorf("failed to update recipe: %w", err)
		}
		if err := tx.Where("recipe_id = ?", id).Delete(&models.RecipeIngredient{}).Error; err != nil {
			return fmt.Errorf("failed to replace ingredient lines: %w", err)
		}
		if err := createLines(tx, id, req.Ingredients); err != nil {
			return err
		}
		if len(stored) == 0 {
			return nil
		}
		if err := tx.Where("recipe_id = ?", id).Delete(&models.RecipeImage{}).Error; err != nil {
			return fmt.Errorf("failed to replace images: %w", err)
		}
		return createImages(tx, id, stored)
	})
	if err != nil {
		s.discard(ctx, stored)
		return nil, err
	}

	if len(stored) > 0 && s.images != nil {
		for _, img := range existing.Images {
			s.images.Delete(ctx, img.Key)
		}
	}

	s.log.Info("Recipe updated", zap.String("recipe_id", id.String()))
	return s.Get(ctx, id)
}

// Delete soft-deletes a recipe owned by userID and drops its bookmarks.
func (s *RecipeService) Delete(ctx context.Context, id, userID uuid.UUID) error {
	var recipe models.Recipe
	if err := s.first(ctx, s.db, &recipe, id); err != nil {
		return err
	}
	if recipe.AuthorID != userID {
		return ErrForbidden
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("recipe_id = ?", id).Delete(&models.RecipeFavorite{}).Error; err != nil {
			return fmt.Errorf("failed to delete favorites: %w", err)
		}
		if err := tx.Delete(&recipe).Error; err != nil {
			return fmt.Errorf("failed to delete recipe: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("Recipe deleted", zap.String("recipe_id", id.String()))
	return nil
}

// Get loads a recipe with its ordered lines, catalog ingredients, images and author.
func (s *RecipeService) Get(ctx context.Context, id uuid.UUID) (*models.Recipe, error) {
	var recipe models.Recipe
	if err := s.first(ctx, withRecipeAssociations(s.db), &recipe, id); err != nil {
		return nil, err
	}
	return &recipe, nil
}

// Detail returns the recipe with its nutrition summary. Ingredient quantities are
// scaled to requestedServings (0 keeps the authored count); per-serving nutrition
// always uses the authored count. Private recipes are only visible to their author.
func (s *RecipeService) Detail(ctx context.Context, id uuid.UUID, requestedServings int, viewerID *uuid.UUID) (*types.RecipeDetail, error) {
	recipe, err := s.visible(ctx, id, viewerID)
	if err != nil {
		return nil, err
	}

	summary, err := nutrition.Summarize(recipe.NutritionRecipe(), requestedServings)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	detail := &types.RecipeDetail{
		Recipe:    *recipe,
		Nutrition: summary,
	}
	if recipe.Author != nil {
		detail.AuthorName = recipe.Author.Name
	}
	if viewerID != nil {
		detail.IsFavorite, err = s.isFavorite(ctx, *viewerID, id)
		if err != nil {
			return nil, err
		}
	}
	return detail, nil
}

// Scale returns the recipe's ingredient lines rescaled to requestedServings.
func (s *RecipeService) Scale(ctx context.Context, id uuid.UUID, requestedServings int, viewerID *uuid.UUID) (*types.ScaledIngredients, error) {
	recipe, err := s.visible(ctx, id, viewerID)
	if err != nil {
		return nil, err
	}
	if requestedServings == 0 {
		requestedServings = recipe.Servings
	}

	lines, err := nutrition.ScaleIngredients(recipe.NutritionRecipe().Lines, recipe.Servings, requestedServings)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return &types.ScaledIngredients{
		RecipeID:         recipe.ID,
		Servings:         requestedServings,
		OriginalServings: recipe.Servings,
		Ingredients:      lines,
	}, nil
}

// ListByUser returns every recipe authored by userID, newest first.
func (s *RecipeService) ListByUser(ctx context.Context, userID uuid.UUID) ([]types.RecipeListItem, error) {
	var recipes []models.Recipe
	err := withRecipeAssociations(s.db.WithContext(ctx)).
		Where("author_id = ?", userID).
		Order("created_at DESC").
		Find(&recipes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}
	return listItems(recipes), nil
}

// ListPublic returns one page of public recipes, newest first.
func (s *RecipeService) ListPublic(ctx context.Context, page, limit int) (*types.RecipePage, error) {
	page, limit = NormalizePage(page, limit, DefaultRecipePageLimit, MaxRecipePageLimit)

	result := &types.RecipePage{Page: page, Limit: limit}
	base := s.db.WithContext(ctx).Model(&models.Recipe{}).Where("is_public = ?", true)
	if err := base.Count(&result.Total).Error; err != nil {
		return nil, fmt.Errorf("failed to count recipes: %w", err)
	}

	var recipes []models.Recipe
	err := withRecipeAssociations(s.db.WithContext(ctx)).
		Where("is_public = ?", true).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&recipes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list public recipes: %w", err)
	}

	result.Recipes = listItems(recipes)
	result.HasMore = int64(page*limit) < result.Total
	return result, nil
}

// Search finds public recipes matching query. Postgres ranks keyword matches
// first and then by embedding distance; sqlite only matches keywords.
func (s *RecipeService) Search(ctx context.Context, query string, limit int) ([]types.RecipeListItem, error) {
	_, limit = NormalizePage(1, limit, DefaultRecipePageLimit, MaxRecipePageLimit)
	query = strings.TrimSpace(query)
	if query == "" {
		page, err := s.ListPublic(ctx, 1, limit)
		if err != nil {
			return nil, err
		}
		return page.Recipes, nil
	}

	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	q := withRecipeAssociations(s.db.WithContext(ctx)).Where("is_public = ?", true)
	if s.db.Dialector.Name() == "postgres" {
		vec := GenerateEmbedding(query)
		q = q.Clauses(clause.OrderBy{
			Expression: clause.Expr{
				SQL:                "CASE WHEN name ILIKE ? OR description ILIKE ? THEN 0 ELSE 1 END, embedding <-> ?",
				Vars:               []interface{}{pattern, pattern, vec},
				WithoutParentheses: true,
			},
		})
	} else {
		q = q.Where(`LOWER(name) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\'`, pattern, pattern).
			Order("name ASC")
	}

	var recipes []models.Recipe
	if err := q.Limit(limit).Find(&recipes).Error; err != nil {
		return nil, fmt.Errorf("failed to search recipes: %w", err)
	}
	return listItems(recipes), nil
}

// Favorite bookmarks a visible recipe. Bookmarking twice is a no-op.
func (s *RecipeService) Favorite(ctx context.Context, userID, recipeID uuid.UUID) error {
	if _, err := s.visible(ctx, recipeID, &userID); err != nil {
		return err
	}
	fav := models.RecipeFavorite{UserID: userID, RecipeID: recipeID}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&fav).Error
	if err != nil {
		return fmt.Errorf("failed to favorite recipe: %w", err)
	}
	return nil
}

func (s *RecipeService) Unfavorite(ctx context.Context, userID, recipeID uuid.UUID) error {
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND recipe_id = ?", userID, recipeID).
		Delete(&models.RecipeFavorite{}).Error
	if err != nil {
		return fmt.Errorf("failed to unfavorite recipe: %w", err)
	}
	return nil
}

// Favorites returns the recipes userID bookmarked, most recently bookmarked first.
func (s *RecipeService) Favorites(ctx context.Context, userID uuid.UUID) ([]types.RecipeListItem, error) {
	var recipes []models.Recipe
	err := withRecipeAssociations(s.db.WithContext(ctx)).
		Joins("JOIN recipe_favorites ON recipe_favorites.recipe_id = recipes.id").
		Where("recipe_favorites.user_id = ?", userID).
		Where("recipes.is_public = ? OR recipes.author_id = ?", true, userID).
		Order("recipe_favorites.created_at DESC").
		Find(&recipes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	return listItems(recipes), nil
}

// PreviewNutrition computes totals and per-serving nutrition for an unsaved draft.
func (s *RecipeService) PreviewNutrition(ctx context.Context, req *types.NutritionPreviewRequest) (*types.NutritionPreview, error) {
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}
	catalog, err := s.loadIngredients(ctx, req.Ingredients)
	if err != nil {
		return nil, err
	}

	lines := make([]nutrition.Line, 0, len(req.Ingredients))
	for _, in := range req.Ingredients {
		lines = append(lines, nutrition.Line{
			Ingredient:         catalog[in.IngredientID].Nutrition(),
			QuantityPerServing: in.QuantityPerServing,
		})
	}

	totals := nutrition.ComputeTotals(lines)
	per, err := nutrition.ComputePerServing(totals, req.Servings)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return &types.NutritionPreview{Servings: req.Servings, Total: totals, PerServing: per}, nil
}

func (s *RecipeService) first(ctx context.Context, db *gorm.DB, recipe *models.Recipe, id uuid.UUID) error {
	err := db.WithContext(ctx).First(recipe, "recipes.id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecipeNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load recipe: %w", err)
	}
	return nil
}

func (s *RecipeService) visible(ctx context.Context, id uuid.UUID, viewerID *uuid.UUID) (*models.Recipe, error) {
	recipe, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !recipe.IsPublic && (viewerID == nil || *viewerID != recipe.AuthorID) {
		return nil, ErrRecipeNotFound
	}
	return recipe, nil
}

func (s *RecipeService) isFavorite(ctx context.Context, userID, recipeID uuid.UUID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.RecipeFavorite{}).
		Where("user_id = ? AND recipe_id = ?", userID, recipeID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check favorite: %w", err)
	}
	return count > 0, nil
}

// loadIngredients resolves every referenced catalog ingredient or fails with ErrUnknownIngredient.
func (s *RecipeService) loadIngredients(ctx context.Context, inputs []types.RecipeIngredientInput) (map[uuid.UUID]models.Ingredient, error) {
	catalog := make(map[uuid.UUID]models.Ingredient, len(inputs))
	if len(inputs) == 0 {
		return catalog, nil
	}

	ids := make([]uuid.UUID, 0, len(inputs))
	for _, in := range inputs {
		ids = append(ids, in.IngredientID)
	}

	var found []models.Ingredient
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&found).Error; err != nil {
		return nil, fmt.Errorf("failed to load ingredients: %w", err)
	}
	for _, ing := range found {
		catalog[ing.ID] = ing
	}
	for _, id := range ids {
		if _, ok := catalog[id]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownIngredient, id)
		}
	}
	return catalog, nil
}

func (s *RecipeService) storeUploads(ctx context.Context, uploads []Upload) ([]*StoredImage, error) {
	if len(uploads) == 0 {
		return nil, nil
	}
	if s.images == nil {
		return nil, ErrUploadsDisabled
	}
	if len(uploads) > maxImagesPerRecipe {
		return nil, fmt.Errorf("%w: at most %d images per recipe", ErrValidation, maxImagesPerRecipe)
	}

	stored := make([]*StoredImage, 0, len(uploads))
	for _, up := range uploads {
		img, err := s.images.Save(ctx, "recipes", up)
		if err != nil {
			s.discard(ctx, stored)
			return nil, err
		}
		stored = append(stored, img)
	}
	return stored, nil
}

func (s *RecipeService) discard(ctx context.Context, stored []*StoredImage) {
	if s.images == nil {
		return
	}
	for _, img := range stored {
		s.images.Delete(ctx, img.Key)
	}
}

func withRecipeAssociations(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Ingredients", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Ingredients.Ingredient").
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Author")
}

func normalizeRecipeRequest(req *types.RecipeRequest) {
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	steps := req.InstructionSteps[:0:0]
	for _, step := range req.InstructionSteps {
		if step = strings.TrimSpace(step); step != "" {
			steps = append(steps, step)
		}
	}
	req.InstructionSteps = steps
}

func applyRecipeRequest(recipe *models.Recipe, req *types.RecipeRequest, catalog map[uuid.UUID]models.Ingredient) {
	recipe.Name = req.Name
	recipe.Type = req.Type
	recipe.Description = req.Description
	recipe.InstructionSteps = models.StringList(req.InstructionSteps)
	recipe.Servings = req.Servings
	recipe.Image = req.Image
	recipe.IsPublic = req.IsPublic == nil || *req.IsPublic

	terms := []string{req.Name, req.Type, req.Description}
	for _, in := range req.Ingredients {
		terms = append(terms, catalog[in.IngredientID].Name)
	}
	recipe.Embedding = GenerateEmbedding(strings.Join(terms, " "))
}

func createLines(tx *gorm.DB, recipeID uuid.UUID, inputs []types.RecipeIngredientInput) error {
	if len(inputs) == 0 {
		return nil
	}
	lines := make([]models.RecipeIngredient, 0, len(inputs))
	for i, in := range inputs {
		lines = append(lines, models.RecipeIngredient{
			RecipeID:           recipeID,
			IngredientID:       in.IngredientID,
			Position:           i,
			QuantityPerServing: in.QuantityPerServing,
		})
	}
	if err := tx.Omit(clause.Associations).Create(&lines).Error; err != nil {
		return fmt.Errorf("failed to create ingredient lines: %w", err)
	}
	return nil
}

func createImages(tx *gorm.DB, recipeID uuid.UUID, stored []*StoredImage) error {
	if len(stored) == 0 {
		return nil
	}
	images := make([]models.RecipeImage, 0, len(stored))
	for i, img := range stored {
		images = append(images, models.RecipeImage{
			RecipeID:     recipeID,
			Key:          img.Key,
			URL:          img.URL,
			ThumbnailURL: img.ThumbnailURL,
			Position:     i,
		})
	}
	if err := tx.Create(&images).Error; err != nil {
		return fmt.Errorf("failed to create recipe images: %w", err)
	}
	return nil
}

func listItems(recipes []models.Recipe) []types.RecipeListItem {
	items := make([]types.RecipeListItem, 0, len(recipes))
	for _, r := range recipes {
		item := types.RecipeListItem{
			ID:          r.ID,
			Name:        r.Name,
			Type:        r.Type,
			Description: r.Description,
			Servings:    r.Servings,
			Image:       r.Image,
			IsPublic:    r.IsPublic,
			AuthorID:    r.AuthorID,
			CreatedAt:   r.CreatedAt,
		}
		if r.Author != nil {
			item.AuthorName = r.Author.Name
		}
		// stored servings are >= 1; a corrupt row keeps zero nutrition
		if per, err := nutrition.ComputePerServing(nutrition.ComputeTotals(r.NutritionRecipe().Lines), r.Servings); err == nil {
			item.Nutrition = per
		}
		items = append(items, item)
	}
	return items
}
