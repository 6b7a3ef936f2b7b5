package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/pageza/cookbook/backend/internal/models"
	"github.com/pageza/cookbook/backend/internal/types"
)

const (
	mealDBUsername       = "themealdb"
	mealDBServings       = 4
	mealDBRecipeType     = "Dinner"
	mealDBDownloadLimit  = 4
	mealDBMaxIngredients = 20
	mealDBMaxDescription = 1000
)

// mealDBMeal is one entry of TheMealDB search response. Every field is a string or null.
type mealDBMeal map[string]*string

func (m mealDBMeal) field(name string) string {
	if v, ok := m[name]; ok && v != nil {
		return strings.TrimSpace(*v)
	}
	return ""
}

type mealDBResponse struct {
	Meals []mealDBMeal `json:"meals"`
}

// mealDBDescriptionPrefix marks catalog entries created by the importer.
const mealDBDescriptionPrefix = "Imported from TheMealDB"

// ImportResult summarizes one import run.
type ImportResult struct {
	Fetched  int      `json:"fetched"`
	Created  int      `json:"created"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Recipes  []string `json:"recipes"`
	Existing []string `json:"existing"`
}

// MealDBImporter seeds the catalog and public recipes from TheMealDB.
type MealDBImporter struct {
	db          *gorm.DB
	baseURL     string
	client      *http.Client
	ingredients *IngredientService
	recipes     *RecipeService
	images      *ImageService
	log         *zap.Logger
}

// NewMealDBImporter wires the importer. images may be nil to keep remote thumbnail URLs.
func NewMealDBImporter(db *gorm.DB, baseURL string, ingredients *IngredientService, recipes *RecipeService, images *ImageService, log *zap.Logger) *MealDBImporter {
	return &MealDBImporter{
		db:          db,
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: 30 * time.Second},
		ingredients: ingredients,
		recipes:     recipes,
		images:      images,
		log:         log,
	}
}

// Import fetches meals matching query and creates at most limit recipes (0 means all).
// Recipes whose name already exists are skipped. With dryRun nothing is written.
func (m *MealDBImporter) Import(ctx context.Context, query string, limit int, dryRun bool) (*ImportResult, error) {
	meals, err := m.fetch(ctx, query)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Fetched: len(meals)}
	var pending []mealDBMeal
	for _, meal := range meals {
		name := meal.field("strMeal")
		if name == "" {
			continue
		}
		exists, err := m.recipeExists(ctx, name)
		if err != nil {
			return nil, err
		}
		if exists {
			result.Skipped++
			result.Existing = append(result.Existing, name)
			continue
		}
		if limit > 0 && len(pending) >= limit {
			break
		}
		pending = append(pending, meal)
	}

	if dryRun {
		for _, meal := range pending {
			result.Recipes = append(result.Recipes, meal.field("strMeal"))
		}
		return result, nil
	}

	author, err := m.importUser(ctx)
	if err != nil {
		return nil, err
	}

	images := m.downloadImages(ctx, pending)

	for _, meal := range pending {
		name := meal.field("strMeal")
		req, err := m.recipeRequest(ctx, meal, images[name])
		if err == nil {
			_, err = m.recipes.Create(ctx, author.ID, req, nil)
		}
		if err != nil {
			result.Failed++
			m.log.Warn("Failed to import recipe", zap.String("name", name), zap.Error(err))
			continue
		}
		result.Created++
		result.Recipes = append(result.Recipes, name)
		m.log.Info("Imported recipe", zap.String("name", name))
	}
	return result, nil
}

func (m *MealDBImporter) fetch(ctx context.Context, query string) ([]mealDBMeal, error) {
	endpoint := fmt.Sprintf("%s/search.php?s=%s", m.baseURL, url.QueryEscape(query))
	body, err := m.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recipes from TheMealDB: %w", err)
	}
	var resp mealDBResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode TheMealDB response: %w", err)
	}
	return resp.Meals, nil
}

func (m *MealDBImporter) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, endpoint)
	}
	return io.ReadAll(io.LimitReader(resp.Body, MaxImageSize+1))
}

// downloadImages fetches the small thumbnail of every meal with a bounded worker pool
// and returns the stored URL per meal name. Failed downloads fall back to the remote URL.
func (m *MealDBImporter) downloadImages(ctx context.Context, meals []mealDBMeal) map[string]string {
	urls := make(map[string]string, len(meals))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(mealDBDownloadLimit)
	for _, meal := range meals {
		name := meal.field("strMeal")
		thumb := meal.field("strMealThumb")
		if thumb == "" {
			continue
		}
		g.Go(func() error {
			stored := thumb
			if m.images != nil {
				if u, err := m.storeThumbnail(gctx, thumb); err != nil {
					m.log.Warn("Failed to download meal image", zap.String("url", thumb), zap.Error(err))
				} else {
					stored = u
				}
			}
			mu.Lock()
			urls[name] = stored
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return urls
}

func (m *MealDBImporter) storeThumbnail(ctx context.Context, thumb string) (string, error) {
	data, err := m.get(ctx, thumb+"/small")
	if err != nil {
		return "", err
	}
	img, err := m.images.Save(ctx, "recipes", Upload{Filename: thumb, Data: data})
	if err != nil {
		return "", err
	}
	return img.URL, nil
}

func (m *MealDBImporter) recipeRequest(ctx context.Context, meal mealDBMeal, image string) (*types.RecipeRequest, error) {
	instructions := meal.field("strInstructions")
	var steps []string
	for _, line := range strings.Split(strings.ReplaceAll(instructions, "\r\n", "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			steps = append(steps, line)
		}
	}

	description := truncate(instructions, mealDBMaxDescription)
	if description == "" {
		description = mealDBDescriptionPrefix
	}
	if len(steps) == 0 {
		steps = []string{description}
	}

	seen := make(map[uuid.UUID]bool)
	var lines []types.RecipeIngredientInput
	for i := 1; i <= mealDBMaxIngredients; i++ {
		name := meal.field(fmt.Sprintf("strIngredient%d", i))
		measure := meal.field(fmt.Sprintf("strMeasure%d", i))
		if name == "" || measure == "" {
			continue
		}
		ing, _, err := m.ingredients.EnsureByName(ctx, name, mealDBDescriptionPrefix+": "+name, ingredientImageURL(name))
		if err != nil {
			return nil, err
		}
		if seen[ing.ID] {
			continue
		}
		seen[ing.ID] = true
		lines = append(lines, types.RecipeIngredientInput{IngredientID: ing.ID, QuantityPerServing: 1})
	}

	public := true
	return &types.RecipeRequest{
		Name:             meal.field("strMeal"),
		Type:             mealDBRecipeType,
		Description:      description,
		InstructionSteps: steps,
		Servings:         mealDBServings,
		Image:            image,
		IsPublic:         &public,
		Ingredients:      lines,
	}, nil
}

func ingredientImageURL(name string) string {
	slug := strings.ReplaceAll(strings.ToLower(name), " ", "_")
	return "https://www.themealdb.com/images/ingredients/" + url.PathEscape(slug) + "-small.png"
}

func (m *MealDBImporter) recipeExists(ctx context.Context, name string) (bool, error) {
	var count int64
	if err := m.db.WithContext(ctx).Model(&models.Recipe{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check recipe %q: %w", name, err)
	}
	return count > 0, nil
}

// importUser returns the system account that authors imported recipes.
func (m *MealDBImporter) importUser(ctx context.Context) (*models.User, error) {
	var user models.User
	err := m.db.WithContext(ctx).Where("username = ?", mealDBUsername).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load import user: %w", err)
	}

	// random password; the account is not meant to sign in
	hash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user = models.User{
		Name:         "TheMealDB",
		Username:     mealDBUsername,
		Email:        "themealdb@cookbook.local",
		PasswordHash: string(hash),
	}
	if err := m.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create import user: %w", err)
	}
	return &user, nil
}

// CleanupResult counts the rows removed by Cleanup.
type CleanupResult struct {
	Recipes     int64 `json:"recipes"`
	Ingredients int64 `json:"ingredients"`
	User        bool  `json:"user"`
}

// Cleanup removes every imported recipe, the placeholder ingredients the importer
// created that no other recipe uses, and the import account.
func (m *MealDBImporter) Cleanup(ctx context.Context) (*CleanupResult, error) {
	result := &CleanupResult{}
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		err := tx.Where("username = ?", mealDBUsername).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load import user: %w", err)
		}

		imported := tx.Unscoped().Model(&models.Recipe{}).Select("id").Where("author_id = ?", user.ID)
		if err := tx.Where("recipe_id IN (?)", imported).Delete(&models.RecipeFavorite{}).Error; err != nil {
			return fmt.Errorf("failed to delete favorites: %w", err)
		}
		if err := tx.Where("recipe_id IN (?)", imported).Delete(&models.RecipeImage{}).Error; err != nil {
			return fmt.Errorf("failed to delete recipe images: %w", err)
		}
		if err := tx.Where("recipe_id IN (?)", imported).Delete(&models.RecipeIngredient{}).Error; err != nil {
			return fmt.Errorf("failed to delete ingredient lines: %w", err)
		}
		res := tx.Unscoped().Where("author_id = ?", user.ID).Delete(&models.Recipe{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete recipes: %w", res.Error)
		}
		result.Recipes = res.RowsAffected

		used := tx.Model(&models.RecipeIngredient{}).Select("ingredient_id")
		res = tx.Where("description LIKE ? AND id NOT IN (?)", mealDBDescriptionPrefix+"%", used).
			Delete(&models.Ingredient{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete ingredients: %w", res.Error)
		}
		result.Ingredients = res.RowsAffected

		if err := tx.Unscoped().Delete(&user).Error; err != nil {
			return fmt.Errorf("failed to delete import user: %w", err)
		}
		result.User = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("Removed imported data",
		zap.Int64("recipes", result.Recipes),
		zap.Int64("ingredients", result.Ingredients))
	return result, nil
}
