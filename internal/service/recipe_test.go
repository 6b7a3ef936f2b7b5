package service_test

import (
	"bytes"
	"context"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pageza/cookbook/backend/internal/models"
	"github.com/pageza/cookbook/backend/internal/service"
	"github.com/pageza/cookbook/backend/internal/testhelpers"
	"github.com/pageza/cookbook/backend/internal/types"
)

type recipeFixture struct {
	db        *gorm.DB
	svc       *service.RecipeService
	uploadDir string
	author    *models.User
	other     *models.User
	flour     *models.Ingredient
	egg       *models.Ingredient
}

func setupRecipeTest(t *testing.T) *recipeFixture {
	db := testhelpers.NewSQLiteDB(t)
	dir := t.TempDir()
	images := service.NewImageService(service.NewLocalStore(dir, "/uploads"), zap.NewNop())
	return &recipeFixture{
		db:        db,
		svc:       service.NewRecipeService(db, images, zap.NewNop()),
		uploadDir: dir,
		author:    testhelpers.CreateUser(t, db, "author"),
		other:     testhelpers.CreateUser(t, db, "other"),
		flour:     testhelpers.CreateIngredient(t, db, "Flour", "g", 3.64, 0.1),
		egg:       testhelpers.CreateIngredient(t, db, "Egg", "piece", 72, 6),
	}
}

func (f *recipeFixture) request(name string, public bool) *types.RecipeRequest {
	return &types.RecipeRequest{
		Name:             name,
		Type:             "Breakfast",
		Description:      "Fluffy " + strings.ToLower(name),
		InstructionSteps: []string{" Whisk ", "", "Fry"},
		Servings:         2,
		IsPublic:         &public,
		Ingredients: []types.RecipeIngredientInput{
			{IngredientID: f.flour.ID, QuantityPerServing: 50},
			{IngredientID: f.egg.ID, QuantityPerServing: 1},
		},
	}
}

func (f *recipeFixture) create(t *testing.T, name string, public bool) *models.Recipe {
	t.Helper()
	recipe, err := f.svc.Create(context.Background(), f.author.ID, f.request(name, public), nil)
	require.NoError(t, err)
	return recipe
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 80, B: 40, A: 255})
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func TestCreateRecipe(t *testing.T) {
	f := setupRecipeTest(t)

	recipe := f.create(t, "Pancakes", true)
	assert.Equal(t, "Pancakes", recipe.Name)
	assert.Equal(t, models.StringList{"Whisk", "Fry"}, recipe.InstructionSteps)
	assert.True(t, recipe.IsPublic)
	require.Len(t, recipe.Ingredients, 2)
	assert.Equal(t, "Flour", recipe.Ingredients[0].Ingredient.Name)
	assert.Equal(t, "Egg", recipe.Ingredients[1].Ingredient.Name)
	require.NotNil(t, recipe.Author)
	assert.Equal(t, f.author.ID, recipe.Author.ID)
	assert.Len(t, recipe.Embedding.Slice(), service.EmbeddingDimensions)
}

func TestCreateRecipeDefaultsToPublic(t *testing.T) {
	f := setupRecipeTest(t)
	req := f.request("Omelette", true)
	req.IsPublic = nil

	recipe, err := f.svc.Create(context.Background(), f.author.ID, req, nil)
	require.NoError(t, err)
	assert.True(t, recipe.IsPublic)
}

func TestCreateRecipeRejectsInvalidInput(t *testing.T) {
	f := setupRecipeTest(t)
	ctx := context.Background()

	req := f.request("Unknown", true)
	req.Ingredients = append(req.Ingredients, types.RecipeIngredientInput{IngredientID: uuid.New(), QuantityPerServing: 1})
	_, err := f.svc.Create(ctx, f.author.ID, req, nil)
	assert.ErrorIs(t, err, service.ErrUnknownIngredient)

	req = f.request("No servings", true)
	req.Servings = 0
	_, err = f.svc.Create(ctx, f.author.ID, req, nil)
	assert.ErrorIs(t, err, service.ErrValidation)

	req = f.request("No steps", true)
	req.InstructionSteps = []string{"  "}
	_, err = f.svc.Create(ctx, f.author.ID, req, nil)
	assert.ErrorIs(t, err, service.ErrValidation)

	req = f.request("Bad type", true)
	req.Type = "Brunch"
	_, err = f.svc.Create(ctx, f.author.ID, req, nil)
	assert.ErrorIs(t, err, service.ErrValidation)

	var count int64
	require.NoError(t, f.db.Model(&models.Recipe{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateRecipeWithUploads(t *testing.T) {
	f := setupRecipeTest(t)
	uploads := []service.Upload{
		{Filename: "a.png", Data: pngBytes(t, 1600, 800)},
		{Filename: "b.png", Data: pngBytes(t, 100, 100)},
	}

	recipe, err := f.svc.Create(context.Background(), f.author.ID, f.request("Crepes", true), uploads)
	require.NoError(t, err)
	require.Len(t, recipe.Images, 2)
	assert.Equal(t, recipe.Images[0].URL, recipe.Image)
	assert.True(t, strings.HasPrefix(recipe.Images[0].URL, "/uploads/recipes/"))

	stored, err := imaging.Open(filepath.Join(f.uploadDir, filepath.FromSlash(recipe.Images[0].Key)))
	require.NoError(t, err)
	assert.Equal(t, 1200, stored.Bounds().Dx())
	assert.Equal(t, 600, stored.Bounds().Dy())

	_, err = f.svc.Create(context.Background(), f.author.ID, f.request("Broken", true),
		[]service.Upload{{Filename: "x.png", Data: []byte("not an image")}})
	assert.ErrorIs(t, err, service.ErrInvalidImage)
}

func TestRecipeDetailNutrition(t *testing.T) {
	f := setupRecipeTest(t)
	recipe := f.create(t, "Pancakes", true)
	ctx := context.Background()

	detail, err := f.svc.Detail(ctx, recipe.ID, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "Test author", detail.AuthorName)
	assert.False(t, detail.IsFavorite)
	assert.Equal(t, 2, detail.Nutrition.Servings)
	assert.Equal(t, 2, detail.Nutrition.OriginalServings)
	assert.InDelta(t, 254, detail.Nutrition.Total.Calories, 1e-9)
	assert.InDelta(t, 127, detail.Nutrition.PerServing.Calories, 1e-9)
	assert.InDelta(t, 5.5, detail.Nutrition.PerServing.Protein, 1e-9)

	scaled, err := f.svc.Detail(ctx, recipe.ID, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, scaled.Nutrition.Servings)
	assert.InDelta(t, 127, scaled.Nutrition.PerServing.Calories, 1e-9, "per-serving values ignore the requested count")
	require.Len(t, scaled.Nutrition.Ingredients, 2)
	assert.InDelta(t, 100, scaled.Nutrition.Ingredients[0].ScaledQuantity, 1e-9)
	assert.InDelta(t, 364, scaled.Nutrition.Ingredients[0].ScaledCalories, 1e-9)
	assert.InDelta(t, 2, scaled.Nutrition.Ingredients[1].ScaledQuantity, 1e-9)

	_, err = f.svc.Detail(ctx, recipe.ID, -1, nil)
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = f.svc.Detail(ctx, uuid.New(), 0, nil)
	assert.ErrorIs(t, err, service.ErrRecipeNotFound)
}

func TestScaleRecipe(t *testing.T) {
	f := setupRecipeTest(t)
	recipe := f.create(t, "Pancakes", true)
	ctx := context.Background()

	authored, err := f.svc.Scale(ctx, recipe.ID, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, authored.Servings)
	assert.InDelta(t, 50, authored.Ingredients[0].ScaledQuantity, 1e-9)

	one, err := f.svc.Scale(ctx, recipe.ID, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, one.Servings)
	assert.Equal(t, 2, one.OriginalServings)
	assert.InDelta(t, 25, one.Ingredients[0].ScaledQuantity, 1e-9)
	assert.InDelta(t, 0.5, one.Ingredients[1].ScaledQuantity, 1e-9)
}

func TestPrivateRecipeVisibility(t *testing.T) {
	f := setupRecipeTest(t)
	recipe := f.create(t, "Secret Stew", false)
	ctx := context.Background()

	_, err := f.svc.Detail(ctx, recipe.ID, 0, nil)
	assert.ErrorIs(t, err, service.ErrRecipeNotFound)
	_, err = f.svc.Detail(ctx, recipe.ID, 0, &f.other.ID)
	assert.ErrorIs(t, err, service.ErrRecipeNotFound)
	assert.ErrorIs(t, f.svc.Favorite(ctx, f.other.ID, recipe.ID), service.ErrRecipeNotFound)

	detail, err := f.svc.Detail(ctx, recipe.ID, 0, &f.author.ID)
	require.NoError(t, err)
	assert.Equal(t, "Secret Stew", detail.Recipe.Name)
}

func TestUpdateRecipe(t *testing.T) {
	f := setupRecipeTest(t)
	recipe := f.create(t, "Pancakes", true)
	ctx := context.Background()

	req := f.request("Egg Pancakes", false)
	req.Servings = 3
	req.Ingredients = []types.RecipeIngredientInput{{IngredientID: f.egg.ID, QuantityPerServing: 2}}

	_, err := f.svc.Update(ctx, recipe.ID, f.other.ID, req, nil)
	assert.ErrorIs(t, err, service.ErrForbidden)

	updated, err := f.svc.Update(ctx, recipe.ID, f.author.ID, req, nil)
	require.NoError(t, err)
	assert.Equal(t, "Egg Pancakes", updated.Name)
	assert.Equal(t, 3, updated.Servings)
	assert.False(t, updated.IsPublic)
	require.Len(t, updated.Ingredients, 1)
	assert.Equal(t, f.egg.ID, updated.Ingredients[0].IngredientID)

	var lines int64
	require.NoError(t, f.db.Model(&models.RecipeIngredient{}).Where("recipe_id = ?", recipe.ID).Count(&lines).Error)
	assert.EqualValues(t, 1, lines)

	_, err = f.svc.Update(ctx, uuid.New(), f.author.ID, f.request("Missing", true), nil)
	assert.ErrorIs(t, err, service.ErrRecipeNotFound)
}

func TestUpdateRecipeReplacesImages(t *testing.T) {
	f := setupRecipeTest(t)
	ctx := context.Background()
	recipe, err := f.svc.Create(ctx, f.author.ID, f.request("Crepes", true),
		[]service.Upload{{Filename: "a.png", Data: pngBytes(t, 50, 50)}})
	require.NoError(t, err)
	oldKey := recipe.Images[0].Key

	kept, err := f.svc.Update(ctx, recipe.ID, f.author.ID, f.request("Crepes", true), nil)
	require.NoError(t, err)
	require.Len(t, kept.Images, 1, "updates without uploads keep existing images")

	replaced, err := f.svc.Update(ctx, recipe.ID, f.author.ID, f.request("Crepes", true),
		[]service.Upload{{Filename: "b.png", Data: pngBytes(t, 60, 60)}})
	require.NoError(t, err)
	require.Len(t, replaced.Images, 1)
	assert.NotEqual(t, oldKey, replaced.Images[0].Key)

	_, err = os.Stat(filepath.Join(f.uploadDir, filepath.FromSlash(oldKey)))
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteRecipe(t *testing.T) {
	f := setupRecipeTest(t)
	recipe := f.create(t, "Pancakes", true)
	ctx := context.Background()
	require.NoError(t, f.svc.Favorite(ctx, f.other.ID, recipe.ID))

	assert.ErrorIs(t, f.svc.Delete(ctx, recipe.ID, f.other.ID), service.ErrForbidden)
	require.NoError(t, f.svc.Delete(ctx, recipe.ID, f.author.ID))

	_, err := f.svc.Get(ctx, recipe.ID)
	assert.ErrorIs(t, err, service.ErrRecipeNotFound)

	favorites, err := f.svc.Favorites(ctx, f.other.ID)
	require.NoError(t, err)
	assert.Empty(t, favorites)

	assert.ErrorIs(t, f.svc.Delete(ctx, recipe.ID, f.author.ID), service.ErrRecipeNotFound)
}

func TestFavorites(t *testing.T) {
	f := setupRecipeTest(t)
	recipe := f.create(t, "Pancakes", true)
	ctx := context.Background()

	require.NoError(t, f.svc.Favorite(ctx, f.other.ID, recipe.ID))
	require.NoError(t, f.svc.Favorite(ctx, f.other.ID, recipe.ID), "favoriting twice is a no-op")

	favorites, err := f.svc.Favorites(ctx, f.other.ID)
	require.NoError(t, err)
	require.Len(t, favorites, 1)
	assert.Equal(t, recipe.ID, favorites[0].ID)
	assert.InDelta(t, 127, favorites[0].Nutrition.Calories, 1e-9)

	detail, err := f.svc.Detail(ctx, recipe.ID, 0, &f.other.ID)
	require.NoError(t, err)
	assert.True(t, detail.IsFavorite)

	require.NoError(t, f.svc.Unfavorite(ctx, f.other.ID, recipe.ID))
	favorites, err = f.svc.Favorites(ctx, f.other.ID)
	require.NoError(t, err)
	assert.Empty(t, favorites)
}

func TestListRecipes(t *testing.T) {
	f := setupRecipeTest(t)
	ctx := context.Background()
	for _, name := range []string{"Pancakes", "Waffles", "Crepes"} {
		f.create(t, name, true)
	}
	f.create(t, "Secret Stew", false)

	page, err := f.svc.ListPublic(ctx, 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	assert.Len(t, page.Recipes, 2)
	assert.True(t, page.HasMore)

	page, err = f.svc.ListPublic(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page.Recipes, 1)
	assert.False(t, page.HasMore)

	mine, err := f.svc.ListByUser(ctx, f.author.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 4)

	none, err := f.svc.ListByUser(ctx, f.other.ID)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearchRecipes(t *testing.T) {
	f := setupRecipeTest(t)
	ctx := context.Background()
	f.create(t, "Pancakes", true)
	f.create(t, "Waffles", true)
	f.create(t, "Secret Pancakes", false)

	results, err := f.svc.Search(ctx, "PANCAKE", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Pancakes", results[0].Name)

	results, err = f.svc.Search(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestPreviewNutrition(t *testing.T) {
	f := setupRecipeTest(t)
	ctx := context.Background()

	preview, err := f.svc.PreviewNutrition(ctx, &types.NutritionPreviewRequest{
		Servings: 2,
		Ingredients: []types.RecipeIngredientInput{
			{IngredientID: f.flour.ID, QuantityPerServing: 50},
			{IngredientID: f.egg.ID, QuantityPerServing: 1},
		},
	})
	require.NoError(t, err)
	assert.InDelta(t, 254, preview.Total.Calories, 1e-9)
	assert.InDelta(t, 127, preview.PerServing.Calories, 1e-9)

	empty, err := f.svc.PreviewNutrition(ctx, &types.NutritionPreviewRequest{Servings: 1})
	require.NoError(t, err)
	assert.Zero(t, empty.Total.Calories)

	_, err = f.svc.PreviewNutrition(ctx, &types.NutritionPreviewRequest{Servings: 0})
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = f.svc.PreviewNutrition(ctx, &types.NutritionPreviewRequest{
		Servings:    1,
		Ingredients: []types.RecipeIngredientInput{{IngredientID: uuid.New(), QuantityPerServing: 1}},
	})
	assert.ErrorIs(t, err, service.ErrUnknownIngredient)
}
