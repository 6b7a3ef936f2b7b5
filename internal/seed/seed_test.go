package seed_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pageza/cookbook/backend/internal/seed"
	"github.com/pageza/cookbook/backend/internal/service"
	"github.com/pageza/cookbook/backend/internal/testhelpers"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := seed.DefaultCatalog()
	require.NoError(t, err)
	assert.NotEmpty(t, c.Users)
	require.NotEmpty(t, c.Ingredients)

	names := make(map[string]bool)
	for _, ing := range c.Ingredients {
		assert.False(t, names[ing.Name], "duplicate %s", ing.Name)
		names[ing.Name] = true
	}
	assert.True(t, names["Egg"])
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := seed.Parse([]byte("ingredients: [unterminated"))
	assert.Error(t, err)
}

func TestSeederRun(t *testing.T) {
	db := testhelpers.NewSQLiteDB(t)
	log := zap.NewNop()
	auth := service.NewAuthService(db, "secret", time.Hour, log)
	ingredients := service.NewIngredientService(db, nil, log)
	seeder := seed.NewSeeder(auth, ingredients, log)
	ctx := context.Background()

	c, err := seed.DefaultCatalog()
	require.NoError(t, err)

	first, err := seeder.Run(ctx, c, testhelpers.TestPassword)
	require.NoError(t, err)
	assert.Equal(t, len(c.Users), first.UsersCreated)
	assert.Equal(t, len(c.Ingredients), first.IngredientsCreated)

	second, err := seeder.Run(ctx, c, testhelpers.TestPassword)
	require.NoError(t, err)
	assert.Zero(t, second.UsersCreated)
	assert.Equal(t, len(c.Users), second.UsersSkipped)
	assert.Equal(t, len(c.Ingredients), second.IngredientsSkipped)

	user, err := auth.Login(ctx, c.Users[0].Email, testhelpers.TestPassword)
	require.NoError(t, err)
	assert.Equal(t, c.Users[0].Username, user.Username)

	page, err := ingredients.Search(ctx, "egg", 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Ingredients, 1)
	assert.InDelta(t, 70, page.Ingredients[0].CaloriesPerUnit, 1e-9)
}

func TestSeederStopsOnInvalidIngredient(t *testing.T) {
	db := testhelpers.NewSQLiteDB(t)
	log := zap.NewNop()
	seeder := seed.NewSeeder(service.NewAuthService(db, "secret", time.Hour, log), service.NewIngredientService(db, nil, log), log)

	_, err := seeder.Run(context.Background(), &seed.Catalog{
		Ingredients: []seed.Ingredient{{Name: "Moon Dust", Unit: "parsec"}},
	}, "")
	assert.ErrorIs(t, err, service.ErrValidation)
}
