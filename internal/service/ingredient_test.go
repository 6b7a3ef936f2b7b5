package service_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pageza/cookbook/backend/internal/service"
	"github.com/pageza/cookbook/backend/internal/testhelpers"
	"github.com/pageza/cookbook/backend/internal/types"
)

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		name         string
		page, limit  int
		wantP, wantL int
	}{
		{"defaults", 0, 0, 1, 10},
		{"negative", -3, -1, 1, 10},
		{"clamped", 2, 500, 2, 50},
		{"kept", 3, 20, 3, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, l := service.NormalizePage(tt.page, tt.limit, service.DefaultSearchLimit, service.MaxSearchLimit)
			assert.Equal(t, tt.wantP, p)
			assert.Equal(t, tt.wantL, l)
		})
	}
}

func TestIngredientSearch(t *testing.T) {
	db := testhelpers.NewSQLiteDB(t)
	svc := service.NewIngredientService(db, nil, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		testhelpers.CreateIngredient(t, db, fmt.Sprintf("Tomato %02d", i), "g", 0.18, 0.009)
	}
	testhelpers.CreateIngredient(t, db, "Basil", "leaf", 0.1, 0)
	testhelpers.CreateIngredient(t, db, "100%_juice", "ml", 0.5, 0)

	t.Run("empty query", func(t *testing.T) {
		page, err := svc.Search(ctx, "   ", 1, 10)
		require.NoError(t, err)
		assert.Empty(t, page.Ingredients)
		assert.Zero(t, page.Total)
		assert.False(t, page.HasMore)
	})

	t.Run("case insensitive pagination", func(t *testing.T) {
		first, err := svc.Search(ctx, "TOMATO", 1, 10)
		require.NoError(t, err)
		assert.Len(t, first.Ingredients, 10)
		assert.EqualValues(t, 12, first.Total)
		assert.True(t, first.HasMore)
		assert.Equal(t, "Tomato 00", first.Ingredients[0].Name)

		second, err := svc.Search(ctx, "tomato", 2, 10)
		require.NoError(t, err)
		assert.Len(t, second.Ingredients, 2)
		assert.False(t, second.HasMore)
		assert.Equal(t, "Tomato 11", second.Ingredients[1].Name)
	})

	t.Run("wildcards match literally", func(t *testing.T) {
		page, err := svc.Search(ctx, "%_", 1, 10)
		require.NoError(t, err)
		require.Len(t, page.Ingredients, 1)
		assert.Equal(t, "100%_juice", page.Ingredients[0].Name)
	})
}

func TestIngredientCreate(t *testing.T) {
	db := testhelpers.NewSQLiteDB(t)
	svc := service.NewIngredientService(db, nil, zap.NewNop())
	ctx := context.Background()
	user := testhelpers.CreateUser(t, db, "chef")

	ing, err := svc.Create(ctx, &types.CreateIngredientRequest{
		Name:            "  Oat Milk ",
		Unit:            "ml",
		CaloriesPerUnit: 0.46,
		ProteinPerUnit:  0.01,
	}, &user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Oat Milk", ing.Name)
	require.NotNil(t, ing.CreatedBy)
	assert.Equal(t, user.ID, *ing.CreatedBy)

	loaded, err := svc.Get(ctx, ing.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.46, loaded.CaloriesPerUnit, 1e-9)

	_, err = svc.Create(ctx, &types.CreateIngredientRequest{Name: "oat milk", Unit: "ml"}, nil)
	assert.ErrorIs(t, err, service.ErrDuplicateIngredient)

	_, err = svc.Create(ctx, &types.CreateIngredientRequest{Name: "Salt", Unit: "bucket"}, nil)
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = svc.Create(ctx, &types.CreateIngredientRequest{Name: "Sugar", Unit: "g", CaloriesPerUnit: -1}, nil)
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = svc.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, service.ErrIngredientNotFound)
}

func TestEnsureByName(t *testing.T) {
	db := testhelpers.NewSQLiteDB(t)
	svc := service.NewIngredientService(db, nil, zap.NewNop())
	ctx := context.Background()
	existing := testhelpers.CreateIngredient(t, db, "Garlic", "clove", 4, 0.2)

	ing, created, err := svc.EnsureByName(ctx, "garlic", "", "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, existing.ID, ing.ID)

	ing, created, err = svc.EnsureByName(ctx, "Saffron", "Imported", "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "g", ing.Unit)
	assert.Zero(t, ing.CaloriesPerUnit)
}

func TestEnsureByNameKeepsRunesWhole(t *testing.T) {
	db := testhelpers.NewSQLiteDB(t)
	svc := service.NewIngredientService(db, nil, zap.NewNop())

	// the two-byte "é" straddles the 64 byte limit
	ing, created, err := svc.EnsureByName(context.Background(), strings.Repeat("a", 63)+"é", "", "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, utf8.ValidString(ing.Name))
	assert.Equal(t, strings.Repeat("a", 63), ing.Name)
}
