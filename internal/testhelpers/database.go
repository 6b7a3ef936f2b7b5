package testhelpers

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/pageza/cookbook/backend/config"
	"github.com/pageza/cookbook/backend/internal/database"
	"github.com/pageza/cookbook/backend/internal/models"
)

// TestPassword is the plain password of users created by CreateUser.
const TestPassword = "password123"

// NewSQLiteDB returns a migrated in-memory database that lives for the duration of the test.
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.Open(&config.Config{DBDriver: "sqlite", DBPath: ":memory:"}, zap.NewNop())
	require.NoError(t, err, "failed to open sqlite database")
	require.NoError(t, database.RunMigrations(db, "", zap.NewNop()), "failed to migrate sqlite database")

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// CreateUser inserts a user whose password is TestPassword.
func CreateUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	require.NoError(t, err)

	user := &models.User{
		Name:         "Test " + username,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: string(hash),
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateIngredient inserts a catalog ingredient with the given per-unit calories and protein.
func CreateIngredient(t *testing.T, db *gorm.DB, name, unit string, calories, protein float64) *models.Ingredient {
	t.Helper()

	ing := &models.Ingredient{
		Name:            name,
		Unit:            unit,
		CaloriesPerUnit: calories,
		ProteinPerUnit:  protein,
	}
	require.NoError(t, db.Create(ing).Error)
	return ing
}
