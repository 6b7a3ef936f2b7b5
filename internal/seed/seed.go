// Package seed loads development users and the starter ingredient catalog.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/pageza/cookbook/backend/internal/service"
	"github.com/pageza/cookbook/backend/internal/types"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// User is a development account. All seeded accounts share one password.
type User struct {
	Name     string `yaml:"name"`
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
}

// Ingredient is a catalog entry with nutrition per unit.
type Ingredient struct {
	Name        string  `yaml:"name"`
	Unit        string  `yaml:"unit"`
	Description string  `yaml:"description"`
	Calories    float64 `yaml:"calories"`
	Protein     float64 `yaml:"protein"`
	Fat         float64 `yaml:"fat"`
	Carbs       float64 `yaml:"carbs"`
	Sugar       float64 `yaml:"sugar"`
	Fiber       float64 `yaml:"fiber"`
	Sodium      float64 `yaml:"sodium"`
}

func (i Ingredient) request() *types.CreateIngredientRequest {
	return &types.CreateIngredientRequest{
		Name:            i.Name,
		Unit:            i.Unit,
		Description:     i.Description,
		CaloriesPerUnit: i.Calories,
		ProteinPerUnit:  i.Protein,
		FatPerUnit:      i.Fat,
		CarbsPerUnit:    i.Carbs,
		SugarPerUnit:    i.Sugar,
		FiberPerUnit:    i.Fiber,
		SodiumPerUnit:   i.Sodium,
	}
}

type Catalog struct {
	Users       []User       `yaml:"users"`
	Ingredients []Ingredient `yaml:"ingredients"`
}

// DefaultCatalog returns the catalog bundled with the binary.
func DefaultCatalog() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Parse decodes a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return &c, nil
}

// Result counts what a run created and what already existed.
type Result struct {
	UsersCreated       int
	UsersSkipped       int
	IngredientsCreated int
	IngredientsSkipped int
}

type Seeder struct {
	auth        service.IAuthService
	ingredients service.IIngredientService
	log         *zap.Logger
}

func NewSeeder(auth service.IAuthService, ingredients service.IIngredientService, log *zap.Logger) *Seeder {
	return &Seeder{auth: auth, ingredients: ingredients, log: log}
}

// Run creates every user and ingredient of c that does not exist yet.
// Running it again is a no-op.
func (s *Seeder) Run(ctx context.Context, c *Catalog, password string) (*Result, error) {
	result := &Result{}

	for _, u := range c.Users {
		_, err := s.auth.Register(ctx, &types.RegisterRequest{
			Name:     u.Name,
			Username: u.Username,
			Email:    u.Email,
			Password: password,
		})
		if errors.Is(err, service.ErrUserExists) {
			result.UsersSkipped++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create user %s: %w", u.Email, err)
		}
		result.UsersCreated++
		s.log.Info("Created user", zap.String("email", u.Email))
	}

	for _, ing := range c.Ingredients {
		_, err := s.ingredients.Create(ctx, ing.request(), nil)
		if errors.Is(err, service.ErrDuplicateIngredient) {
			result.IngredientsSkipped++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create ingredient %s: %w", ing.Name, err)
		}
		result.IngredientsCreated++
	}

	s.log.Info("Seeding finished",
		zap.Int("users_created", result.UsersCreated),
		zap.Int("ingredients_created", result.IngredientsCreated))
	return result, nil
}
