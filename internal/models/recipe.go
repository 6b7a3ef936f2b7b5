package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/pageza/cookbook/backend/internal/nutrition"
)

// EmbeddingDimensions is the size of the recipe search embedding.
const EmbeddingDimensions = 64

// RecipeTypes are the meal categories a recipe can belong to.
var RecipeTypes = []string{"Breakfast", "Lunch", "Dinner", "Snack", "Dessert", "Drink"}

// StringList stores a string slice as a JSON array column.
type StringList []string

// Value implements the driver.Valuer interface
func (a StringList) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface
func (a *StringList) Scan(value interface{}) error {
	if value == nil {
		*a = StringList{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for StringList", value)
	}

	return json.Unmarshal(bytes, a)
}

type Recipe struct {
	ID               uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
	DeletedAt        gorm.DeletedAt     `gorm:"index" json:"-"`
	Name             string             `gorm:"size:255;not null" json:"name"`
	Type             string             `gorm:"size:20;not null;index" json:"type"`
	Description      string             `gorm:"type:text" json:"description"`
	InstructionSteps StringList         `gorm:"type:jsonb;not null;default:'[]'" json:"instruction_steps"`
	Servings         int                `gorm:"not null" json:"servings"`
	Image            string             `gorm:"size:255" json:"image,omitempty"`
	IsPublic         bool               `gorm:"not null" json:"is_public"`
	AuthorID         uuid.UUID          `gorm:"type:uuid;not null;index" json:"author_id"`
	Author           *User              `gorm:"foreignKey:AuthorID" json:"-"`
	Ingredients      []RecipeIngredient `gorm:"foreignKey:RecipeID;constraint:OnDelete:CASCADE" json:"ingredients"`
	Images           []RecipeImage      `gorm:"foreignKey:RecipeID;constraint:OnDelete:CASCADE" json:"images"`
	Embedding        pgvector.Vector    `gorm:"type:vector(64)" json:"-"`
}

func (r *Recipe) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	// an empty vector does not round-trip through the column
	if len(r.Embedding.Slice()) == 0 {
		r.Embedding = pgvector.NewVector(make([]float32, EmbeddingDimensions))
	}
	return nil
}

// NutritionRecipe converts the recipe and its preloaded ingredient lines for aggregation.
func (r Recipe) NutritionRecipe() nutrition.Recipe {
	lines := make([]nutrition.Line, 0, len(r.Ingredients))
	for _, ri := range r.Ingredients {
		lines = append(lines, ri.Line())
	}
	return nutrition.Recipe{Servings: r.Servings, Lines: lines}
}

// RecipeIngredient is one ordered ingredient line of a recipe.
type RecipeIngredient struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	RecipeID           uuid.UUID  `gorm:"type:uuid;not null;index" json:"recipe_id"`
	IngredientID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"ingredient_id"`
	Ingredient         Ingredient `gorm:"foreignKey:IngredientID" json:"ingredient"`
	Position           int        `gorm:"not null" json:"position"`
	QuantityPerServing float64    `gorm:"not null" json:"quantity_per_serving"`
}

func (ri *RecipeIngredient) BeforeCreate(tx *gorm.DB) error {
	if ri.ID == uuid.Nil {
		ri.ID = uuid.New()
	}
	return nil
}

// Line returns the aggregator view of the ingredient line.
func (ri RecipeIngredient) Line() nutrition.Line {
	return nutrition.Line{
		Ingredient:         ri.Ingredient.Nutrition(),
		QuantityPerServing: ri.QuantityPerServing,
	}
}

// RecipeImage is an additional uploaded image of a recipe.
type RecipeImage struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	RecipeID     uuid.UUID `gorm:"type:uuid;not null;index" json:"recipe_id"`
	Key          string    `gorm:"size:255;not null" json:"key"`
	URL          string    `gorm:"size:512;not null" json:"url"`
	ThumbnailURL string    `gorm:"size:512" json:"thumbnail_url,omitempty"`
	Position     int       `gorm:"not null" json:"position"`
}

func (ri *RecipeImage) BeforeCreate(tx *gorm.DB) error {
	if ri.ID == uuid.Nil {
		ri.ID = uuid.New()
	}
	return nil
}

// RecipeFavorite records that a user bookmarked a recipe.
type RecipeFavorite struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	RecipeID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_favorite_user_recipe" json:"recipe_id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_favorite_user_recipe" json:"user_id"`
}

func (RecipeFavorite) TableName() string {
	return "recipe_favorites"
}

func (f *RecipeFavorite) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}
