package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pageza/cookbook/backend/internal/nutrition"
)

// IngredientUnits are the units a catalog ingredient can be measured in.
var IngredientUnits = []string{
	"g", "kg", "ml", "l", "tsp", "tbsp", "cup", "oz", "piece", "bunch", "stick",
	"slice", "pinch", "clove", "can", "jar", "pack", "sheet", "head", "leaf", "filet", "sprig",
}

// Ingredient is an entry of the shared ingredient catalog with nutrition per unit.
type Ingredient struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Name            string     `gorm:"size:64;not null;uniqueIndex" json:"name"`
	Unit            string     `gorm:"size:16;not null" json:"unit"`
	Description     string     `gorm:"size:500" json:"description"`
	Image           string     `gorm:"size:255" json:"image,omitempty"`
	CaloriesPerUnit float64    `gorm:"not null;default:0" json:"calories_per_unit"`
	ProteinPerUnit  float64    `gorm:"not null;default:0" json:"protein_per_unit"`
	FatPerUnit      float64    `gorm:"not null;default:0" json:"fat_per_unit"`
	CarbsPerUnit    float64    `gorm:"not null;default:0" json:"carbs_per_unit"`
	SugarPerUnit    float64    `gorm:"not null;default:0" json:"sugar_per_unit"`
	FiberPerUnit    float64    `gorm:"not null;default:0" json:"fiber_per_unit"`
	SodiumPerUnit   float64    `gorm:"not null;default:0" json:"sodium_per_unit"`
	CreatedBy       *uuid.UUID `gorm:"type:uuid" json:"created_by,omitempty"`
}

func (i *Ingredient) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// Nutrition returns the aggregator view of the ingredient.
func (i Ingredient) Nutrition() nutrition.Ingredient {
	return nutrition.Ingredient{
		ID:              i.ID.String(),
		Name:            i.Name,
		Unit:            i.Unit,
		CaloriesPerUnit: i.CaloriesPerUnit,
		ProteinPerUnit:  i.ProteinPerUnit,
		FatPerUnit:      i.FatPerUnit,
		CarbsPerUnit:    i.CarbsPerUnit,
		SugarPerUnit:    i.SugarPerUnit,
		FiberPerUnit:    i.FiberPerUnit,
		SodiumPerUnit:   i.SodiumPerUnit,
	}
}
