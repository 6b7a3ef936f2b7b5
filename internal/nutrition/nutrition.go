// Package nutrition derives recipe nutrition totals, per-serving values and
// serving-scaled ingredient quantities from a recipe's ingredient lines.
//
// Everything here is a pure function of its inputs: nothing is cached and no
// argument is mutated, so the functions are safe to call from any goroutine.
package nutrition

import (
	"errors"
	"math"
)

// ErrInvalidServings is returned when a serving count used as a divisor is not positive.
var ErrInvalidServings = errors.New("servings must be at least 1")

// Ingredient is the catalog data the aggregator needs for one ingredient.
type Ingredient struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Unit            string  `json:"unit"`
	CaloriesPerUnit float64 `json:"calories_per_unit"`
	ProteinPerUnit  float64 `json:"protein_per_unit"`
	FatPerUnit      float64 `json:"fat_per_unit"`
	CarbsPerUnit    float64 `json:"carbs_per_unit"`
	SugarPerUnit    float64 `json:"sugar_per_unit"`
	FiberPerUnit    float64 `json:"fiber_per_unit"`
	SodiumPerUnit   float64 `json:"sodium_per_unit"`
}

// Line is one ingredient of a recipe with the amount of its unit used per serving.
type Line struct {
	Ingredient         Ingredient `json:"ingredient"`
	QuantityPerServing float64    `json:"quantity_per_serving"`
}

// Recipe is the aggregation view of a recipe: its authored serving count and lines.
type Recipe struct {
	Servings int    `json:"servings"`
	Lines    []Line `json:"lines"`
}

// Totals holds the summed nutrition of every line.
type Totals struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Fat      float64 `json:"fat"`
	Carbs    float64 `json:"carbs"`
	Sugar    float64 `json:"sugar"`
	Fiber    float64 `json:"fiber"`
	Sodium   float64 `json:"sodium"`
}

// Add returns the element-wise sum of t and o.
func (t Totals) Add(o Totals) Totals {
	return Totals{
		Calories: t.Calories + o.Calories,
		Protein:  t.Protein + o.Protein,
		Fat:      t.Fat + o.Fat,
		Carbs:    t.Carbs + o.Carbs,
		Sugar:    t.Sugar + o.Sugar,
		Fiber:    t.Fiber + o.Fiber,
		Sodium:   t.Sodium + o.Sodium,
	}
}

// PerServing is display-rounded nutrition for a single serving.
// Calories and sodium are whole numbers; the macros carry one decimal.
type PerServing struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Fat      float64 `json:"fat"`
	Carbs    float64 `json:"carbs"`
	Sugar    float64 `json:"sugar"`
	Fiber    float64 `json:"fiber"`
	Sodium   float64 `json:"sodium"`
}

// ScaledLine is a Line with its quantity rescaled to a requested serving count.
type ScaledLine struct {
	Line
	ScaledQuantity float64 `json:"scaled_quantity"`
	ScaledCalories float64 `json:"scaled_calories"`
}

// Summary bundles everything a recipe view renders.
type Summary struct {
	Servings         int          `json:"servings"`
	OriginalServings int          `json:"original_servings"`
	Total            Totals       `json:"total"`
	PerServing       PerServing   `json:"per_serving"`
	Ingredients      []ScaledLine `json:"ingredients"`
}

// ComputeTotals sums every nutrient over lines. Empty input yields zero totals.
func ComputeTotals(lines []Line) Totals {
	var t Totals
	for _, l := range lines {
		q := sanitize(l.QuantityPerServing)
		ing := l.Ingredient
		t.Calories += sanitize(ing.CaloriesPerUnit) * q
		t.Protein += sanitize(ing.ProteinPerUnit) * q
		t.Fat += sanitize(ing.FatPerUnit) * q
		t.Carbs += sanitize(ing.CarbsPerUnit) * q
		t.Sugar += sanitize(ing.SugarPerUnit) * q
		t.Fiber += sanitize(ing.FiberPerUnit) * q
		t.Sodium += sanitize(ing.SodiumPerUnit) * q
	}
	return t
}

// ComputePerServing divides totals by the authored serving count and applies display rounding.
func ComputePerServing(totals Totals, servings int) (PerServing, error) {
	if servings <= 0 {
		return PerServing{}, ErrInvalidServings
	}
	s := float64(servings)
	return PerServing{
		Calories: roundTo(totals.Calories/s, 0),
		Protein:  roundTo(totals.Protein/s, 1),
		Fat:      roundTo(totals.Fat/s, 1),
		Carbs:    roundTo(totals.Carbs/s, 1),
		Sugar:    roundTo(totals.Sugar/s, 1),
		Fiber:    roundTo(totals.Fiber/s, 1),
		Sodium:   roundTo(totals.Sodium/s, 0),
	}, nil
}

// ScaleIngredients rescales each line's quantity by requested/original servings.
// Quantities of 10 or more are shown as whole numbers, smaller ones with one decimal.
// The rounding is applied even when requested equals original.
func ScaleIngredients(lines []Line, originalServings, requestedServings int) ([]ScaledLine, error) {
	if originalServings <= 0 || requestedServings <= 0 {
		return nil, ErrInvalidServings
	}
	factor := float64(requestedServings) / float64(originalServings)

	scaled := make([]ScaledLine, 0, len(lines))
	for _, l := range lines {
		qty := DisplayQuantity(sanitize(l.QuantityPerServing) * factor)
		scaled = append(scaled, ScaledLine{
			Line:           l,
			ScaledQuantity: qty,
			ScaledCalories: roundTo(sanitize(l.Ingredient.CaloriesPerUnit)*qty, 0),
		})
	}
	return scaled, nil
}

// DisplayQuantity applies the ingredient display rounding rule to a raw quantity.
func DisplayQuantity(raw float64) float64 {
	if raw >= 10 {
		return roundTo(raw, 0)
	}
	return roundTo(raw, 1)
}

// Summarize computes totals and per-serving values against r.Servings and scales
// the ingredient lines to requested. A requested count of 0 means "as authored".
func Summarize(r Recipe, requested int) (Summary, error) {
	if requested == 0 {
		requested = r.Servings
	}
	totals := ComputeTotals(r.Lines)
	per, err := ComputePerServing(totals, r.Servings)
	if err != nil {
		return Summary{}, err
	}
	lines, err := ScaleIngredients(r.Lines, r.Servings, requested)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Servings:         requested,
		OriginalServings: r.Servings,
		Total:            totals,
		PerServing:       per,
		Ingredients:      lines,
	}, nil
}

// sanitize maps missing or malformed values to 0.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// roundTo rounds half away from zero, which matches Math.round for the
// non-negative values this package produces.
func roundTo(v float64, decimals int) float64 {
	if decimals == 0 {
		return math.Round(v)
	}
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
