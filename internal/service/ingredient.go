package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pageza/cookbook/backend/internal/models"
	"github.com/pageza/cookbook/backend/internal/types"
)

const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 50

	ingredientSearchTTL    = 5 * time.Minute
	ingredientSearchPrefix = "ingredients:search:"
)

var (
	ErrIngredientNotFound  = errors.New("ingredient not found")
	ErrDuplicateIngredient = errors.New("ingredient already exists")
)

// IngredientService serves the shared ingredient catalog.
// The redis cache is optional; a nil client disables caching.
type IngredientService struct {
	db       *gorm.DB
	cache    *redis.Client
	validate *validator.Validate
	log      *zap.Logger
}

func NewIngredientService(db *gorm.DB, cache *redis.Client, log *zap.Logger) *IngredientService {
	return &IngredientService{
		db:       db,
		cache:    cache,
		validate: newValidator(),
		log:      log,
	}
}

// NormalizePage clamps page and limit into the accepted range.
func NormalizePage(page, limit, defaultLimit, maxLimit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}

// Search returns one page of ingredients whose name contains query, ordered by name.
// An empty query returns an empty page.
func (s *IngredientService) Search(ctx context.Context, query string, page, limit int) (*types.IngredientPage, error) {
	page, limit = NormalizePage(page, limit, DefaultSearchLimit, MaxSearchLimit)
	query = strings.TrimSpace(query)

	result := &types.IngredientPage{
		Ingredients: []models.Ingredient{},
		Page:        page,
		Limit:       limit,
	}
	if query == "" {
		return result, nil
	}

	key := fmt.Sprintf("%s%s:%d:%d", ingredientSearchPrefix, strings.ToLower(query), page, limit)
	if cached, ok := s.cached(ctx, key); ok {
		return cached, nil
	}

	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	q := s.db.WithContext(ctx).Model(&models.Ingredient{})
	if s.db.Dialector.Name() == "postgres" {
		q = q.Where("name ILIKE ?", pattern)
	} else {
		q = q.Where(`LOWER(name) LIKE ? ESCAPE '\'`, pattern)
	}
	q = q.Session(&gorm.Session{})

	if err := q.Count(&result.Total).Error; err != nil {
		return nil, fmt.Errorf("failed to count ingredients: %w", err)
	}
	if err := q.Order("name ASC").Offset((page - 1) * limit).Limit(limit).Find(&result.Ingredients).Error; err != nil {
		return nil, fmt.Errorf("failed to search ingredients: %w", err)
	}
	result.HasMore = int64(page*limit) < result.Total

	s.store(ctx, key, result)
	return result, nil
}

func (s *IngredientService) Get(ctx context.Context, id uuid.UUID) (*models.Ingredient, error) {
	var ing models.Ingredient
	err := s.db.WithContext(ctx).First(&ing, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrIngredientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ingredient: %w", err)
	}
	return &ing, nil
}

// Create adds an ingredient to the catalog. Names are unique ignoring case.
func (s *IngredientService) Create(ctx context.Context, req *types.CreateIngredientRequest, userID *uuid.UUID) (*models.Ingredient, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Ingredient{}).
		Where("LOWER(name) = ?", strings.ToLower(req.Name)).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check ingredient name: %w", err)
	}
	if count > 0 {
		return nil, ErrDuplicateIngredient
	}

	ing := models.Ingredient{
		Name:            req.Name,
		Unit:            req.Unit,
		Description:     req.Description,
		Image:           req.Image,
		CaloriesPerUnit: req.CaloriesPerUnit,
		ProteinPerUnit:  req.ProteinPerUnit,
		FatPerUnit:      req.FatPerUnit,
		CarbsPerUnit:    req.CarbsPerUnit,
		SugarPerUnit:    req.SugarPerUnit,
		FiberPerUnit:    req.FiberPerUnit,
		SodiumPerUnit:   req.SodiumPerUnit,
		CreatedBy:       userID,
	}
	if err := s.db.WithContext(ctx).Create(&ing).Error; err != nil {
		return nil, fmt.Errorf("failed to create ingredient: %w", err)
	}

	s.invalidate(ctx)
	s.log.Info("Ingredient created", zap.String("ingredient_id", ing.ID.String()), zap.String("name", ing.Name))
	return &ing, nil
}

// EnsureByName returns the ingredient called name, creating a placeholder
// measured in grams with zero nutrition when the catalog has none.
func (s *IngredientService) EnsureByName(ctx context.Context, name, description, image string) (*models.Ingredient, bool, error) {
	name = strings.TrimSpace(name)
	name = truncate(name, 64)

	var ing models.Ingredient
	err := s.db.WithContext(ctx).Where("LOWER(name) = ?", strings.ToLower(name)).First(&ing).Error
	if err == nil {
		return &ing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("failed to look up ingredient %q: %w", name, err)
	}

	ing = models.Ingredient{Name: name, Unit: "g", Description: description, Image: image}
	if err := s.db.WithContext(ctx).Create(&ing).Error; err != nil {
		return nil, false, fmt.Errorf("failed to create ingredient %q: %w", name, err)
	}
	s.invalidate(ctx)
	return &ing, true, nil
}

func (s *IngredientService) cached(ctx context.Context, key string) (*types.IngredientPage, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("Ingredient cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var page types.IngredientPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, false
	}
	return &page, true
}

func (s *IngredientService) store(ctx context.Context, key string, page *types.IngredientPage) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(page)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, ingredientSearchTTL).Err(); err != nil {
		s.log.Warn("Ingredient cache write failed", zap.Error(err))
	}
}

func (s *IngredientService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	var keys []string
	iter := s.cache.Scan(ctx, 0, ingredientSearchPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.log.Warn("Ingredient cache scan failed", zap.Error(err))
		return
	}
	if len(keys) > 0 {
		if err := s.cache.Del(ctx, keys...).Err(); err != nil {
			s.log.Warn("Ingredient cache invalidation failed", zap.Error(err))
		}
	}
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
