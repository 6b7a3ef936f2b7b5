package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pageza/cookbook/backend/config"
	"github.com/pageza/cookbook/backend/internal/database"
	"github.com/pageza/cookbook/backend/internal/middleware"
	"github.com/pageza/cookbook/backend/internal/service"
)

// Deps carries everything the HTTP handlers need. Redis is optional.
type Deps struct {
	Config      *config.Config
	DB          *gorm.DB
	Redis       *redis.Client
	Auth        service.IAuthService
	Ingredients service.IIngredientService
	Recipes     service.IRecipeService
	Contact     service.IContactService
	Log         *zap.Logger
}

// RegisterRoutes registers all API routes
func RegisterRoutes(router *gin.Engine, d Deps) {
	health := HealthCheck(d.DB, d.Redis)
	router.GET("/health", health)

	cfg := d.Config
	creationLimiter := middleware.NewRecipeCreationRateLimiter(d.Redis, cfg.RecipeCreateLimit, cfg.RateLimitWindow, d.Log)
	modificationLimiter := middleware.NewRecipeModificationRateLimiter(d.Redis, cfg.RecipeUpdateLimit, cfg.RateLimitWindow, d.Log)
	contactLimiter := middleware.NewContactRateLimiter(d.Redis, cfg.ContactLimit, cfg.RateLimitWindow, d.Log)

	requireAuth := middleware.AuthMiddleware(d.Auth, cfg.CookieName)
	optionalAuth := middleware.OptionalAuth(d.Auth, cfg.CookieName)

	v1 := router.Group("/api/v1")
	v1.GET("/health", health)

	NewAuthHandler(d.Auth, cfg, d.Log).RegisterRoutes(v1, requireAuth)
	NewIngredientHandler(d.Ingredients, d.Log).RegisterRoutes(v1, requireAuth)
	NewNutritionHandler(d.Recipes, d.Log).RegisterRoutes(v1)
	NewRecipeHandler(d.Recipes, d.Log, creationLimiter, modificationLimiter).RegisterRoutes(v1, requireAuth, optionalAuth)
	NewContactHandler(d.Contact, d.Log, contactLimiter).RegisterRoutes(v1, optionalAuth)
}

// HealthCheck reports whether the database and, when configured, redis are reachable.
func HealthCheck(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := gin.H{"status": "healthy", "database": "up"}
		code := http.StatusOK
		if err := database.HealthCheck(ctx, db); err != nil {
			status["status"] = "unhealthy"
			status["database"] = "down"
			code = http.StatusServiceUnavailable
		}
		if rdb != nil {
			status["redis"] = "up"
			if err := rdb.Ping(ctx).Err(); err != nil {
				// the cache and rate limits degrade without redis
				status["redis"] = "down"
			}
		}
		c.JSON(code, status)
	}
}
