package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines configuration for rate limiting
type RateLimitConfig struct {
	// Window is the time window for rate limiting
	Window time.Duration
	// Limit is the maximum number of requests allowed in the window
	Limit int
	// Key prefix for Redis keys
	KeyPrefix string
}

// RateLimiter counts requests per caller in fixed redis windows. Without a redis
// client it falls back to in-process token buckets refilled at Limit per Window.
type RateLimiter struct {
	redis  *redis.Client
	config RateLimitConfig
	log    *zap.Logger

	mu         sync.Mutex
	buckets    map[string]*rate.Limiter
	maxBuckets int
}

// maxLocalBuckets caps the callers tracked in process.
const maxLocalBuckets = 10000

// NewRateLimiter creates a new rate limiter instance
func NewRateLimiter(redisClient *redis.Client, config RateLimitConfig, log *zap.Logger) *RateLimiter {
	if config.Window <= 0 {
		config.Window = time.Hour
	}
	if config.Limit <= 0 {
		config.Limit = 1
	}
	return &RateLimiter{
		redis:   redisClient,
		config:  config,
		log:     log,
		buckets:    make(map[string]*rate.Limiter),
		maxBuckets: maxLocalBuckets,
	}
}

// NewRecipeCreationRateLimiter limits recipe creation per user.
func NewRecipeCreationRateLimiter(redisClient *redis.Client, limit int, window time.Duration, log *zap.Logger) *RateLimiter {
	return NewRateLimiter(redisClient, RateLimitConfig{
		Window:    window,
		Limit:     limit,
		KeyPrefix: "rate_limit:recipe_creation",
	}, log)
}

// NewRecipeModificationRateLimiter limits updates per user and recipe.
func NewRecipeModificationRateLimiter(redisClient *redis.Client, limit int, window time.Duration, log *zap.Logger) *RateLimiter {
	return NewRateLimiter(redisClient, RateLimitConfig{
		Window:    window,
		Limit:     limit,
		KeyPrefix: "rate_limit:recipe_modification",
	}, log)
}

// NewContactRateLimiter limits contact form submissions per caller.
func NewContactRateLimiter(redisClient *redis.Client, limit int, window time.Duration, log *zap.Logger) *RateLimiter {
	return NewRateLimiter(redisClient, RateLimitConfig{
		Window:    window,
		Limit:     limit,
		KeyPrefix: "rate_limit:contact",
	}, log)
}

// RateLimitMiddleware returns a Gin middleware that enforces rate limiting per
// authenticated user, or per client IP for anonymous callers.
func (rl *RateLimiter) RateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rl.enforce(c, callerKey(c), "requests")
	}
}

// PerRecipeRateLimitMiddleware creates a middleware for per-recipe rate limiting
func (rl *RateLimiter) PerRecipeRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		recipeID := c.Param("id")
		if recipeID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "recipe ID is required"})
			c.Abort()
			return
		}
		rl.enforce(c, callerKey(c)+":"+recipeID, "modifications per recipe")
	}
}

func (rl *RateLimiter) enforce(c *gin.Context, key, what string) {
	allowed, remaining, resetTime, err := rl.IsAllowed(c.Request.Context(), key)
	if err != nil {
		// Log error but don't fail the request
		rl.log.Warn("Rate limit check failed", zap.String("key", key), zap.Error(err))
		c.Header("X-RateLimit-Error", "rate limit check failed")
		c.Next()
		return
	}

	// Set rate limit headers
	c.Header("X-RateLimit-Limit", strconv.Itoa(rl.config.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

	if !allowed {
		retryAfter := int(time.Until(resetTime).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "rate limit exceeded",
			"message":     fmt.Sprintf("You have exceeded the rate limit of %d %s per %v", rl.config.Limit, what, rl.config.Window),
			"retry_after": retryAfter,
		})
		c.Abort()
		return
	}

	c.Next()
}

// IsAllowed records one request for key.
// Returns: allowed, remaining requests, reset time, error
func (rl *RateLimiter) IsAllowed(ctx context.Context, key string) (bool, int, time.Time, error) {
	if rl.redis == nil {
		allowed, remaining, reset := rl.allowLocal(key)
		return allowed, remaining, reset, nil
	}

	now := time.Now()
	windowStart := now.Truncate(rl.config.Window)
	redisKey := fmt.Sprintf("%s:%s:%d", rl.config.KeyPrefix, key, windowStart.Unix())

	// Use Redis pipeline for atomic operations
	pipe := rl.redis.Pipeline()
	incrCmd := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.config.Window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, time.Time{}, err
	}

	count := int(incrCmd.Val())
	remaining := rl.config.Limit - count
	if remaining < 0 {
		remaining = 0
	}

	resetTime := windowStart.Add(rl.config.Window)
	allowed := count <= rl.config.Limit

	return allowed, remaining, resetTime, nil
}

func (rl *RateLimiter) allowLocal(key string) (bool, int, time.Time) {
	now := time.Now()
	rl.mu.Lock()
	lim, ok := rl.buckets[key]
	if !ok {
		if len(rl.buckets) >= rl.maxBuckets {
			rl.evict(now)
		}
		lim = rate.NewLimiter(rate.Limit(float64(rl.config.Limit)/rl.config.Window.Seconds()), rl.config.Limit)
		rl.buckets[key] = lim
	}
	rl.mu.Unlock()

	allowed := lim.AllowN(now, 1)
	tokens := lim.TokensAt(now)
	remaining := int(tokens)
	if remaining < 0 {
		remaining = 0
	}
	// time until the next token is available
	missing := 1 - tokens
	if missing < 0 {
		missing = 0
	}
	reset := now.Add(time.Duration(missing * float64(rl.config.Window) / float64(rl.config.Limit)))
	return allowed, remaining, reset
}

// evict drops buckets that have refilled completely, which behave like new ones.
// When every bucket is still in use the table is reset. Callers hold rl.mu.
func (rl *RateLimiter) evict(now time.Time) {
	for key, lim := range rl.buckets {
		if lim.TokensAt(now) >= float64(rl.config.Limit) {
			delete(rl.buckets, key)
		}
	}
	if len(rl.buckets) >= rl.maxBuckets {
		rl.log.Warn("Rate limit table full, resetting", zap.Int("buckets", len(rl.buckets)))
		rl.buckets = make(map[string]*rate.Limiter)
	}
}

func callerKey(c *gin.Context) string {
	if id, ok := UserID(c); ok {
		return "user:" + id.String()
	}
	return "ip:" + c.ClientIP()
}
