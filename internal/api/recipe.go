package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pageza/cookbook/backend/internal/middleware"
	"github.com/pageza/cookbook/backend/internal/service"
	"github.com/pageza/cookbook/backend/internal/types"
)

// multipartRecipeField holds the JSON recipe body of a multipart request.
const multipartRecipeField = "recipe"

type RecipeHandler struct {
	recipes             service.IRecipeService
	log                 *zap.Logger
	creationLimiter     *middleware.RateLimiter
	modificationLimiter *middleware.RateLimiter
}

func NewRecipeHandler(recipes service.IRecipeService, log *zap.Logger, creationLimiter, modificationLimiter *middleware.RateLimiter) *RecipeHandler {
	return &RecipeHandler{
		recipes:             recipes,
		log:                 log,
		creationLimiter:     creationLimiter,
		modificationLimiter: modificationLimiter,
	}
}

func (h *RecipeHandler) RegisterRoutes(router *gin.RouterGroup, requireAuth, optionalAuth gin.HandlerFunc) {
	recipes := router.Group("/recipes")
	{
		recipes.GET("", requireAuth, h.ListMine)
		recipes.GET("/public", h.ListPublic)
		recipes.GET("/search", h.Search)
		recipes.GET("/favorites", requireAuth, h.Favorites)
		recipes.GET("/:id", optionalAuth, h.GetRecipe)
		recipes.GET("/:id/scale", optionalAuth, h.Scale)
		recipes.POST("", requireAuth, h.creationLimiter.RateLimitMiddleware(), h.CreateRecipe)
		recipes.PUT("/:id", requireAuth, h.modificationLimiter.PerRecipeRateLimitMiddleware(), h.UpdateRecipe)
		recipes.DELETE("/:id", requireAuth, h.DeleteRecipe)
		recipes.POST("/:id/favorite", requireAuth, h.FavoriteRecipe)
		recipes.DELETE("/:id/favorite", requireAuth, h.UnfavoriteRecipe)
	}
}

func (h *RecipeHandler) ListMine(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	recipes, err := h.recipes.ListByUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recipes": recipes})
}

func (h *RecipeHandler) ListPublic(c *gin.Context) {
	page, err := h.recipes.ListPublic(c.Request.Context(),
		queryInt(c, "page", 1),
		queryInt(c, "limit", service.DefaultRecipePageLimit))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *RecipeHandler) Search(c *gin.Context) {
	recipes, err := h.recipes.Search(c.Request.Context(), c.Query("q"), queryInt(c, "limit", service.DefaultRecipePageLimit))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recipes": recipes})
}

func (h *RecipeHandler) Favorites(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	recipes, err := h.recipes.Favorites(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recipes": recipes})
}

// GetRecipe returns the recipe with its nutrition summary. The optional servings
// query rescales the displayed ingredient quantities.
func (h *RecipeHandler) GetRecipe(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	servings, err := parseServings(c.Query("servings"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	detail, err := h.recipes.Detail(c.Request.Context(), id, servings, middleware.OptionalUserID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *RecipeHandler) Scale(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	servings, err := parseServings(c.Query("servings"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	scaled, err := h.recipes.Scale(c.Request.Context(), id, servings, middleware.OptionalUserID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, scaled)
}

func (h *RecipeHandler) CreateRecipe(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	req, uploads, err := bindRecipe(c)
	if err != nil {
		h.respondBindError(c, err)
		return
	}

	recipe, err := h.recipes.Create(c.Request.Context(), userID, req, uploads)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, recipe)
}

func (h *RecipeHandler) UpdateRecipe(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	userID, _ := middleware.UserID(c)
	req, uploads, err := bindRecipe(c)
	if err != nil {
		h.respondBindError(c, err)
		return
	}

	recipe, err := h.recipes.Update(c.Request.Context(), id, userID, req, uploads)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, recipe)
}

func (h *RecipeHandler) DeleteRecipe(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	userID, _ := middleware.UserID(c)
	if err := h.recipes.Delete(c.Request.Context(), id, userID); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RecipeHandler) FavoriteRecipe(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	userID, _ := middleware.UserID(c)
	if err := h.recipes.Favorite(c.Request.Context(), userID, id); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_favorite": true})
}

func (h *RecipeHandler) UnfavoriteRecipe(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	userID, _ := middleware.UserID(c)
	if err := h.recipes.Unfavorite(c.Request.Context(), userID, id); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_favorite": false})
}

func (h *RecipeHandler) respondBindError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrImageTooLarge) {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// bindRecipe reads a recipe from a JSON body, or from a multipart form whose
// "recipe" field holds the JSON and whose "images" files are uploads.
func bindRecipe(c *gin.Context) (*types.RecipeRequest, []service.Upload, error) {
	var req types.RecipeRequest
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, nil, err
		}
		return &req, nil, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid multipart form: %w", err)
	}
	raw := form.Value[multipartRecipeField]
	if len(raw) == 0 {
		return nil, nil, fmt.Errorf("missing %q form field", multipartRecipeField)
	}
	if err := json.Unmarshal([]byte(raw[0]), &req); err != nil {
		return nil, nil, fmt.Errorf("invalid recipe JSON: %w", err)
	}

	var uploads []service.Upload
	for _, fh := range form.File["images"] {
		if fh.Size > service.MaxImageSize {
			return nil, nil, fmt.Errorf("%s: %w", fh.Filename, service.ErrImageTooLarge)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, nil, err
		}
		data, err := io.ReadAll(io.LimitReader(f, service.MaxImageSize+1))
		f.Close()
		if err != nil {
			return nil, nil, err
		}
		uploads = append(uploads, service.Upload{Filename: fh.Filename, Data: data})
	}
	return &req, uploads, nil
}
