package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pageza/cookbook/backend/internal/middleware"
	"github.com/pageza/cookbook/backend/internal/service"
	"github.com/pageza/cookbook/backend/internal/types"
)

type IngredientHandler struct {
	ingredients service.IIngredientService
	log         *zap.Logger
}

func NewIngredientHandler(ingredients service.IIngredientService, log *zap.Logger) *IngredientHandler {
	return &IngredientHandler{ingredients: ingredients, log: log}
}

func (h *IngredientHandler) RegisterRoutes(router *gin.RouterGroup, requireAuth gin.HandlerFunc) {
	ingredients := router.Group("/ingredients")
	{
		ingredients.GET("/search", h.Search)
		ingredients.GET("/:id", h.Get)
		ingredients.POST("", requireAuth, h.Create)
	}
}

// Search answers the recipe wizard's ingredient autocomplete.
func (h *IngredientHandler) Search(c *gin.Context) {
	page, err := h.ingredients.Search(c.Request.Context(),
		c.Query("query"),
		queryInt(c, "page", 1),
		queryInt(c, "limit", service.DefaultSearchLimit))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *IngredientHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ing, err := h.ingredients.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, ing)
}

func (h *IngredientHandler) Create(c *gin.Context) {
	var req types.CreateIngredientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ing, err := h.ingredients.Create(c.Request.Context(), &req, middleware.OptionalUserID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, ing)
}
