package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pageza/cookbook/backend/internal/service"
	"github.com/pageza/cookbook/backend/internal/types"
)

// NutritionHandler serves the live nutrition preview of the recipe wizard.
type NutritionHandler struct {
	recipes service.IRecipeService
	log     *zap.Logger
}

func NewNutritionHandler(recipes service.IRecipeService, log *zap.Logger) *NutritionHandler {
	return &NutritionHandler{recipes: recipes, log: log}
}

func (h *NutritionHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/nutrition/preview", h.Preview)
}

func (h *NutritionHandler) Preview(c *gin.Context) {
	var req types.NutritionPreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	preview, err := h.recipes.PreviewNutrition(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}
