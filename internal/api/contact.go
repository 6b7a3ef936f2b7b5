package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pageza/cookbook/backend/internal/middleware"
	"github.com/pageza/cookbook/backend/internal/service"
	"github.com/pageza/cookbook/backend/internal/types"
)

type ContactHandler struct {
	contact service.IContactService
	log     *zap.Logger
	limiter *middleware.RateLimiter
}

func NewContactHandler(contact service.IContactService, log *zap.Logger, limiter *middleware.RateLimiter) *ContactHandler {
	return &ContactHandler{contact: contact, log: log, limiter: limiter}
}

func (h *ContactHandler) RegisterRoutes(router *gin.RouterGroup, optionalAuth gin.HandlerFunc) {
	router.POST("/contact", optionalAuth, h.limiter.RateLimitMiddleware(), h.Submit)
}

// Submit accepts contact form messages from visitors and signed-in users.
func (h *ContactHandler) Submit(c *gin.Context) {
	var req types.ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := h.contact.Submit(c.Request.Context(), &req, middleware.OptionalUserID(c), c.Request.UserAgent())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": msg.ID, "message": "Thanks for reaching out"})
}
