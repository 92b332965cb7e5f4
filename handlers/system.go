package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/readtheplaque/plaqued/config"
)

// SystemHandler handles system endpoints
type SystemHandler struct {
	config *config.Config
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(config *config.Config) *SystemHandler {
	return &SystemHandler{
		config: config,
	}
}

// Health handles health check via GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "plaqued",
		"version": h.config.Version,
	})
}
