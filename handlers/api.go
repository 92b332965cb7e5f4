package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/readtheplaque/plaqued/config"
	"github.com/readtheplaque/plaqued/services"
)

// APIHandler serves plaque data as JSON
type APIHandler struct {
	service *services.PlaqueService
	config  *config.Config
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(service *services.PlaqueService, config *config.Config) *APIHandler {
	return &APIHandler{
		service: service,
		config:  config,
	}
}

// GetPlaque handles plaque retrieval via GET /api/v1/plaque/:slug
func (h *APIHandler) GetPlaque(c *gin.Context) {
	plaque, err := h.service.Get(c.Param("slug"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve plaque"})
		return
	}
	if plaque == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Plaque not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"slug":        plaque.Slug,
		"title":       plaque.Title,
		"description": plaque.Description,
		"location":    plaque.Location,
		"img_url":     plaque.ImgURL,
		"tags":        plaque.Tags,
		"approved":    plaque.Approved,
		"created_on":  plaque.CreatedOn,
		"updated_on":  plaque.UpdatedOn,
		"url":         plaque.FullPageURL(h.config.BaseURL),
	})
}
