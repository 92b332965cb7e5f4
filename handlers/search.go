package handlers

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/readtheplaque/plaqued/services"
)

// SearchHandler serves free-text plaque search
type SearchHandler struct {
	service *services.PlaqueService
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(service *services.PlaqueService) *SearchHandler {
	return &SearchHandler{
		service: service,
	}
}

// Search handles GET /search/:term.
func (h *SearchHandler) Search(c *gin.Context) {
	h.search(c, c.Param("term"))
}

// SearchForm handles POST /search with a form-encoded term.
func (h *SearchHandler) SearchForm(c *gin.Context) {
	h.search(c, c.PostForm("term"))
}

func (h *SearchHandler) search(c *gin.Context, term string) {
	term = strings.TrimSpace(term)
	if term == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Search term is required"})
		return
	}

	plaques, err := h.service.Search(term)
	if err != nil {
		log.Printf("[ERROR] Search failed for %q: %v", term, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed"})
		return
	}

	results := make([]gin.H, 0, len(plaques))
	for _, p := range plaques {
		results = append(results, gin.H{
			"slug":     p.Slug,
			"title":    p.Title,
			"url":      p.PageURL(),
			"location": p.Location,
			"tags":     p.Tags,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"term":    term,
		"count":   len(results),
		"plaques": results,
	})
}
