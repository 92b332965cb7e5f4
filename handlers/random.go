package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/readtheplaque/plaqued/config"
	"github.com/readtheplaque/plaqued/metrics"
	"github.com/readtheplaque/plaqued/models"
	"github.com/readtheplaque/plaqued/picker"
	"github.com/readtheplaque/plaqued/services"
)

// MaxRandomCount caps a multi-draw request.
const MaxRandomCount = 20

// RandomHandler serves the random plaque endpoint
type RandomHandler struct {
	service *services.PlaqueService
	config  *config.Config
}

// NewRandomHandler creates a new random handler
func NewRandomHandler(service *services.PlaqueService, config *config.Config) *RandomHandler {
	return &RandomHandler{
		service: service,
		config:  config,
	}
}

func parseStrategy(s string) picker.Strategy {
	switch s {
	case "geo":
		return picker.Geographic
	case "offset":
		return picker.Offset
	default:
		return picker.TimeRange
	}
}

// Random handles GET /random. Browsers get a redirect to the picked
// plaque's page; ?format=json gets the plaque itself.
func (h *RandomHandler) Random(c *gin.Context) {
	strategy := parseStrategy(c.Query("strategy"))

	plaque, err := h.service.Random(strategy)
	if err == picker.ErrEmptyCollection {
		metrics.RandomPicks.WithLabelValues(strategy.String(), "empty").Inc()
		c.JSON(http.StatusNotFound, gin.H{"error": "No plaques yet"})
		return
	}
	if err != nil {
		metrics.RandomPicks.WithLabelValues(strategy.String(), "error").Inc()
		log.Printf("[ERROR] Random pick failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to pick a plaque"})
		return
	}
	if plaque == nil {
		// bailout limit exhausted without a hit
		metrics.RandomPicks.WithLabelValues(strategy.String(), "miss").Inc()
		c.JSON(http.StatusNotFound, gin.H{"error": "No plaque found, try again"})
		return
	}
	metrics.RandomPicks.WithLabelValues(strategy.String(), "hit").Inc()

	if wantsJSON(c) {
		c.JSON(http.StatusOK, h.plaqueJSON(plaque))
		return
	}
	c.Redirect(http.StatusFound, plaque.PageURL())
}

// RandomMany handles GET /random/:count, up to MaxRandomCount
// independent draws. Misses are skipped, so the response may hold
// fewer plaques than asked for.
func (h *RandomHandler) RandomMany(c *gin.Context) {
	count, err := strconv.Atoi(c.Param("count"))
	if err != nil || count < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid count"})
		return
	}
	if count > MaxRandomCount {
		count = MaxRandomCount
	}
	strategy := parseStrategy(c.Query("strategy"))

	plaques := make([]gin.H, 0, count)
	seen := map[string]bool{}
	for i := 0; i < count; i++ {
		plaque, err := h.service.Random(strategy)
		if err == picker.ErrEmptyCollection {
			c.JSON(http.StatusNotFound, gin.H{"error": "No plaques yet"})
			return
		}
		if err != nil {
			log.Printf("[ERROR] Random pick failed: %v", err)
			continue
		}
		if plaque == nil || seen[plaque.Slug] {
			continue
		}
		seen[plaque.Slug] = true
		plaques = append(plaques, h.plaqueJSON(plaque))
	}
	c.JSON(http.StatusOK, gin.H{"plaques": plaques})
}

func (h *RandomHandler) plaqueJSON(plaque *models.Plaque) gin.H {
	return gin.H{
		"slug":     plaque.Slug,
		"title":    plaque.Title,
		"url":      plaque.FullPageURL(h.config.BaseURL),
		"location": plaque.Location,
		"tags":     plaque.Tags,
	}
}
