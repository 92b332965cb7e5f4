package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/readtheplaque/plaqued/cache"
	"github.com/readtheplaque/plaqued/config"
	"github.com/readtheplaque/plaqued/metrics"
	"github.com/readtheplaque/plaqued/services"
)

// AdminHandler handles the moderation endpoints
type AdminHandler struct {
	service  *services.PlaqueService
	payloads cache.Cache
	config   *config.Config
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(service *services.PlaqueService, payloads cache.Cache, config *config.Config) *AdminHandler {
	return &AdminHandler{
		service:  service,
		payloads: payloads,
		config:   config,
	}
}

// Pending handles GET /admin/pending, the moderation queue.
func (h *AdminHandler) Pending(c *gin.Context) {
	limit := 25
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= 200 {
		limit = l
	}

	plaques, err := h.service.Pending(limit)
	if err != nil {
		log.Printf("[ERROR] Pending list failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list pending plaques"})
		return
	}

	out := make([]gin.H, 0, len(plaques))
	for _, p := range plaques {
		out = append(out, gin.H{
			"slug":         p.Slug,
			"title":        p.Title,
			"description":  p.Description,
			"location":     p.Location,
			"tags":         p.Tags,
			"submitted_on": p.CreatedOn,
			"submitted_by": p.CreatedBy,
		})
	}
	c.JSON(http.StatusOK, gin.H{"pending": out})
}

// RandomPending handles GET /admin/pending/random, one plaque from
// the queue for quick moderation.
func (h *AdminHandler) RandomPending(c *gin.Context) {
	plaque, err := h.service.RandomPending()
	if err != nil {
		log.Printf("[ERROR] Random pending failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to pick a pending plaque"})
		return
	}
	if plaque == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Moderation queue is empty"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"slug":        plaque.Slug,
		"title":       plaque.Title,
		"description": plaque.Description,
		"location":    plaque.Location,
		"tags":        plaque.Tags,
	})
}

// Approve handles POST /admin/approve/:slug.
func (h *AdminHandler) Approve(c *gin.Context) {
	plaque, err := h.service.Approve(c.Param("slug"), adminUser(c))
	if err != nil {
		status, msg := adminError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	metrics.Approvals.Inc()
	c.JSON(http.StatusOK, gin.H{
		"slug":     plaque.Slug,
		"approved": true,
		"url":      plaque.FullPageURL(h.config.BaseURL),
		"tweet":    plaque.TweetText(h.config.BaseURL),
		"reply":    plaque.SubmitterTweet(h.config.BaseURL),
	})
}

// Disapprove handles POST /admin/disapprove/:slug.
func (h *AdminHandler) Disapprove(c *gin.Context) {
	plaque, err := h.service.Disapprove(c.Param("slug"), adminUser(c))
	if err != nil {
		status, msg := adminError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"slug": plaque.Slug, "approved": false})
}

// Edit handles POST /admin/edit/:slug. A changed title re-slugs the
// plaque; the response carries the slug that now resolves.
func (h *AdminHandler) Edit(c *gin.Context) {
	lat, _ := strconv.ParseFloat(c.PostForm("lat"), 64)
	lng, _ := strconv.ParseFloat(c.PostForm("lng"), 64)

	plaque, err := h.service.Edit(services.EditRequest{
		Slug:        c.Param("slug"),
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Lat:         lat,
		Lng:         lng,
		Tags:        c.PostForm("tags"),
		EditedBy:    adminUser(c),
	})
	if err != nil {
		status, msg := adminError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"slug": plaque.Slug, "url": plaque.PageURL()})
}

// Delete handles POST /admin/delete/:slug.
func (h *AdminHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Param("slug")); err != nil {
		status, msg := adminError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// Flush handles POST /admin/flush, dropping the cached picker time
// window and the rendered GeoJSON payload.
func (h *AdminHandler) Flush(c *gin.Context) {
	h.service.FlushBounds()
	h.payloads.Delete(GeoJSONCacheKey(h.config.Scope))
	c.JSON(http.StatusOK, gin.H{"flushed": true})
}

// Feature handles POST /admin/feature/:slug.
func (h *AdminHandler) Feature(c *gin.Context) {
	if err := h.service.Feature(c.Param("slug")); err != nil {
		log.Printf("[ERROR] Feature failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to feature plaque"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"featured": c.Param("slug")})
}

// adminUser names the acting moderator for audit fields.
func adminUser(c *gin.Context) string {
	if user, _, ok := c.Request.BasicAuth(); ok && user != "" {
		return user
	}
	return "admin"
}

// adminError maps a service error to a response.
func adminError(err error) (int, string) {
	if errors.Is(err, services.ErrNotFound) {
		return http.StatusNotFound, "Plaque not found"
	}
	log.Printf("[ERROR] Admin operation failed: %v", err)
	return http.StatusInternalServerError, "Operation failed"
}
