package handlers

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/readtheplaque/plaqued/config"
	"github.com/readtheplaque/plaqued/models"
	"github.com/readtheplaque/plaqued/services"
)

// PageHandler serves the HTML pages
type PageHandler struct {
	service *services.PlaqueService
	config  *config.Config
}

// NewPageHandler creates a new page handler
func NewPageHandler(service *services.PlaqueService, config *config.Config) *PageHandler {
	return &PageHandler{
		service: service,
		config:  config,
	}
}

// plaqueView is a plaque plus its rendered pieces for the templates.
type plaqueView struct {
	*models.Plaque
	DescriptionHTML template.HTML
	ThumbnailURL    string
	DisplayURL      string
	MapsURL         string
}

func (h *PageHandler) view(p *models.Plaque) plaqueView {
	return plaqueView{
		Plaque:          p,
		DescriptionHTML: h.service.DescriptionHTML(p),
		ThumbnailURL:    p.ImgURLThumbnail(),
		DisplayURL:      p.ImgURLDisplay(),
		MapsURL:         p.GmapsURL(),
	}
}

func (h *PageHandler) views(plaques []*models.Plaque) []plaqueView {
	out := make([]plaqueView, 0, len(plaques))
	for _, p := range plaques {
		out = append(out, h.view(p))
	}
	return out
}

// Index handles the front page via GET / and GET /page/:cursor
func (h *PageHandler) Index(c *gin.Context) {
	cursor := c.Param("cursor")
	if cursor == "" {
		cursor = c.Query("cursor")
	}
	recent, nextCursor, err := h.service.Recent(20, cursor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list plaques"})
		return
	}

	featured, err := h.service.Featured()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load featured plaque"})
		return
	}
	var featuredView *plaqueView
	if featured != nil {
		v := h.view(featured)
		featuredView = &v
	}

	c.HTML(http.StatusOK, "index.html", gin.H{
		"Title":      "Read the Plaque",
		"Featured":   featuredView,
		"Recent":     h.views(recent),
		"NextCursor": nextCursor,
		"FooterTags": h.service.RandomTags(5),
		"Version":    h.config.Version,
	})
}

// View handles a single plaque page via GET /plaque/:slug
func (h *PageHandler) View(c *gin.Context) {
	plaque, err := h.service.Get(c.Param("slug"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve plaque"})
		return
	}
	if plaque == nil {
		c.HTML(http.StatusNotFound, "notfound.html", gin.H{"Slug": c.Param("slug")})
		return
	}

	c.HTML(http.StatusOK, "plaque.html", gin.H{
		"Title":     plaque.Title,
		"Plaque":    h.view(plaque),
		"TweetText": plaque.TweetText(h.config.BaseURL),
	})
}

// AddForm handles the submission form via GET /add
func (h *PageHandler) AddForm(c *gin.Context) {
	c.HTML(http.StatusOK, "add.html", gin.H{
		"Title": "Add a Plaque",
	})
}

// Tags handles the full tag cloud via GET /tags. Sizes are display
// font sizes in px, bucketed by tag frequency.
func (h *PageHandler) Tags(c *gin.Context) {
	cloud, err := h.service.TagCloud()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build tag cloud"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": cloud})
}

// Tagged handles the per-tag listing via GET /tag/:tag
func (h *PageHandler) Tagged(c *gin.Context) {
	tag := c.Param("tag")
	plaques, err := h.service.Tagged(tag)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search tag"})
		return
	}

	c.HTML(http.StatusOK, "list.html", gin.H{
		"Title":   "Tagged: " + tag,
		"Heading": "Plaques tagged \"" + tag + "\"",
		"Plaques": h.views(plaques),
	})
}
