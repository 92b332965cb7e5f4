package handlers

import (
	"encoding/xml"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/readtheplaque/plaqued/config"
	"github.com/readtheplaque/plaqued/services"
)

// RSSHandler serves the recent plaques feed
type RSSHandler struct {
	service *services.PlaqueService
	config  *config.Config
}

// NewRSSHandler creates a new RSS handler
func NewRSSHandler(service *services.PlaqueService, config *config.Config) *RSSHandler {
	return &RSSHandler{
		service: service,
		config:  config,
	}
}

type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	GUID        string `xml:"guid"`
	PubDate     string `xml:"pubDate"`
}

// Feed handles GET /rss.
func (h *RSSHandler) Feed(c *gin.Context) {
	recent, _, err := h.service.Recent(20, "")
	if err != nil {
		log.Printf("[ERROR] RSS feed failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build feed"})
		return
	}

	items := make([]rssItem, 0, len(recent))
	for _, p := range recent {
		url := p.FullPageURL(h.config.BaseURL)
		items = append(items, rssItem{
			Title:       p.Title,
			Link:        url,
			Description: p.Description,
			GUID:        url,
			PubDate:     p.CreatedOn.Format(time.RFC1123Z),
		})
	}

	feed := rssFeed{
		Version: "2.0",
		Channel: rssChannel{
			Title:       "Read the Plaque",
			Link:        h.config.BaseURL,
			Description: "Recently approved plaques",
			Items:       items,
		},
	}

	c.Header("Content-Type", "application/rss+xml; charset=utf-8")
	c.String(http.StatusOK, xml.Header)
	out, err := xml.Marshal(feed)
	if err != nil {
		log.Printf("[ERROR] RSS marshal failed: %v", err)
		return
	}
	if _, err := c.Writer.Write(out); err != nil {
		log.Printf("[ERROR] RSS write failed: %v", err)
	}
}
