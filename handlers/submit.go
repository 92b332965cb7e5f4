package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/readtheplaque/plaqued/config"
	"github.com/readtheplaque/plaqued/metrics"
	"github.com/readtheplaque/plaqued/services"
)

// MaxImageBytes caps uploaded photo size.
const MaxImageBytes = 10 << 20

// SubmitHandler handles plaque submissions
type SubmitHandler struct {
	service *services.PlaqueService
	config  *config.Config
}

// NewSubmitHandler creates a new submit handler
func NewSubmitHandler(service *services.PlaqueService, config *config.Config) *SubmitHandler {
	return &SubmitHandler{
		service: service,
		config:  config,
	}
}

// Submit handles a new plaque via POST /add. Accepts a multipart form
// with an optional photo upload or a plaque_image_url field.
func (h *SubmitHandler) Submit(c *gin.Context) {
	title := c.PostForm("title")
	if title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title is required"})
		return
	}

	lat, _ := strconv.ParseFloat(c.PostForm("lat"), 64)
	lng, _ := strconv.ParseFloat(c.PostForm("lng"), 64)

	req := services.SubmitRequest{
		Title:       title,
		Description: c.PostForm("description"),
		Lat:         lat,
		Lng:         lng,
		Tags:        c.PostForm("tags"),
		SubmittedBy: c.PostForm("submitted_by"),
		ImageURL:    c.PostForm("plaque_image_url"),
		GPSLatRef:   c.PostForm("gps_latitude_ref"),
		GPSLngRef:   c.PostForm("gps_longitude_ref"),
		GPSLat: [3]string{
			c.PostForm("gps_latitude_deg"),
			c.PostForm("gps_latitude_min"),
			c.PostForm("gps_latitude_sec"),
		},
		GPSLng: [3]string{
			c.PostForm("gps_longitude_deg"),
			c.PostForm("gps_longitude_min"),
			c.PostForm("gps_longitude_sec"),
		},
	}

	if file, err := c.FormFile("plaque_image_file"); err == nil {
		if file.Size > MaxImageBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Image too large"})
			return
		}
		f, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read image"})
			return
		}
		data, err := io.ReadAll(io.LimitReader(f, MaxImageBytes))
		if closeErr := f.Close(); closeErr != nil {
			log.Printf("[ERROR] Failed to close upload: %v", closeErr)
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read image"})
			return
		}
		req.ImageName = file.Filename
		req.ImageData = data
		req.ContentType = file.Header.Get("Content-Type")
	}

	resp, err := h.service.Submit(req)
	if err != nil {
		if errors.Is(err, services.ErrBadGPS) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid GPS data"})
			return
		}
		log.Printf("[ERROR] Submission failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store submission"})
		return
	}
	metrics.Submissions.Inc()

	if wantsJSON(c) {
		c.JSON(http.StatusCreated, gin.H{
			"slug": resp.Slug,
			"url":  resp.URL,
		})
		return
	}
	c.HTML(http.StatusCreated, "submitted.html", gin.H{
		"Title": "Thanks!",
		"Slug":  resp.Slug,
		"URL":   resp.URL,
	})
}

// wantsJSON reports whether the client asked for a JSON response.
func wantsJSON(c *gin.Context) bool {
	return c.GetHeader("Accept") == "application/json" || c.Query("format") == "json"
}
