package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/readtheplaque/plaqued/cache"
	"github.com/readtheplaque/plaqued/services"
)

// DefaultNearbyRadiusMeters bounds a /nearby query when the client
// does not pass one.
const DefaultNearbyRadiusMeters = 5000

// geoJSONTTL bounds staleness of the cached full marker set between
// explicit flushes.
const geoJSONTTL = 10 * time.Minute

// GeoHandler serves the map data endpoints
type GeoHandler struct {
	service  *services.PlaqueService
	payloads cache.Cache
	scope    string
}

// NewGeoHandler creates a new geo handler. payloads caches the
// rendered full marker set, which is expensive to rebuild per
// request.
func NewGeoHandler(service *services.PlaqueService, payloads cache.Cache, scope string) *GeoHandler {
	return &GeoHandler{
		service:  service,
		payloads: payloads,
		scope:    scope,
	}
}

// GeoJSONCacheKey is the payload cache key for the full marker set.
func GeoJSONCacheKey(scope string) string { return "geojson/all/" + scope }

// All handles GET /geojson/all, the full marker set for the map.
func (h *GeoHandler) All(c *gin.Context) {
	if data, ok := h.payloads.Get(GeoJSONCacheKey(h.scope)); ok {
		c.Data(http.StatusOK, "application/json; charset=utf-8", data)
		return
	}

	fc, err := h.service.AllGeoJSON()
	if err != nil {
		log.Printf("[ERROR] GeoJSON export failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build GeoJSON"})
		return
	}
	data, err := json.Marshal(fc)
	if err != nil {
		log.Printf("[ERROR] GeoJSON marshal failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build GeoJSON"})
		return
	}
	h.payloads.Set(GeoJSONCacheKey(h.scope), data, geoJSONTTL)
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// Updates handles GET /geojson/updates/:since, markers for plaques
// approved after the given unix timestamp.
func (h *GeoHandler) Updates(c *gin.Context) {
	since, err := strconv.ParseInt(c.Param("since"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid timestamp"})
		return
	}

	plaques, err := h.service.UpdatesSince(time.Unix(since, 0))
	if err != nil {
		log.Printf("[ERROR] GeoJSON updates failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build GeoJSON"})
		return
	}

	features := make([]interface{}, 0, len(plaques))
	for _, p := range plaques {
		features = append(features, p.GeoJSON(true))
	}
	c.JSON(http.StatusOK, gin.H{
		"type":      "FeatureCollection",
		"features":  features,
		"timestamp": time.Now().Unix(),
	})
}

// Nearby handles GET /nearby?lat=&lng=&radius=&limit=.
func (h *GeoHandler) Nearby(c *gin.Context) {
	lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
	lng, lngErr := strconv.ParseFloat(c.Query("lng"), 64)
	if latErr != nil || lngErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lng are required"})
		return
	}

	radius := float64(DefaultNearbyRadiusMeters)
	if r, err := strconv.ParseFloat(c.Query("radius"), 64); err == nil && r > 0 {
		radius = r
	}
	limit := 20
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}

	h.nearby(c, lat, lng, radius, limit)
}

// NearbyPath handles GET /nearby/:lat/:lng/:count.
func (h *GeoHandler) NearbyPath(c *gin.Context) {
	lat, latErr := strconv.ParseFloat(c.Param("lat"), 64)
	lng, lngErr := strconv.ParseFloat(c.Param("lng"), 64)
	if latErr != nil || lngErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid coordinates"})
		return
	}
	limit := 20
	if l, err := strconv.Atoi(c.Param("count")); err == nil && l > 0 && l <= 100 {
		limit = l
	}
	h.nearby(c, lat, lng, DefaultNearbyRadiusMeters, limit)
}

// GeoRadius handles GET /geo/:lat/:lng/:radius.
func (h *GeoHandler) GeoRadius(c *gin.Context) {
	lat, latErr := strconv.ParseFloat(c.Param("lat"), 64)
	lng, lngErr := strconv.ParseFloat(c.Param("lng"), 64)
	radius, radErr := strconv.ParseFloat(c.Param("radius"), 64)
	if latErr != nil || lngErr != nil || radErr != nil || radius <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid coordinates or radius"})
		return
	}
	h.nearby(c, lat, lng, radius, 100)
}

func (h *GeoHandler) nearby(c *gin.Context, lat, lng, radius float64, limit int) {
	results, err := h.service.Nearby(lat, lng, radius, limit)
	if err != nil {
		log.Printf("[ERROR] Nearby query failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query nearby plaques"})
		return
	}

	out := make([]gin.H, 0, len(results))
	for _, r := range results {
		out = append(out, gin.H{
			"slug":            r.Plaque.Slug,
			"title":           r.Plaque.Title,
			"url":             r.Plaque.PageURL(),
			"location":        r.Plaque.Location,
			"distance_meters": r.DistanceMeters,
		})
	}
	c.JSON(http.StatusOK, gin.H{"plaques": out})
}
