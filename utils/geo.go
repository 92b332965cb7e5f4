package utils

import (
	"math"
	"regexp"
	"strings"

	"github.com/readtheplaque/plaqued/models"
)

// EarthRadiusMeters is the mean radius used for distance math.
const EarthRadiusMeters = 6371000.0

// HaversineMeters returns the great-circle distance in meters between
// two lat/lng points in decimal degrees.
func HaversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := math.Pi / 180.0
	dLat := (lat2 - lat1) * toRad
	dLng := (lng2 - lng1) * toRad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*toRad)*math.Cos(lat2*toRad)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// RandomSpherePoint maps two uniform variates in [0,1) to a uniformly
// distributed point on the sphere.
// Math from http://mathworld.wolfram.com/SpherePointPicking.html
func RandomSpherePoint(u, v float64) (lat, lng float64) {
	lng = ((2.0 * u) - 1.0) * 180.0 // Range: [-180.0, 180.0)
	lat = math.Acos(2.0*v-1.0)*180.0/math.Pi - 90.0
	return lat, lng
}

// BoundingBox returns [[minLng, minLat], [maxLng, maxLat]] for the
// given plaques, skipping nils. Returns nil when there are no plaques.
func BoundingBox(plaques []*models.Plaque) [][]float64 {
	var minLat, maxLat, minLng, maxLng float64
	found := false
	for _, p := range plaques {
		if p == nil {
			continue
		}
		if !found {
			minLat, maxLat = p.Location.Lat, p.Location.Lat
			minLng, maxLng = p.Location.Lng, p.Location.Lng
			found = true
			continue
		}
		minLat = math.Min(minLat, p.Location.Lat)
		maxLat = math.Max(maxLat, p.Location.Lat)
		minLng = math.Min(minLng, p.Location.Lng)
		maxLng = math.Max(maxLng, p.Location.Lng)
	}
	if !found {
		return nil
	}
	return [][]float64{{minLng, minLat}, {maxLng, maxLat}}
}

var wsRun = regexp.MustCompile(`\s+`)

// TokenizeTags splits a comma-separated tag string, lowercases each
// tag, collapses internal whitespace, and drops empties.
func TokenizeTags(tagsStr string) []string {
	var tags []string
	for _, t := range strings.Split(tagsStr, ",") {
		t = wsRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(t)), " ")
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
