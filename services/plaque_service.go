// Package services holds the plaque business logic between the HTTP
// handlers and the storage backends.
package services

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"log"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	ghtml "github.com/yuin/goldmark/renderer/html"

	"github.com/readtheplaque/plaqued/cache"
	"github.com/readtheplaque/plaqued/config"
	"github.com/readtheplaque/plaqued/models"
	"github.com/readtheplaque/plaqued/picker"
	"github.com/readtheplaque/plaqued/storage"
	"github.com/readtheplaque/plaqued/utils"
)

// ErrNotFound is returned when a slug resolves to no plaque.
var ErrNotFound = errors.New("plaque not found")

// ErrBadGPS is returned when a submission carries EXIF GPS fields that
// do not convert to a location.
var ErrBadGPS = errors.New("invalid gps data")

// PlaqueService handles plaque business logic
type PlaqueService struct {
	store  storage.PlaqueStore
	images storage.ImageStore
	picker *picker.Picker
	bounds *cache.BoundsCache
	config *config.Config

	markdown goldmark.Markdown
}

// NewPlaqueService creates a new plaque service
func NewPlaqueService(store storage.PlaqueStore, images storage.ImageStore, pk *picker.Picker, bounds *cache.BoundsCache, config *config.Config) *PlaqueService {
	return &PlaqueService{
		store:  store,
		images: images,
		picker: pk,
		bounds: bounds,
		config: config,
		// descriptions come from untrusted submitters
		markdown: goldmark.New(goldmark.WithRendererOptions(ghtml.WithHardWraps())),
	}
}

// SubmitRequest represents a plaque submission. Lat/Lng of 0,0 means
// no location was supplied; the EXIF GPS fields, when present, fill
// it in.
type SubmitRequest struct {
	Title       string
	Description string
	Lat         float64
	Lng         float64
	Tags        string
	SubmittedBy string

	// image upload, mutually exclusive with ImageURL
	ImageName   string
	ImageData   []byte
	ContentType string
	ImageURL    string

	// EXIF GPS, as extracted from the photo by the submit page
	GPSLatRef string
	GPSLat    [3]string
	GPSLngRef string
	GPSLng    [3]string
}

// SubmitResponse represents the response from a submission
type SubmitResponse struct {
	Slug string
	URL  string
}

// Submit creates a new pending plaque. The slug is derived from the
// title and made unique within the scope.
func (s *PlaqueService) Submit(req SubmitRequest) (*SubmitResponse, error) {
	title := clipTitle(req.Title)

	slug, err := utils.AssignSlug(title, s.config.Scope, s.store.CountSlug)
	if err != nil {
		return nil, fmt.Errorf("failed to assign slug: %w", err)
	}

	lat, lng := req.Lat, req.Lng
	if lat == 0 && lng == 0 && req.hasGPS() {
		glat, glng, err := exifLocation(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadGPS, err)
		}
		lat, lng = glat, glng
	}

	now := time.Now()
	plaque := &models.Plaque{
		Slug:        slug,
		Scope:       s.config.Scope,
		Title:       title,
		Description: req.Description,
		Location:    models.GeoPt{Lat: lat, Lng: lng},
		Tags:        utils.TokenizeTags(req.Tags),
		Approved:    false,
		CreatedOn:   now,
		CreatedBy:   req.SubmittedBy,
		UpdatedOn:   now,
		UpdatedBy:   req.SubmittedBy,
		ImgURL:      req.ImageURL,
	}

	if len(req.ImageData) > 0 {
		key, url, err := s.images.Put(req.ImageName, req.ImageData, req.ContentType)
		if err != nil {
			return nil, fmt.Errorf("failed to store image: %w", err)
		}
		plaque.Pic = key
		plaque.ImgURL = url
	}

	if err := s.store.Store(plaque); err != nil {
		return nil, fmt.Errorf("failed to store plaque: %w", err)
	}

	return &SubmitResponse{
		Slug: slug,
		URL:  plaque.FullPageURL(s.config.BaseURL),
	}, nil
}

// clipTitle trims a submitted title to the stored maximum, counting
// runes so a multi-byte title is never cut mid-character.
func clipTitle(title string) string {
	title = strings.TrimSpace(title)
	if runes := []rune(title); len(runes) > models.MaxTitleLen {
		title = string(runes[:models.MaxTitleLen])
	}
	return title
}

// hasGPS reports whether any EXIF GPS field was supplied.
func (req SubmitRequest) hasGPS() bool {
	return req.GPSLatRef != "" || req.GPSLngRef != "" ||
		req.GPSLat != [3]string{} || req.GPSLng != [3]string{}
}

// exifLocation converts the EXIF GPS fields of a submission to
// decimal degrees.
func exifLocation(req SubmitRequest) (float64, float64, error) {
	parse := func(vals [3]string) (deg, min, sec utils.GPSRational, err error) {
		if deg, err = utils.ParseGPSRational(vals[0]); err != nil {
			return
		}
		if min, err = utils.ParseGPSRational(vals[1]); err != nil {
			return
		}
		sec, err = utils.ParseGPSRational(vals[2])
		return
	}

	latDeg, latMin, latSec, err := parse(req.GPSLat)
	if err != nil {
		return 0, 0, err
	}
	lngDeg, lngMin, lngSec, err := parse(req.GPSLng)
	if err != nil {
		return 0, 0, err
	}

	lat, err := utils.GPSAnglesToDecimal(req.GPSLatRef, latDeg, latMin, latSec)
	if err != nil {
		return 0, 0, err
	}
	lng, err := utils.GPSAnglesToDecimal(req.GPSLngRef, lngDeg, lngMin, lngSec)
	if err != nil {
		return 0, 0, err
	}
	return lat, lng, nil
}

// EditRequest represents an admin edit of an existing plaque.
type EditRequest struct {
	Slug        string
	Title       string
	Description string
	Lat         float64
	Lng         float64
	Tags        string
	EditedBy    string
}

// Edit updates an existing plaque. A changed title gets a fresh
// slug; the old slug stops resolving.
func (s *PlaqueService) Edit(req EditRequest) (*models.Plaque, error) {
	plaque, err := s.store.GetBySlug(s.config.Scope, req.Slug)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve plaque: %w", err)
	}
	if plaque == nil {
		return nil, ErrNotFound
	}

	title := clipTitle(req.Title)

	if title != plaque.Title {
		slug, err := utils.AssignSlug(title, s.config.Scope, s.store.CountSlug)
		if err != nil {
			return nil, fmt.Errorf("failed to assign slug: %w", err)
		}
		renamed := *plaque
		renamed.Slug = slug
		renamed.Title = title
		renamed.Description = req.Description
		renamed.Location = models.GeoPt{Lat: req.Lat, Lng: req.Lng}
		renamed.Tags = utils.TokenizeTags(req.Tags)
		renamed.UpdatedOn = time.Now()
		renamed.UpdatedBy = req.EditedBy
		if err := s.store.Store(&renamed); err != nil {
			return nil, fmt.Errorf("failed to store renamed plaque: %w", err)
		}
		if err := s.store.Delete(plaque.Scope, plaque.Slug); err != nil {
			return nil, fmt.Errorf("failed to remove old slug: %w", err)
		}
		return &renamed, nil
	}

	plaque.Title = title
	plaque.Description = req.Description
	plaque.Location = models.GeoPt{Lat: req.Lat, Lng: req.Lng}
	plaque.Tags = utils.TokenizeTags(req.Tags)
	plaque.UpdatedOn = time.Now()
	plaque.UpdatedBy = req.EditedBy
	if err := s.store.Update(plaque); err != nil {
		return nil, fmt.Errorf("failed to update plaque: %w", err)
	}
	return plaque, nil
}

// Approve publishes a pending plaque. created_on is reset so the
// plaque shows up at the top of the recents feed and inside the
// random picker's time window, which also means the cached window is
// stale and gets invalidated.
func (s *PlaqueService) Approve(slug, approvedBy string) (*models.Plaque, error) {
	plaque, err := s.store.GetBySlug(s.config.Scope, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve plaque: %w", err)
	}
	if plaque == nil {
		return nil, ErrNotFound
	}

	now := time.Now()
	plaque.Approved = true
	plaque.CreatedOn = now
	plaque.UpdatedOn = now
	plaque.UpdatedBy = approvedBy
	if err := s.store.Update(plaque); err != nil {
		return nil, fmt.Errorf("failed to update plaque: %w", err)
	}

	if s.bounds != nil {
		s.bounds.Invalidate(s.config.Scope)
	}
	return plaque, nil
}

// Disapprove unpublishes a plaque without deleting it.
func (s *PlaqueService) Disapprove(slug, by string) (*models.Plaque, error) {
	plaque, err := s.store.GetBySlug(s.config.Scope, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve plaque: %w", err)
	}
	if plaque == nil {
		return nil, ErrNotFound
	}

	plaque.Approved = false
	plaque.UpdatedOn = time.Now()
	plaque.UpdatedBy = by
	if err := s.store.Update(plaque); err != nil {
		return nil, fmt.Errorf("failed to update plaque: %w", err)
	}
	return plaque, nil
}

// Delete removes a plaque and its stored image.
func (s *PlaqueService) Delete(slug string) error {
	plaque, err := s.store.GetBySlug(s.config.Scope, slug)
	if err != nil {
		return fmt.Errorf("failed to retrieve plaque: %w", err)
	}
	if plaque == nil {
		return ErrNotFound
	}
	if plaque.Pic != "" {
		if err := s.images.Delete(plaque.Pic); err != nil {
			log.Printf("[ERROR] Failed to delete image %s: %v", plaque.Pic, err)
		}
	}
	return s.store.Delete(plaque.Scope, plaque.Slug)
}

// Get retrieves a plaque by slug, nil when absent.
func (s *PlaqueService) Get(slug string) (*models.Plaque, error) {
	return s.store.GetBySlug(s.config.Scope, slug)
}

// Random draws a random approved plaque. A nil plaque with nil error
// means the picker hit its bailout limit.
func (s *PlaqueService) Random(strategy picker.Strategy) (*models.Plaque, error) {
	return s.picker.Pick(s.config.Scope, strategy)
}

// RandomPending returns a random pending plaque for moderation, nil
// when the queue is empty.
func (s *PlaqueService) RandomPending() (*models.Plaque, error) {
	pending, err := s.store.ListPending(s.config.Scope, 50)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}
	return pending[s.picker.Intn(len(pending))], nil
}

// Feature marks a plaque as the front-page featured plaque.
func (s *PlaqueService) Feature(slug string) error {
	return s.store.SetFeatured(s.config.Scope, slug)
}

// Featured returns the current featured plaque, nil when none set.
func (s *PlaqueService) Featured() (*models.Plaque, error) {
	return s.store.GetFeatured(s.config.Scope)
}

// Recent pages through approved plaques, newest first.
func (s *PlaqueService) Recent(limit int, cursor string) ([]*models.Plaque, string, error) {
	return s.store.ListApproved(s.config.Scope, limit, cursor)
}

// Pending lists unapproved plaques for the moderation queue.
func (s *PlaqueService) Pending(limit int) ([]*models.Plaque, error) {
	return s.store.ListPending(s.config.Scope, limit)
}

// Nearby returns approved plaques within radiusMeters of a point.
func (s *PlaqueService) Nearby(lat, lng, radiusMeters float64, limit int) ([]storage.NearbyPlaque, error) {
	return s.store.Nearest(s.config.Scope, lat, lng, radiusMeters, limit)
}

// Search matches approved plaques against a free-text term.
func (s *PlaqueService) Search(term string) ([]*models.Plaque, error) {
	return s.store.Search(s.config.Scope, term, true)
}

// Tagged returns approved plaques carrying the given tag.
func (s *PlaqueService) Tagged(tag string) ([]*models.Plaque, error) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	matches, err := s.store.Search(s.config.Scope, tag, true)
	if err != nil {
		return nil, err
	}
	tagged := matches[:0]
	for _, p := range matches {
		for _, t := range p.Tags {
			if t == tag {
				tagged = append(tagged, p)
				break
			}
		}
	}
	return tagged, nil
}

// UpdatesSince returns approved plaques created after t, newest
// first. Feeds the incremental map layer.
func (s *PlaqueService) UpdatesSince(t time.Time) ([]*models.Plaque, error) {
	return s.store.ListApprovedSince(s.config.Scope, t)
}

// AllGeoJSON walks every approved plaque and returns a GeoJSON
// FeatureCollection of map markers, with the bounding box the map
// page uses to fit its initial viewport.
func (s *PlaqueService) AllGeoJSON() (map[string]interface{}, error) {
	features := []interface{}{}
	var all []*models.Plaque
	cursor := ""
	for {
		page, next, err := s.store.ListApproved(s.config.Scope, 500, cursor)
		if err != nil {
			return nil, fmt.Errorf("failed to list plaques: %w", err)
		}
		for _, p := range page {
			features = append(features, p.GeoJSON(true))
		}
		all = append(all, page...)
		if next == "" {
			break
		}
		cursor = next
	}
	out := map[string]interface{}{
		"type":     "FeatureCollection",
		"features": features,
	}
	if bbox := utils.BoundingBox(all); bbox != nil {
		out["bounding_box"] = bbox
	}
	return out, nil
}

// TagCloud maps every tag on an approved plaque to a display font
// size bucketed by frequency.
func (s *PlaqueService) TagCloud() (map[string]int, error) {
	var all []*models.Plaque
	cursor := ""
	for {
		page, next, err := s.store.ListApproved(s.config.Scope, 500, cursor)
		if err != nil {
			return nil, fmt.Errorf("failed to list plaques: %w", err)
		}
		all = append(all, page...)
		if next == "" {
			break
		}
		cursor = next
	}
	return models.TagFontSizes(all), nil
}

// FlushBounds drops the cached picker time window.
func (s *PlaqueService) FlushBounds() {
	if s.bounds != nil {
		s.bounds.Invalidate(s.config.Scope)
	}
}

// RandomTags draws tags from a handful of random plaques, for the
// footer tag cloud. Best effort; picker misses are skipped.
func (s *PlaqueService) RandomTags(picks int) []string {
	seen := map[string]bool{}
	var tags []string
	for i := 0; i < picks; i++ {
		plaque, err := s.picker.Pick(s.config.Scope, picker.TimeRange)
		if err != nil || plaque == nil {
			continue
		}
		for _, t := range plaque.Tags {
			if !seen[t] {
				seen[t] = true
				tags = append(tags, t)
			}
		}
	}
	return tags
}

// DescriptionHTML renders a plaque description's markdown. Plain
// prose passes through as a paragraph.
func (s *PlaqueService) DescriptionHTML(p *models.Plaque) template.HTML {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(p.Description), &buf); err != nil {
		log.Printf("[ERROR] Failed to render description for %s: %v", p.Slug, err)
		return template.HTML(template.HTMLEscapeString(p.Description))
	}
	return template.HTML(buf.String())
}
