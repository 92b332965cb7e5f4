package storage

import (
	"errors"
	"time"

	"github.com/readtheplaque/plaqued/models"
)

// ErrSlugExists is returned by Store when the scope already holds a
// plaque with the same slug.
var ErrSlugExists = errors.New("slug already exists in scope")

// NearbyPlaque pairs a plaque with its distance from a query point.
type NearbyPlaque struct {
	Plaque         *models.Plaque
	DistanceMeters float64
}

// PlaqueStore defines the interface for plaque storage backends.
// Lookups that find nothing return (nil, nil); errors are reserved
// for backend failures.
type PlaqueStore interface {
	// Store inserts a new plaque. The slug must be unique within the
	// plaque's scope.
	Store(p *models.Plaque) error

	// Update overwrites an existing plaque, matched by scope and slug.
	Update(p *models.Plaque) error

	// GetBySlug retrieves a plaque by scope and slug.
	GetBySlug(scope, slug string) (*models.Plaque, error)

	// Delete removes a plaque.
	Delete(scope, slug string) error

	// CountSlug reports how many plaques in scope hold the given slug.
	// Used by the slug assigner's collision loop.
	CountSlug(scope, slug string) (int, error)

	// CountApproved reports the number of approved plaques in scope.
	CountApproved(scope string) (int, error)

	// EarliestApproved returns the approved plaque with the smallest
	// created_on, LatestApproved the largest.
	EarliestApproved(scope string) (*models.Plaque, error)
	LatestApproved(scope string) (*models.Plaque, error)

	// FirstApprovedSince returns the first approved plaque with
	// created_on on or after t, ascending by created_on.
	FirstApprovedSince(scope string, t time.Time) (*models.Plaque, error)

	// ApprovedAtOffset returns the approved plaque at the given offset
	// in ascending created_on order.
	ApprovedAtOffset(scope string, offset int) (*models.Plaque, error)

	// Nearest returns approved plaques within radiusMeters of the
	// point, nearest first, at most limit results.
	Nearest(scope string, lat, lng, radiusMeters float64, limit int) ([]NearbyPlaque, error)

	// ListApproved pages through approved plaques, newest first.
	// cursor is an opaque continuation token from a previous call (""
	// for the first page); the returned token is "" on the last page.
	ListApproved(scope string, limit int, cursor string) ([]*models.Plaque, string, error)

	// ListApprovedSince returns approved plaques created after t,
	// newest first.
	ListApprovedSince(scope string, t time.Time) ([]*models.Plaque, error)

	// ListPending returns up to limit unapproved plaques, newest first.
	ListPending(scope string, limit int) ([]*models.Plaque, error)

	// Search returns plaques whose title, description, or tags match
	// the term. When approvedOnly is set, pending plaques are skipped.
	Search(scope, term string, approvedOnly bool) ([]*models.Plaque, error)

	// SetFeatured marks the plaque as the current featured plaque.
	SetFeatured(scope, slug string) error

	// GetFeatured returns the most recently featured plaque.
	GetFeatured(scope string) (*models.Plaque, error)

	// Close closes the storage connection.
	Close() error
}
