// Package picker selects a random approved plaque. The sampling is
// deliberately non-uniform: the default time-range strategy favors
// plaques submitted during bursts of individual activity over bulk
// imports sharing near-identical timestamps, which makes for a more
// interesting "random plaque" page.
package picker

import (
	"errors"
	"math/rand"
	"time"

	"github.com/readtheplaque/plaqued/cache"
	"github.com/readtheplaque/plaqued/metrics"
	"github.com/readtheplaque/plaqued/models"
	"github.com/readtheplaque/plaqued/storage"
	"github.com/readtheplaque/plaqued/utils"
)

// Strategy selects how a random plaque is drawn.
type Strategy int

const (
	// TimeRange draws a random instant between the earliest and
	// latest approved created_on and takes the next plaque after it.
	TimeRange Strategy = iota
	// Geographic draws a uniformly random point on the sphere and
	// takes the nearest approved plaque within GeoSearchRadiusMeters.
	Geographic
	// Offset draws a uniform random offset into the approved plaques
	// ordered by created_on. Retained for compatibility; expensive at
	// scale and biased toward bulk imports.
	Offset
)

func (s Strategy) String() string {
	switch s {
	case TimeRange:
		return "time"
	case Geographic:
		return "geo"
	case Offset:
		return "offset"
	default:
		return "unknown"
	}
}

const (
	// DefaultBailoutLimit caps retry attempts so a sparse or clustered
	// collection terminates with "nothing found" instead of looping.
	DefaultBailoutLimit = 100

	// GeoSearchRadiusMeters is the fixed radius for the geographic
	// strategy. 100 km.
	GeoSearchRadiusMeters = 100000
)

// ErrEmptyCollection is returned when no approved plaques exist at
// all, so the strategy has nothing to sample from. Distinct from the
// (nil, nil) "no plaque found" outcome of exhausting the bailout
// limit against a non-empty collection.
var ErrEmptyCollection = errors.New("no approved plaques")

// ErrOffsetLookup is returned by the Offset strategy when the store
// yields nothing at a valid offset (eventual-consistency lag). Not
// retried.
var ErrOffsetLookup = errors.New("no plaque at random offset")

// Store is the subset of storage.PlaqueStore the picker reads from.
type Store interface {
	CountApproved(scope string) (int, error)
	EarliestApproved(scope string) (*models.Plaque, error)
	LatestApproved(scope string) (*models.Plaque, error)
	FirstApprovedSince(scope string, t time.Time) (*models.Plaque, error)
	ApprovedAtOffset(scope string, offset int) (*models.Plaque, error)
	Nearest(scope string, lat, lng, radiusMeters float64, limit int) ([]storage.NearbyPlaque, error)
}

// Picker draws random approved plaques from a store. The bounds cache
// is optional; when present it avoids two store round trips per
// time-range pick, at the cost of a staleness window until the caller
// invalidates it (newly approved plaques are missed, not mis-picked).
type Picker struct {
	store   Store
	bounds  *cache.BoundsCache
	bailout int

	// injectable randomness for tests
	int63n    func(n int64) int64
	randFloat func() float64
	intn      func(n int) int
}

// New creates a Picker with the default bailout limit.
func New(store Store, bounds *cache.BoundsCache) *Picker {
	return &Picker{
		store:     store,
		bounds:    bounds,
		bailout:   DefaultBailoutLimit,
		int63n:    rand.Int63n,
		randFloat: rand.Float64,
		intn:      rand.Intn,
	}
}

// Intn exposes the picker's random source for callers that need a
// plain uniform draw, like the moderation queue sampler.
func (p *Picker) Intn(n int) int { return p.intn(n) }

// Pick returns one random approved plaque in scope, or (nil, nil)
// when the bailout limit is exhausted without a hit. Store errors
// propagate unchanged.
func (p *Picker) Pick(scope string, strategy Strategy) (*models.Plaque, error) {
	switch strategy {
	case Geographic:
		return p.pickGeographic(scope)
	case Offset:
		return p.pickOffset(scope)
	default:
		return p.pickTimeRange(scope)
	}
}

// timeBounds returns the created_on range of approved plaques,
// consulting the bounds cache first.
func (p *Picker) timeBounds(scope string) (cache.TimeBounds, error) {
	if p.bounds != nil {
		if tb, ok := p.bounds.Get(scope); ok {
			metrics.CacheOps.WithLabelValues("hit").Inc()
			return tb, nil
		}
		metrics.CacheOps.WithLabelValues("miss").Inc()
	}

	earliest, err := p.store.EarliestApproved(scope)
	if err != nil {
		return cache.TimeBounds{}, err
	}
	latest, err := p.store.LatestApproved(scope)
	if err != nil {
		return cache.TimeBounds{}, err
	}
	if earliest == nil || latest == nil {
		return cache.TimeBounds{}, ErrEmptyCollection
	}

	tb := cache.TimeBounds{Earliest: earliest.CreatedOn, Latest: latest.CreatedOn}
	if p.bounds != nil {
		p.bounds.Set(scope, tb)
	}
	return tb, nil
}

func (p *Picker) pickTimeRange(scope string) (*models.Plaque, error) {
	tb, err := p.timeBounds(scope)
	if err != nil {
		return nil, err
	}

	totalSeconds := int64(tb.Latest.Sub(tb.Earliest) / time.Second)
	for attempt := 0; attempt < p.bailout; attempt++ {
		var secs int64
		if totalSeconds > 0 {
			secs = p.int63n(totalSeconds + 1)
		}
		instant := tb.Earliest.Add(time.Duration(secs) * time.Second)

		// on-or-after, so an instant landing exactly on a plaque's
		// created_on (the single-plaque case in particular) hits it
		plaque, err := p.store.FirstApprovedSince(scope, instant)
		if err != nil {
			return nil, err
		}
		if plaque != nil {
			return plaque, nil
		}
	}
	return nil, nil
}

func (p *Picker) pickGeographic(scope string) (*models.Plaque, error) {
	count, err := p.store.CountApproved(scope)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrEmptyCollection
	}

	for attempt := 0; attempt < p.bailout; attempt++ {
		lat, lng := utils.RandomSpherePoint(p.randFloat(), p.randFloat())
		results, err := p.store.Nearest(scope, lat, lng, GeoSearchRadiusMeters, 1)
		if err != nil {
			return nil, err
		}
		if len(results) > 0 {
			return results[0].Plaque, nil
		}
	}
	return nil, nil
}

func (p *Picker) pickOffset(scope string) (*models.Plaque, error) {
	count, err := p.store.CountApproved(scope)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrEmptyCollection
	}

	plaque, err := p.store.ApprovedAtOffset(scope, p.intn(count))
	if err != nil {
		return nil, err
	}
	if plaque == nil {
		return nil, ErrOffsetLookup
	}
	return plaque, nil
}
