package cache

import (
	"encoding/json"
	"time"
)

// TimeBounds holds the created_on timestamps of the earliest and
// latest approved plaques, the range the time-based random strategy
// samples from.
type TimeBounds struct {
	Earliest time.Time `json:"earliest"`
	Latest   time.Time `json:"latest"`
}

// BoundsCache caches TimeBounds per scope on top of a Cache. The
// entry is advisory: approval of a new plaque should call Invalidate,
// and until then the sampled range simply misses the newest plaques.
type BoundsCache struct {
	cache Cache
	ttl   time.Duration
}

// NewBoundsCache wraps the given cache. ttl bounds staleness even if
// a caller forgets to invalidate; zero disables expiry.
func NewBoundsCache(c Cache, ttl time.Duration) *BoundsCache {
	return &BoundsCache{cache: c, ttl: ttl}
}

func boundsKey(scope string) string { return "time_bounds/" + scope }

// Get returns the cached bounds for scope, or (zero, false) on miss.
func (b *BoundsCache) Get(scope string) (TimeBounds, bool) {
	data, ok := b.cache.Get(boundsKey(scope))
	if !ok {
		return TimeBounds{}, false
	}
	var tb TimeBounds
	if err := json.Unmarshal(data, &tb); err != nil {
		return TimeBounds{}, false
	}
	return tb, true
}

// Set stores bounds for scope.
func (b *BoundsCache) Set(scope string, tb TimeBounds) {
	data, err := json.Marshal(tb)
	if err != nil {
		return
	}
	b.cache.Set(boundsKey(scope), data, b.ttl)
}

// Invalidate drops the cached bounds for scope.
func (b *BoundsCache) Invalidate(scope string) {
	b.cache.Delete(boundsKey(scope))
}
