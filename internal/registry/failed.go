package registry

import (
	"time"

	cache "github.com/patrickmn/go-cache"
)

// failedDestinationTTL bounds how long a URI is presumed unreachable
// before it is eligible for retry even without an explicit clear. This
// keeps the eventually-consistent set from pinning a transiently bad
// destination forever, per spec.md §3 ("stale entries are tolerated
// because phase-2 retry clears them").
const failedDestinationTTL = 2 * time.Minute

// FailedDestinations is the process-wide set of URIs recently observed
// to fail a probe (spec.md §3). It is written by the discovery engine
// on probe failure and cleared on probe success.
type FailedDestinations struct {
	c *cache.Cache
}

// NewFailedDestinations creates an empty failed-destination set.
func NewFailedDestinations() *FailedDestinations {
	return &FailedDestinations{c: cache.New(failedDestinationTTL, failedDestinationTTL/2)}
}

// Add marks uri as failed.
func (f *FailedDestinations) Add(uri string) {
	f.c.SetDefault(uri, struct{}{})
}

// Contains reports whether uri is currently presumed failed.
func (f *FailedDestinations) Contains(uri string) bool {
	_, found := f.c.Get(uri)
	return found
}

// Clear removes uri from the failed set, e.g. after a successful
// channel is established to it.
func (f *FailedDestinations) Clear(uri string) {
	f.c.Delete(uri)
}

// Len reports the number of URIs currently marked failed. Used by
// tests and telemetry.
func (f *FailedDestinations) Len() int {
	return f.c.ItemCount()
}
