package resolver

import (
	"sync"

	"github.com/linkerd/ejb-locate/internal/telemetry"
)

// Blacklist is the per-invocation set of URIs rejected for the current
// invocation (spec.md §3). Distinct from the process-wide
// registry.FailedDestinations: a Blacklist lives only as long as its
// invocation context attachment. Adding the same URI twice is a no-op,
// per spec.md §8 "Blacklist idempotence".
type Blacklist struct {
	mu  sync.Mutex
	set map[string]struct{}
}

// NewBlacklist creates an empty blacklist.
func NewBlacklist() *Blacklist {
	return &Blacklist{set: make(map[string]struct{})}
}

// Add idempotently records uri as rejected for this invocation.
func (b *Blacklist) Add(uri string) {
	if uri == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.set[uri] = struct{}{}
	telemetry.BlacklistSize.Set(float64(len(b.set)))
}

// Contains reports whether uri has been rejected for this invocation.
func (b *Blacklist) Contains(uri string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.set[uri]
	return ok
}
