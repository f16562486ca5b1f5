package resolver

import (
	"sync"

	"github.com/linkerd/ejb-locate/internal/transport"
)

// Attachment keys recognized by the resolver (spec.md §6).
const (
	AttachmentBlacklist             = "BLACKLIST"
	AttachmentPreferredDestinations = "PREFERRED_DESTINATIONS"
	AttachmentNamingProvider        = "NAMING_PROVIDER"
)

// LocalURI is the well-known destination LocalAffinity resolves to
// (see affinity.go).
const LocalURI = "ejb-local:self"

// InvocationContext is the per-call collaborator the resolver consults
// and mutates (spec.md §6). It is supplied by the broader invocation
// pipeline, out of scope for this module.
type InvocationContext interface {
	Locator() Locator
	SetLocator(Locator)

	WeakAffinity() Affinity
	SetWeakAffinity(Affinity)

	Destination() (string, bool)
	SetDestination(uri string)
	ClearDestination()

	TargetAffinity() (Affinity, bool)
	SetTargetAffinity(Affinity)
	ClearTargetAffinity()

	SetInitialCluster(cluster string)

	RequestRetry()
	AddSuppressed(err error)

	Attachment(key string) (interface{}, bool)
	SetAttachment(key string, value interface{})
}

// Context is a concrete, in-memory InvocationContext implementation,
// used by the CLI harness and by tests that exercise the resolver
// end-to-end without a full invocation pipeline.
type Context struct {
	mu sync.Mutex

	locator        Locator
	weakAffinity   Affinity
	destination    string
	hasDestination bool
	targetAffinity Affinity
	hasTarget      bool
	initialCluster string
	retryRequested bool
	suppressed     []error

	attachments map[string]interface{}
}

// NewContext creates an invocation context for locator with no weak
// affinity and no destination set.
func NewContext(locator Locator) *Context {
	return &Context{
		locator:      locator,
		weakAffinity: NoAffinity{},
		attachments:  make(map[string]interface{}),
	}
}

// Locator implements InvocationContext.
func (c *Context) Locator() Locator {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locator
}

// SetLocator implements InvocationContext.
func (c *Context) SetLocator(l Locator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locator = l
}

// WeakAffinity implements InvocationContext.
func (c *Context) WeakAffinity() Affinity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.weakAffinity == nil {
		return NoAffinity{}
	}
	return c.weakAffinity
}

// SetWeakAffinity implements InvocationContext.
func (c *Context) SetWeakAffinity(a Affinity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.weakAffinity = a
}

// Destination implements InvocationContext.
func (c *Context) Destination() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destination, c.hasDestination
}

// SetDestination implements InvocationContext.
func (c *Context) SetDestination(uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destination = uri
	c.hasDestination = true
}

// ClearDestination implements InvocationContext.
func (c *Context) ClearDestination() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destination = ""
	c.hasDestination = false
}

// TargetAffinity implements InvocationContext.
func (c *Context) TargetAffinity() (Affinity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.targetAffinity, c.hasTarget
}

// SetTargetAffinity implements InvocationContext.
func (c *Context) SetTargetAffinity(a Affinity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targetAffinity = a
	c.hasTarget = true
}

// ClearTargetAffinity implements InvocationContext.
func (c *Context) ClearTargetAffinity() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targetAffinity = nil
	c.hasTarget = false
}

// SetInitialCluster implements InvocationContext.
func (c *Context) SetInitialCluster(cluster string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialCluster = cluster
}

// InitialCluster returns the cluster set by SetInitialCluster, if any.
func (c *Context) InitialCluster() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialCluster
}

// RequestRetry implements InvocationContext.
func (c *Context) RequestRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retryRequested = true
}

// RetryRequested reports whether RequestRetry has been called.
func (c *Context) RetryRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retryRequested
}

// AddSuppressed implements InvocationContext.
func (c *Context) AddSuppressed(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suppressed = append(c.suppressed, err)
}

// Suppressed returns the errors accumulated via AddSuppressed.
func (c *Context) Suppressed() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]error, len(c.suppressed))
	copy(out, c.suppressed)
	return out
}

// Attachment implements InvocationContext.
func (c *Context) Attachment(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.attachments[key]
	return v, ok
}

// SetAttachment implements InvocationContext.
func (c *Context) SetAttachment(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attachments[key] = value
}

// blacklistFrom returns the Blacklist attachment on ic, creating and
// storing one if none is present yet.
func blacklistFrom(ic InvocationContext) *Blacklist {
	if v, ok := ic.Attachment(AttachmentBlacklist); ok {
		if bl, ok := v.(*Blacklist); ok {
			return bl
		}
	}
	bl := NewBlacklist()
	ic.SetAttachment(AttachmentBlacklist, bl)
	return bl
}

// preferredDestinationsFrom returns the PREFERRED_DESTINATIONS
// attachment as a set, or nil if unset/empty.
func preferredDestinationsFrom(ic InvocationContext) map[string]struct{} {
	v, ok := ic.Attachment(AttachmentPreferredDestinations)
	if !ok {
		return nil
	}
	switch p := v.(type) {
	case map[string]struct{}:
		if len(p) == 0 {
			return nil
		}
		return p
	case []string:
		if len(p) == 0 {
			return nil
		}
		out := make(map[string]struct{}, len(p))
		for _, s := range p {
			out[s] = struct{}{}
		}
		return out
	default:
		return nil
	}
}

// namingProviderFrom returns the NAMING_PROVIDER attachment, if set.
func namingProviderFrom(ic InvocationContext) (transport.NamingProvider, bool) {
	v, ok := ic.Attachment(AttachmentNamingProvider)
	if !ok {
		return nil, false
	}
	np, ok := v.(transport.NamingProvider)
	return np, ok
}
