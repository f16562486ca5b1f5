// Package fake provides in-memory implementations of the
// transport.Provider, transport.Endpoint, transport.Authenticator and
// transport.NamingProvider collaborator interfaces, for use in tests
// that exercise the discovery engine and resolver end to end.
package fake

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"

	"github.com/linkerd/ejb-locate/internal/transport"
)

// Channel is a no-op transport.Channel.
type Channel struct{ URI string }

// Close implements transport.Channel.
func (c Channel) Close() error { return nil }

// Identity is a trivial transport.PeerIdentity.
type Identity struct{ name string }

// Name implements transport.PeerIdentity.
func (i Identity) Name() string { return i.name }

// Provider is a configurable fake transport.Provider. Failing and
// Connected are keyed by full URI string.
type Provider struct {
	mu        sync.RWMutex
	Schemes   map[string]bool
	Failing   map[string]bool
	Connected map[string]bool
	Source    net.IP
}

// NewProvider creates a fake provider supporting the given schemes.
func NewProvider(schemes ...string) *Provider {
	set := make(map[string]bool, len(schemes))
	for _, s := range schemes {
		set[s] = true
	}
	return &Provider{
		Schemes:   set,
		Failing:   make(map[string]bool),
		Connected: make(map[string]bool),
	}
}

// SupportsProtocol implements transport.Provider.
func (p *Provider) SupportsProtocol(scheme string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Schemes[scheme]
}

// SourceAddress implements transport.Provider.
func (p *Provider) SourceAddress(_ *url.URL) net.IP {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Source
}

// IsConnected implements transport.Provider.
func (p *Provider) IsConnected(uri string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Connected[uri]
}

// OpenChannel implements transport.Provider.
func (p *Provider) OpenChannel(_ context.Context, identity transport.PeerIdentity) (transport.Channel, error) {
	p.mu.RLock()
	fail := p.Failing[identity.Name()]
	p.mu.RUnlock()
	if fail {
		return nil, fmt.Errorf("channel open failed for %s", identity.Name())
	}
	return Channel{URI: identity.Name()}, nil
}

// SetFailing marks uri's probe to fail at channel open.
func (p *Provider) SetFailing(uri string, failing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Failing[uri] = failing
}

// SetConnected marks uri as having an open connection.
func (p *Provider) SetConnected(uri string, connected bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Connected[uri] = connected
}

// Endpoint is a configurable fake transport.Endpoint.
type Endpoint struct {
	mu      sync.RWMutex
	Schemes map[string]bool
	Failing map[string]bool
}

// NewEndpoint creates a fake endpoint accepting the given schemes.
func NewEndpoint(schemes ...string) *Endpoint {
	set := make(map[string]bool, len(schemes))
	for _, s := range schemes {
		set[s] = true
	}
	return &Endpoint{Schemes: set, Failing: make(map[string]bool)}
}

// IsValidURIScheme implements transport.Endpoint.
func (e *Endpoint) IsValidURIScheme(scheme string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Schemes[scheme]
}

// GetConnectedIdentity implements transport.Endpoint.
func (e *Endpoint) GetConnectedIdentity(ctx context.Context, uri *url.URL, _ transport.AuthConfiguration) (transport.PeerIdentity, error) {
	e.mu.RLock()
	fail := e.Failing[uri.String()]
	e.mu.RUnlock()
	if fail {
		return nil, fmt.Errorf("connect failed to %s", uri)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return Identity{name: uri.String()}, nil
}

// SetFailing marks uri to fail at connect.
func (e *Endpoint) SetFailing(uri string, failing bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Failing[uri] = failing
}

// Authenticator is a fake transport.Authenticator returning a fixed
// configuration per URI, defaulting to an empty one.
type Authenticator struct {
	mu      sync.RWMutex
	Configs map[string]transport.AuthConfiguration
}

// NewAuthenticator creates an authenticator with no overrides
// configured.
func NewAuthenticator() *Authenticator {
	return &Authenticator{Configs: make(map[string]transport.AuthConfiguration)}
}

// GetAuthenticationConfiguration implements transport.Authenticator.
func (a *Authenticator) GetAuthenticationConfiguration(uri *url.URL, _, _ string) (transport.AuthConfiguration, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if cfg, ok := a.Configs[uri.String()]; ok {
		return cfg, nil
	}
	return transport.AuthConfiguration{Protocol: uri.Scheme, Host: uri.Hostname()}, nil
}

// NamingProvider is a fake transport.NamingProvider returning a fixed
// list of locations.
type NamingProvider struct {
	Locations []transport.Location
}

// GetLocations implements transport.NamingProvider.
func (n *NamingProvider) GetLocations() ([]transport.Location, error) {
	return n.Locations, nil
}
