// Package transport declares the collaborator interfaces the
// destination-resolution core depends on but does not implement: the
// wire transport, the remote endpoint handshake, the authentication
// client, and the cluster-topology naming provider. Real
// implementations of these live outside this module (spec.md §1,
// "Out of scope"); this package only defines the contracts and, for
// tests, a set of in-memory fakes.
package transport

import (
	"context"
	"net"
	"net/url"
)

// Channel represents an established EJB client channel to a peer.
type Channel interface {
	Close() error
}

// PeerIdentity is the authenticated identity negotiated with a peer
// during connection establishment.
type PeerIdentity interface {
	Name() string
}

// AuthConfiguration is an opaque authentication configuration, with the
// protocol/host/port override fields that must be stripped for
// cluster-discovered nodes (spec.md §4.D).
type AuthConfiguration struct {
	Protocol string
	Host     string
	Port     int

	// Opaque carries collaborator-specific SASL/TLS configuration this
	// core never inspects.
	Opaque interface{}
}

// StripOverrides returns a copy of c with Protocol/Host/Port cleared,
// as required when probing a dynamically discovered (cluster-derived)
// node, so the override can't misdirect the connection.
func (c AuthConfiguration) StripOverrides() AuthConfiguration {
	c.Protocol = ""
	c.Host = ""
	c.Port = 0
	return c
}

// Provider is the wire transport collaborator.
type Provider interface {
	// SupportsProtocol reports whether scheme is a transport this
	// provider can open a connection over.
	SupportsProtocol(scheme string) bool
	// SourceAddress returns the local address the transport would use
	// to reach dest, or nil if undetermined.
	SourceAddress(dest *url.URL) net.IP
	// IsConnected reports whether an open channel to uri already
	// exists.
	IsConnected(uri string) bool
	// OpenChannel opens the EJB client channel over an established
	// connection identity.
	OpenChannel(ctx context.Context, identity PeerIdentity) (Channel, error)
}

// Endpoint is the per-destination handshake collaborator.
type Endpoint interface {
	// IsValidURIScheme reports whether scheme is recognized by this
	// endpoint implementation (independent of transport support).
	IsValidURIScheme(scheme string) bool
	// GetConnectedIdentity performs (or reuses) the connection
	// handshake for uri and returns the resulting peer identity. It
	// must respect ctx cancellation.
	GetConnectedIdentity(ctx context.Context, uri *url.URL, authConfig AuthConfiguration) (PeerIdentity, error)
}

// Authenticator resolves the authentication configuration governing a
// probe.
type Authenticator interface {
	GetAuthenticationConfiguration(uri *url.URL, abstractType, abstractTypeAuthority string) (AuthConfiguration, error)
}

// Location is a cluster-topology hint returned by a NamingProvider,
// used only in the cluster-empty fallback (spec.md §6).
type Location struct {
	URI *url.URL
}

// NamingProvider supplies naming-context locations when cluster
// discovery yields nothing usable.
type NamingProvider interface {
	GetLocations() ([]Location, error)
}
