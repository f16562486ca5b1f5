package registry

import (
	"fmt"
	"net"
	"sort"
)

// InetSocketAddress is a resolved (or literal) host and port pair
// produced by a CidrAddressTable lookup.
type InetSocketAddress struct {
	Host string // hostname if known, else the IP literal string form
	IP   net.IP // the underlying address, for source-ip matching
	Port int
}

// HostPort renders the socket address as a bare "host:port" pair, bracketing
// IPv6 literals per spec.md §6.
func (a InetSocketAddress) HostPort() string {
	host := a.Host
	if ip := net.ParseIP(host); ip != nil && ip.To4() == nil {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("%s:%d", host, a.Port)
}

// CidrEntry maps a CIDR range to a destination socket address.
type CidrEntry struct {
	Range *net.IPNet
	Addr  InetSocketAddress
}

// CidrAddressTable is an ordered collection of CIDR-to-address
// mappings, iterated from most-specific to least-specific. A netmask-0
// entry, if present, is the default fallback.
type CidrAddressTable struct {
	entries []CidrEntry
}

// NewCidrAddressTable builds a table from entries, sorting them so that
// the most specific (longest) prefix is visited first.
func NewCidrAddressTable(entries []CidrEntry) *CidrAddressTable {
	sorted := make([]CidrEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		oi, _ := sorted[i].Range.Mask.Size()
		oj, _ := sorted[j].Range.Mask.Size()
		return oi > oj
	})
	return &CidrAddressTable{entries: sorted}
}

// Entries returns the ordered mappings, most-specific first.
func (t *CidrAddressTable) Entries() []CidrEntry {
	if t == nil {
		return nil
	}
	return t.entries
}

// Lookup returns the most-specific mapping whose range is the default
// (netmask 0) or contains addr. A nil addr only matches a default
// mapping.
func (t *CidrAddressTable) Lookup(addr net.IP) (InetSocketAddress, bool) {
	if t == nil {
		return InetSocketAddress{}, false
	}
	for _, e := range t.entries {
		ones, _ := e.Range.Mask.Size()
		if ones == 0 {
			return e.Addr, true
		}
		if addr != nil && e.Range.Contains(addr) {
			return e.Addr, true
		}
	}
	return InetSocketAddress{}, false
}
