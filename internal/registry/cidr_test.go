package registry

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCIDR(t *testing.T, s string) *net.IPNet {
	t.Helper()
	_, n, err := net.ParseCIDR(s)
	require.NoError(t, err)
	return n
}

func TestCidrAddressTableMostSpecificWins(t *testing.T) {
	table := NewCidrAddressTable([]CidrEntry{
		{Range: mustCIDR(t, "0.0.0.0/0"), Addr: InetSocketAddress{Host: "default.example", Port: 9999}},
		{Range: mustCIDR(t, "10.0.0.0/8"), Addr: InetSocketAddress{Host: "wide.example", Port: 1000}},
		{Range: mustCIDR(t, "10.0.1.0/24"), Addr: InetSocketAddress{Host: "narrow.example", Port: 2000}},
	})

	got, ok := table.Lookup(net.ParseIP("10.0.1.5"))
	require.True(t, ok)
	assert.Equal(t, "narrow.example", got.Host)

	got, ok = table.Lookup(net.ParseIP("10.0.2.5"))
	require.True(t, ok)
	assert.Equal(t, "wide.example", got.Host)

	got, ok = table.Lookup(net.ParseIP("172.16.0.1"))
	require.True(t, ok)
	assert.Equal(t, "default.example", got.Host, "falls back to the netmask-0 default")
}

func TestCidrAddressTableNoDefaultNoMatch(t *testing.T) {
	table := NewCidrAddressTable([]CidrEntry{
		{Range: mustCIDR(t, "10.0.0.0/8"), Addr: InetSocketAddress{Host: "wide.example", Port: 1000}},
	})

	_, ok := table.Lookup(net.ParseIP("192.168.0.1"))
	assert.False(t, ok)
}

func TestCidrAddressTableNilSafe(t *testing.T) {
	var table *CidrAddressTable
	_, ok := table.Lookup(net.ParseIP("10.0.0.1"))
	assert.False(t, ok)
	assert.Nil(t, table.Entries())
}

func TestInetSocketAddressHostPortBracketsIPv6(t *testing.T) {
	a := InetSocketAddress{Host: "::1", Port: 8080}
	assert.Equal(t, "[::1]:8080", a.HostPort())

	b := InetSocketAddress{Host: "10.0.0.1", Port: 8080}
	assert.Equal(t, "10.0.0.1:8080", b.HostPort())

	c := InetSocketAddress{Host: "node1.example.com", Port: 8080}
	assert.Equal(t, "node1.example.com:8080", c.HostPort())
}
