package authcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetIfAbsentFirstWriterWins(t *testing.T) {
	c := New()
	c.SetIfAbsent("clusterA", "remote://first:8080")
	c.SetIfAbsent("clusterA", "remote://second:8080")

	uri, ok := c.Get("clusterA")
	assert.True(t, ok)
	assert.Equal(t, "remote://first:8080", uri)
}

func TestGetMissingCluster(t *testing.T) {
	c := New()
	_, ok := c.Get("clusterA")
	assert.False(t, ok)
}

func TestClearRemovesEntry(t *testing.T) {
	c := New()
	c.SetIfAbsent("clusterA", "remote://first:8080")
	c.Clear("clusterA")

	_, ok := c.Get("clusterA")
	assert.False(t, ok)

	// Clear allows a new first-writer to win again.
	c.SetIfAbsent("clusterA", "remote://second:8080")
	uri, ok := c.Get("clusterA")
	assert.True(t, ok)
	assert.Equal(t, "remote://second:8080", uri)
}
