package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFailedDestinationsAddContainsClear(t *testing.T) {
	f := NewFailedDestinations()
	assert.False(t, f.Contains("remote://node1:8080"))

	f.Add("remote://node1:8080")
	assert.True(t, f.Contains("remote://node1:8080"))
	assert.Equal(t, 1, f.Len())

	f.Clear("remote://node1:8080")
	assert.False(t, f.Contains("remote://node1:8080"))
	assert.Equal(t, 0, f.Len())
}

func TestFailedDestinationsIndependentKeys(t *testing.T) {
	f := NewFailedDestinations()
	f.Add("a")
	f.Add("b")
	assert.Equal(t, 2, f.Len())

	f.Clear("a")
	assert.False(t, f.Contains("a"))
	assert.True(t, f.Contains("b"))
}
