package resolver

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/linkerd/ejb-locate/internal/telemetry"
)

func TestBlacklistAddIdempotent(t *testing.T) {
	b := NewBlacklist()
	assert.False(t, b.Contains("remote://a:1"))
	b.Add("remote://a:1")
	b.Add("remote://a:1")
	assert.True(t, b.Contains("remote://a:1"))
}

func TestBlacklistAddUpdatesSizeGauge(t *testing.T) {
	b := NewBlacklist()
	b.Add("remote://a:1")
	afterOne := testutil.ToFloat64(telemetry.BlacklistSize)
	b.Add("remote://b:2")
	afterTwo := testutil.ToFloat64(telemetry.BlacklistSize)
	assert.Equal(t, afterOne+1, afterTwo)
	b.Add("remote://a:1")
	assert.Equal(t, afterTwo, testutil.ToFloat64(telemetry.BlacklistSize))
}

func TestBlacklistIgnoresEmptyURI(t *testing.T) {
	b := NewBlacklist()
	b.Add("")
	assert.False(t, b.Contains(""))
}
