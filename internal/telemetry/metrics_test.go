package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestProbesTotalIncrementsByOutcome(t *testing.T) {
	before := testutil.ToFloat64(ProbesTotal.WithLabelValues(OutcomeSucceeded))
	ProbesTotal.WithLabelValues(OutcomeSucceeded).Inc()
	after := testutil.ToFloat64(ProbesTotal.WithLabelValues(OutcomeSucceeded))
	assert.Equal(t, before+1, after)
}

func TestOutstandingProbesGauge(t *testing.T) {
	before := testutil.ToFloat64(OutstandingProbes)
	OutstandingProbes.Inc()
	OutstandingProbes.Inc()
	OutstandingProbes.Dec()
	after := testutil.ToFloat64(OutstandingProbes)
	assert.Equal(t, before+1, after)
}

func TestResolutionsTotalCounter(t *testing.T) {
	before := testutil.ToFloat64(ResolutionsTotal)
	ResolutionsTotal.Inc()
	after := testutil.ToFloat64(ResolutionsTotal)
	assert.Equal(t, before+1, after)
}
