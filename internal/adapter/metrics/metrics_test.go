package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIngestMetrics_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewIngestMetrics(reg)

	m.LinesTotal.WithLabelValues("parsed").Add(3)
	m.EventsDropped.Inc()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.LinesTotal.WithLabelValues("parsed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsDropped))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	// A second set on a separate registry must not collide.
	assert.NotPanics(t, func() { NewIngestMetrics(prometheus.NewRegistry()) })
}
