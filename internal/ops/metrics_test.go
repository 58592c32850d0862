package ops

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMustNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := MustNewMetrics(reg)

	m.Attempts.WithLabelValues("event", OutcomeSuccess).Inc()
	m.Attempts.WithLabelValues("event", OutcomeRetry).Add(2)
	m.Compensations.WithLabelValues("post").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Attempts.WithLabelValues("event", OutcomeSuccess)))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Attempts.WithLabelValues("event", OutcomeRetry)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Compensations.WithLabelValues("post")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMustNewMetrics_DoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustNewMetrics(reg)

	assert.Panics(t, func() { MustNewMetrics(reg) })
}
