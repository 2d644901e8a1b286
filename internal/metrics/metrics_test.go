package metrics_test

import (
	"testing"

	"github.com/jrsteele09/go-auth-session/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.ObserveExchange(metrics.OutcomeSuccess)
	m.ObserveExchange(metrics.OutcomeSuccess)
	m.ObserveVerification(metrics.OutcomeRejected)
	m.IncrementInvalidations()

	require.Equal(t, 2.0, testutil.ToFloat64(m.HandoffExchanges.WithLabelValues(metrics.OutcomeSuccess)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Verifications.WithLabelValues(metrics.OutcomeRejected)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Invalidations))

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *metrics.Metrics
	require.NotPanics(t, func() {
		m.ObserveExchange(metrics.OutcomeSuccess)
		m.ObserveVerification(metrics.OutcomeNetwork)
		m.IncrementInvalidations()
	})
}
