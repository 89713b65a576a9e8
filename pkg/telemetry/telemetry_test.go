package telemetry

import (
	"context"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCounterValue(c prometheus.Counter) (float64, error) {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0, err
	}
	return m.GetCounter().GetValue(), nil
}

func TestNewTracerDisabledIsNoopAndRoundTripsEmptyContext(t *testing.T) {
	tr, err := NewTracer(context.Background(), TracerConfig{Enabled: false})
	require.NoError(t, err)

	ctx, span := tr.StartTask(context.Background(), "handle-event")
	defer span.End()

	tc := tr.InjectTraceContext(ctx)
	assert.Empty(t, tc)

	require.NoError(t, tr.Shutdown(context.Background()))
}

func TestExtractTraceContextIgnoresEmptyTraceparent(t *testing.T) {
	tr, err := NewTracer(context.Background(), TracerConfig{Enabled: false})
	require.NoError(t, err)

	ctx := context.Background()
	got := tr.ExtractTraceContext(ctx, "")
	assert.Equal(t, ctx, got)
}

func TestMetricsRecordersAreNilSafe(t *testing.T) {
	var m *Metrics
	m.RecordLockAcquired("execute")
	m.RecordTimeout("conv-1")
	m.RecordDelegationCompletion(true)
	m.RecordDelegationOrphan()
	m.RecordSyntheticRepair()
	m.RecordPersistenceRetry(false)
	assert.Nil(t, m.Registry())
}

func TestMetricsRecordersIncrementCounters(t *testing.T) {
	m := NewMetrics("tenex")
	m.RecordLockAcquired("execute")
	m.RecordDelegationOrphan()

	count, err := testCounterValue(m.delegationOrphans)
	require.NoError(t, err)
	assert.Equal(t, float64(1), count)
}
