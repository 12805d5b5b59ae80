package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumInt(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()
	require.NotNil(t, m)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "unexpected data type %T", m.Data)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestRecordHelpers(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordDecision(ctx, "switch", "speaker_change", 0.002)
	m.RecordDecision(ctx, "stable", "speaker_change", 0.001)
	m.RecordSwitch(ctx, "auto", 0.3)
	m.RecordSample(ctx, "audio", "accepted")
	m.SessionStarted(ctx)
	m.SessionStarted(ctx)
	m.SessionStopped(ctx)

	rm := collect(t, reader)
	assert.Equal(t, int64(2), sumInt(t, findMetric(rm, "autoswitch.decisions")))
	assert.Equal(t, int64(1), sumInt(t, findMetric(rm, "autoswitch.switches")))
	assert.Equal(t, int64(1), sumInt(t, findMetric(rm, "autoswitch.telemetry.samples")))
	assert.Equal(t, int64(1), sumInt(t, findMetric(rm, "autoswitch.active_sessions")))

	hist := findMetric(rm, "autoswitch.decision.latency")
	require.NotNil(t, hist)
	data, ok := hist.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, data.DataPoints, 1)
	assert.Equal(t, uint64(2), data.DataPoints[0].Count)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordDecision(ctx, "stable", "manual", 0)
		m.RecordSwitch(ctx, "manual", 0)
		m.RecordSample(ctx, "audio", "invalid")
		m.SessionStarted(ctx)
		m.SessionStopped(ctx)
	})
}

func TestGinMiddleware_RecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, reader := newTestMetrics(t)

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.GET("/sessions/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/abc", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	hist := findMetric(collect(t, reader), "autoswitch.http.request.duration")
	require.NotNil(t, hist)
	data := hist.Data.(metricdata.Histogram[float64])
	require.Len(t, data.DataPoints, 1)
	route, ok := data.DataPoints[0].Attributes.Value("route")
	require.True(t, ok)
	assert.Equal(t, "/sessions/:id", route.AsString())
}
