package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersCollectors(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.Pipeline.RecordDropped("intake")
	m.Pipeline.RecordDropped("intake")
	m.Pipeline.SetQueueDepth("intake", 3, 100)
	m.Datastore.RecordCanonicalRewrite()
	m.Notification.RecordRateLimited("webhook")

	count, err := testutil.GatherAndCount(m.Registry(), "platewatch_pipeline_items_dropped_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `platewatch_pipeline_items_dropped_total{queue="intake"} 2`)
	assert.Contains(t, string(body), "platewatch_datastore_canonical_rewrites_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNewMetrics_Independent(t *testing.T) {
	t.Parallel()

	// each instance owns its registry, so two can coexist in one process
	_, err := NewMetrics()
	require.NoError(t, err)
	_, err = NewMetrics()
	require.NoError(t, err)
}

func gaugeValue(t *testing.T, families []*dto.MetricFamily, name, queue string) float64 {
	t.Helper()
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "queue" && label.GetValue() == queue {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s{queue=%q} not found", name, queue)
	return 0
}

func TestPipelineMetrics_QueueGauges(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.Pipeline.SetQueueDepth("notification", 7, 50)
	m.Pipeline.SetQueueDepth("notification", 4, 50)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.InDelta(t, 4, gaugeValue(t, families, "platewatch_pipeline_queue_depth", "notification"), 0)
	assert.InDelta(t, 50, gaugeValue(t, families, "platewatch_pipeline_queue_capacity", "notification"), 0)
}
