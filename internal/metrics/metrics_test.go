package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesPipelineMetrics(t *testing.T) {
	m := New()
	pending, activity := 3.0, 7.0
	m.WatchRuntime(func() float64 { return pending }, func() float64 { return activity })

	m.AlertsEnqueued.WithLabelValues("monitor").Add(2)
	m.AlertsDelivered.Inc()
	m.InboundRejected.WithLabelValues("unauthorized").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	for _, want := range []string{
		`dockwatch_alerts_enqueued_total{source="monitor"} 2`,
		`dockwatch_alerts_delivered_total 1`,
		`dockwatch_inbound_rejected_total{reason="unauthorized"} 1`,
		`dockwatch_alert_queue_depth 3`,
		`dockwatch_activity 7`,
		`dockwatch_build_info`,
		`go_goroutines`,
	} {
		assert.Contains(t, string(body), want)
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.PollFailures.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.PollFailures))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.PollFailures))
}
