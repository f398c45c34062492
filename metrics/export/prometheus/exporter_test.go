package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/portalauth"
	"github.com/MrEthical07/portalauth/metrics/export/internaldefs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	snapshot portalauth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() portalauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                        { return f.dropped }

func TestCollectorExposesCountersAndHistograms(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: portalauth.MetricsSnapshot{
			Counters: map[portalauth.MetricID]uint64{
				portalauth.MetricLoginSuccess:   7,
				portalauth.MetricSessionEvicted: 2,
			},
			Histograms: map[portalauth.MetricID][]uint64{
				portalauth.MetricLoginLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	registry := prometheus.NewRegistry()
	require.NoError(t, registry.Register(c))

	expected := `
# HELP portalauth_login_success_total Successful logins.
# TYPE portalauth_login_success_total counter
portalauth_login_success_total 7
# HELP portalauth_session_evicted_total Sessions evicted by the per-user cap.
# TYPE portalauth_session_evicted_total counter
portalauth_session_evicted_total 2
# HELP portalauth_audit_dropped_total Audit events dropped because the dispatcher buffer was full.
# TYPE portalauth_audit_dropped_total counter
portalauth_audit_dropped_total 2
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected),
		"portalauth_login_success_total", "portalauth_session_evicted_total", "portalauth_audit_dropped_total"))

	families, err := registry.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() != "portalauth_login_latency_seconds" {
			continue
		}
		found = true
		h := mf.GetMetric()[0].GetHistogram()
		assert.Equal(t, uint64(36), h.GetSampleCount())
		assert.Equal(t, uint64(1), h.GetBucket()[0].GetCumulativeCount())
	}
	assert.True(t, found, "latency histogram not exported")
}

func TestCollectorSkipsDisabledHistograms(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: portalauth.MetricsSnapshot{
			Counters:   map[portalauth.MetricID]uint64{},
			Histograms: map[portalauth.MetricID][]uint64{},
		},
	})
	// Counters plus audit dropped; no histograms.
	assert.Equal(t, len(internaldefs.CounterDefs)+1, testutil.CollectAndCount(c))
}

func TestHandlerServesTextFormat(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: portalauth.MetricsSnapshot{
			Counters: map[portalauth.MetricID]uint64{portalauth.MetricLoginSuccess: 1},
		},
	})

	rec := httptest.NewRecorder()
	Handler(c).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), "portalauth_login_success_total 1")
}
