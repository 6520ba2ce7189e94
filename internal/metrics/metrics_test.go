package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vmdash.io/vmdash/internal/catalog"
	"vmdash.io/vmdash/internal/dispatch"
	"vmdash.io/vmdash/internal/domain"
	"vmdash.io/vmdash/internal/notification"
)

// value returns the value of the counter or gauge named name whose labels
// include every pair in labels.
func value(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			matched := 0
			for _, lp := range metric.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want == lp.GetValue() {
					matched++
				}
			}
			if matched != len(labels) {
				continue
			}
			if c := metric.GetCounter(); c != nil {
				return c.GetValue()
			}
			if g := metric.GetGauge(); g != nil {
				return g.GetValue()
			}
			if h := metric.GetHistogram(); h != nil {
				return float64(h.GetSampleCount())
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func TestReloadFinished(t *testing.T) {
	m := New()
	m.ReloadFinished(domain.ResourceVMs, 20*time.Millisecond, catalog.OutcomeApplied)
	m.ReloadFinished(domain.ResourceVMs, 5*time.Millisecond, catalog.OutcomeStale)
	m.ReloadFinished(domain.ResourceVMs, time.Second, catalog.OutcomeApplied)

	assert.Equal(t, 2.0, value(t, m, "vmdash_catalog_reloads_total", map[string]string{"resource": "vms", "outcome": "applied"}))
	assert.Equal(t, 1.0, value(t, m, "vmdash_catalog_reloads_total", map[string]string{"resource": "vms", "outcome": "stale"}))
	assert.Equal(t, 3.0, value(t, m, "vmdash_catalog_reload_duration_seconds", map[string]string{"resource": "vms"}))
}

func TestActionsAndNotifications(t *testing.T) {
	m := New()
	m.ActionFinished("delete", dispatch.OutcomeDeclined)

	center := notification.NewCenter(time.Minute, m)
	defer center.Close()
	center.Notify("VM 'web' started", notification.SeveritySuccess)
	center.Notify("Error loading VM list", notification.SeverityError)
	center.Notify("Error loading clusters", notification.SeverityError)

	assert.Equal(t, 1.0, value(t, m, "vmdash_actions_total", map[string]string{"action": "delete", "outcome": "declined"}))
	assert.Equal(t, 2.0, value(t, m, "vmdash_notifications_total", map[string]string{"severity": "error"}))
	assert.Equal(t, 1.0, value(t, m, "vmdash_notifications_total", map[string]string{"severity": "success"}))
}

type fixedStats domain.VMStats

func (s fixedStats) Stats() domain.VMStats { return domain.VMStats(s) }

func TestWatchVMs(t *testing.T) {
	m := New()
	m.WatchVMs(fixedStats{
		Total:      5,
		Running:    3,
		Stopped:    2,
		ByProvider: map[domain.ProviderID]int{domain.ProviderVMware: 3, domain.ProviderNutanix: 2},
	})

	assert.Equal(t, 5.0, value(t, m, "vmdash_vms", nil))
	assert.Equal(t, 3.0, value(t, m, "vmdash_vms_by_state", map[string]string{"state": "running"}))
	assert.Equal(t, 2.0, value(t, m, "vmdash_vms_by_state", map[string]string{"state": "stopped"}))
	assert.Equal(t, 2.0, value(t, m, "vmdash_vms_by_provider", map[string]string{"provider": "nutanix"}))
}

func TestInstrumentTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/profile" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New()
	client := &http.Client{Transport: m.InstrumentTransport(nil)}
	for _, path := range []string{"/api/vms", "/api/templates", "/api/profile"} {
		resp, err := client.Get(srv.URL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}

	assert.Equal(t, 2.0, value(t, m, "vmdash_backend_requests_total", map[string]string{"method": "get", "code": "200"}))
	assert.Equal(t, 1.0, value(t, m, "vmdash_backend_requests_total", map[string]string{"method": "get", "code": "401"}))
	assert.Equal(t, 0.0, value(t, m, "vmdash_backend_requests_in_flight", nil))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ActionFinished("start", dispatch.OutcomeSucceeded)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.True(t, strings.Contains(string(body), `vmdash_actions_total{action="start",outcome="succeeded"} 1`))
}
