package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCommand("login", 10*time.Millisecond)
	c.RecordCommand("login", 20*time.Millisecond)
	c.RecordCommand("status", 5*time.Millisecond)
	c.RecordLogin(true)
	c.RecordLogin(false)
	c.RecordActionFailure("start")
	c.RecordStatusQuery()

	assert.Equal(t, float64(2), testutil.ToFloat64(c.commands.WithLabelValues("login")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.commands.WithLabelValues("status")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.logins))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.loginFailures))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.actionFailures.WithLabelValues("start")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.statusQueries))
}

func TestMetricsEndpointExposesCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordLogin(true)

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	s := NewServer("127.0.0.1:0", prometheus.NewRegistry())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
