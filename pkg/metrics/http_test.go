package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestHTTPMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	m.Observe("/api/v1/input/products", http.MethodGet, http.StatusOK, 20*time.Millisecond)
	m.Observe("/api/v1/input/products", http.MethodGet, http.StatusOK, 30*time.Millisecond)
	m.Observe("", http.MethodGet, http.StatusNotFound, time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "credstock_http_requests_total", "route", "/api/v1/input/products")
	require.NoError(t, err)
	require.Equal(t, 2.0, got)

	got, err = fetchCounterValue(mfs, "credstock_http_requests_total", "route", "unmatched")
	require.NoError(t, err)
	require.Equal(t, 1.0, got)

	sum, err := fetchHistogramSum(mfs, "credstock_http_request_duration_seconds", "route", "/api/v1/input/products")
	require.NoError(t, err)
	require.InDelta(t, 0.05, sum, 1e-9)

	latency := findMetricFamily(mfs, "credstock_http_request_duration_seconds")
	require.NotNil(t, latency)
	require.Len(t, latency.GetMetric(), 2)
}

func TestHTTPMetricsNilSafe(t *testing.T) {
	var m *HTTPMetrics
	m.Observe("/x", http.MethodGet, http.StatusOK, time.Second)
	NewHTTPMetrics(nil).Observe("/x", http.MethodGet, http.StatusOK, time.Second)
}
