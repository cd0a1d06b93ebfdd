package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHandler_Healthz(t *testing.T) {
	srv := httptest.NewServer(Handler(prometheus.NewRegistry(), nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(b))
}

func TestHandler_DefaultGathererExposesEngineMetrics(t *testing.T) {
	EdgeBps.WithLabelValues("TEST/USDT").Set(70)
	Skips.WithLabelValues("TEST/USDT", "stale_data").Inc()

	srv := httptest.NewServer(Handler(nil, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	body := string(b)

	assert.True(t, strings.Contains(body, `arb_edge_after_costs_bps{symbol="TEST/USDT"} 70`))
	assert.True(t, strings.Contains(body, `arb_skips_total{reason="stale_data",symbol="TEST/USDT"} 1`))
}

func TestHandler_HealthzNotReady(t *testing.T) {
	h := Handler(prometheus.NewRegistry(), func() error { return errors.New("no healthy ladder provider") })
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "no healthy ladder provider")
}

func TestServe_EmptyAddr(t *testing.T) {
	assert.NoError(t, Serve(context.Background(), "", nil, nil, zap.NewNop()))
}
