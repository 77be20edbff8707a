package server

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/somedsale/quotelist/pkg/logger"
	"github.com/somedsale/quotelist/pkg/metrics"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthAndReadiness(t *testing.T) {
	var ready atomic.Bool
	s := New(":0", ready.Load, logger.NewNop())
	h := s.Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/health").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/ready").Code)

	ready.Store(true)
	rec := get(t, h, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", rec.Body.String())
}

func TestNilReadyFuncIsReady(t *testing.T) {
	s := New(":0", nil, logger.NewNop())
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/ready").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.CyclesTotal.Inc()
	s := New(":0", nil, logger.NewNop())

	rec := get(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "quotelist_cycles_total")
}
