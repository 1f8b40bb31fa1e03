package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smarttraffic/console/internal/api/middleware"
	"github.com/smarttraffic/console/internal/api/models"
)

func limited(cfg middleware.RateLimitConfig) http.Handler {
	return middleware.RequestID(
		middleware.RateLimitByIP(cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})),
	)
}

func send(h http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/intersections/int-001/violation-checks", http.NoBody)
	req.RemoteAddr = ip
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitByIP_BlocksOverLimitPerIP(t *testing.T) {
	h := limited(middleware.RateLimitConfig{RequestLimit: 2, WindowLength: 30 * time.Second})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, send(h, "10.1.0.1:4000").Code, "request %d", i+1)
	}

	rec := send(h, "10.1.0.1:4000")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var problem models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, models.ProblemTypeTooManyRequests, problem.Type)
	assert.Equal(t, "/v1/intersections/int-001/violation-checks", problem.Instance)
	assert.Contains(t, problem.TraceID, "req_")

	assert.Equal(t, http.StatusOK, send(h, "10.1.0.2:4000").Code, "other clients are unaffected")
}

func TestRateLimitConfigs(t *testing.T) {
	assert.Equal(t, 60, middleware.CommandRateLimit.RequestLimit)
	assert.Equal(t, 10, middleware.ScanRateLimit.RequestLimit)
	assert.Equal(t, time.Minute, middleware.ScanRateLimit.WindowLength)
}
