package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHealthHandler_Degraded(t *testing.T) {
	h := NewHandler(zap.NewNop().Sugar())
	h.SetMetadata("run", "run-1")
	h.RegisterChecker("pollers", NewPollerChecker(func() int { return 0 }, 3))

	rec := httptest.NewRecorder()
	h.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Equal(t, "run-1", resp.Metadata["run"])
	require.Len(t, resp.Checks, 1)
	assert.Equal(t, "pollers", resp.Checks[0].Name)
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	h := NewHandler(zap.NewNop().Sugar())
	h.RegisterChecker("pollers", NewPollerChecker(func() int { return 2 }, 3))
	h.RegisterChecker("redis", NewRedisChecker("127.0.0.1:6379", func(ctx context.Context) error {
		return errors.New("connection refused")
	}))

	rec := httptest.NewRecorder()
	h.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

func TestReadinessHandler_FollowsPollPhase(t *testing.T) {
	h := NewHandler(zap.NewNop().Sugar())

	rec := httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "not ready without a condition")

	active := 0
	h.ReadyWhen(func() bool { return active > 0 })
	assert.False(t, h.IsReady())

	active = 3
	rec = httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, h.IsReady())

	active = 0
	rec = httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "not ready once every poller is done")
}

func TestHealthHandler_ChecksInNameOrder(t *testing.T) {
	h := NewHandler(zap.NewNop().Sugar())
	h.RegisterChecker("redis", NewRedisChecker("127.0.0.1:6379", func(ctx context.Context) error { return nil }))
	h.RegisterChecker("pollers", NewPollerChecker(func() int { return 1 }, 1))

	rec := httptest.NewRecorder()
	h.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Checks, 2)
	assert.Equal(t, "pollers", resp.Checks[0].Name)
	assert.Equal(t, "redis", resp.Checks[1].Name)
	assert.Equal(t, StatusHealthy, resp.Status)
}

func TestPollerChecker(t *testing.T) {
	active := 2
	c := NewPollerChecker(func() int { return active }, 2)
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)
	assert.Equal(t, "2/2 pollers in progress", c.Check(context.Background()).Message)

	active = 0
	assert.Equal(t, StatusDegraded, c.Check(context.Background()).Status)
}
