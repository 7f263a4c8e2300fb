package api

import (
	"context"
	"encoding/json"
	"fleet-hub/auth"
	"fleet-hub/observability"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type fakeBroadcaster struct {
	paused  atomic.Bool
	healthy bool
	lastRun time.Time
}

func (f *fakeBroadcaster) Pause(context.Context) bool { return f.paused.CompareAndSwap(false, true) }
func (f *fakeBroadcaster) Resume() bool               { return f.paused.CompareAndSwap(true, false) }
func (f *fakeBroadcaster) Paused() bool               { return f.paused.Load() }
func (f *fakeBroadcaster) LastRun() time.Time         { return f.lastRun }
func (f *fakeBroadcaster) Healthy(time.Time) bool     { return f.healthy }

type fakeStats struct{}

func (fakeStats) Snapshot(now time.Time) observability.HubStats {
	return observability.HubStats{Sessions: 2, SampledAt: now}
}

func newTestEngine(t *testing.T, b *fakeBroadcaster) (*gin.Engine, *auth.Gate) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	gate := auth.NewGate(auth.GateConfig{
		Secret:   []byte("0123456789abcdef0123456789abcdef"),
		Issuer:   "fleet-hub",
		Audience: "fleet-clients",
	}, log, nil)
	hub := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	return NewHandler(log, hub, gate, b, fakeStats{}).Engine(), gate
}

func do(engine *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, r)
	return w
}

func TestHealth(t *testing.T) {
	req := require.New(t)
	b := &fakeBroadcaster{lastRun: time.Now()}
	engine, _ := newTestEngine(t, b)

	// Given a stale broadcaster
	w := do(engine, http.MethodGet, "/health", "")
	req.Equal(http.StatusServiceUnavailable, w.Code)

	// When it ticks again
	b.healthy = true
	w = do(engine, http.MethodGet, "/health", "")

	// Then the hub is serving
	req.Equal(http.StatusOK, w.Code)
	var resp healthResponse
	req.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	req.Equal("SERVING", resp.Status)
	req.NotNil(resp.LastRun)
}

func TestHubRouteIsMounted(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeBroadcaster{})
	w := do(engine, http.MethodGet, "/hub", "")
	require.Equal(t, http.StatusTeapot, w.Code)
}

func TestBroadcastToggles_AdminOnly(t *testing.T) {
	req := require.New(t)
	b := &fakeBroadcaster{healthy: true}
	engine, gate := newTestEngine(t, b)
	admin, err := gate.Issue("u-1", "root", []string{AdminRole}, time.Hour)
	req.NoError(err)
	viewer, err := gate.Issue("u-2", "bob", nil, time.Hour)
	req.NoError(err)

	// Anonymous and non-admin callers are turned away
	req.Equal(http.StatusUnauthorized, do(engine, http.MethodPost, "/api/broadcasts/stop", "").Code)
	req.Equal(http.StatusForbidden, do(engine, http.MethodPost, "/api/broadcasts/stop", viewer).Code)
	req.False(b.Paused())

	// When an admin stops broadcasts twice
	w := do(engine, http.MethodPost, "/api/broadcasts/stop", admin)
	req.Equal(http.StatusOK, w.Code)
	var resp toggleResponse
	req.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	req.True(resp.Paused)
	req.True(resp.Changed)

	w = do(engine, http.MethodPost, "/api/broadcasts/stop", admin)
	req.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	req.False(resp.Changed)

	// Then start resumes them
	w = do(engine, http.MethodPost, "/api/broadcasts/start", admin)
	req.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	req.False(resp.Paused)
	req.True(resp.Changed)
}

func TestDebugStats(t *testing.T) {
	req := require.New(t)
	engine, gate := newTestEngine(t, &fakeBroadcaster{})
	admin, err := gate.Issue("u-1", "root", []string{AdminRole}, time.Hour)
	req.NoError(err)

	w := do(engine, http.MethodGet, "/debug/stats", admin)

	req.Equal(http.StatusOK, w.Code)
	var stats observability.HubStats
	req.NoError(json.Unmarshal(w.Body.Bytes(), &stats))
	req.Equal(2, stats.Sessions)
}
