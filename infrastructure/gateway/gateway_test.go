package gateway

import (
	"context"
	"fleet-hub/domain"
	"fleet-hub/errors"
	"fleet-hub/mocks"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	stdErrors "errors"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestHTTPGateway_Decodes_Runtime_Payloads(t *testing.T) {
	req := require.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer runtime-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/api/system/status":
			_, _ = w.Write([]byte(`{"timestamp":"2026-03-01T10:00:00Z","isHealthy":true,"cpuUsage":21.5,
				"memoryUsage":60,"diskUsage":45,"activeAgents":2,"totalModules":8,"uptime":"1.00:00:00"}`))
		case "/api/agents":
			_, _ = w.Write([]byte(`[{"id":"a1","name":"deployer","type":"Automation","status":"Running",
				"description":"","resourceUsage":{"cpu":1.5,"memory":128,"threads":4,"handles":10},
				"configuration":{"mode":"auto"}}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	g := NewHTTPGateway(logs.GetLoggerFromLevel(slog.LevelDebug), srv.URL+"/", "runtime-token", time.Second)

	status, err := g.GetSystemStatus(context.Background())
	req.NoError(err)
	req.True(status.IsHealthy)
	req.Equal(21.5, status.CPUUsage)
	req.Equal(24*time.Hour, status.Uptime)

	agents, err := g.GetAgents(context.Background())
	req.NoError(err)
	req.Len(agents, 1)
	req.Equal("deployer", agents[0].Name)
	req.Equal(&domain.ResourceUsage{CPU: 1.5, Memory: 128, Threads: 4, Handles: 10}, agents[0].ResourceUsage)
	req.Equal(map[string]string{"mode": "auto"}, agents[0].Configuration)
}

func TestHTTPGateway_Failures_Are_Runtime_Unavailable(t *testing.T) {
	req := require.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/agents" {
			_, _ = w.Write([]byte(`not json`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	g := NewHTTPGateway(logs.GetLoggerFromLevel(slog.LevelDebug), srv.URL, "", time.Second)

	_, err := g.GetSystemStatus(context.Background())
	req.True(stdErrors.Is(err, errors.ErrRuntimeUnavailable))

	_, err = g.GetAgents(context.Background())
	req.True(stdErrors.Is(err, errors.ErrRuntimeUnavailable))

	srv.Close()
	_, err = g.GetAgents(context.Background())
	req.True(stdErrors.Is(err, errors.ErrRuntimeUnavailable))
}

func TestHostGateway_GetSystemStatus(t *testing.T) {
	tests := []struct {
		name    string
		metrics HostMetrics
		healthy bool
	}{
		{"Nominal", HostMetrics{CPU: 20, Memory: 50, Disk: 40, Uptime: time.Hour}, true},
		{"CPU saturated", HostMetrics{CPU: 95, Memory: 50, Disk: 40}, false},
		{"Memory pressure", HostMetrics{CPU: 20, Memory: 85, Disk: 40}, false},
		{"Disk almost full", HostMetrics{CPU: 20, Memory: 50, Disk: 92}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			ctrl := gomock.NewController(t)
			repo := mocks.NewMockAgentRepository(ctrl)
			repo.EXPECT().List().Return([]domain.AgentSummary{
				{ID: "1", Status: domain.AgentStatusRunning},
				{ID: "2", Status: "Stopped"},
				{ID: "3", Status: domain.AgentStatusRunning},
			}, nil)

			g := NewHostGateway(logs.GetLoggerFromLevel(slog.LevelDebug),
				func(ctx context.Context) (HostMetrics, error) { return tt.metrics, nil }, repo)

			status, err := g.GetSystemStatus(context.Background())
			req.NoError(err)
			req.Equal(tt.healthy, status.IsHealthy)
			req.Equal(2, status.ActiveAgents)
			req.Equal(3, status.TotalModules)
			req.Equal(tt.metrics.Uptime, status.Uptime)
		})
	}
}

func TestHostGateway_Sampler_Failure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockAgentRepository(ctrl)

	g := NewHostGateway(logs.GetLoggerFromLevel(slog.LevelDebug),
		func(ctx context.Context) (HostMetrics, error) { return HostMetrics{}, stdErrors.New("no /proc") }, repo)

	_, err := g.GetSystemStatus(context.Background())
	req.ErrorIs(err, errors.ErrRuntimeUnavailable)
}
