package workers

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Liveness reports whether a component ran recently enough, typically
// Broadcaster.Healthy.
type Liveness interface {
	Healthy(now time.Time) bool
}

// StatusSetter receives serving status transitions, typically the gRPC
// health server.
type StatusSetter interface {
	SetServingStatus(status healthpb.HealthCheckResponse_ServingStatus)
}

// HealthWorker mirrors the broadcaster liveness into the gRPC health status.
// Only transitions are pushed and logged.
type HealthWorker struct {
	log      *slog.Logger
	liveness Liveness
	setter   StatusSetter
	interval time.Duration
	serving  atomic.Bool
	known    atomic.Bool
}

func NewHealthWorker(log *slog.Logger,
	liveness Liveness,
	setter StatusSetter,
	interval time.Duration) *HealthWorker {
	return &HealthWorker{
		log:      log,
		liveness: liveness,
		setter:   setter,
		interval: interval,
	}
}

func (w *HealthWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.Check(time.Now())
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health checks")
			w.setter.SetServingStatus(healthpb.HealthCheckResponse_NOT_SERVING)
			return nil
		case now := <-ticker.C:
			w.Check(now)
		}
	}
}

// Check evaluates liveness at now and returns the resulting serving flag.
func (w *HealthWorker) Check(now time.Time) bool {
	healthy := w.liveness.Healthy(now)
	previous := w.serving.Swap(healthy)
	if w.known.Swap(true) && previous == healthy {
		return healthy
	}
	if healthy {
		w.log.Info("Hub is serving")
		w.setter.SetServingStatus(healthpb.HealthCheckResponse_SERVING)
	} else {
		w.log.Warn("Hub is not serving, broadcaster is stale")
		w.setter.SetServingStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return healthy
}

// Serving returns the last evaluated status.
func (w *HealthWorker) Serving() bool {
	return w.serving.Load()
}
