package gateway

import (
	"context"
	"fleet-hub/contract"
	"fleet-hub/domain"
	"fleet-hub/errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/disk"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/mem"
)

// Health thresholds, in percent.
const (
	maxHealthyCPU    = 80
	maxHealthyMemory = 85
	maxHealthyDisk   = 90
)

type HostMetrics struct {
	CPU    float64
	Memory float64
	Disk   float64
	Uptime time.Duration
}

type HostSampler func(ctx context.Context) (HostMetrics, error)

// GopsutilSampler reads the local machine. diskPath is the volume reported as disk usage.
func GopsutilSampler(diskPath string) HostSampler {
	return func(ctx context.Context) (HostMetrics, error) {
		cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
		if err != nil {
			return HostMetrics{}, fmt.Errorf("cpu: %w", err)
		}
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return HostMetrics{}, fmt.Errorf("memory: %w", err)
		}
		usage, err := disk.UsageWithContext(ctx, diskPath)
		if err != nil {
			return HostMetrics{}, fmt.Errorf("disk: %w", err)
		}
		uptime, err := host.UptimeWithContext(ctx)
		if err != nil {
			return HostMetrics{}, fmt.Errorf("uptime: %w", err)
		}
		var cpuPercent float64
		if len(cpuPercents) > 0 {
			cpuPercent = cpuPercents[0]
		}
		return HostMetrics{
			CPU:    cpuPercent,
			Memory: vm.UsedPercent,
			Disk:   usage.UsedPercent,
			Uptime: time.Duration(uptime) * time.Second,
		}, nil
	}
}

// HostGateway serves the hub from the local machine and the agent inventory,
// for deployments where the hub runs next to the agents.
type HostGateway struct {
	log    *slog.Logger
	sample HostSampler
	agents contract.AgentRepository
	now    func() time.Time
}

func NewHostGateway(log *slog.Logger, sample HostSampler, agents contract.AgentRepository) *HostGateway {
	return &HostGateway{log: log, sample: sample, agents: agents, now: time.Now}
}

func (g *HostGateway) GetSystemStatus(ctx context.Context) (domain.StatusSnapshot, error) {
	metrics, err := g.sample(ctx)
	if err != nil {
		return domain.StatusSnapshot{}, fmt.Errorf("%w: %v", errors.ErrRuntimeUnavailable, err)
	}
	agents, err := g.GetAgents(ctx)
	if err != nil {
		return domain.StatusSnapshot{}, err
	}
	return domain.StatusSnapshot{
		Timestamp: g.now().UTC(),
		IsHealthy: metrics.CPU < maxHealthyCPU &&
			metrics.Memory < maxHealthyMemory &&
			metrics.Disk < maxHealthyDisk,
		CPUUsage:    metrics.CPU,
		MemoryUsage: metrics.Memory,
		DiskUsage:   metrics.Disk,
		ActiveAgents: lo.CountBy(agents, func(a domain.AgentSummary) bool {
			return a.Status == domain.AgentStatusRunning
		}),
		TotalModules: len(agents),
		Uptime:       metrics.Uptime,
	}, nil
}

func (g *HostGateway) GetAgents(ctx context.Context) ([]domain.AgentSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrRuntimeUnavailable, err)
	}
	agents, err := g.agents.List()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrRuntimeUnavailable, err)
	}
	return agents, nil
}
