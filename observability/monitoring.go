package observability

import (
	"context"
	"fleet-hub/domain/event"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/shirou/gopsutil/process"
)

// QueueInfo is the last sampled depth of one channel or connection queue.
type QueueInfo struct {
	Name     string `json:"name"`
	Length   int    `json:"length"`
	Capacity int    `json:"capacity"`
	sampled  time.Time
}

// HubStats aggregates what /debug/stats renders.
type HubStats struct {
	Sessions         int               `json:"sessions"`
	Groups           int               `json:"groups"`
	BroadcastPaused  bool              `json:"broadcast_paused"`
	BroadcastLastRun *time.Time        `json:"broadcast_last_run,omitempty"`
	BroadcastHealthy bool              `json:"broadcast_healthy"`
	Counters         map[string]uint64 `json:"counters"`
	Queues           []QueueInfo       `json:"queues"`
	AllocMemMb       uint64            `json:"alloc_mem_mb"`
	NumGC            uint32            `json:"num_gc"`
	ProcessRSSMb     uint64            `json:"process_rss_mb"`
	ProcessCPU       float64           `json:"process_cpu_percent"`
	NumGoroutine     int               `json:"num_goroutine"`
	SampledAt        time.Time         `json:"sampled_at"`
}

// Sources are read on every snapshot, all fields are optional.
type Sources struct {
	Sessions func() int
	Groups   func() int
	Paused   func() bool
	LastRun  func() time.Time
	Healthy  func(now time.Time) bool
	Counter  *event.Counter
}

// HubMonitor keeps runtime memory stats fresh in the background and
// records the latest queue depths from ChannelCapacity telemetry.
// Queue samples older than staleAfter belong to closed connections and
// are pruned on snapshot.
type HubMonitor struct {
	log        *slog.Logger
	sources    Sources
	staleAfter time.Duration

	proc *process.Process

	mu     sync.RWMutex
	queues map[string]QueueInfo
	mem    runtime.MemStats
	rss    uint64
	cpu    float64
}

func NewHubMonitor(log *slog.Logger, sources Sources, staleAfter time.Duration) *HubMonitor {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("Process stats unavailable", "error", err)
		proc = nil
	}
	return &HubMonitor{
		proc:       proc,
		log:        log,
		sources:    sources,
		staleAfter: staleAfter,
		queues:     make(map[string]QueueInfo),
	}
}

// Handle implements event.Handler for ChannelCapacity events.
func (m *HubMonitor) Handle(e event.Event) {
	if e.Type != event.ChannelCapacityType {
		return
	}
	payload, ok := e.Payload.(event.ChannelCapacity)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[payload.ChannelName] = QueueInfo{
		Name:     payload.ChannelName,
		Length:   payload.Length,
		Capacity: payload.Capacity,
		sampled:  e.CreatedAt,
	}
}

// Listen refreshes memory stats every interval until ctx is done.
func (m *HubMonitor) Listen(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	m.updateMem()
	for {
		select {
		case <-ctx.Done():
			m.log.Debug("Monitoring stopped")
			return
		case <-ticker.C:
			m.updateMem()
		}
	}
}

func (m *HubMonitor) updateMem() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	rss, cpu := m.selfStats()
	m.mu.Lock()
	m.mem = ms
	m.rss = rss
	m.cpu = cpu
	m.mu.Unlock()
	m.log.Debug("Memory stats updated", "alloc_mb", ms.Alloc/1024/1024, "num_gc", ms.NumGC, "rss_mb", rss/1024/1024)
}

// selfStats reads RSS and CPU of the hub process, zero when unavailable.
func (m *HubMonitor) selfStats() (uint64, float64) {
	if m.proc == nil {
		return 0, 0
	}
	memInfo, err := m.proc.MemoryInfo()
	if err != nil {
		m.log.Debug("Failed to collect self memory", "error", err)
		return 0, 0
	}
	cpuPercent, err := m.proc.CPUPercent()
	if err != nil {
		m.log.Debug("Failed to collect self cpu", "error", err)
		return memInfo.RSS, 0
	}
	return memInfo.RSS, cpuPercent
}

// Snapshot builds the current stats.
func (m *HubMonitor) Snapshot(now time.Time) HubStats {
	stats := HubStats{
		Counters:     make(map[string]uint64),
		Queues:       make([]QueueInfo, 0),
		NumGoroutine: runtime.NumGoroutine(),
		SampledAt:    now.UTC(),
	}
	s := m.sources
	if s.Sessions != nil {
		stats.Sessions = s.Sessions()
	}
	if s.Groups != nil {
		stats.Groups = s.Groups()
	}
	if s.Paused != nil {
		stats.BroadcastPaused = s.Paused()
	}
	if s.LastRun != nil {
		if last := s.LastRun(); !last.IsZero() {
			last = last.UTC()
			stats.BroadcastLastRun = &last
		}
	}
	if s.Healthy != nil {
		stats.BroadcastHealthy = s.Healthy(now)
	}
	if s.Counter != nil {
		for t, v := range s.Counter.Snapshot() {
			stats.Counters[string(t)] = v
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	stats.AllocMemMb = m.mem.Alloc / 1024 / 1024
	stats.NumGC = m.mem.NumGC
	stats.ProcessRSSMb = m.rss / 1024 / 1024
	stats.ProcessCPU = m.cpu
	for name, q := range m.queues {
		if m.staleAfter > 0 && now.Sub(q.sampled) > m.staleAfter {
			delete(m.queues, name)
			continue
		}
		stats.Queues = append(stats.Queues, q)
	}
	sort.Slice(stats.Queues, func(i, j int) bool { return stats.Queues[i].Name < stats.Queues[j].Name })
	return stats
}
