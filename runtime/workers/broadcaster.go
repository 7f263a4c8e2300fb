package workers

import (
	"context"
	"fleet-hub/contract"
	"fleet-hub/domain"
	"fleet-hub/domain/event"
	"fleet-hub/errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
)

// Broadcaster polls the gateway on a fixed interval and pushes snapshots
// to every connection, plus per-agent deltas to the Agent(id) groups.
//
// A tick either sends everything or nothing: when a fetch fails the tick
// emits zero events and the next tick runs at the normal interval.
type Broadcaster struct {
	log           *slog.Logger
	gateway       contract.Gateway
	router        contract.IRouter
	interval      time.Duration
	telemetryChan chan<- event.Event

	paused  atomic.Bool
	lastRun atomic.Int64
	kick    chan struct{}

	// sendMu orders a tick's sends against Pause: once BroadcastingStopped
	// is out, no tick event follows it.
	sendMu sync.Mutex

	// Guarded by tickMu.
	tickMu   sync.Mutex
	previous map[string]domain.AgentSummary
	ticks    uint64
}

func NewBroadcaster(log *slog.Logger,
	gateway contract.Gateway,
	router contract.IRouter,
	interval time.Duration,
	telemetryChan chan<- event.Event) *Broadcaster {
	return &Broadcaster{
		log:           log,
		gateway:       gateway,
		router:        router,
		interval:      interval,
		telemetryChan: telemetryChan,
		kick:          make(chan struct{}, 1),
		previous:      make(map[string]domain.AgentSummary),
	}
}

// Run ticks once immediately, then every interval until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) error {
	b.log.Info("Starting broadcaster", "interval", b.interval)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			b.log.Info("Broadcaster stopped")
			return nil
		case <-ticker.C:
			b.Tick(ctx)
		case <-b.kick:
			b.Tick(ctx)
			ticker.Reset(b.interval)
		}
	}
}

// Tick runs one broadcast cycle bounded by the interval.
// It reports whether events were sent. A panic inside the cycle is
// recovered and counted as a failed tick.
func (b *Broadcaster) Tick(ctx context.Context) (sent bool) {
	b.tickMu.Lock()
	defer b.tickMu.Unlock()
	b.ticks++
	tick := b.ticks
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			b.fail(tick, fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r))
			sent = false
		}
	}()
	defer func() { b.lastRun.Store(time.Now().UnixNano()) }()

	if b.paused.Load() {
		b.log.Debug("Broadcast tick skipped, paused", "tick", tick)
		return false
	}

	tickCtx, cancel := context.WithTimeout(ctx, b.interval)
	defer cancel()

	status, err := b.gateway.GetSystemStatus(tickCtx)
	if err != nil {
		b.fail(tick, err)
		return false
	}
	agents, err := b.gateway.GetAgents(tickCtx)
	if err != nil {
		b.fail(tick, err)
		return false
	}

	b.sendMu.Lock()
	defer b.sendMu.Unlock()
	if b.paused.Load() {
		b.log.Debug("Broadcast tick dropped, paused during fetch", "tick", tick)
		return false
	}

	all := domain.AllConnections()
	delivery := b.router.Send(tickCtx, all, event.SystemStatusUpdate{Status: status})
	b.router.Send(tickCtx, all, event.AgentsUpdate{Agents: agents})

	deltas := b.changedAgents(agents)
	for _, agent := range deltas {
		b.router.Send(tickCtx, domain.AgentGroup(agent.ID), event.AgentSpecificUpdate{Agent: agent})
		b.router.Send(tickCtx, all, event.AgentStatusChanged{Agent: agent})
	}

	b.log.Debug("Broadcast tick", "tick", tick, "recipients", delivery.Recipients,
		"agents", len(agents), "deltas", len(deltas))
	event.Emit(b.telemetryChan, event.NewEvent(event.BroadcastTickType, event.BroadcastTick{
		Recipients: delivery.Recipients,
		Agents:     len(agents),
		Deltas:     len(deltas),
		Duration:   time.Since(start),
	}))
	return true
}

// Pause stops emitting until Resume. Every connection is told once.
func (b *Broadcaster) Pause(ctx context.Context) bool {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()
	if !b.paused.CompareAndSwap(false, true) {
		return false
	}
	b.log.Info("Broadcasting paused")
	b.router.Send(ctx, domain.AllConnections(), event.BroadcastingStopped{At: time.Now().UTC()})
	return true
}

// Resume restarts emission with an immediate tick.
func (b *Broadcaster) Resume() bool {
	if !b.paused.CompareAndSwap(true, false) {
		return false
	}
	b.log.Info("Broadcasting resumed")
	select {
	case b.kick <- struct{}{}:
	default:
	}
	return true
}

func (b *Broadcaster) Paused() bool {
	return b.paused.Load()
}

func (b *Broadcaster) LastRun() time.Time {
	nanos := b.lastRun.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

// Healthy reports whether a tick completed within the last three intervals.
func (b *Broadcaster) Healthy(now time.Time) bool {
	last := b.LastRun()
	return !last.IsZero() && now.Sub(last) <= 3*b.interval
}

// changedAgents returns agents that are new or differ from the previous
// successful tick. Agents whose id cannot form a group are skipped.
func (b *Broadcaster) changedAgents(agents []domain.AgentSummary) []domain.AgentSummary {
	changed := lo.Filter(agents, func(agent domain.AgentSummary, _ int) bool {
		if err := domain.AgentGroup(agent.ID).Validate(); err != nil {
			b.log.Warn("Agent id cannot be used as a group", "agent", agent.ID, "error", err)
			return false
		}
		prev, ok := b.previous[agent.ID]
		return !ok || !prev.Equal(agent)
	})
	b.previous = lo.KeyBy(agents, func(agent domain.AgentSummary) string { return agent.ID })
	return changed
}

func (b *Broadcaster) fail(tick uint64, err error) {
	b.log.Error("Broadcast tick failed", "tick", tick, "error", err)
	event.Emit(b.telemetryChan, event.NewEvent(event.BroadcastFailedType, event.BroadcastTick{}))
}
