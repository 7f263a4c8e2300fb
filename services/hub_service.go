package services

import (
	"context"
	"fleet-hub/contract"
	"fleet-hub/domain"
	"fleet-hub/domain/event"
	"fleet-hub/errors"
	"log/slog"
	"time"
)

// IHubService holds the per-connection operations a client can invoke.
// Every reply goes to the calling connection only.
type IHubService interface {
	JoinAgentGroup(ctx context.Context, id domain.ConnectionID, agentID string) error
	LeaveAgentGroup(ctx context.Context, id domain.ConnectionID, agentID string) error
	RequestSystemMetrics(ctx context.Context, id domain.ConnectionID)
	RequestAgentUpdates(ctx context.Context, id domain.ConnectionID)
	Heartbeat(ctx context.Context, id domain.ConnectionID) time.Time
	ReportInvalidRequest(ctx context.Context, id domain.ConnectionID, cause error)
}

type HubService struct {
	log     *slog.Logger
	router  contract.IRouter
	gateway contract.Gateway
	clock   func() time.Time
}

func NewHubService(log *slog.Logger, router contract.IRouter, gateway contract.Gateway) *HubService {
	return &HubService{log: log, router: router, gateway: gateway, clock: monotonicClock()}
}

// JoinAgentGroup acknowledges with JoinedAgentGroup on success.
// An invalid agent id yields one Error event and no membership change.
func (s *HubService) JoinAgentGroup(ctx context.Context, id domain.ConnectionID, agentID string) error {
	group := domain.AgentGroup(agentID)
	if err := s.router.Join(id, group); err != nil {
		s.ReportInvalidRequest(ctx, id, err)
		return err
	}
	s.log.Debug("Joined agent group", "connection_id", id, "group", group.String())
	s.reply(ctx, id, event.JoinedAgentGroup{AgentID: agentID})
	return nil
}

// LeaveAgentGroup always acknowledges, even when the connection was not a member.
func (s *HubService) LeaveAgentGroup(ctx context.Context, id domain.ConnectionID, agentID string) error {
	group := domain.AgentGroup(agentID)
	if err := s.router.Leave(id, group); err != nil {
		s.ReportInvalidRequest(ctx, id, err)
		return err
	}
	s.log.Debug("Left agent group", "connection_id", id, "group", group.String())
	s.reply(ctx, id, event.LeftAgentGroup{AgentID: agentID})
	return nil
}

func (s *HubService) RequestSystemMetrics(ctx context.Context, id domain.ConnectionID) {
	status, err := s.gateway.GetSystemStatus(ctx)
	if err != nil {
		s.log.Error("System metrics request failed", "connection_id", id, "error", err)
		s.reply(ctx, id, event.Error{Message: errors.MsgSystemMetricsFailed})
		return
	}
	s.reply(ctx, id, event.SystemStatusUpdate{Status: status})
}

func (s *HubService) RequestAgentUpdates(ctx context.Context, id domain.ConnectionID) {
	agents, err := s.gateway.GetAgents(ctx)
	if err != nil {
		s.log.Error("Agent updates request failed", "connection_id", id, "error", err)
		s.reply(ctx, id, event.Error{Message: errors.MsgAgentUpdatesFailed})
		return
	}
	s.reply(ctx, id, event.AgentsUpdate{Agents: agents})
}

// Heartbeat returns the server time. Successive values never decrease.
func (s *HubService) Heartbeat(ctx context.Context, id domain.ConnectionID) time.Time {
	now := s.clock()
	s.reply(ctx, id, event.HeartbeatResponse{At: now})
	return now
}

// ReportInvalidRequest never leaks the cause to the client.
func (s *HubService) ReportInvalidRequest(ctx context.Context, id domain.ConnectionID, cause error) {
	s.log.Debug("Invalid request", "connection_id", id, "error", cause)
	s.reply(ctx, id, event.Error{Message: errors.MsgInvalidRequest})
}

// reply failures are already logged by the router.
func (s *HubService) reply(ctx context.Context, id domain.ConnectionID, e event.DomainEvent) {
	_ = s.router.SendTo(ctx, id, e)
}

// monotonicClock derives wall time from the monotonic reading taken at start,
// so wall clock adjustments never make it go backwards.
func monotonicClock() func() time.Time {
	start := time.Now()
	return func() time.Time {
		return start.Add(time.Since(start)).UTC()
	}
}
