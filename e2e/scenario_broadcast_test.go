package e2e

import (
	"encoding/json"
	"fleet-hub/domain"
	"fleet-hub/domain/event"
	"fleet-hub/errors"
	"fleet-hub/infrastructure/ws"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type BroadcastScenarioSuite struct {
	BaseHubSuite
}

func TestBroadcastScenario(t *testing.T) {
	suite.Run(t, new(BroadcastScenarioSuite))
}

func (s *BroadcastScenarioSuite) TestAgentDeltasReachOnlyFollowers() {
	s.Step("alice follows agent a1, bob follows nothing")
	alice := s.Connect("alice")
	bob := s.Connect("bob")
	s.Send(alice, ws.OpJoinAgentGroup, "a1")
	joined := s.Read(alice)
	s.Equal(event.JoinedAgentGroupName, joined.Type)
	s.JSONEq(`"a1"`, string(joined.Payload))

	s.Step("a1 starts running and the broadcaster ticks")
	s.Gateway.Set(domain.StatusSnapshot{IsHealthy: true, CPUUsage: 10, Uptime: time.Hour},
		[]domain.AgentSummary{{ID: "a1", Name: "indexer", Status: domain.AgentStatusRunning}}, nil)
	s.True(s.Broadcaster.Tick(s.T().Context()))

	s.Step("both get the snapshots and the status change, only alice gets the delta")
	s.Equal(event.SystemStatusUpdateName, s.Read(alice).Type)
	s.Equal(event.AgentsUpdateName, s.Read(alice).Type)
	delta := s.Read(alice)
	s.Equal(event.AgentSpecificUpdateName, delta.Type)
	var agent domain.AgentSummary
	s.Require().NoError(json.Unmarshal(delta.Payload, &agent))
	s.Equal("indexer", agent.Name)
	s.Equal(event.AgentStatusChangedName, s.Read(alice).Type)

	status := s.Read(bob)
	s.Equal(event.SystemStatusUpdateName, status.Type)
	var snapshot domain.StatusSnapshot
	s.Require().NoError(json.Unmarshal(status.Payload, &snapshot))
	s.Equal(time.Hour, snapshot.Uptime)
	s.Equal(event.AgentsUpdateName, s.Read(bob).Type)
	s.Equal(event.AgentStatusChangedName, s.Read(bob).Type)
	s.Silent(bob, 200*time.Millisecond)

	s.Step("an unchanged tick sends no delta")
	s.True(s.Broadcaster.Tick(s.T().Context()))
	s.Equal(event.SystemStatusUpdateName, s.Read(alice).Type)
	s.Equal(event.AgentsUpdateName, s.Read(alice).Type)
	s.Silent(alice, 200*time.Millisecond)
}

func (s *BroadcastScenarioSuite) TestFailedTickSendsNothing() {
	conn := s.Connect("carol")

	s.Step("the runtime is down")
	s.Gateway.Set(domain.StatusSnapshot{}, nil, errors.ErrRuntimeUnavailable)
	s.False(s.Broadcaster.Tick(s.T().Context()))

	s.Step("carol still receives her own replies but no snapshot")
	s.Send(conn, ws.OpHeartbeat, "")
	s.Equal(event.HeartbeatResponseName, s.Read(conn).Type)
	s.Send(conn, ws.OpRequestSystemMetrics, "")
	failure := s.Read(conn)
	s.Equal(event.ErrorName, failure.Type)
	s.JSONEq(`"Failed to retrieve system metrics"`, string(failure.Payload))
	s.Eventually(func() bool {
		return s.Counter.Get(event.BroadcastFailedType) == 1
	}, time.Second, 10*time.Millisecond)
}

func (s *BroadcastScenarioSuite) TestAdminPausesBroadcasts() {
	viewer := s.Connect("dave")
	admin := s.Token("root", "admin")

	s.Step("a non admin cannot pause")
	s.Equal(http.StatusForbidden, s.AdminPost("/api/broadcasts/stop", s.Token("dave")))

	s.Step("the admin pauses, everyone is told once")
	s.Equal(http.StatusOK, s.AdminPost("/api/broadcasts/stop", admin))
	s.Equal(event.BroadcastingStoppedName, s.Read(viewer).Type)
	s.False(s.Broadcaster.Tick(s.T().Context()))

	s.Step("resuming brings the snapshots back")
	s.Equal(http.StatusOK, s.AdminPost("/api/broadcasts/start", admin))
	s.True(s.Broadcaster.Tick(s.T().Context()))
	s.Equal(event.SystemStatusUpdateName, s.Read(viewer).Type)
}

func (s *BroadcastScenarioSuite) TestRejectedAndClosedSessions() {
	s.Step("no token, no session")
	_, status, err := s.Dial("")
	s.Error(err)
	s.Equal(http.StatusUnauthorized, status)

	s.Step("a session disappears with its socket")
	conn := s.Connect("erin")
	s.Send(conn, ws.OpJoinAgentGroup, "a9")
	s.Equal(event.JoinedAgentGroupName, s.Read(conn).Type)
	s.Equal(1, s.Sessions.Count())
	_ = conn.Close()
	s.Eventually(func() bool { return s.Sessions.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
	s.Empty(s.Router.Members(domain.AgentGroup("a9")))
	s.Empty(s.Router.Members(domain.UserGroup("erin")))
}
