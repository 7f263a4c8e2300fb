package event

import (
	"fleet-hub/domain"
	"time"
)

// Wire names of server -> client events.
const (
	SystemStatusUpdateName  = "SystemStatusUpdate"
	AgentsUpdateName        = "AgentsUpdate"
	AgentSpecificUpdateName = "AgentSpecificUpdate"
	JoinedAgentGroupName    = "JoinedAgentGroup"
	LeftAgentGroupName      = "LeftAgentGroup"
	ErrorName               = "Error"
	HeartbeatResponseName   = "HeartbeatResponse"
	BroadcastingStoppedName = "BroadcastingStopped"
	AgentStatusChangedName  = "AgentStatusChanged"
)

// DomainEvent is anything the hub pushes to a connection.
type DomainEvent interface {
	Name() string
	Payload() any
}

type SystemStatusUpdate struct {
	Status domain.StatusSnapshot
}

func (e SystemStatusUpdate) Name() string { return SystemStatusUpdateName }
func (e SystemStatusUpdate) Payload() any { return e.Status }

type AgentsUpdate struct {
	Agents []domain.AgentSummary
}

func (e AgentsUpdate) Name() string { return AgentsUpdateName }

func (e AgentsUpdate) Payload() any {
	if e.Agents == nil {
		return []domain.AgentSummary{}
	}
	return e.Agents
}

// AgentSpecificUpdate carries one agent that changed since the previous tick.
// It is only sent to the Agent(id) group.
type AgentSpecificUpdate struct {
	Agent domain.AgentSummary
}

func (e AgentSpecificUpdate) Name() string { return AgentSpecificUpdateName }
func (e AgentSpecificUpdate) Payload() any { return e.Agent }

// AgentStatusChanged mirrors every AgentSpecificUpdate to all connections
// so agent lists refresh without joining the agent group.
type AgentStatusChanged struct {
	Agent domain.AgentSummary
}

func (e AgentStatusChanged) Name() string { return AgentStatusChangedName }
func (e AgentStatusChanged) Payload() any { return e.Agent }

type JoinedAgentGroup struct {
	AgentID string
}

func (e JoinedAgentGroup) Name() string { return JoinedAgentGroupName }
func (e JoinedAgentGroup) Payload() any { return e.AgentID }

type LeftAgentGroup struct {
	AgentID string
}

func (e LeftAgentGroup) Name() string { return LeftAgentGroupName }
func (e LeftAgentGroup) Payload() any { return e.AgentID }

// Error is scoped to the connection that triggered it.
type Error struct {
	Message string
}

func (e Error) Name() string { return ErrorName }
func (e Error) Payload() any { return e.Message }

type HeartbeatResponse struct {
	At time.Time
}

func (e HeartbeatResponse) Name() string { return HeartbeatResponseName }
func (e HeartbeatResponse) Payload() any { return e.At }

type BroadcastingStopped struct {
	At time.Time
}

func (e BroadcastingStopped) Name() string { return BroadcastingStoppedName }
func (e BroadcastingStopped) Payload() any { return e.At }
