package ws

import (
	"encoding/json"
	"fleet-hub/domain/event"
	"fleet-hub/errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Client -> server operations.
const (
	OpJoinAgentGroup       = "JoinAgentGroup"
	OpLeaveAgentGroup      = "LeaveAgentGroup"
	OpRequestSystemMetrics = "RequestSystemMetrics"
	OpRequestAgentUpdates  = "RequestAgentUpdates"
	OpHeartbeat            = "Heartbeat"
)

var validate = validator.New()

// ClientFrame is one JSON text frame sent by a client.
// The agent id is checked by the group key itself, not here.
type ClientFrame struct {
	Type    string `json:"type" validate:"required,oneof=JoinAgentGroup LeaveAgentGroup RequestSystemMetrics RequestAgentUpdates Heartbeat"`
	AgentID string `json:"agentId,omitempty" validate:"max=256"`
}

// ServerFrame wraps every event pushed to a client.
type ServerFrame struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

func DecodeClientFrame(data []byte) (ClientFrame, error) {
	var frame ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return ClientFrame{}, fmt.Errorf("%w: %v", errors.ErrInvalidFrame, err)
	}
	if err := validate.Struct(frame); err != nil {
		return ClientFrame{}, fmt.Errorf("%w: %v", errors.ErrInvalidFrame, err)
	}
	return frame, nil
}

func EncodeEvent(e event.DomainEvent, at time.Time) ([]byte, error) {
	payload, err := json.Marshal(e.Payload())
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", e.Name(), err)
	}
	return json.Marshal(ServerFrame{Type: e.Name(), Payload: payload, Timestamp: at.UTC()})
}
