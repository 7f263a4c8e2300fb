package event

import "time"

type Type string

const (
	RestartedAfterPanicType Type = "WORKER_RESTARTED_AFTER_PANIC"
	ChannelCapacityType     Type = "CHANNEL_CAPACITY"
	AuthSucceededType       Type = "AUTH_SUCCEEDED"
	AuthFailedType          Type = "AUTH_FAILED"
	SessionOpenedType       Type = "SESSION_OPENED"
	SessionClosedType       Type = "SESSION_CLOSED"
	BroadcastTickType       Type = "BROADCAST_TICK"
	BroadcastFailedType     Type = "BROADCAST_FAILED"
	SendFailedType          Type = "SEND_FAILED"
)

// Event is a technical event consumed by the telemetry pipeline.
// It never reaches clients.
type Event struct {
	Type      Type
	Payload   any
	CreatedAt time.Time
}

func NewEvent(t Type, payload any) Event {
	return Event{Type: t, Payload: payload, CreatedAt: time.Now().UTC()}
}

type WorkerRestartedAfterPanic struct {
	WorkerName string
}

type ChannelCapacity struct {
	ChannelName string
	Capacity    int
	Length      int
}

type AuthOutcome struct {
	Username string
	Reason   string
}

type SessionLifecycle struct {
	ConnectionID string
	Username     string
	Reason       string
}

type BroadcastTick struct {
	Recipients int
	Agents     int
	Deltas     int
	Duration   time.Duration
}

type SendFailed struct {
	ConnectionID string
	Event        string
	Err          string
}

// Emit publishes a technical event without ever blocking the caller.
// A full or nil channel drops the event.
func Emit(ch chan<- Event, e Event) bool {
	if ch == nil {
		return false
	}
	select {
	case ch <- e:
		return true
	default:
		return false
	}
}
