package event

import (
	"log/slog"
)

// LifecycleHandler counts auth, session and broadcast outcomes.
// The totals feed the debug stats endpoint.
type LifecycleHandler struct {
	log     *slog.Logger
	counter *Counter
}

func NewLifecycleHandler(log *slog.Logger, counter *Counter) *LifecycleHandler {
	return &LifecycleHandler{log: log, counter: counter}
}

func (h *LifecycleHandler) Handle(event Event) {
	switch event.Type {
	case AuthSucceededType, AuthFailedType, SessionOpenedType, SessionClosedType,
		BroadcastTickType, BroadcastFailedType:
		h.counter.Increment(event.Type)
	case SendFailedType:
		h.counter.Increment(event.Type)
		if payload, ok := event.Payload.(SendFailed); ok {
			h.log.Debug("telemetry: send failed",
				"connection_id", payload.ConnectionID,
				"event", payload.Event,
				"error", payload.Err)
		}
	}
}
