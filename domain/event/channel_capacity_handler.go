package event

import (
	"fleet-hub/errors"
	"fmt"
	"log/slog"
)

// ChannelCapacityHandler watches the outbound queues of connections.
// A queue close to full means the client reads slower than the hub writes.
type ChannelCapacityHandler struct {
	log                  *slog.Logger
	lowCapacityThreshold int
}

func NewChannelCapacityHandler(log *slog.Logger, lowCapacityThreshold int) *ChannelCapacityHandler {
	return &ChannelCapacityHandler{log: log, lowCapacityThreshold: lowCapacityThreshold}
}

func (h ChannelCapacityHandler) Handle(event Event) {
	switch event.Type {
	case ChannelCapacityType:
		payload, ok := event.Payload.(ChannelCapacity)
		if !ok {
			h.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		if payload.Capacity <= 0 {
			return
		}
		capacityLeft := payload.Capacity - payload.Length
		if capacityLeft <= h.lowCapacityThreshold {
			h.log.Warn(fmt.Sprintf("Outbound queue %s usage: %d / %d", payload.ChannelName, payload.Length, payload.Capacity))
		}
	}
}
