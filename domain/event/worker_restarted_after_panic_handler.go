package event

import (
	"fleet-hub/errors"
	"fmt"
	"log/slog"
)

// WorkerRestartedAfterPanicHandler handles events when a worker panics and is restarted.
// It is triggered by the Supervisor when a worker recovers from a panic.
type WorkerRestartedAfterPanicHandler struct {
	log     *slog.Logger
	counter *Counter
}

func NewWorkerRestartedAfterPanicHandler(log *slog.Logger, counter *Counter) *WorkerRestartedAfterPanicHandler {
	return &WorkerRestartedAfterPanicHandler{
		log:     log,
		counter: counter,
	}
}

func (h *WorkerRestartedAfterPanicHandler) Handle(event Event) {
	switch event.Type {
	case RestartedAfterPanicType:
		payload, ok := event.Payload.(WorkerRestartedAfterPanic)
		if !ok {
			h.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		h.counter.Increment(RestartedAfterPanicType)
		h.log.Warn(fmt.Sprintf("Worker %s restarted after panic, total: %d",
			payload.WorkerName, h.counter.Get(RestartedAfterPanicType)))
	}
}
