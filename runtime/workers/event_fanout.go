package workers

import (
	"context"
	"fleet-hub/contract"
	"fleet-hub/domain"
	"fleet-hub/domain/event"
	"fleet-hub/errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// EventFanout delivers one event to many connection sinks.
//
// Delivery is best-effort: every recipient gets at most one attempt bounded
// by sinkTimeout, and a failing recipient never prevents delivery to the others.
// At most limit sends are in flight at once.
//
// EventFanout is safe for concurrent use by multiple goroutines.
type EventFanout struct {
	log           *slog.Logger
	limit         int
	sinkTimeout   time.Duration
	telemetryChan chan<- event.Event
}

func NewEventFanout(log *slog.Logger, limit int, sinkTimeout time.Duration,
	telemetryChan chan<- event.Event) *EventFanout {
	if limit <= 0 {
		limit = 1
	}
	return &EventFanout{log: log, limit: limit, sinkTimeout: sinkTimeout, telemetryChan: telemetryChan}
}

// Fanout blocks until every recipient has been attempted.
func (f *EventFanout) Fanout(ctx context.Context, recipients map[domain.ConnectionID]contract.EventSink,
	evt event.DomainEvent) contract.Delivery {
	var failed atomic.Int64
	g := errgroup.Group{}
	g.SetLimit(f.limit)

	for id, sink := range recipients {
		g.Go(func() error {
			if err := f.Deliver(ctx, id, sink, evt); err != nil {
				failed.Add(1)
			}
			// Never abort the group, other recipients still get the event
			return nil
		})
	}
	_ = g.Wait()

	return contract.Delivery{Recipients: len(recipients), Failed: int(failed.Load())}
}

// Deliver sends to a single sink under the per-send timeout.
func (f *EventFanout) Deliver(ctx context.Context, id domain.ConnectionID,
	sink contract.EventSink, evt event.DomainEvent) error {
	sendCtx, cancel := context.WithTimeout(ctx, f.sinkTimeout)
	defer cancel()

	err := sink.Consume(sendCtx, evt)
	if err == nil {
		return nil
	}
	if sendCtx.Err() != nil && ctx.Err() == nil {
		err = fmt.Errorf("%w: %v", errors.ErrSendTimeout, err)
	}
	f.log.Warn("Send failed", "connection_id", id, "event", evt.Name(), "error", err)
	if !event.Emit(f.telemetryChan, event.NewEvent(event.SendFailedType, event.SendFailed{
		ConnectionID: string(id),
		Event:        evt.Name(),
		Err:          err.Error(),
	})) {
		f.log.Debug("Observability telemetry event lost")
	}
	return err
}
