package workers

import (
	"context"
	"fleet-hub/contract"
	"fleet-hub/domain"
	"fleet-hub/domain/event"
	"log/slog"
	"reflect"
	"time"
)

type NamedChannel struct {
	Name    string
	Channel any
}

// SinkSource lists the live connection sinks, typically GroupRouter.Sinks.
type SinkSource func() map[domain.ConnectionID]contract.EventSink

// ChannelCapacityWorker periodically reports the capacity and length of
// the process channels and of every buffered connection queue.
// Reading len and cap is non-blocking, so this won't interfere with other
// goroutines. A dropped sample is fine because metrics are sampled periodically.
type ChannelCapacityWorker struct {
	log            *slog.Logger
	channels       []NamedChannel
	sinks          SinkSource
	telemetryChan  chan<- event.Event
	metricInterval time.Duration
}

func NewChannelCapacityWorker(log *slog.Logger,
	channels []NamedChannel, sinks SinkSource,
	telemetryChan chan<- event.Event,
	metricInterval time.Duration) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{
		log:            log,
		channels:       channels,
		sinks:          sinks,
		telemetryChan:  telemetryChan,
		metricInterval: metricInterval,
	}
}

func (w ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping capacity sampling")
			return nil
		case <-ticker.C:
			w.Sample()
		}
	}
}

// Sample emits one ChannelCapacity event per channel and per buffered sink.
func (w ChannelCapacityWorker) Sample() {
	for _, nc := range w.channels {
		v := reflect.ValueOf(nc.Channel)
		// Verify if this is a channel
		if v.Kind() != reflect.Chan {
			w.log.Error("Provided object is not a channel", "name", nc.Name)
			continue
		}
		w.emit(nc.Name, v.Cap(), v.Len())
	}
	if w.sinks == nil {
		return
	}
	for id, sink := range w.sinks() {
		queue, ok := sink.(contract.QueueSink)
		if !ok {
			continue
		}
		w.emit("connection:"+string(id), queue.Cap(), queue.Len())
	}
}

func (w ChannelCapacityWorker) emit(name string, capacity, length int) {
	if !event.Emit(w.telemetryChan, toCapacityEvent(name, capacity, length)) {
		w.log.Debug("Observability telemetry event lost")
	}
}

func toCapacityEvent(name string, capacity, length int) event.Event {
	return event.NewEvent(event.ChannelCapacityType, event.ChannelCapacity{
		ChannelName: name,
		Capacity:    capacity,
		Length:      length,
	})
}
