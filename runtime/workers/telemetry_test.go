package workers

import (
	"context"
	"fleet-hub/contract"
	"fleet-hub/domain"
	"fleet-hub/domain/event"
	"fleet-hub/mocks"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type queueSink struct {
	*mocks.MockEventSink
	*mocks.MockQueueSink
}

func TestChannelCapacityWorker_Sample(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	telemetry := make(chan event.Event, 10)

	queue := mocks.NewMockQueueSink(ctrl)
	queue.EXPECT().Cap().Return(64)
	queue.EXPECT().Len().Return(60)
	buffered := queueSink{MockEventSink: mocks.NewMockEventSink(ctrl), MockQueueSink: queue}
	unbuffered := mocks.NewMockEventSink(ctrl)

	internal := make(chan int, 8)
	internal <- 1

	// Given one process channel, one buffered sink and one unbuffered sink
	w := NewChannelCapacityWorker(log,
		[]NamedChannel{{Name: "internal", Channel: internal}, {Name: "bogus", Channel: 3}},
		func() map[domain.ConnectionID]contract.EventSink {
			return map[domain.ConnectionID]contract.EventSink{"c1": buffered, "c2": unbuffered}
		},
		telemetry, time.Second)

	// When sampled
	w.Sample()

	// Then only real channels and queues are reported
	req.Len(telemetry, 2)
	req.Equal(event.ChannelCapacity{ChannelName: "internal", Capacity: 8, Length: 1}, (<-telemetry).Payload)
	req.Equal(event.ChannelCapacity{ChannelName: "connection:c1", Capacity: 64, Length: 60}, (<-telemetry).Payload)
}

func TestTelemetryWorker_Dispatches_To_Handlers(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	telemetry := make(chan event.Event, 10)
	counter := event.NewCounter()

	w := NewTelemetryWorker(log, telemetry, []event.Handler{
		event.NewLifecycleHandler(log, counter),
		event.NewWorkerRestartedAfterPanicHandler(log, counter),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	telemetry <- event.NewEvent(event.SessionOpenedType, event.SessionLifecycle{})
	telemetry <- event.NewEvent(event.RestartedAfterPanicType, event.WorkerRestartedAfterPanic{WorkerName: "Broadcaster"})

	req.Eventually(func() bool {
		return counter.Get(event.SessionOpenedType) == 1 && counter.Get(event.RestartedAfterPanicType) == 1
	}, time.Second, 10*time.Millisecond)
}
