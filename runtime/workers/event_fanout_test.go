package workers

import (
	"context"
	"fleet-hub/contract"
	"fleet-hub/domain"
	"fleet-hub/domain/event"
	"fleet-hub/errors"
	"fleet-hub/mocks"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestEventFanout_Fanout(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sink1 := mocks.NewMockEventSink(ctrl)
	sink2 := mocks.NewMockEventSink(ctrl)
	evt := event.HeartbeatResponse{At: time.Now()}

	// Given two recipients
	recipients := map[domain.ConnectionID]contract.EventSink{"c1": sink1, "c2": sink2}
	sink1.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(1)
	sink2.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(1)

	// When the event is fanned out
	delivery := NewEventFanout(log, 4, time.Second, nil).Fanout(context.Background(), recipients, evt)

	// Then each recipient got it exactly once
	req.Equal(contract.Delivery{Recipients: 2, Failed: 0}, delivery)
}

func TestEventFanout_SlowSinkDoesNotBlockOthers(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	telemetry := make(chan event.Event, 10)

	stalled := mocks.NewMockEventSink(ctrl)
	healthy := mocks.NewMockEventSink(ctrl)
	broken := mocks.NewMockEventSink(ctrl)
	evt := event.AgentsUpdate{}

	// Given one stalled sink, one broken sink and one healthy sink
	stalled.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ event.DomainEvent) error {
			<-ctx.Done() // Waiting for timeout to trigger cancellation
			return ctx.Err()
		}).Times(1)
	broken.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(errors.ErrSessionClosed).Times(1)
	var delivered atomic.Bool
	healthy.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ event.DomainEvent) error {
			delivered.Store(true)
			return nil
		}).Times(1)

	recipients := map[domain.ConnectionID]contract.EventSink{
		"stalled": stalled, "broken": broken, "healthy": healthy,
	}

	// When fanned out with a short per-send timeout
	start := time.Now()
	delivery := NewEventFanout(log, 1, 20*time.Millisecond, telemetry).
		Fanout(context.Background(), recipients, evt)

	// Then the healthy sink still receives the event
	req.True(delivered.Load())
	req.Equal(3, delivery.Recipients)
	req.Equal(2, delivery.Failed)
	req.Less(time.Since(start), time.Second)
	req.Len(telemetry, 2)
	req.Equal(event.SendFailedType, (<-telemetry).Type)
}

func TestEventFanout_Deliver_WrapsTimeout(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sink := mocks.NewMockEventSink(ctrl)
	sink.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ event.DomainEvent) error {
			<-ctx.Done()
			return ctx.Err()
		})

	err := NewEventFanout(log, 1, 10*time.Millisecond, nil).
		Deliver(context.Background(), "c1", sink, event.AgentsUpdate{})

	req.ErrorIs(err, errors.ErrSendTimeout)
	req.ErrorIs(err, errors.ErrTransportFailure)
}
