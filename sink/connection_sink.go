package sink

import (
	"context"
	"fleet-hub/domain/event"
	"fleet-hub/errors"
	"fmt"
	"sync"
)

// ConnectionSink is the outbound queue of one connection.
// The transport write loop drains Events in FIFO order, which keeps
// per-connection delivery in the order the hub issued sends.
type ConnectionSink struct {
	events    chan event.DomainEvent
	done      chan struct{}
	closeOnce sync.Once
}

func NewConnectionSink(bufferSize int) *ConnectionSink {
	return &ConnectionSink{
		events: make(chan event.DomainEvent, bufferSize),
		done:   make(chan struct{}),
	}
}

// Consume is called by the fan-out.
// It blocks while the queue is full, until ctx expires or the sink closes.
func (s *ConnectionSink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case <-s.done:
		return errors.ErrSessionClosed
	default:
	}
	select {
	case s.events <- e:
		return nil
	case <-s.done:
		return errors.ErrSessionClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: outbound queue full: %v", errors.ErrSendTimeout, ctx.Err())
	}
}

// Events is never closed. Readers select on Done as well.
func (s *ConnectionSink) Events() <-chan event.DomainEvent {
	return s.events
}

func (s *ConnectionSink) Done() <-chan struct{} {
	return s.done
}

// Close is idempotent.
func (s *ConnectionSink) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *ConnectionSink) Len() int { return len(s.events) }
func (s *ConnectionSink) Cap() int { return cap(s.events) }
