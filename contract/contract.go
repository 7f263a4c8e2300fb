//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"fleet-hub/domain"
	"fleet-hub/domain/event"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Gateway is the automation runtime as seen by the hub.
// Implementations wrap every failure with errors.ErrRuntimeUnavailable.
type Gateway interface {
	GetSystemStatus(ctx context.Context) (domain.StatusSnapshot, error)
	GetAgents(ctx context.Context) ([]domain.AgentSummary, error)
}

// TokenValidator turns a bearer token into a Principal.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (domain.Principal, error)
}

// EventSink is the outbound side of one connection.
// Consume must return once ctx is done.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// QueueSink is implemented by sinks that buffer events.
type QueueSink interface {
	Len() int
	Cap() int
}

// Delivery summarizes one fan-out.
type Delivery struct {
	Recipients int
	Failed     int
}

type IRouter interface {
	Register(id domain.ConnectionID, sink EventSink) error
	Deregister(id domain.ConnectionID) []domain.GroupID
	Join(id domain.ConnectionID, group domain.GroupID) error
	Leave(id domain.ConnectionID, group domain.GroupID) error
	Send(ctx context.Context, group domain.GroupID, e event.DomainEvent) Delivery
	SendTo(ctx context.Context, id domain.ConnectionID, e event.DomainEvent) error
	Members(group domain.GroupID) []domain.ConnectionID
	Groups(id domain.ConnectionID) []domain.GroupID
}

type AgentRepository interface {
	Upsert(agents ...domain.AgentSummary) error
	List() ([]domain.AgentSummary, error)
	Delete(id string) error
}

// ISessionRegistry owns the live connections and their principals.
type ISessionRegistry interface {
	Open(ctx context.Context, token string, sink EventSink) (domain.Session, error)
	Close(id domain.ConnectionID, reason domain.CloseReason) bool
	Lookup(id domain.ConnectionID) (domain.Session, bool)
	Count() int
}
