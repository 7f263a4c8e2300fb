package runtime

import (
	"context"
	"fleet-hub/contract"
	"fleet-hub/domain"
	"fleet-hub/domain/event"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionRegistry owns the live connections and their principals.
// Group membership is delegated to the router.
type SessionRegistry struct {
	mu            sync.RWMutex
	sessions      map[domain.ConnectionID]domain.Session
	validator     contract.TokenValidator
	router        contract.IRouter
	gateway       contract.Gateway
	log           *slog.Logger
	telemetryChan chan<- event.Event
	newID         func() domain.ConnectionID
}

func NewSessionRegistry(log *slog.Logger,
	validator contract.TokenValidator,
	router contract.IRouter,
	gateway contract.Gateway,
	telemetryChan chan<- event.Event) *SessionRegistry {
	return &SessionRegistry{
		sessions:      make(map[domain.ConnectionID]domain.Session),
		validator:     validator,
		router:        router,
		gateway:       gateway,
		log:           log,
		telemetryChan: telemetryChan,
		newID:         func() domain.ConnectionID { return domain.ConnectionID(uuid.NewString()) },
	}
}

// Open authenticates the token, registers the sink, joins the principal's
// user group and pushes an initial snapshot to this connection only.
// On authentication failure nothing is registered.
// Initial push failures are logged and the session stays open.
func (s *SessionRegistry) Open(ctx context.Context, token string, sink contract.EventSink) (domain.Session, error) {
	principal, err := s.validator.Validate(ctx, token)
	if err != nil {
		s.log.Debug("Channel open rejected", "error", err)
		return domain.Session{}, err
	}

	session := domain.Session{
		ID:        s.newID(),
		Principal: principal,
		State:     domain.StateAuthenticated,
		OpenedAt:  time.Now().UTC(),
	}
	if err := s.router.Register(session.ID, sink); err != nil {
		return domain.Session{}, err
	}
	if err := s.router.Join(session.ID, principal.UserGroup()); err != nil {
		s.router.Deregister(session.ID)
		return domain.Session{}, fmt.Errorf("joining user group: %w", err)
	}

	session.State = domain.StateActive
	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	s.log.Info("Session opened", "connection_id", session.ID, "user", principal.Name())
	s.emit(event.SessionOpenedType, session, "")

	s.initialPush(ctx, session.ID)
	return session, nil
}

// Close is idempotent. It reports whether the session was still open.
func (s *SessionRegistry) Close(id domain.ConnectionID, reason domain.CloseReason) bool {
	s.mu.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return false
	}

	session.State = domain.StateClosed
	groups := s.router.Deregister(id)
	attrs := []any{"connection_id", id, "user", session.Principal.Name(),
		"groups", len(groups), "reason", reason.String(), "state", session.State.String()}
	if reason == domain.CloseErrored {
		s.log.Warn("Session closed with error", attrs...)
	} else {
		s.log.Info("Session closed", attrs...)
	}
	s.emit(event.SessionClosedType, session, reason.String())
	return true
}

func (s *SessionRegistry) Lookup(id domain.ConnectionID) (domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return session, ok
}

func (s *SessionRegistry) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Status and agents are fetched independently: one failing does not
// prevent the other from being pushed.
func (s *SessionRegistry) initialPush(ctx context.Context, id domain.ConnectionID) {
	if status, err := s.gateway.GetSystemStatus(ctx); err != nil {
		s.log.Error("Initial status push failed", "connection_id", id, "error", err)
	} else {
		_ = s.router.SendTo(ctx, id, event.SystemStatusUpdate{Status: status})
	}

	if agents, err := s.gateway.GetAgents(ctx); err != nil {
		s.log.Error("Initial agents push failed", "connection_id", id, "error", err)
	} else {
		_ = s.router.SendTo(ctx, id, event.AgentsUpdate{Agents: agents})
	}
}

func (s *SessionRegistry) emit(t event.Type, session domain.Session, reason string) {
	if !event.Emit(s.telemetryChan, event.NewEvent(t, event.SessionLifecycle{
		ConnectionID: string(session.ID),
		Username:     session.Principal.Name(),
		Reason:       reason,
	})) {
		s.log.Debug("Observability telemetry event lost")
	}
}
