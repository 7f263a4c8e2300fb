package runtime

import (
	"context"
	"fleet-hub/domain"
	"fleet-hub/domain/event"
	"fleet-hub/errors"
	"fleet-hub/mocks"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newRegistry(t *testing.T) (*SessionRegistry, *GroupRouter, *mocks.MockTokenValidator, *mocks.MockGateway, chan event.Event) {
	ctrl := gomock.NewController(t)
	validator := mocks.NewMockTokenValidator(ctrl)
	gateway := mocks.NewMockGateway(ctrl)
	router := newRouter()
	telemetry := make(chan event.Event, 10)
	registry := NewSessionRegistry(logs.GetLoggerFromLevel(slog.LevelDebug), validator, router, gateway, telemetry)
	return registry, router, validator, gateway, telemetry
}

func TestSessionRegistry_Open_Joins_User_Group_And_Pushes_Snapshot(t *testing.T) {
	req := require.New(t)
	registry, router, validator, gateway, telemetry := newRegistry(t)
	alice, other := &recordingSink{}, &recordingSink{}
	status := domain.StatusSnapshot{IsHealthy: true, ActiveAgents: 2}
	agents := []domain.AgentSummary{{ID: "1", Name: "builder"}}

	// Given another live connection
	req.NoError(router.Register("other", other))

	// Given a valid token for alice and a healthy runtime
	validator.EXPECT().Validate(gomock.Any(), "token").
		Return(domain.Principal{Username: "alice"}, nil)
	gateway.EXPECT().GetSystemStatus(gomock.Any()).Return(status, nil)
	gateway.EXPECT().GetAgents(gomock.Any()).Return(agents, nil)

	// When the channel is opened
	session, err := registry.Open(context.Background(), "token", alice)

	// Then alice is in exactly her user group
	req.NoError(err)
	req.Equal([]domain.GroupID{domain.UserGroup("alice")}, router.Groups(session.ID))
	req.Equal(1, registry.Count())
	req.Equal(domain.StateActive, session.State)

	// And only alice received status then agents
	events := alice.Events()
	req.Len(events, 2)
	req.Equal(event.SystemStatusUpdate{Status: status}, events[0])
	req.Equal(event.AgentsUpdate{Agents: agents}, events[1])
	req.Empty(other.Events())

	req.Equal(event.SessionOpenedType, (<-telemetry).Type)
}

func TestSessionRegistry_Open_Rejected_Token(t *testing.T) {
	req := require.New(t)
	registry, router, validator, _, _ := newRegistry(t)
	sink := &recordingSink{}

	// Given an expired token
	validator.EXPECT().Validate(gomock.Any(), "expired").
		Return(domain.Principal{}, errors.ErrTokenExpired)

	// When the channel is opened
	_, err := registry.Open(context.Background(), "expired", sink)

	// Then no session exists and nothing was sent
	req.ErrorIs(err, errors.ErrAuthenticationFailure)
	req.Zero(registry.Count())
	req.Empty(router.Members(domain.AllConnections()))
	req.Empty(sink.Events())
}

func TestSessionRegistry_Open_Initial_Push_Failure_Keeps_Session(t *testing.T) {
	req := require.New(t)
	registry, router, validator, gateway, _ := newRegistry(t)
	sink := &recordingSink{}
	agents := []domain.AgentSummary{{ID: "1", Name: "builder"}}

	// Given the status fetch fails but agents succeed
	validator.EXPECT().Validate(gomock.Any(), gomock.Any()).
		Return(domain.Principal{Username: "bob"}, nil)
	gateway.EXPECT().GetSystemStatus(gomock.Any()).
		Return(domain.StatusSnapshot{}, fmt.Errorf("%w: boom", errors.ErrRuntimeUnavailable))
	gateway.EXPECT().GetAgents(gomock.Any()).Return(agents, nil)

	// When the channel is opened
	session, err := registry.Open(context.Background(), "token", sink)

	// Then the session is open and only the agents were pushed
	req.NoError(err)
	_, ok := registry.Lookup(session.ID)
	req.True(ok)
	req.Equal([]domain.ConnectionID{session.ID}, router.Members(domain.UserGroup("bob")))
	req.Equal([]event.DomainEvent{event.AgentsUpdate{Agents: agents}}, sink.Events())
}

func TestSessionRegistry_Close_Idempotent(t *testing.T) {
	req := require.New(t)
	registry, router, validator, gateway, _ := newRegistry(t)

	validator.EXPECT().Validate(gomock.Any(), gomock.Any()).
		Return(domain.Principal{Username: "carol"}, nil)
	gateway.EXPECT().GetSystemStatus(gomock.Any()).Return(domain.StatusSnapshot{Timestamp: time.Now()}, nil)
	gateway.EXPECT().GetAgents(gomock.Any()).Return(nil, nil)

	session, err := registry.Open(context.Background(), "token", &recordingSink{})
	req.NoError(err)
	req.NoError(router.Join(session.ID, domain.AgentGroup("9")))

	// When closed twice
	req.True(registry.Close(session.ID, domain.CloseErrored))
	req.False(registry.Close(session.ID, domain.CloseNormal))

	// Then no group references the dead connection
	req.Zero(registry.Count())
	req.Empty(router.Members(domain.AgentGroup("9")))
	req.Empty(router.Members(domain.UserGroup("carol")))
}

func TestSessionRegistry_Same_User_Two_Connections(t *testing.T) {
	req := require.New(t)
	registry, router, validator, gateway, _ := newRegistry(t)

	validator.EXPECT().Validate(gomock.Any(), gomock.Any()).
		Return(domain.Principal{Username: "dave"}, nil).Times(2)
	gateway.EXPECT().GetSystemStatus(gomock.Any()).Return(domain.StatusSnapshot{}, nil).Times(2)
	gateway.EXPECT().GetAgents(gomock.Any()).Return(nil, nil).Times(2)

	first, err := registry.Open(context.Background(), "t1", &recordingSink{})
	req.NoError(err)
	second, err := registry.Open(context.Background(), "t2", &recordingSink{})
	req.NoError(err)

	req.NotEqual(first.ID, second.ID)
	req.Len(router.Members(domain.UserGroup("dave")), 2)

	registry.Close(first.ID, domain.CloseNormal)
	req.Equal([]domain.ConnectionID{second.ID}, router.Members(domain.UserGroup("dave")))
}
