package e2e

import (
	"context"
	"fleet-hub/auth"
	"fleet-hub/domain"
	"fleet-hub/domain/event"
	"fleet-hub/infrastructure/api"
	"fleet-hub/infrastructure/ws"
	"fleet-hub/observability"
	"fleet-hub/runtime"
	"fleet-hub/runtime/workers"
	"fleet-hub/services"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
)

const secret = "e2e-secret-e2e-secret-e2e-secret"

// StubGateway serves whatever the scenario last stored.
type StubGateway struct {
	mu     sync.Mutex
	status domain.StatusSnapshot
	agents []domain.AgentSummary
	err    error
}

func (g *StubGateway) Set(status domain.StatusSnapshot, agents []domain.AgentSummary, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status, g.agents, g.err = status, agents, err
}

func (g *StubGateway) GetSystemStatus(context.Context) (domain.StatusSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status, g.err
}

func (g *StubGateway) GetAgents(context.Context) ([]domain.AgentSummary, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.AgentSummary(nil), g.agents...), g.err
}

// BaseHubSuite runs a complete hub behind httptest for each test.
// The broadcaster loop is not started, scenarios drive Tick themselves.
type BaseHubSuite struct {
	suite.Suite
	Config Config

	Gateway     *StubGateway
	Gate        *auth.Gate
	Router      *runtime.GroupRouter
	Sessions    *runtime.SessionRegistry
	Broadcaster *workers.Broadcaster
	Counter     *event.Counter
	Server      *httptest.Server

	cancel context.CancelFunc
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseHubSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	color.Enable = s.Config.Colours
	gin.SetMode(gin.TestMode)
}

func (s *BaseHubSuite) SetupTest() {
	log := logs.GetLoggerFromString(s.Config.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	telemetryChan := make(chan event.Event, 256)
	s.Counter = event.NewCounter()
	go workers.NewTelemetryWorker(log, telemetryChan, []event.Handler{
		event.NewLifecycleHandler(log, s.Counter),
	}).Run(ctx)

	s.Gateway = &StubGateway{}
	s.Gateway.Set(domain.StatusSnapshot{IsHealthy: true, Timestamp: time.Now().UTC()}, nil, nil)
	s.Gate = auth.NewGate(auth.GateConfig{
		Secret:    []byte(secret),
		Issuer:    "fleet-hub",
		Audience:  "fleet-clients",
		ClockSkew: time.Minute,
	}, log, telemetryChan)

	fanout := workers.NewEventFanout(log, 8, time.Second, telemetryChan)
	s.Router = runtime.NewGroupRouter(log, fanout)
	s.Sessions = runtime.NewSessionRegistry(log, s.Gate, s.Router, s.Gateway, telemetryChan)
	s.Broadcaster = workers.NewBroadcaster(log, s.Gateway, s.Router, time.Minute, telemetryChan)
	hub := services.NewHubService(log, s.Router, s.Gateway)
	monitor := observability.NewHubMonitor(log, observability.Sources{
		Sessions: s.Sessions.Count,
		Groups:   s.Router.GroupCount,
		Paused:   s.Broadcaster.Paused,
		LastRun:  s.Broadcaster.LastRun,
		Healthy:  s.Broadcaster.Healthy,
		Counter:  s.Counter,
	}, time.Minute)

	wsServer := ws.NewServer(ctx, log, s.Sessions, hub, 32)
	s.Server = httptest.NewServer(api.NewHandler(log, wsServer, s.Gate, s.Broadcaster, monitor).Engine())
}

func (s *BaseHubSuite) TearDownTest() {
	s.cancel()
	s.Server.Close()
}

// Step prints a colorized header for a scenario step.
func (s *BaseHubSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

func (s *BaseHubSuite) Token(username string, roles ...string) string {
	token, err := s.Gate.Issue("id-"+username, username, roles, time.Hour)
	s.Require().NoError(err)
	return token
}

// Dial opens a hub connection and returns the HTTP status of the handshake.
func (s *BaseHubSuite) Dial(token string) (*websocket.Conn, int, error) {
	url := "ws" + strings.TrimPrefix(s.Server.URL, "http") + "/hub"
	if token != "" {
		url += "?" + auth.AccessTokenParam + "=" + token
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	if err == nil {
		s.T().Cleanup(func() { _ = conn.Close() })
	}
	return conn, status, err
}

// Connect dials and drains the initial status and agents push.
func (s *BaseHubSuite) Connect(username string, roles ...string) *websocket.Conn {
	conn, _, err := s.Dial(s.Token(username, roles...))
	s.Require().NoError(err)
	s.Require().Equal(event.SystemStatusUpdateName, s.Read(conn).Type)
	s.Require().Equal(event.AgentsUpdateName, s.Read(conn).Type)
	return conn
}

func (s *BaseHubSuite) Send(conn *websocket.Conn, op, agentID string) {
	s.Require().NoError(conn.WriteJSON(ws.ClientFrame{Type: op, AgentID: agentID}))
}

func (s *BaseHubSuite) Read(conn *websocket.Conn) ws.ServerFrame {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(s.Config.ReadTimeout)))
	var frame ws.ServerFrame
	s.Require().NoError(conn.ReadJSON(&frame))
	s.T().Logf("%s <- %s %s", conn.LocalAddr(), frame.Type, string(frame.Payload))
	return frame
}

// Silent asserts that nothing arrives within d.
// A timed out read breaks the connection, so it must be the last read on conn.
func (s *BaseHubSuite) Silent(conn *websocket.Conn, d time.Duration) {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(d)))
	_, data, err := conn.ReadMessage()
	s.Require().Error(err, "unexpected frame %s", string(data))
}

func (s *BaseHubSuite) AdminPost(path, token string) int {
	req, err := http.NewRequest(http.MethodPost, s.Server.URL+path, nil)
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	_ = resp.Body.Close()
	return resp.StatusCode
}
