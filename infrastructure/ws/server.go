package ws

import (
	"context"
	"fleet-hub/auth"
	"fleet-hub/contract"
	"fleet-hub/domain"
	"fleet-hub/errors"
	"fleet-hub/services"
	"fleet-hub/sink"
	"log/slog"
	"net/http"
	"time"

	stdErrors "errors"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// Server upgrades authenticated HTTP requests into hub connections.
// Authentication happens before the upgrade so a rejected token gets a
// plain 401 and no session ever exists.
type Server struct {
	ctx        context.Context
	log        *slog.Logger
	sessions   contract.ISessionRegistry
	hub        services.IHubService
	bufferSize int
	upgrader   websocket.Upgrader
}

// NewServer binds every connection to ctx: cancelling it closes them all.
func NewServer(ctx context.Context, log *slog.Logger,
	sessions contract.ISessionRegistry,
	hub services.IHubService,
	bufferSize int) *Server {
	return &Server{
		ctx:        ctx,
		log:        log,
		sessions:   sessions,
		hub:        hub,
		bufferSize: bufferSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browsers cannot set headers, the token travels as a query parameter
			// and origin is not used for authorization.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return
	}

	out := sink.NewConnectionSink(s.bufferSize)
	session, err := s.sessions.Open(r.Context(), auth.BearerToken(r), out)
	if err != nil {
		out.Close()
		if stdErrors.Is(err, errors.ErrAuthenticationFailure) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		s.log.Error("Channel open failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already replied to the client.
		s.log.Warn("Websocket upgrade failed", "connection_id", session.ID, "error", err)
		s.sessions.Close(session.ID, domain.CloseErrored)
		out.Close()
		return
	}

	connCtx, cancel := context.WithCancel(s.ctx)
	go s.writePump(connCtx, cancel, conn, out, session.ID)
	reason := s.readPump(connCtx, conn, session.ID)

	cancel()
	s.sessions.Close(session.ID, reason)
	out.Close()
	_ = conn.Close()
}

// readPump dispatches client frames in arrival order until the peer goes away.
func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, id domain.ConnectionID) domain.CloseReason {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return domain.CloseNormal
			}
			s.log.Debug("Websocket read failed", "connection_id", id, "error", err)
			return domain.CloseErrored
		}

		frame, err := DecodeClientFrame(message)
		if err != nil {
			s.hub.ReportInvalidRequest(ctx, id, err)
			continue
		}
		s.dispatch(ctx, id, frame)
	}
}

func (s *Server) dispatch(ctx context.Context, id domain.ConnectionID, frame ClientFrame) {
	switch frame.Type {
	case OpJoinAgentGroup:
		_ = s.hub.JoinAgentGroup(ctx, id, frame.AgentID)
	case OpLeaveAgentGroup:
		_ = s.hub.LeaveAgentGroup(ctx, id, frame.AgentID)
	case OpRequestSystemMetrics:
		s.hub.RequestSystemMetrics(ctx, id)
	case OpRequestAgentUpdates:
		s.hub.RequestAgentUpdates(ctx, id)
	case OpHeartbeat:
		s.hub.Heartbeat(ctx, id)
	}
}

// writePump drains the sink into the socket. A write failure cancels the
// connection so the read side unblocks.
func (s *Server) writePump(ctx context.Context, cancel context.CancelFunc,
	conn *websocket.Conn, out *sink.ConnectionSink, id domain.ConnectionID) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		_ = conn.Close()
	}()

	for {
		select {
		case e := <-out.Events():
			data, err := EncodeEvent(e, time.Now())
			if err != nil {
				s.log.Error("Event encoding failed", "connection_id", id, "event", e.Name(), "error", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.log.Debug("Websocket write failed", "connection_id", id, "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-out.Done():
			return
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		}
	}
}
