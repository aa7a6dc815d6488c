// Package ws provides the WebSocket endpoint clients chat through.
package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/xiaot623/gogo/assistant/internal/config"
	"github.com/xiaot623/gogo/assistant/internal/domain"
	"github.com/xiaot623/gogo/assistant/internal/hub"
	"github.com/xiaot623/gogo/assistant/internal/protocol"
)

// Engine is the conversation service the endpoint feeds.
type Engine interface {
	HandleChat(sessionID string, mode domain.AgentMode, text string) error
	HandleFeedback(sessionID string, mode domain.AgentMode, resume domain.ResumeValue) error
	Open(sessionID string, mode domain.AgentMode) error
}

// Server handles WebSocket connections.
type Server struct {
	cfg      *config.Config
	hub      *hub.Hub
	engine   Engine
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(cfg *config.Config, h *hub.Hub, engine Engine) *Server {
	return &Server{
		cfg:    cfg,
		hub:    h,
		engine: engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWebSocket upgrades /ws/:session_id and starts the connection pumps. The
// optional mode query parameter selects tool or plan mode for a new session.
func (s *Server) HandleWebSocket(c echo.Context) error {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "session_id is required"})
	}
	mode := domain.ParseAgentMode(c.QueryParam("mode"))

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to upgrade websocket")
		return err
	}

	conn := s.hub.NewConnection(ws, sessionID)
	s.hub.Register(conn)
	ws.SetReadLimit(s.cfg.MaxMessageSize)

	// Restore a suspended session right away so a pending action can be answered.
	if err := s.engine.Open(sessionID, mode); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to open session")
	}

	go s.writePump(conn)
	go s.readPump(conn, ws, mode)
	return nil
}

// readPump reads frames until the peer goes away.
func (s *Server) readPump(conn *hub.Connection, ws *websocket.Conn, mode domain.AgentMode) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	_ = ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("session_id", conn.SessionID).Msg("websocket error")
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		s.handleMessage(conn, mode, message)
	}
}

// writePump drains the connection's send buffer and keeps it alive with pings.
func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			if !ok {
				_ = conn.Conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteText(message, s.cfg.WriteTimeout); err != nil {
				log.Warn().Err(err).Str("conn_id", conn.ID).Msg("failed to write message")
				return
			}

		case <-ticker.C:
			_ = conn.Conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches one inbound frame.
func (s *Server) handleMessage(conn *hub.Connection, mode domain.AgentMode, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		s.sendError(conn, err.Error())
		return
	}

	switch m := msg.(type) {
	case *protocol.BaseMessage:
		pong := protocol.PongMessage{BaseMessage: protocol.NewBase(protocol.TypePong, conn.SessionID)}
		if err := s.hub.SendJSONToConnection(conn, pong); err != nil {
			log.Warn().Err(err).Str("conn_id", conn.ID).Msg("failed to send pong")
		}
	case *protocol.ChatMessage:
		if err := s.engine.HandleChat(conn.SessionID, mode, m.Message); err != nil {
			s.sendError(conn, err.Error())
		}
	case *protocol.FeedbackMessage:
		resume := domain.ResumeValue{Message: m.Message, Success: m.Success}
		if err := s.engine.HandleFeedback(conn.SessionID, mode, resume); err != nil {
			s.sendError(conn, err.Error())
		}
	}
}

// sendError answers the sending connection only.
func (s *Server) sendError(conn *hub.Connection, message string) {
	errMsg := protocol.ErrorMessage{
		BaseMessage: protocol.NewBase(protocol.TypeError, conn.SessionID),
		Message:     message,
	}
	if err := s.hub.SendJSONToConnection(conn, errMsg); err != nil {
		log.Warn().Err(err).Str("conn_id", conn.ID).Msg("failed to send error")
	}
}
