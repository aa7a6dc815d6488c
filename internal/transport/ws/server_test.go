package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/assistant/internal/config"
	"github.com/xiaot623/gogo/assistant/internal/domain"
	"github.com/xiaot623/gogo/assistant/internal/hub"
	"github.com/xiaot623/gogo/assistant/internal/protocol"
)

type fakeEngine struct {
	mu       sync.Mutex
	chats    []string
	feedback []domain.ResumeValue
	opened   []string
	modes    []domain.AgentMode
	chatErr  error
}

func (f *fakeEngine) HandleChat(sessionID string, mode domain.AgentMode, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats = append(f.chats, sessionID+":"+text)
	f.modes = append(f.modes, mode)
	return f.chatErr
}

func (f *fakeEngine) HandleFeedback(sessionID string, mode domain.AgentMode, resume domain.ResumeValue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedback = append(f.feedback, resume)
	return nil
}

func (f *fakeEngine) Open(sessionID string, mode domain.AgentMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, sessionID)
	return nil
}

func (f *fakeEngine) snapshot() ([]string, []domain.ResumeValue, []domain.AgentMode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.chats...), append([]domain.ResumeValue(nil), f.feedback...), append([]domain.AgentMode(nil), f.modes...)
}

func newTestServer(t *testing.T, engine Engine) (*httptest.Server, *hub.Hub) {
	t.Helper()
	cfg := &config.Config{
		PingInterval:   time.Second,
		WriteTimeout:   time.Second,
		ReadTimeout:    5 * time.Second,
		MaxMessageSize: 65536,
	}
	h := hub.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	e := echo.New()
	e.GET("/ws/:session_id", NewServer(cfg, h, engine).HandleWebSocket)
	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, h
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var m map[string]any
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestPingPong(t *testing.T) {
	srv, _ := newTestServer(t, &fakeEngine{})
	conn := dial(t, srv, "/ws/s1")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping"}))
	msg := readJSON(t, conn)
	assert.Equal(t, protocol.TypePong, msg["type"])
	assert.Equal(t, "s1", msg["session_id"])
}

func TestChatAndFeedbackAreDispatched(t *testing.T) {
	engine := &fakeEngine{}
	srv, _ := newTestServer(t, engine)
	conn := dial(t, srv, "/ws/s1?mode=plan")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "chat", "message": "query node J1"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "feedback", "message": "ok", "success": true}))

	require.Eventually(t, func() bool {
		chats, feedback, _ := engine.snapshot()
		return len(chats) == 1 && len(feedback) == 1
	}, 3*time.Second, 5*time.Millisecond)

	chats, feedback, modes := engine.snapshot()
	assert.Equal(t, "s1:query node J1", chats[0])
	assert.Equal(t, domain.AgentModePlan, modes[0])
	assert.Equal(t, domain.ResumeValue{Message: "ok", Success: true}, feedback[0])
	assert.Equal(t, []string{"s1"}, engine.opened)
}

func TestInvalidFramesGetErrors(t *testing.T) {
	engine := &fakeEngine{chatErr: errors.New("session is busy")}
	srv, _ := newTestServer(t, engine)
	conn := dial(t, srv, "/ws/s1")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	msg := readJSON(t, conn)
	assert.Equal(t, protocol.TypeError, msg["type"])
	assert.Contains(t, msg["message"], "invalid message format")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "chat", "message": "   "}))
	msg = readJSON(t, conn)
	assert.Contains(t, msg["message"], "must not be empty")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "teleport"}))
	msg = readJSON(t, conn)
	assert.Contains(t, msg["message"], "unknown message type")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "chat", "message": "hi"}))
	msg = readJSON(t, conn)
	assert.Equal(t, "session is busy", msg["message"])
}

func TestBroadcastReachesSessionOnly(t *testing.T) {
	srv, h := newTestServer(t, &fakeEngine{})
	a := dial(t, srv, "/ws/a")
	b := dial(t, srv, "/ws/b")

	require.Eventually(t, func() bool { return h.GetSessionCount() == 2 }, 3*time.Second, 5*time.Millisecond)

	data, err := json.Marshal(protocol.StepMessage{
		BaseMessage: protocol.NewBase(protocol.TypeStep, "a"),
		Content:     "working",
	})
	require.NoError(t, err)
	h.Broadcast("a", data)
	msg := readJSON(t, a)
	assert.Equal(t, "working", msg["content"])

	require.NoError(t, b.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err = b.ReadMessage()
	assert.Error(t, err)
}

func TestDisconnectUnregisters(t *testing.T) {
	srv, h := newTestServer(t, &fakeEngine{})
	conn := dial(t, srv, "/ws/s1")
	require.Eventually(t, func() bool { return h.HasActiveConnections("s1") }, 3*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()
	require.Eventually(t, func() bool { return !h.HasActiveConnections("s1") }, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, h.GetConnectionCount())
}
