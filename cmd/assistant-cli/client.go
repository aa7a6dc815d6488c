package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/xiaot623/gogo/assistant/internal/protocol"
)

// Client is a terminal client of the assistant WebSocket endpoint.
type Client struct {
	conn      *websocket.Conn
	sessionID string
	out       io.Writer

	writeMu sync.Mutex

	mu      sync.Mutex
	pending *protocol.FunctionCallMessage
}

// Dial connects to the session endpoint.
func Dial(addr, sessionID, mode string, out io.Writer) (*Client, error) {
	url := strings.TrimRight(addr, "/") + "/ws/" + sessionID
	if mode != "" {
		url += "?mode=" + mode
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}
	return &Client{conn: conn, sessionID: sessionID, out: out}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *Client) send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// Submit sends a line typed by the user. It answers the pending action when one
// is outstanding and starts a new turn otherwise.
func (c *Client) Submit(line string) error {
	c.mu.Lock()
	p := c.pending
	c.pending = nil
	c.mu.Unlock()

	if p != nil {
		return c.send(answer(p, line))
	}
	return c.send(protocol.ChatMessage{
		BaseMessage: protocol.NewBase(protocol.TypeChat, c.sessionID),
		Message:     line,
	})
}

// Ping sends a keepalive.
func (c *Client) Ping() error {
	return c.send(protocol.NewBase(protocol.TypePing, c.sessionID))
}

// ReadMessages prints server events until the connection closes.
func (c *Client) ReadMessages() error {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		if reply := c.handle(data); reply != nil {
			if err := c.send(reply); err != nil {
				return err
			}
		}
	}
}

// handle renders one event and returns the automatic reply, if any.
func (c *Client) handle(data []byte) *protocol.FeedbackMessage {
	var base protocol.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		fmt.Fprintf(c.out, "! unreadable frame: %v\n", err)
		return nil
	}

	switch base.Type {
	case protocol.TypeStart, protocol.TypePong:
	case protocol.TypeStep:
		var m protocol.StepMessage
		_ = json.Unmarshal(data, &m)
		fmt.Fprintf(c.out, "  · %s\n", m.Content)
	case protocol.TypeAIMessage:
		var m protocol.AIMessage
		_ = json.Unmarshal(data, &m)
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Args)
			fmt.Fprintf(c.out, "  → %s %s\n", tc.Name, args)
		}
		if m.Content != "" {
			fmt.Fprintf(c.out, "\n%s\n", m.Content)
		}
	case protocol.TypeToolMessage:
		var m protocol.ToolMessage
		_ = json.Unmarshal(data, &m)
		fmt.Fprintf(c.out, "  ← %s %s\n", m.Name, m.Content)
	case protocol.TypeFunctionCall:
		var m protocol.FunctionCallMessage
		_ = json.Unmarshal(data, &m)
		if m.IsDirectFeedback {
			fmt.Fprintf(c.out, "  [%s] %s\n", m.FunctionName, m.SuccessMessage)
			return &protocol.FeedbackMessage{
				BaseMessage: protocol.NewBase(protocol.TypeFeedback, c.sessionID),
				Message:     m.SuccessMessage,
				Success:     true,
			}
		}
		c.mu.Lock()
		c.pending = &m
		c.mu.Unlock()
		fmt.Fprintf(c.out, "\n? %s\n", prompt(&m))
	case protocol.TypeComplete:
		fmt.Fprint(c.out, "\n> ")
	case protocol.TypeError:
		var m protocol.ErrorMessage
		_ = json.Unmarshal(data, &m)
		fmt.Fprintf(c.out, "! %s\n", m.Message)
	default:
		fmt.Fprintf(c.out, "[%s] %s\n", base.Type, data)
	}
	return nil
}

func prompt(m *protocol.FunctionCallMessage) string {
	if q, ok := m.Args["confirm_question"].(string); ok {
		return q + " [y/N]"
	}
	if t, ok := m.Args["input_title"].(string); ok {
		return t + " (empty line cancels)"
	}
	return m.FunctionName + " (empty line cancels)"
}

// answer maps a typed line to the feedback for a pending action.
func answer(p *protocol.FunctionCallMessage, line string) protocol.FeedbackMessage {
	line = strings.TrimSpace(line)
	fb := protocol.FeedbackMessage{
		BaseMessage: protocol.NewBase(protocol.TypeFeedback, ""),
		Message:     line,
	}
	if _, ok := p.Args["confirm_question"]; ok {
		switch strings.ToLower(line) {
		case "y", "yes":
			fb.Success = true
		}
		return fb
	}
	fb.Success = line != ""
	return fb
}

// keepalive pings until done is closed.
func (c *Client) keepalive(every time.Duration, done <-chan struct{}) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			if err := c.Ping(); err != nil {
				return
			}
		}
	}
}
