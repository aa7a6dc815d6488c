// Package protocol defines the WebSocket message protocol between clients and the assistant.
package protocol

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Message types from client to assistant
const (
	TypePing     = "ping"
	TypeChat     = "chat"
	TypeFeedback = "feedback"
)

// Message types from assistant to client
const (
	TypePong         = "pong"
	TypeStart        = "start"
	TypeStep         = "step"
	TypeAIMessage    = "AIMessage"
	TypeToolMessage  = "ToolMessage"
	TypeFunctionCall = "FunctionCall"
	TypeComplete     = "complete"
	TypeError        = "error"
)

// MaxChatLength bounds the length of a chat message in characters.
const MaxChatLength = 10000

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	SessionID string `json:"session_id,omitempty"`
}

// MessageType returns the envelope type.
func (b BaseMessage) MessageType() string { return b.Type }

// Outbound is any message sent to the client.
type Outbound interface {
	MessageType() string
}

// NewBase stamps a message envelope.
func NewBase(typ, sessionID string) BaseMessage {
	return BaseMessage{Type: typ, Timestamp: time.Now().UnixMilli(), SessionID: sessionID}
}

// ChatMessage is sent by the client to start a turn.
type ChatMessage struct {
	BaseMessage
	Message string `json:"message"`
}

// Validate checks the chat message bounds.
func (m *ChatMessage) Validate() error {
	if strings.TrimSpace(m.Message) == "" {
		return errors.New("message must not be empty")
	}
	if utf8.RuneCountInString(m.Message) > MaxChatLength {
		return errors.Errorf("message exceeds %d characters", MaxChatLength)
	}
	return nil
}

// FeedbackMessage answers an outstanding FunctionCall.
type FeedbackMessage struct {
	BaseMessage
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// PongMessage answers a ping.
type PongMessage struct {
	BaseMessage
}

// StartMessage marks the beginning of a turn.
type StartMessage struct {
	BaseMessage
}

// StepMessage reports progress of an orchestration stage.
type StepMessage struct {
	BaseMessage
	Content string `json:"content"`
}

// ToolCall is the wire form of a requested tool call.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// AIMessage carries assistant text and, for planner turns, the requested calls.
type AIMessage struct {
	BaseMessage
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolMessage carries one tool result.
type ToolMessage struct {
	BaseMessage
	Content    string `json:"content"`
	Name       string `json:"name"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// FunctionCallMessage asks the client to act and answer with feedback.
type FunctionCallMessage struct {
	BaseMessage
	FunctionName     string         `json:"function_name"`
	Args             map[string]any `json:"args"`
	IsDirectFeedback bool           `json:"is_direct_feedback"`
	SuccessMessage   string         `json:"success_message,omitempty"`
}

// CompleteMessage ends a turn.
type CompleteMessage struct {
	BaseMessage
}

// ErrorMessage is sent when a request cannot be served.
type ErrorMessage struct {
	BaseMessage
	Message string `json:"message"`
}

// RawMessage is used for parsing incoming messages before type dispatch.
type RawMessage struct {
	Type string `json:"type"`
}

// ErrUnknownType is returned by Decode for unsupported inbound types.
var ErrUnknownType = errors.New("unknown message type")

// Decode parses an inbound frame into *ChatMessage, *FeedbackMessage or a ping BaseMessage.
func Decode(data []byte) (any, error) {
	var raw RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "invalid message format")
	}
	switch raw.Type {
	case TypePing:
		var m BaseMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, errors.Wrap(err, "invalid ping message")
		}
		return &m, nil
	case TypeChat:
		var m ChatMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, errors.Wrap(err, "invalid chat message")
		}
		if err := m.Validate(); err != nil {
			return nil, err
		}
		return &m, nil
	case TypeFeedback:
		var m FeedbackMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, errors.Wrap(err, "invalid feedback message")
		}
		return &m, nil
	default:
		return nil, errors.Wrap(ErrUnknownType, raw.Type)
	}
}
