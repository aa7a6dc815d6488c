package domain

import (
	"encoding/json"
	"time"
)

// ToolCallRequest is a single tool invocation proposed by the model.
type ToolCallRequest struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Turn is one entry of the conversation history. Kind selects which fields are set:
// user turns carry Text, assistant turns carry Text and ToolCalls, tool result turns
// carry ToolCallID, ToolName and Payload.
type Turn struct {
	Kind       TurnKind          `json:"kind"`
	Text       string            `json:"text,omitempty"`
	ToolCalls  []ToolCallRequest `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	ToolName   string            `json:"tool_name,omitempty"`
	Payload    json.RawMessage   `json:"payload,omitempty"`
	IsError    bool              `json:"is_error,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// NewUserTurn creates a user turn.
func NewUserTurn(text string) Turn {
	return Turn{Kind: TurnKindUser, Text: text, CreatedAt: time.Now()}
}

// NewAssistantTurn creates an assistant turn with optional tool call requests.
func NewAssistantTurn(text string, calls []ToolCallRequest) Turn {
	return Turn{Kind: TurnKindAssistant, Text: text, ToolCalls: calls, CreatedAt: time.Now()}
}

// NewToolResultTurn creates a successful tool result turn.
func NewToolResultTurn(callID, toolName string, payload json.RawMessage) Turn {
	return Turn{
		Kind:       TurnKindToolResult,
		ToolCallID: callID,
		ToolName:   toolName,
		Payload:    payload,
		CreatedAt:  time.Now(),
	}
}

// NewToolErrorTurn wraps a tool failure into a result turn.
func NewToolErrorTurn(callID, toolName string, err error) Turn {
	payload, _ := json.Marshal(map[string]string{"error": err.Error()})
	t := NewToolResultTurn(callID, toolName, payload)
	t.IsError = true
	return t
}

// HasToolCalls reports whether the turn is an assistant turn requesting tools.
func (t Turn) HasToolCalls() bool {
	return t.Kind == TurnKindAssistant && len(t.ToolCalls) > 0
}

// IsCancelled reports whether a tool result turn records a cancellation.
func (t Turn) IsCancelled() bool {
	if t.Kind != TurnKindToolResult || len(t.Payload) == 0 {
		return false
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(t.Payload, &body); err != nil {
		return false
	}
	return body.Status == ResultStatusCancelled
}
