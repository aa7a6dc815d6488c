package domain

import (
	"encoding/json"
	"time"
)

// PlanStep is one entry of a plan-mode plan.
type PlanStep struct {
	Description string         `json:"description"`
	Tool        string         `json:"tool,omitempty"`
	Arguments   map[string]any `json:"arguments,omitempty"`
}

// Notification is the client-facing part of an interrupt.
type Notification struct {
	FunctionName     string         `json:"function_name"`
	Args             map[string]any `json:"args"`
	IsDirectFeedback bool           `json:"is_direct_feedback"`
	SuccessMessage   string         `json:"success_message,omitempty"`
}

// PendingRequest is produced by the prepare phase of a human-in-the-loop tool.
// A nil Notify means the tool does not need external input and can be completed
// right away.
type PendingRequest struct {
	CallID   string          `json:"call_id"`
	ToolName string          `json:"tool_name"`
	Args     json.RawMessage `json:"args"`
	Data     json.RawMessage `json:"data,omitempty"`
	Notify   *Notification   `json:"notify,omitempty"`
}

// ResumeValue is the external answer to an interrupt.
type ResumeValue struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// PendingInterrupt records an outstanding interrupt inside the state.
type PendingInterrupt struct {
	ID        string         `json:"id"`
	Request   PendingRequest `json:"request"`
	NextNode  Node           `json:"next_node"`
	CreatedAt time.Time      `json:"created_at"`
}

// ConversationState is the per-session state mutated only by orchestration stages.
type ConversationState struct {
	Turns          []Turn     `json:"turns"`
	RewrittenQuery string     `json:"rewritten_query"`
	NeedDataTools  bool       `json:"need_data_tools"`
	NeedUITools    bool       `json:"need_ui_tools"`
	RetryCount     int        `json:"retry_count"`
	CurrentStep    int        `json:"current_step"`
	PendingPlan    []PlanStep `json:"pending_plan,omitempty"`
	Replans        int        `json:"replans"`
	Observations   int        `json:"observations"`

	Node    Node              `json:"node"`
	Pending *PendingInterrupt `json:"pending,omitempty"`
}

// Append adds a turn to the history.
func (s *ConversationState) Append(t Turn) {
	s.Turns = append(s.Turns, t)
}

// LastAssistant returns the most recent assistant turn and its index, or -1.
func (s *ConversationState) LastAssistant() (Turn, int) {
	for i := len(s.Turns) - 1; i >= 0; i-- {
		if s.Turns[i].Kind == TurnKindAssistant {
			return s.Turns[i], i
		}
	}
	return Turn{}, -1
}

// UnresolvedCalls returns the calls of the latest assistant turn that have no
// result turn yet, in request order.
func (s *ConversationState) UnresolvedCalls() []ToolCallRequest {
	last, idx := s.LastAssistant()
	if idx < 0 || len(last.ToolCalls) == 0 {
		return nil
	}
	done := make(map[string]bool)
	for _, t := range s.Turns[idx+1:] {
		if t.Kind == TurnKindToolResult {
			done[t.ToolCallID] = true
		}
	}
	var out []ToolCallRequest
	for _, c := range last.ToolCalls {
		if !done[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

// CurrentRound returns the turns from the newest user turn to the tail.
func (s *ConversationState) CurrentRound() []Turn {
	rounds := DialogueRounds(s.Turns, 1)
	if len(rounds) == 0 {
		return nil
	}
	return rounds[0]
}

// RecentByKind returns up to n most recent turns of the given kind, oldest first.
func RecentByKind(turns []Turn, n int, kind TurnKind) []Turn {
	var out []Turn
	for i := len(turns) - 1; i >= 0 && len(out) < n; i-- {
		if turns[i].Kind == kind {
			out = append(out, turns[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// DialogueRounds splits the history into rounds that each start at a user turn
// and returns the last n of them, oldest first. Turns before the first user turn
// are ignored.
func DialogueRounds(turns []Turn, n int) [][]Turn {
	var rounds [][]Turn
	for _, t := range turns {
		if t.Kind == TurnKindUser {
			rounds = append(rounds, []Turn{t})
			continue
		}
		if len(rounds) > 0 {
			rounds[len(rounds)-1] = append(rounds[len(rounds)-1], t)
		}
	}
	if n > 0 && len(rounds) > n {
		rounds = rounds[len(rounds)-n:]
	}
	return rounds
}

// Checkpoint is the durable snapshot of a session.
type Checkpoint struct {
	SessionID          string            `json:"session_id"`
	Mode               AgentMode         `json:"mode"`
	State              ConversationState `json:"state"`
	PendingInterruptID string            `json:"pending_interrupt_id,omitempty"`
	Version            int64             `json:"version"`
	UpdatedAt          time.Time         `json:"updated_at"`
}
