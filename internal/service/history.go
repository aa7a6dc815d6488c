package service

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/assistant/internal/adapter/llm"
	"github.com/xiaot623/gogo/assistant/internal/domain"
	"github.com/xiaot623/gogo/assistant/internal/tools"
)

// invalidArgsKey marks a call whose arguments were not a JSON object.
const invalidArgsKey = "__invalid_arguments__"

// toMessages converts turns to chat messages. When query is set, the first user
// turn is replaced with it.
func toMessages(turns []domain.Turn, query string) []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(turns))
	replaced := false
	for _, t := range turns {
		switch t.Kind {
		case domain.TurnKindUser:
			text := t.Text
			if query != "" && !replaced {
				text = query
				replaced = true
			}
			out = append(out, llm.ChatMessage{Role: llm.RoleUser, Content: text})
		case domain.TurnKindAssistant:
			msg := llm.ChatMessage{Role: llm.RoleAssistant, Content: t.Text}
			for _, c := range t.ToolCalls {
				args, _ := json.Marshal(c.Arguments)
				msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
					ID:       c.ID,
					Type:     "function",
					Function: llm.ToolCallFunction{Name: c.Name, Arguments: string(args)},
				})
			}
			out = append(out, msg)
		case domain.TurnKindToolResult:
			out = append(out, llm.ChatMessage{
				Role:       llm.RoleTool,
				Content:    string(t.Payload),
				Name:       t.ToolName,
				ToolCallID: t.ToolCallID,
			})
		}
	}
	return out
}

// toTools binds descriptors as function tools.
func toTools(descs []tools.Descriptor) []llm.Tool {
	out := make([]llm.Tool, 0, len(descs))
	for _, d := range descs {
		out = append(out, llm.Tool{
			Type: "function",
			Function: llm.ToolFunction{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return out
}

// toCalls converts the model's tool calls, synthesizing missing ids.
func toCalls(calls []llm.ToolCall) []domain.ToolCallRequest {
	var out []domain.ToolCallRequest
	seen := map[string]bool{}
	for _, c := range calls {
		id := c.ID
		if id == "" || seen[id] {
			id = "call_" + uuid.NewString()
		}
		seen[id] = true

		args := map[string]any{}
		if raw := strings.TrimSpace(c.Function.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				args = map[string]any{invalidArgsKey: raw}
			}
		}
		out = append(out, domain.ToolCallRequest{ID: id, Name: c.Function.Name, Arguments: args})
	}
	return out
}

// lastAnswer returns the most recent assistant turn that carries text.
func lastAnswer(turns []domain.Turn) (domain.Turn, bool) {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Kind == domain.TurnKindAssistant && strings.TrimSpace(turns[i].Text) != "" {
			return turns[i], true
		}
	}
	return domain.Turn{}, false
}

// describeTools renders a compact tool list for prompts that do not bind tools.
func describeTools(descs []tools.Descriptor) string {
	var b strings.Builder
	for _, d := range descs {
		b.WriteString("- ")
		b.WriteString(d.Name)
		b.WriteString(" (")
		b.WriteString(string(d.Category))
		b.WriteString("): ")
		b.WriteString(d.Description)
		if len(d.Parameters) > 0 {
			b.WriteString(" args=")
			b.Write(d.Parameters)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// describeResults renders tool results of a block of turns, newest last.
func describeResults(turns []domain.Turn, limit int) string {
	var lines []string
	for _, t := range turns {
		if t.Kind == domain.TurnKindToolResult {
			lines = append(lines, t.ToolName+": "+string(t.Payload))
		}
	}
	if limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	if len(lines) == 0 {
		return "(none)"
	}
	return strings.Join(lines, "\n")
}

// decodeJSON extracts the first JSON object of a reply, tolerating code fences.
func decodeJSON(text string, v any) error {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "{"); i > 0 {
		text = text[i:]
	}
	if j := strings.LastIndex(text, "}"); j >= 0 && j < len(text)-1 {
		text = text[:j+1]
	}
	return json.Unmarshal([]byte(text), v)
}
