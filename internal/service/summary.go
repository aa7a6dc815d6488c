package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xiaot623/gogo/assistant/internal/adapter/llm"
	"github.com/xiaot623/gogo/assistant/internal/domain"
	"github.com/xiaot623/gogo/assistant/internal/protocol"
)

const summaryHistory = 3

// summarize writes the final answer of the turn and ends it.
func (s *Session) summarize(ctx context.Context) (domain.Node, error) {
	s.emitStep(ctx, "Summarizing")
	block := s.state.CurrentRound()
	earlier := domain.RecentByKind(s.state.Turns[:len(s.state.Turns)-len(block)], summaryHistory, domain.TurnKindUser)

	messages := []llm.ChatMessage{{Role: llm.RoleSystem, Content: summarySystem}}
	if len(earlier) > 0 {
		var lines []string
		for _, t := range earlier {
			lines = append(lines, "- "+t.Text)
		}
		messages = append(messages, llm.ChatMessage{
			Role:    llm.RoleSystem,
			Content: fmt.Sprintf(summaryContext, strings.Join(lines, "\n")),
		})
	}
	messages = append(messages, toMessages(block, "")...)

	text := ""
	if msg, err := s.ask(ctx, tagSummarize, messages, askOptions{}); err == nil {
		text = strings.TrimSpace(msg.Content)
	}
	if text == "" {
		text = fallbackSummary(block)
	}

	turn := domain.NewAssistantTurn(text, nil)
	s.state.Append(turn)
	s.emitAssistant(ctx, turn)
	s.emit(ctx, protocol.CompleteMessage{BaseMessage: protocol.NewBase(protocol.TypeComplete, s.ID)})
	return domain.NodeEnd, nil
}

// fallbackSummary lists tool outcomes when the model cannot be reached.
func fallbackSummary(block []domain.Turn) string {
	var ok, failed, cancelled []string
	for _, t := range block {
		if t.Kind != domain.TurnKindToolResult {
			continue
		}
		switch {
		case t.IsCancelled():
			cancelled = append(cancelled, t.ToolName)
		case t.IsError:
			failed = append(failed, t.ToolName)
		default:
			ok = append(ok, t.ToolName)
		}
	}
	if len(ok)+len(failed)+len(cancelled) == 0 {
		return "Sorry, I could not produce an answer right now. Please try again."
	}
	var parts []string
	if len(ok) > 0 {
		parts = append(parts, "completed: "+strings.Join(ok, ", "))
	}
	if len(failed) > 0 {
		parts = append(parts, "failed: "+strings.Join(failed, ", "))
	}
	if len(cancelled) > 0 {
		parts = append(parts, "cancelled: "+strings.Join(cancelled, ", "))
	}
	return "I could not write a full summary. Tool results, " + strings.Join(parts, "; ") + "."
}
