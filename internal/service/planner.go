package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xiaot623/gogo/assistant/internal/adapter/llm"
	"github.com/xiaot623/gogo/assistant/internal/domain"
)

// planData asks the model for data tool calls.
func (s *Session) planData(ctx context.Context) (domain.Node, error) {
	if !s.state.NeedDataTools || s.state.RewrittenQuery == "" {
		return domain.NodeUIPlan, nil
	}
	s.emitStep(ctx, "Planning data operations")
	calls, err := s.callPlanner(ctx, tagDataPlan, fmt.Sprintf(dataPlanSystem, s.state.RewrittenQuery), domain.ToolCategoryData)
	if err != nil {
		return domain.NodeEnd, err
	}
	if calls == 0 {
		return domain.NodeCheck, nil
	}
	s.emitStep(ctx, "Running data tools")
	return domain.NodeDataExec, nil
}

// planUI asks the model for map tool calls.
func (s *Session) planUI(ctx context.Context) (domain.Node, error) {
	if !s.state.NeedUITools || s.state.RewrittenQuery == "" {
		return domain.NodeSummarize, nil
	}
	s.emitStep(ctx, "Planning map updates")
	calls, err := s.callPlanner(ctx, tagUIPlan, fmt.Sprintf(uiPlanSystem, s.state.RewrittenQuery), domain.ToolCategoryUI)
	if err != nil {
		return domain.NodeEnd, err
	}
	if calls == 0 {
		return domain.NodeSummarize, nil
	}
	s.emitStep(ctx, "Running map tools")
	return domain.NodeUIExec, nil
}

// callPlanner binds one category of tools, appends the assistant turn and returns
// the number of calls it requested.
func (s *Session) callPlanner(ctx context.Context, tag, system string, category domain.ToolCategory) (int, error) {
	messages := []llm.ChatMessage{{Role: llm.RoleSystem, Content: system}}
	messages = append(messages, toMessages(s.state.CurrentRound(), s.state.RewrittenQuery)...)

	msg, err := s.ask(ctx, tag, messages, askOptions{tools: toTools(s.registry.Subset(category))})
	if err != nil {
		return 0, err
	}
	turn := domain.NewAssistantTurn(strings.TrimSpace(msg.Content), toCalls(msg.ToolCalls))
	s.state.Append(turn)
	s.emitAssistant(ctx, turn)
	return len(turn.ToolCalls), nil
}
