package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xiaot623/gogo/assistant/internal/adapter/llm"
	"github.com/xiaot623/gogo/assistant/internal/domain"
)

const replanResultLimit = 5

type planReply struct {
	Steps []domain.PlanStep `json:"steps"`
}

type observeReply struct {
	NextNode string `json:"next_node"`
	NextStep int    `json:"next_step"`
	Reason   string `json:"reason"`
}

// plan creates the step list, or a new one when a plan already exists.
func (s *Session) plan(ctx context.Context) (domain.Node, error) {
	query := s.state.RewrittenQuery
	if query == "" {
		users := domain.RecentByKind(s.state.Turns, 1, domain.TurnKindUser)
		if len(users) == 0 {
			return domain.NodeEnd, nil
		}
		query = users[0].Text
		s.state.RewrittenQuery = query
	}
	catalog := describeTools(s.registry.Descriptors())

	var system string
	if len(s.state.PendingPlan) > 0 {
		s.emitStep(ctx, "Re-planning after execution feedback")
		prev, _ := json.Marshal(s.state.PendingPlan)
		system = fmt.Sprintf(replanSystem, query, prev,
			describeResults(s.state.CurrentRound(), replanResultLimit), catalog)
	} else {
		s.emitStep(ctx, "Making a plan")
		system = fmt.Sprintf(planSystem, query, catalog)
	}

	var reply planReply
	msg, err := s.ask(ctx, tagPlan, prompt(system, query), askOptions{jsonMode: true})
	if err == nil {
		if err := decodeJSON(msg.Content, &reply); err != nil {
			reply.Steps = nil
		}
	}
	steps := reply.Steps[:0]
	for _, st := range reply.Steps {
		if strings.TrimSpace(st.Description) != "" || st.Tool != "" {
			steps = append(steps, st)
		}
	}
	if len(steps) == 0 {
		steps = []domain.PlanStep{{Description: query}}
	}

	s.state.PendingPlan = steps
	s.state.CurrentStep = 0
	s.state.Observations = 0
	s.emitStep(ctx, renderPlan(steps))
	return domain.NodeStepPlan, nil
}

// planStep turns the current plan step into one batch of tool calls.
func (s *Session) planStep(ctx context.Context) (domain.Node, error) {
	if s.state.CurrentStep >= len(s.state.PendingPlan) {
		return domain.NodeSummarize, nil
	}
	step := s.state.PendingPlan[s.state.CurrentStep]
	s.emitStep(ctx, fmt.Sprintf("Step %d/%d: %s", s.state.CurrentStep+1, len(s.state.PendingPlan), step.Description))

	tool := step.Tool
	if tool == "" {
		tool = "(choose)"
	}
	args := "{}"
	if len(step.Arguments) > 0 {
		b, _ := json.Marshal(step.Arguments)
		args = string(b)
	}
	system := fmt.Sprintf(stepSystem, s.state.RewrittenQuery, s.state.CurrentStep+1,
		len(s.state.PendingPlan), step.Description, tool, args)

	messages := []llm.ChatMessage{{Role: llm.RoleSystem, Content: system}}
	messages = append(messages, toMessages(s.state.CurrentRound(), "")...)
	msg, err := s.ask(ctx, tagStep, messages, askOptions{tools: toTools(s.registry.Descriptors())})
	if err != nil {
		return domain.NodeEnd, err
	}
	turn := domain.NewAssistantTurn(strings.TrimSpace(msg.Content), toCalls(msg.ToolCalls))
	s.state.Append(turn)
	s.emitAssistant(ctx, turn)
	if !turn.HasToolCalls() {
		return domain.NodeSummarize, nil
	}
	return domain.NodeStepExecute, nil
}

// observe reviews the executed step and moves the cursor.
func (s *Session) observe(ctx context.Context) (domain.Node, error) {
	s.emitStep(ctx, "Reviewing the step")
	s.state.Observations++
	total := len(s.state.PendingPlan)

	_, idx := s.state.LastAssistant()
	if idx >= 0 {
		for _, t := range s.state.Turns[idx+1:] {
			if t.IsCancelled() {
				return domain.NodeSummarize, nil
			}
		}
	}
	if s.state.Observations >= total+s.svc.cfg.MaxRetries {
		return domain.NodeSummarize, nil
	}

	plan, _ := json.Marshal(s.state.PendingPlan)
	var latest []domain.Turn
	if idx >= 0 {
		latest = s.state.Turns[idx:]
	}
	system := fmt.Sprintf(observeSystem, s.state.RewrittenQuery, plan,
		s.state.CurrentStep+1, total, describeResults(latest, 0))

	var reply observeReply
	msg, err := s.ask(ctx, tagObserve, prompt(system, "Decide the next node."), askOptions{jsonMode: true})
	if err != nil || decodeJSON(msg.Content, &reply) != nil {
		return s.advanceStep(), nil
	}

	switch domain.Node(reply.NextNode) {
	case domain.NodeStepExecute:
		next := reply.NextStep - 1
		if next < 0 {
			next = s.state.CurrentStep + 1
		}
		if next >= total {
			return domain.NodeSummarize, nil
		}
		s.state.CurrentStep = next
		return domain.NodeStepPlan, nil
	case domain.NodePlan:
		if s.state.Replans >= s.svc.cfg.MaxReplans {
			return domain.NodeSummarize, nil
		}
		s.state.Replans++
		return domain.NodePlan, nil
	case domain.NodeSummarize:
		return domain.NodeSummarize, nil
	}
	return s.advanceStep(), nil
}

func (s *Session) advanceStep() domain.Node {
	s.state.CurrentStep++
	if s.state.CurrentStep >= len(s.state.PendingPlan) {
		return domain.NodeSummarize
	}
	return domain.NodeStepPlan
}

func renderPlan(steps []domain.PlanStep) string {
	var b strings.Builder
	b.WriteString("Plan:")
	for i, st := range steps {
		fmt.Fprintf(&b, "\n%d. %s", i+1, st.Description)
		if st.Tool != "" {
			fmt.Fprintf(&b, " [%s]", st.Tool)
		}
	}
	return b.String()
}
