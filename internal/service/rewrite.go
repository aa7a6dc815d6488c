package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xiaot623/gogo/assistant/internal/domain"
)

// rewrite resolves the newest user turn against recent context. Without earlier
// context the query passes through without an LLM call.
func (s *Session) rewrite(ctx context.Context) (domain.Node, error) {
	s.emitStep(ctx, "Rewriting the question")
	s.state.RetryCount = 0
	next := domain.NodeClassify
	if s.Mode() == domain.AgentModePlan {
		next = domain.NodePlan
	}

	users := domain.RecentByKind(s.state.Turns, s.svc.cfg.HistoryWindow, domain.TurnKindUser)
	if len(users) == 0 {
		s.state.RewrittenQuery = ""
		return next, nil
	}
	query := users[len(users)-1].Text
	earlier := users[:len(users)-1]
	last, hasAnswer := lastAnswer(s.state.Turns)

	if len(earlier) == 0 && !hasAnswer {
		s.state.RewrittenQuery = query
		return next, nil
	}

	var history []string
	for _, t := range earlier {
		history = append(history, "- "+t.Text)
	}
	prev := "(none)"
	if hasAnswer {
		prev = last.Text
	}
	if len(history) == 0 {
		history = []string{"(none)"}
	}

	msg, err := s.ask(ctx, tagRewrite, prompt(rewriteSystem,
		fmt.Sprintf(rewriteUser, query, strings.Join(history, "\n"), prev)), askOptions{})
	rewritten := ""
	if err == nil {
		rewritten = strings.TrimSpace(msg.Content)
	}
	if rewritten == "" {
		rewritten = query
	}
	s.state.RewrittenQuery = rewritten
	s.logger.Debug().Str("query", query).Str("rewritten", rewritten).Msg("query rewritten")
	return next, nil
}
