package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xiaot623/gogo/assistant/internal/adapter/llm"
	"github.com/xiaot623/gogo/assistant/internal/domain"
)

type checkReply struct {
	Decision domain.CheckDecision `json:"decision"`
	Query    string               `json:"query"`
	Reason   string               `json:"reason"`
}

// check decides between retrying the data stage, advancing to the UI stage and
// aborting to the summary.
func (s *Session) check(ctx context.Context) (domain.Node, error) {
	s.emitStep(ctx, "Checking data results")
	decision, query, reason := s.decide(ctx)
	s.logger.Debug().Str("decision", string(decision)).Str("reason", reason).Int("retry_count", s.state.RetryCount).Msg("check decided")

	switch decision {
	case domain.CheckRetry:
		s.state.RetryCount++
		if q := strings.TrimSpace(query); q != "" {
			s.state.RewrittenQuery = q
		}
		return domain.NodeDataPlan, nil
	case domain.CheckAbort:
		return domain.NodeSummarize, nil
	default:
		return domain.NodeUIPlan, nil
	}
}

func (s *Session) decide(ctx context.Context) (domain.CheckDecision, string, string) {
	round := s.state.CurrentRound()
	for _, t := range round {
		if t.IsCancelled() {
			return domain.CheckAbort, "", "the user cancelled an action"
		}
	}
	if s.state.RetryCount >= s.svc.cfg.MaxRetries {
		if s.state.NeedUITools {
			return domain.CheckAdvance, "", "retry budget exhausted"
		}
		return domain.CheckAbort, "", "retry budget exhausted"
	}

	messages := []llm.ChatMessage{{
		Role: llm.RoleSystem,
		Content: fmt.Sprintf(checkSystem, s.state.RewrittenQuery, s.state.NeedUITools,
			s.state.RetryCount, s.svc.cfg.MaxRetries),
	}}
	messages = append(messages, toMessages(round, s.state.RewrittenQuery)...)
	msg, err := s.ask(ctx, tagCheck, messages, askOptions{jsonMode: true})
	if err != nil {
		return domain.CheckAdvance, "", "check unavailable"
	}
	var reply checkReply
	if err := decodeJSON(msg.Content, &reply); err != nil {
		return domain.CheckAdvance, "", "malformed check reply"
	}
	switch reply.Decision {
	case domain.CheckRetry, domain.CheckAdvance, domain.CheckAbort:
		return reply.Decision, reply.Query, reply.Reason
	}
	return domain.CheckAdvance, "", "unknown decision " + string(reply.Decision)
}
