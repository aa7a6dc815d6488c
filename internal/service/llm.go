package service

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/xiaot623/gogo/assistant/internal/adapter/llm"
)

// Tags identify the calling stage in requests and logs.
const (
	tagRewrite   = "rewrite"
	tagClassify  = "classify"
	tagDataPlan  = "data_plan"
	tagUIPlan    = "ui_plan"
	tagCheck     = "check"
	tagSummarize = "summarize"
	tagPlan      = "plan"
	tagStep      = "step"
	tagObserve   = "observe"
)

type askOptions struct {
	tools    []llm.Tool
	jsonMode bool
}

// ask sends one completion request with the active model selection.
func (s *Session) ask(ctx context.Context, tag string, messages []llm.ChatMessage, opts askOptions) (*llm.ChatMessage, error) {
	sel := s.svc.models.Active()
	temp := sel.Temperature
	req := &llm.ChatCompletionRequest{
		Model:       sel.Model,
		Messages:    messages,
		Temperature: &temp,
		Tools:       opts.tools,
		JSONMode:    opts.jsonMode,
		Tag:         tag,
	}

	cctx, cancel := context.WithTimeout(ctx, s.svc.cfg.LLMTimeout)
	defer cancel()

	start := time.Now()
	resp, err := s.svc.llm.CreateChatCompletion(cctx, req)
	latency := time.Since(start)
	if err != nil {
		s.logger.Warn().Err(err).Str("tag", tag).Dur("latency", latency).Msg("llm call failed")
		return nil, errors.Wrapf(err, "%s: llm call failed", tag)
	}
	msg := resp.FirstMessage()
	if msg == nil {
		return nil, errors.Errorf("%s: empty completion", tag)
	}

	ev := s.logger.Debug().Str("tag", tag).Str("model", sel.Model).Dur("latency", latency).Int("tool_calls", len(msg.ToolCalls))
	if resp.Usage != nil {
		ev = ev.Int("total_tokens", resp.Usage.TotalTokens)
	}
	ev.Msg("llm call done")
	return msg, nil
}

// prompt builds a system + user message pair.
func prompt(system, user string) []llm.ChatMessage {
	return []llm.ChatMessage{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}
}
