package service

import (
	"context"
	"regexp"

	"github.com/xiaot623/gogo/assistant/internal/domain"
)

var (
	dataFlag = regexp.MustCompile(`(?im)data_tools\**\s*:\s*\**\s*\[?\s*(true|false)`)
	uiFlag   = regexp.MustCompile(`(?im)ui_tools\**\s*:\s*\**\s*\[?\s*(true|false)`)
)

// classify sets the data/UI flags. Any failure leaves both false.
func (s *Session) classify(ctx context.Context) (domain.Node, error) {
	s.emitStep(ctx, "Classifying intent")
	s.state.NeedDataTools, s.state.NeedUITools = false, false

	if s.state.RewrittenQuery == "" {
		return domain.NodeDataPlan, nil
	}
	msg, err := s.ask(ctx, tagClassify, prompt(classifySystem, s.state.RewrittenQuery), askOptions{})
	if err != nil {
		return domain.NodeDataPlan, nil
	}
	data, ui, ok := parseIntent(msg.Content)
	if !ok {
		s.logger.Warn().Str("reply", msg.Content).Msg("unparseable intent reply")
	}
	s.state.NeedDataTools, s.state.NeedUITools = data, ui
	s.logger.Debug().Bool("data", data).Bool("ui", ui).Msg("intent classified")
	return domain.NodeDataPlan, nil
}

// parseIntent reads both flags. Either missing line makes the whole reply invalid.
func parseIntent(text string) (data, ui, ok bool) {
	d := dataFlag.FindStringSubmatch(text)
	u := uiFlag.FindStringSubmatch(text)
	if d == nil || u == nil {
		return false, false, false
	}
	return isTrue(d[1]), isTrue(u[1]), true
}

func isTrue(s string) bool {
	return len(s) == 4 && (s[0] == 't' || s[0] == 'T')
}
