package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/xiaot623/gogo/assistant/internal/domain"
)

// OK encodes a successful result payload.
func OK(v any) (json.RawMessage, error) {
	body := map[string]any{"status": domain.ResultStatusOK}
	if v != nil {
		body["result"] = v
	}
	return marshal(body)
}

// Cancelled encodes the payload of a call the user declined.
func Cancelled(message string) json.RawMessage {
	if message == "" {
		message = "cancelled by user"
	}
	b, _ := json.Marshal(map[string]string{"status": domain.ResultStatusCancelled, "message": message})
	return b
}

func marshal(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal result")
	}
	return b, nil
}

// render replaces {key} placeholders with argument values.
func render(tmpl string, args map[string]any) string {
	if tmpl == "" || len(args) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(args)*2)
	for k, v := range args {
		pairs = append(pairs, "{"+k+"}", fmt.Sprint(v))
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

func decodeArgs(args json.RawMessage) map[string]any {
	m := map[string]any{}
	if len(args) > 0 {
		_ = json.Unmarshal(args, &m)
	}
	return m
}

// confirm turns an automatic handler into a human-in-the-loop one that asks for
// a yes/no confirmation and runs the handler only on success.
type confirm struct {
	fn Func
	ui *UIBinding
}

func (c *confirm) Prepare(ctx context.Context, call domain.ToolCallRequest, args json.RawMessage) (domain.PendingRequest, error) {
	if c.fn == nil {
		return domain.PendingRequest{}, errors.New("confirmation has no handler")
	}
	question := "Do you want to run " + call.Name + "?"
	fn := "showConfirmBoxUITool"
	if c.ui != nil {
		if c.ui.FunctionName != "" {
			fn = c.ui.FunctionName
		}
		if c.ui.Prompt != "" {
			question = render(c.ui.Prompt, decodeArgs(args))
		}
	}
	return domain.PendingRequest{
		Args: args,
		Notify: &domain.Notification{
			FunctionName: fn,
			Args:         map[string]any{"confirm_question": question},
		},
	}, nil
}

func (c *confirm) Complete(ctx context.Context, req domain.PendingRequest, resume domain.ResumeValue) (json.RawMessage, error) {
	if !resume.Success {
		return Cancelled(resume.Message), nil
	}
	return c.fn(ctx, req.Args)
}

// clientAction asks the client UI to perform an action. Direct-feedback actions
// report success with the configured message.
type clientAction struct {
	ui UIBinding
}

// NewClientAction creates a human-in-the-loop tool rendered by the client function
// described by ui.
func NewClientAction(ui UIBinding) Interruptible {
	return &clientAction{ui: ui}
}

func (a *clientAction) Prepare(ctx context.Context, call domain.ToolCallRequest, args json.RawMessage) (domain.PendingRequest, error) {
	m := decodeArgs(args)
	return domain.PendingRequest{
		Args: args,
		Notify: &domain.Notification{
			FunctionName:     a.ui.FunctionName,
			Args:             m,
			IsDirectFeedback: a.ui.IsDirectFeedback,
			SuccessMessage:   render(a.ui.SuccessMessage, m),
		},
	}, nil
}

func (a *clientAction) Complete(ctx context.Context, req domain.PendingRequest, resume domain.ResumeValue) (json.RawMessage, error) {
	if !resume.Success {
		return Cancelled(resume.Message), nil
	}
	body := map[string]any{"status": domain.ResultStatusOK}
	if req.Notify != nil && req.Notify.IsDirectFeedback {
		body["success_message"] = req.Notify.SuccessMessage
		if resume.Message != "" && resume.Message != req.Notify.SuccessMessage {
			body["client_message"] = resume.Message
		}
	} else {
		body["result"] = resume.Message
	}
	return marshal(body)
}
