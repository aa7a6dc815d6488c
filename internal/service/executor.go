package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xiaot623/gogo/assistant/internal/domain"
	"github.com/xiaot623/gogo/assistant/internal/policy"
	"github.com/xiaot623/gogo/assistant/internal/tools"
)

var errDisconnected = errors.New("client disconnected")

// execute runs the unresolved calls of the latest assistant turn. Automatic calls
// run concurrently and are appended in arrival order; human-in-the-loop calls run
// one after another and may suspend the session.
func (s *Session) execute(ctx context.Context, node domain.Node) error {
	var autoQueue, hilQueue []domain.ToolCallRequest
	for _, c := range s.state.UnresolvedCalls() {
		t, err := s.registry.Lookup(c.Name)
		if err != nil {
			autoQueue = append(autoQueue, c)
			continue
		}
		switch t.Policy {
		case domain.PolicyHumanInLoop:
			hilQueue = append(hilQueue, c)
		default:
			autoQueue = append(autoQueue, c)
		}
	}

	s.runAuto(ctx, autoQueue)

	for _, c := range hilQueue {
		if err := s.runHIL(ctx, c, node); err != nil {
			return err
		}
	}
	return nil
}

// runAuto fans the queue out to a bounded worker pool. Only this goroutine
// touches the state; workers hand results back over a channel.
func (s *Session) runAuto(ctx context.Context, queue []domain.ToolCallRequest) {
	if len(queue) == 0 {
		return
	}
	results := make(chan domain.Turn)

	var g errgroup.Group
	g.SetLimit(s.svc.cfg.AutoConcurrency)
	go func() {
		for _, c := range queue {
			g.Go(func() error {
				results <- s.callAuto(ctx, c)
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	for t := range results {
		s.appendResult(ctx, t)
	}
}

func (s *Session) callAuto(ctx context.Context, c domain.ToolCallRequest) domain.Turn {
	if ctx.Err() != nil || !s.svc.sink.Connected(s.ID) {
		return domain.NewToolErrorTurn(c.ID, c.Name, errDisconnected)
	}
	t, args, err := s.admit(ctx, c)
	if err != nil {
		return domain.NewToolErrorTurn(c.ID, c.Name, err)
	}
	out, err := invoke(ctx, s.svc.cfg.ToolTimeout, func(ctx context.Context) (json.RawMessage, error) {
		return t.Run(ctx, args)
	})
	if err != nil {
		return domain.NewToolErrorTurn(c.ID, c.Name, err)
	}
	return domain.NewToolResultTurn(c.ID, c.Name, out)
}

// admit resolves, validates and authorizes a call.
func (s *Session) admit(ctx context.Context, c domain.ToolCallRequest) (*tools.Tool, json.RawMessage, error) {
	t, err := s.registry.Lookup(c.Name)
	if err != nil {
		return nil, nil, err
	}
	if raw, ok := c.Arguments[invalidArgsKey]; ok {
		return nil, nil, errors.Errorf("arguments are not a JSON object: %v", raw)
	}
	argsMap := c.Arguments
	if argsMap == nil {
		argsMap = map[string]any{}
	}
	args, err := json.Marshal(argsMap)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to encode arguments")
	}
	if err := t.Validate(args); err != nil {
		return nil, nil, err
	}
	if s.svc.gate != nil {
		decision, reason, err := s.svc.gate.Evaluate(ctx, policy.CallInput{
			ToolName:  t.Name,
			Category:  t.Category,
			SessionID: s.ID,
			Args:      argsMap,
		})
		if err != nil {
			return nil, nil, errors.Wrap(err, "policy evaluation failed")
		}
		if decision == policy.DecisionBlock {
			if reason == "" {
				reason = "no reason given"
			}
			return nil, nil, errors.Errorf("blocked by policy: %s", reason)
		}
	}
	return t, args, nil
}

// invoke runs fn with a deadline, turning panics into errors. A handler that
// ignores its context is abandoned when the deadline passes.
func invoke[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		v, err := fn(ctx)
		done <- outcome{v: v, err: err}
	}()

	select {
	case o := <-done:
		return o.v, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, errors.Errorf("tool call timed out after %s", timeout)
		}
		return zero, errors.Wrap(ctx.Err(), "tool call cancelled")
	}
}
