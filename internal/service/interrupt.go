package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/xiaot623/gogo/assistant/internal/domain"
)

// runHIL prepares one human-in-the-loop call. It completes immediately when the
// tool needs no external input, and suspends the session otherwise.
func (s *Session) runHIL(ctx context.Context, c domain.ToolCallRequest, node domain.Node) error {
	t, args, err := s.admit(ctx, c)
	if err != nil {
		s.appendResult(ctx, domain.NewToolErrorTurn(c.ID, c.Name, err))
		return nil
	}
	req, err := invoke(ctx, s.svc.cfg.ToolTimeout, func(ctx context.Context) (domain.PendingRequest, error) {
		return t.Prepare(ctx, c, args)
	})
	if err != nil {
		s.appendResult(ctx, domain.NewToolErrorTurn(c.ID, c.Name, err))
		return nil
	}
	if req.Notify == nil {
		s.complete(ctx, req, domain.ResumeValue{Success: true})
		return nil
	}
	return s.suspend(ctx, req, node)
}

// suspend emits the client action, saves a checkpoint holding the pending request
// and the node to continue with, and stops the run.
func (s *Session) suspend(ctx context.Context, req domain.PendingRequest, node domain.Node) error {
	s.emitFunctionCall(ctx, req.Notify)

	s.state.Pending = &domain.PendingInterrupt{
		ID:        uuid.NewString(),
		Request:   req,
		NextNode:  node,
		CreatedAt: time.Now(),
	}
	if err := s.checkpoint(ctx); err != nil {
		s.state.Pending = nil
		return err
	}
	s.logger.Info().Str("tool", req.ToolName).Str("call_id", req.CallID).Str("interrupt_id", s.state.Pending.ID).Msg("session suspended")
	return errSuspended
}

// resume claims the pending interrupt, completes the call and moves the cursor to
// the node that was running when the session suspended.
func (s *Session) resume(ctx context.Context, p *domain.PendingInterrupt, value domain.ResumeValue) error {
	ok, err := s.svc.store.ClaimInterrupt(ctx, s.ID, p.ID)
	if err != nil {
		return errors.Wrap(err, "failed to claim interrupt")
	}
	if !ok {
		s.reload(ctx)
		return errors.Errorf("interrupt %s was already resumed", p.ID)
	}
	s.logger.Info().Str("interrupt_id", p.ID).Bool("success", value.Success).Msg("resuming")

	s.state.Pending = nil
	s.complete(ctx, p.Request, value)
	s.state.Node = p.NextNode
	return nil
}

// complete runs the second phase and appends its result.
func (s *Session) complete(ctx context.Context, req domain.PendingRequest, value domain.ResumeValue) {
	t, err := s.registry.Lookup(req.ToolName)
	if err != nil {
		s.appendResult(ctx, domain.NewToolErrorTurn(req.CallID, req.ToolName, err))
		return
	}
	out, err := invoke(ctx, s.svc.cfg.ToolTimeout, func(ctx context.Context) (json.RawMessage, error) {
		return t.Complete(ctx, req, value)
	})
	if err != nil {
		s.appendResult(ctx, domain.NewToolErrorTurn(req.CallID, req.ToolName, err))
		return
	}
	s.appendResult(ctx, domain.NewToolResultTurn(req.CallID, req.ToolName, out))
}
