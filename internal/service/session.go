package service

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/xiaot623/gogo/assistant/internal/domain"
	"github.com/xiaot623/gogo/assistant/internal/protocol"
	"github.com/xiaot623/gogo/assistant/internal/tools"
)

// errSuspended stops the graph after a checkpoint with a pending interrupt was saved.
var errSuspended = errors.New("suspended")

type job struct {
	chat     *string
	feedback *domain.ResumeValue
	// replay repeats the pending client action for a newly attached connection.
	replay bool
}

// Session is one conversation. Its state is owned by the mailbox goroutine; other
// goroutines only read the snapshot.
type Session struct {
	ID string

	svc    *Service
	inbox  chan job
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	logger zerolog.Logger

	// owned by the loop goroutine
	state    domain.ConversationState
	registry *tools.Registry

	mu   sync.RWMutex
	mode domain.AgentMode
	info SessionInfo
}

func newSession(svc *Service, id string, mode domain.AgentMode) *Session {
	ctx, cancel := context.WithCancel(svc.ctx)
	s := &Session{
		ID:     id,
		svc:    svc,
		inbox:  make(chan job, svc.cfg.MailboxSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: log.With().Str("session_id", id).Logger(),
		mode:   mode,
	}
	s.info = SessionInfo{SessionID: id, Mode: mode, Live: true}
	return s
}

// Mode returns the session's agent mode.
func (s *Session) Mode() domain.AgentMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

func (s *Session) snapshot() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

func (s *Session) refresh(version int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := infoFromState(s.ID, s.mode, &s.state)
	info.Live = true
	info.Version = version
	if version == 0 {
		info.Version = s.info.Version
	}
	info.UpdatedAt = time.Now()
	s.info = info
}

func (s *Session) enqueue(j job) error {
	select {
	case <-s.ctx.Done():
		return ErrServiceClosed
	default:
	}
	select {
	case s.inbox <- j:
		return nil
	default:
		return ErrSessionBusy
	}
}

func (s *Session) stop() {
	s.cancel()
	<-s.done
}

func (s *Session) loop() {
	defer s.svc.wg.Done()
	defer close(s.done)

	s.restore(s.ctx)
	for {
		select {
		case <-s.ctx.Done():
			return
		case j := <-s.inbox:
			switch {
			case j.chat != nil:
				s.handleChat(s.ctx, *j.chat)
			case j.feedback != nil:
				s.handleFeedback(s.ctx, *j.feedback)
			case j.replay:
				s.replayPending(s.ctx)
			}
		}
	}
}

// restore loads the latest checkpoint. The stored mode wins over the requested one.
func (s *Session) restore(ctx context.Context) {
	cp, err := s.svc.store.Load(ctx, s.ID)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load checkpoint")
		return
	}
	if cp == nil {
		return
	}
	s.state = cp.State
	if cp.Mode != "" {
		s.mu.Lock()
		s.mode = cp.Mode
		s.mu.Unlock()
	}

	// A claimed interrupt whose completion was never saved cannot be resumed again.
	if p := s.state.Pending; p != nil && cp.PendingInterruptID == "" {
		s.logger.Warn().Str("interrupt_id", p.ID).Msg("dropping interrupt claimed by an earlier run")
		s.state.Append(domain.NewToolErrorTurn(p.Request.CallID, p.Request.ToolName,
			errors.New("the pending action was interrupted before it completed")))
		s.state.Pending = nil
		s.state.Node = domain.NodeEnd
		if err := s.checkpoint(ctx); err != nil {
			s.logger.Error().Err(err).Msg("failed to save checkpoint")
		}
	}
	s.refresh(cp.Version)
	s.logger.Info().Int("turns", len(s.state.Turns)).Bool("pending", s.state.Pending != nil).Msg("session restored")
}

// reload replaces the in-memory state with the latest checkpoint. A pending
// interrupt that was claimed elsewhere is released locally; the run holding the
// claim saves its result.
func (s *Session) reload(ctx context.Context) {
	cp, err := s.svc.store.Load(ctx, s.ID)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to reload checkpoint")
		return
	}
	if cp == nil {
		s.state = domain.ConversationState{}
		s.refresh(0)
		return
	}
	s.state = cp.State
	if p := s.state.Pending; p != nil && p.ID != cp.PendingInterruptID {
		s.state.Append(domain.NewToolErrorTurn(p.Request.CallID, p.Request.ToolName,
			errors.New("the pending action was resumed by another connection")))
		s.state.Pending = nil
		s.state.Node = domain.NodeEnd
	}
	s.refresh(cp.Version)
	s.logger.Info().Bool("pending", s.state.Pending != nil).Msg("session reloaded")
}

// replayPending sends the outstanding client action again.
func (s *Session) replayPending(ctx context.Context) {
	p := s.state.Pending
	if p == nil || p.Request.Notify == nil {
		return
	}
	s.logger.Debug().Str("interrupt_id", p.ID).Msg("replaying pending action")
	s.emitFunctionCall(ctx, p.Request.Notify)
}

func (s *Session) handleChat(ctx context.Context, text string) {
	if s.state.Pending != nil {
		s.emitError(ctx, ErrInterruptPending)
		return
	}

	s.registry = s.svc.Tools()
	s.emit(ctx, protocol.StartMessage{BaseMessage: protocol.NewBase(protocol.TypeStart, s.ID)})

	s.state.Append(domain.NewUserTurn(text))
	s.state.RewrittenQuery = ""
	s.state.NeedDataTools = false
	s.state.NeedUITools = false
	s.state.RetryCount = 0
	s.state.CurrentStep = 0
	s.state.PendingPlan = nil
	s.state.Replans = 0
	s.state.Observations = 0
	s.state.Node = domain.NodeRewrite
	s.drive(ctx)
}

func (s *Session) handleFeedback(ctx context.Context, resume domain.ResumeValue) {
	p := s.state.Pending
	if p == nil {
		s.emitError(ctx, ErrNoPendingInterrupt)
		return
	}
	if s.registry == nil {
		s.registry = s.svc.Tools()
	}

	if err := s.resume(ctx, p, resume); err != nil {
		s.emitError(ctx, err)
		return
	}
	s.drive(ctx)
}

// drive runs the graph from the current node until it ends or suspends.
func (s *Session) drive(ctx context.Context) {
	for s.state.Node != domain.NodeEnd {
		node := s.state.Node
		next, err := s.step(ctx, node)
		if errors.Is(err, errSuspended) {
			s.refresh(0)
			return
		}
		if err != nil {
			s.logger.Error().Err(err).Str("node", string(node)).Msg("turn failed")
			s.emitError(ctx, err)
			s.state.Node = domain.NodeEnd
			break
		}
		s.state.Node = next
	}
	if err := s.checkpoint(ctx); err != nil {
		s.logger.Error().Err(err).Msg("failed to save checkpoint")
		s.emitError(ctx, err)
	}
}

func (s *Session) step(ctx context.Context, node domain.Node) (domain.Node, error) {
	switch node {
	case domain.NodeRewrite:
		return s.rewrite(ctx)
	case domain.NodeClassify:
		return s.classify(ctx)
	case domain.NodeDataPlan:
		return s.planData(ctx)
	case domain.NodeDataExec:
		return domain.NodeCheck, s.execute(ctx, node)
	case domain.NodeCheck:
		return s.check(ctx)
	case domain.NodeUIPlan:
		return s.planUI(ctx)
	case domain.NodeUIExec:
		return domain.NodeSummarize, s.execute(ctx, node)
	case domain.NodeSummarize:
		return s.summarize(ctx)
	case domain.NodePlan:
		return s.plan(ctx)
	case domain.NodeStepPlan:
		return s.planStep(ctx)
	case domain.NodeStepExecute:
		return domain.NodeObserve, s.execute(ctx, node)
	case domain.NodeObserve:
		return s.observe(ctx)
	}
	return domain.NodeEnd, errors.Errorf("unknown node %q", node)
}

// checkpoint saves the full state.
func (s *Session) checkpoint(ctx context.Context) error {
	cp := &domain.Checkpoint{
		SessionID: s.ID,
		Mode:      s.Mode(),
		State:     s.state,
	}
	if err := s.svc.store.Save(ctx, cp); err != nil {
		return errors.Wrap(err, "failed to save checkpoint")
	}
	s.refresh(cp.Version)
	return nil
}

// emit publishes an event if a client is attached; otherwise it is dropped.
func (s *Session) emit(ctx context.Context, msg protocol.Outbound) {
	if !s.svc.sink.Connected(s.ID) {
		s.logger.Debug().Str("type", msg.MessageType()).Msg("no client attached, dropping event")
		return
	}
	if err := s.svc.sink.Publish(ctx, s.ID, msg); err != nil {
		s.logger.Warn().Err(err).Str("type", msg.MessageType()).Msg("failed to publish event")
	}
}

func (s *Session) emitFunctionCall(ctx context.Context, n *domain.Notification) {
	s.emit(ctx, protocol.FunctionCallMessage{
		BaseMessage:      protocol.NewBase(protocol.TypeFunctionCall, s.ID),
		FunctionName:     n.FunctionName,
		Args:             n.Args,
		IsDirectFeedback: n.IsDirectFeedback,
		SuccessMessage:   n.SuccessMessage,
	})
}

func (s *Session) emitStep(ctx context.Context, content string) {
	s.emit(ctx, protocol.StepMessage{BaseMessage: protocol.NewBase(protocol.TypeStep, s.ID), Content: content})
}

func (s *Session) emitError(ctx context.Context, err error) {
	s.emit(ctx, protocol.ErrorMessage{BaseMessage: protocol.NewBase(protocol.TypeError, s.ID), Message: err.Error()})
}

func (s *Session) emitAssistant(ctx context.Context, t domain.Turn) {
	msg := protocol.AIMessage{BaseMessage: protocol.NewBase(protocol.TypeAIMessage, s.ID), Content: t.Text}
	for _, c := range t.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, protocol.ToolCall{ID: c.ID, Name: c.Name, Args: c.Arguments})
	}
	s.emit(ctx, msg)
}

func (s *Session) emitResult(ctx context.Context, t domain.Turn) {
	s.emit(ctx, protocol.ToolMessage{
		BaseMessage: protocol.NewBase(protocol.TypeToolMessage, s.ID),
		Content:     string(t.Payload),
		Name:        t.ToolName,
		ToolCallID:  t.ToolCallID,
	})
}

// appendResult records a tool result and streams it.
func (s *Session) appendResult(ctx context.Context, t domain.Turn) {
	s.state.Append(t)
	s.emitResult(ctx, t)
	ev := s.logger.Debug()
	if t.IsError {
		ev = s.logger.Warn()
	}
	ev.Str("tool", t.ToolName).Str("call_id", t.ToolCallID).Bool("is_error", t.IsError).Msg("tool result")
}
