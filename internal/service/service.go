// Package service implements the conversation engine: per-session mailboxes that
// drive the tool-mode and plan-mode graphs.
package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/xiaot623/gogo/assistant/internal/adapter/llm"
	"github.com/xiaot623/gogo/assistant/internal/domain"
	"github.com/xiaot623/gogo/assistant/internal/policy"
	"github.com/xiaot623/gogo/assistant/internal/protocol"
	"github.com/xiaot623/gogo/assistant/internal/repository"
	"github.com/xiaot623/gogo/assistant/internal/tools"
)

var (
	// ErrSessionBusy is returned when a session's mailbox is full.
	ErrSessionBusy = errors.New("session is busy")
	// ErrNoPendingInterrupt is reported when feedback arrives with nothing to resume.
	ErrNoPendingInterrupt = errors.New("no pending interrupt to resume")
	// ErrInterruptPending is reported when a chat arrives while an interrupt is outstanding.
	ErrInterruptPending = errors.New("waiting for feedback on the pending action")
	// ErrServiceClosed is returned after Shutdown.
	ErrServiceClosed = errors.New("service is shut down")
)

// Config holds the engine limits.
type Config struct {
	MaxRetries      int
	MaxReplans      int
	HistoryWindow   int
	AutoConcurrency int
	ToolTimeout     time.Duration
	LLMTimeout      time.Duration
	MailboxSize     int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      5,
		MaxReplans:      2,
		HistoryWindow:   4,
		AutoConcurrency: 8,
		ToolTimeout:     30 * time.Second,
		LLMTimeout:      60 * time.Second,
		MailboxSize:     16,
	}
}

// Sink receives the outbound events of every session.
type Sink interface {
	Publish(ctx context.Context, sessionID string, msg protocol.Outbound) error
	// Connected reports whether the session currently has a client attached.
	Connected(sessionID string) bool
}

// Gate is the per-call policy check.
type Gate interface {
	Evaluate(ctx context.Context, in policy.CallInput) (policy.Decision, string, error)
}

// Service owns the live sessions.
type Service struct {
	cfg    Config
	llm    llm.LLMClient
	models *llm.Selector
	store  repository.CheckpointStore
	sink   Sink
	gate   Gate

	registry atomic.Pointer[tools.Registry]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// New creates a service. gate may be nil.
func New(cfg Config, client llm.LLMClient, models *llm.Selector, registry *tools.Registry, store repository.CheckpointStore, sink Sink, gate Gate) *Service {
	def := DefaultConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.MaxReplans < 0 {
		cfg.MaxReplans = def.MaxReplans
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = def.HistoryWindow
	}
	if cfg.AutoConcurrency <= 0 {
		cfg.AutoConcurrency = def.AutoConcurrency
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = def.ToolTimeout
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = def.LLMTimeout
	}
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = def.MailboxSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		cfg:      cfg,
		llm:      client,
		models:   models,
		store:    store,
		sink:     sink,
		gate:     gate,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
	s.registry.Store(registry)
	return s
}

// Tools returns the registry currently in use.
func (s *Service) Tools() *tools.Registry {
	return s.registry.Load()
}

// SwapTools replaces the registry. Turns already running keep the one they started with.
func (s *Service) SwapTools(r *tools.Registry) {
	s.registry.Store(r)
	log.Info().Int("tools", r.Len()).Msg("tool registry swapped")
}

// Models returns the model selector.
func (s *Service) Models() *llm.Selector {
	return s.models
}

// HandleChat queues a user message for the session, creating it on first use.
func (s *Service) HandleChat(sessionID string, mode domain.AgentMode, text string) error {
	sess, err := s.session(sessionID, mode)
	if err != nil {
		return err
	}
	return sess.enqueue(job{chat: &text})
}

// HandleFeedback queues the answer to the session's pending interrupt.
func (s *Service) HandleFeedback(sessionID string, mode domain.AgentMode, resume domain.ResumeValue) error {
	sess, err := s.session(sessionID, mode)
	if err != nil {
		return err
	}
	return sess.enqueue(job{feedback: &resume})
}

// Open makes sure a session is live so a suspended one is restored before the
// client sends anything. An outstanding client action is sent again to the new
// connection.
func (s *Service) Open(sessionID string, mode domain.AgentMode) error {
	sess, err := s.session(sessionID, mode)
	if err != nil {
		return err
	}
	if err := sess.enqueue(job{replay: true}); err != nil {
		if errors.Is(err, ErrSessionBusy) {
			log.Warn().Str("session_id", sessionID).Msg("mailbox full, pending action not replayed")
			return nil
		}
		return err
	}
	return nil
}

func (s *Service) session(id string, mode domain.AgentMode) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrServiceClosed
	}
	if sess, ok := s.sessions[id]; ok {
		return sess, nil
	}
	sess := newSession(s, id, mode)
	s.sessions[id] = sess
	s.wg.Add(1)
	go sess.loop()
	log.Info().Str("session_id", id).Str("mode", string(mode)).Msg("session created")
	return sess, nil
}

// SessionInfo is the admin view of a session.
type SessionInfo struct {
	SessionID string           `json:"session_id"`
	Mode      domain.AgentMode `json:"mode"`
	Live      bool             `json:"live"`
	Turns     int              `json:"turns"`
	Node      domain.Node      `json:"node"`
	Pending   *PendingInfo     `json:"pending,omitempty"`
	Version   int64            `json:"version,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// PendingInfo describes an outstanding interrupt.
type PendingInfo struct {
	ID           string    `json:"id"`
	ToolName     string    `json:"tool_name"`
	FunctionName string    `json:"function_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session returns the live view of a session, falling back to its checkpoint.
func (s *Service) Session(ctx context.Context, id string) (*SessionInfo, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if ok {
		info := sess.snapshot()
		return &info, nil
	}

	cp, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, repository.ErrNotFound
	}
	info := infoFromState(id, cp.Mode, &cp.State)
	info.Version = cp.Version
	info.UpdatedAt = cp.UpdatedAt
	return &info, nil
}

// CloseSession stops a session and deletes its checkpoint.
func (s *Service) CloseSession(ctx context.Context, id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if ok {
		sess.stop()
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	log.Info().Str("session_id", id).Msg("session closed")
	return nil
}

// Shutdown stops every session goroutine and waits for them to exit.
func (s *Service) Shutdown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

func infoFromState(id string, mode domain.AgentMode, st *domain.ConversationState) SessionInfo {
	info := SessionInfo{
		SessionID: id,
		Mode:      mode,
		Turns:     len(st.Turns),
		Node:      st.Node,
	}
	if p := st.Pending; p != nil {
		info.Pending = &PendingInfo{
			ID:        p.ID,
			ToolName:  p.Request.ToolName,
			CreatedAt: p.CreatedAt,
		}
		if p.Request.Notify != nil {
			info.Pending.FunctionName = p.Request.Notify.FunctionName
		}
	}
	return info
}
