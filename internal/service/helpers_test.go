package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/assistant/internal/adapter/llm"
	"github.com/xiaot623/gogo/assistant/internal/domain"
	"github.com/xiaot623/gogo/assistant/internal/network"
	"github.com/xiaot623/gogo/assistant/internal/policy"
	"github.com/xiaot623/gogo/assistant/internal/protocol"
	"github.com/xiaot623/gogo/assistant/internal/repository"
	"github.com/xiaot623/gogo/assistant/internal/tools"
)

// recordingSink keeps every published event per session.
type recordingSink struct {
	mu      sync.Mutex
	events  map[string][]protocol.Outbound
	offline map[string]bool
}

func newRecordingSink() *recordingSink {
	return &recordingSink{events: map[string][]protocol.Outbound{}, offline: map[string]bool{}}
}

func (r *recordingSink) Publish(ctx context.Context, sessionID string, msg protocol.Outbound) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[sessionID] = append(r.events[sessionID], msg)
	return nil
}

func (r *recordingSink) Connected(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.offline[sessionID]
}

func (r *recordingSink) setOffline(sessionID string, off bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offline[sessionID] = off
}

func (r *recordingSink) all(sessionID string) []protocol.Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Outbound(nil), r.events[sessionID]...)
}

// visible returns the events without step progress.
func (r *recordingSink) visible(sessionID string) []protocol.Outbound {
	var out []protocol.Outbound
	for _, e := range r.all(sessionID) {
		if e.MessageType() != protocol.TypeStep {
			out = append(out, e)
		}
	}
	return out
}

func (r *recordingSink) types(sessionID string) []string {
	var out []string
	for _, e := range r.visible(sessionID) {
		out = append(out, e.MessageType())
	}
	return out
}

func (r *recordingSink) count(sessionID, typ string) int {
	n := 0
	for _, e := range r.all(sessionID) {
		if e.MessageType() == typ {
			n++
		}
	}
	return n
}

func (r *recordingSink) waitFor(t *testing.T, sessionID, typ string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return r.count(sessionID, typ) >= n },
		3*time.Second, 5*time.Millisecond, "waiting for %d %s events, got %v", n, typ, r.types(sessionID))
}

// script answers LLM requests by tag, in order, falling back to a default reply.
type script struct {
	mu       sync.Mutex
	replies  map[string][]*llm.ChatMessage
	defaults map[string]*llm.ChatMessage
}

func newScript() *script {
	return &script{replies: map[string][]*llm.ChatMessage{}, defaults: map[string]*llm.ChatMessage{}}
}

func (s *script) on(tag string, msgs ...*llm.ChatMessage) *script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[tag] = append(s.replies[tag], msgs...)
	return s
}

func (s *script) always(tag string, msg *llm.ChatMessage) *script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults[tag] = msg
	return s
}

func (s *script) respond(ctx context.Context, req *llm.ChatCompletionRequest) (*llm.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q := s.replies[req.Tag]; len(q) > 0 {
		s.replies[req.Tag] = q[1:]
		m := *q[0]
		return &m, nil
	}
	if d, ok := s.defaults[req.Tag]; ok {
		m := *d
		return &m, nil
	}
	return &llm.ChatMessage{Content: ""}, nil
}

func text(content string) *llm.ChatMessage {
	return &llm.ChatMessage{Content: content}
}

func calls(cs ...llm.ToolCall) *llm.ChatMessage {
	return &llm.ChatMessage{ToolCalls: cs}
}

func call(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Type: "function", Function: llm.ToolCallFunction{Name: name, Arguments: args}}
}

func intent(data, ui bool) *llm.ChatMessage {
	b := func(v bool) string {
		if v {
			return "true"
		}
		return "false"
	}
	return text("- data_tools: " + b(data) + "\n- ui_tools: " + b(ui) + "\n- reason: test")
}

const testCatalog = `
tools:
  - name: get_junction
    category: data
    policy: automatic
    description: Get a junction by name.
  - name: batch_get_junctions
    category: data
    policy: automatic
    description: List junctions.
  - name: delete_junction
    category: data
    policy: human_in_loop
    description: Delete a junction.
    ui:
      function_name: showConfirmBoxUITool
      prompt: "Delete junction {name}?"
  - name: delete_subcatchment
    category: data
    policy: human_in_loop
    description: Delete a subcatchment.
    ui:
      function_name: showConfirmBoxUITool
      prompt: "Delete subcatchment {name}?"
  - name: human_info_completion_tool
    category: data
    policy: human_in_loop
    description: Ask the user for missing information.
    ui:
      function_name: showHumanInfoUITool
  - name: audit_tool
    category: data
    policy: human_in_loop
    description: Records an audit line without asking anyone.
  - name: slow_tool
    category: data
    policy: automatic
    description: Sleeps.
  - name: panic_tool
    category: data
    policy: automatic
    description: Panics.
  - name: fly_to_entity_by_name_tool
    category: ui
    policy: automatic
    description: Fly the map to an entity.
  - name: init_entities_tool
    category: ui
    policy: human_in_loop
    description: Reload the map entities.
    ui:
      function_name: initEntitiesTool
      is_direct_feedback: true
      success_message: The map was refreshed.
`

type flyArgs struct {
	EntityName string `json:"entity_name" jsonschema:"required"`
}

type sleepArgs struct {
	Millis int `json:"millis"`
}

// silentAudit completes without asking the client.
type silentAudit struct{}

func (silentAudit) Prepare(ctx context.Context, call domain.ToolCallRequest, args json.RawMessage) (domain.PendingRequest, error) {
	return domain.PendingRequest{Args: args}, nil
}

func (silentAudit) Complete(ctx context.Context, req domain.PendingRequest, resume domain.ResumeValue) (json.RawMessage, error) {
	return tools.OK(map[string]bool{"audited": resume.Success})
}

type harness struct {
	svc   *Service
	sink  *recordingSink
	llm   *llm.MockClient
	store repository.CheckpointStore
	model *network.Model
	reg   *tools.Registry
	cfg   Config
}

func newTestRegistry(t *testing.T, m *network.Model) *tools.Registry {
	t.Helper()
	b := tools.NewDefaultBuilder(m)
	b.Bind("fly_to_entity_by_name_tool", flyArgs{}, func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
		var a flyArgs
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]string{"status": "ok", "success_message": "The map is centered on " + a.EntityName})
	})
	b.Bind("slow_tool", sleepArgs{}, func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
		var a sleepArgs
		_ = json.Unmarshal(raw, &a)
		time.Sleep(time.Duration(a.Millis) * time.Millisecond)
		return tools.OK(a.Millis)
	})
	b.Bind("panic_tool", nil, func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
		panic("boom")
	})
	b.BindInterruptible("audit_tool", nil, silentAudit{})

	catalog, err := tools.DecodeCatalog(strings.NewReader(testCatalog))
	require.NoError(t, err)
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)
	reg, err := b.Build(context.Background(), catalog, engine)
	require.NoError(t, err)
	return reg
}

func newHarness(t *testing.T, sc *script, mutate ...func(*Config)) *harness {
	t.Helper()
	m, err := network.Load("")
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.ToolTimeout = time.Second
	for _, fn := range mutate {
		fn(&cfg)
	}
	h := &harness{
		sink:  newRecordingSink(),
		llm:   llm.NewMockClient(sc.respond),
		store: repository.NewMemoryStore(),
		model: m,
		reg:   newTestRegistry(t, m),
		cfg:   cfg,
	}
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)
	h.svc = New(cfg, h.llm, llm.NewSelector([]string{"gpt-4o"}, "qwen-plus", 0.7), h.reg, h.store, h.sink, engine)
	t.Cleanup(h.svc.Shutdown)
	return h
}

// restart replaces the service with a fresh one over the same store, as after a
// process restart.
func (h *harness) restart(t *testing.T, sc *script) {
	t.Helper()
	h.svc.Shutdown()
	h.llm = llm.NewMockClient(sc.respond)
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)
	h.svc = New(h.cfg, h.llm, llm.NewSelector(nil, "qwen-plus", 0.7), h.reg, h.store, h.sink, engine)
	t.Cleanup(h.svc.Shutdown)
}

func (h *harness) checkpoint(t *testing.T, sessionID string) *domain.Checkpoint {
	t.Helper()
	cp, err := h.store.Load(context.Background(), sessionID)
	require.NoError(t, err)
	require.NotNil(t, cp)
	return cp
}

// waitPending blocks until the session's suspension is saved.
func (h *harness) waitPending(t *testing.T, sessionID string) *domain.Checkpoint {
	t.Helper()
	var cp *domain.Checkpoint
	require.Eventually(t, func() bool {
		c, err := h.store.Load(context.Background(), sessionID)
		if err != nil || c == nil || c.State.Pending == nil {
			return false
		}
		cp = c
		return true
	}, 3*time.Second, 5*time.Millisecond)
	return cp
}

// bareSession builds a session whose stages can be called directly.
func (h *harness) bareSession(id string) *Session {
	s := newSession(h.svc, id, domain.AgentModeTool)
	s.registry = h.reg
	return s
}
