package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Responder produces the assistant message for a request.
type Responder func(ctx context.Context, req *ChatCompletionRequest) (*ChatMessage, error)

// MockClient is a mock implementation of LLMClient for testing and MOCK mode.
type MockClient struct {
	responder Responder

	mu       sync.Mutex
	requests []ChatCompletionRequest
}

// NewMockClient creates a new mock LLM client. A nil responder echoes the last
// user message.
func NewMockClient(responder Responder) *MockClient {
	m := &MockClient{responder: responder}
	if m.responder == nil {
		m.responder = m.echo
	}
	return m
}

// CreateChatCompletion returns the responder's message.
func (m *MockClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.mu.Lock()
	m.requests = append(m.requests, *req)
	m.mu.Unlock()

	msg, err := m.responder(ctx, req)
	if err != nil {
		return nil, err
	}
	if msg.Role == "" {
		msg.Role = RoleAssistant
	}

	return &ChatCompletionResponse{
		ID:    fmt.Sprintf("mock-chatcmpl-%d", time.Now().UnixNano()),
		Model: req.Model,
		Choices: []Choice{
			{Index: 0, Message: msg, FinishReason: "stop"},
		},
		Usage: &Usage{
			PromptTokens:     m.estimateTokens(req),
			CompletionTokens: len(msg.Content) / 4,
			TotalTokens:      m.estimateTokens(req) + len(msg.Content)/4,
		},
	}, nil
}

// ListModels returns a list of mock models.
func (m *MockClient) ListModels(ctx context.Context) ([]Model, error) {
	return []Model{
		{ID: "mock-qwen-plus", OwnedBy: "mock"},
		{ID: "mock-gpt-4o", OwnedBy: "mock"},
	}, nil
}

// Requests returns a copy of every request received so far.
func (m *MockClient) Requests() []ChatCompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChatCompletionRequest(nil), m.requests...)
}

// CountTag returns how many requests carried the given tag.
func (m *MockClient) CountTag(tag string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if r.Tag == tag {
			n++
		}
	}
	return n
}

func (m *MockClient) echo(ctx context.Context, req *ChatCompletionRequest) (*ChatMessage, error) {
	var lastUserMessage string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			lastUserMessage = req.Messages[i].Content
			break
		}
	}
	if lastUserMessage == "" {
		return &ChatMessage{Content: "[MOCK] This is a mock response from the LLM client."}, nil
	}
	return &ChatMessage{Content: fmt.Sprintf("[MOCK] Received your message: %q. This is a mock response.", truncate(lastUserMessage, 100))}, nil
}

// estimateTokens provides a rough token count estimate.
func (m *MockClient) estimateTokens(req *ChatCompletionRequest) int {
	total := 0
	for _, msg := range req.Messages {
		total += len(msg.Content) / 4
	}
	return total
}

// truncate truncates a string to the given length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
