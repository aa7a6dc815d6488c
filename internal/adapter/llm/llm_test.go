package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelector(t *testing.T) {
	s := NewSelector([]string{"gpt-4o"}, "qwen-plus", 0.7)
	assert.Equal(t, []string{"qwen-plus", "gpt-4o"}, s.Available())
	assert.Equal(t, "qwen-plus", s.Active().Model)

	prev, err := s.Select("gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "qwen-plus", prev.Model)
	assert.Equal(t, "gpt-4o", s.Active().Model)
	assert.InDelta(t, 0.7, s.Active().Temperature, 1e-6)

	_, err = s.Select("nope")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestSelectorConcurrentSwap(t *testing.T) {
	s := NewSelector([]string{"a", "b"}, "a", 0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := "a"
			if i%2 == 0 {
				name = "b"
			}
			_, _ = s.Select(name)
			_ = s.Active()
		}(i)
	}
	wg.Wait()
	assert.Contains(t, []string{"a", "b"}, s.Active().Model)
}

func TestMockClient(t *testing.T) {
	ctx := context.Background()
	m := NewMockClient(nil)

	resp, err := m.CreateChatCompletion(ctx, &ChatCompletionRequest{
		Model:    "mock",
		Tag:      "summary",
		Messages: []ChatMessage{{Role: RoleUser, Content: "hello"}},
	})
	require.NoError(t, err)
	assert.Contains(t, resp.FirstMessage().Content, "hello")
	assert.Equal(t, RoleAssistant, resp.FirstMessage().Role)
	assert.Equal(t, 1, m.CountTag("summary"))
	assert.Len(t, m.Requests(), 1)
}

func TestOpenAIClient(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cmpl-1",
			"model": "qwen-plus",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "get_junction", "arguments": "{\"name\":\"J1\"}"}}]
				}
			}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "test-key", 5*time.Second)
	temp := float32(0.2)
	resp, err := c.CreateChatCompletion(context.Background(), &ChatCompletionRequest{
		Model:       "qwen-plus",
		Temperature: &temp,
		Messages:    []ChatMessage{{Role: RoleUser, Content: "query J1"}},
		Tools: []Tool{{Type: "function", Function: ToolFunction{
			Name:       "get_junction",
			Parameters: json.RawMessage(`{"type":"object","properties":{"name":{"type":"string"}}}`),
		}}},
	})
	require.NoError(t, err)

	msg := resp.FirstMessage()
	require.NotNil(t, msg)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "get_junction", msg.ToolCalls[0].Function.Name)
	assert.Equal(t, `{"name":"J1"}`, msg.ToolCalls[0].Function.Arguments)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	assert.Equal(t, "qwen-plus", got["model"])
	tools, ok := got["tools"].([]any)
	require.True(t, ok)
	assert.Len(t, tools, 1)
}

func TestNewLLMClientMode(t *testing.T) {
	_, ok := NewLLMClient("mock", "", "", time.Second).(*MockClient)
	assert.True(t, ok)
	_, ok = NewLLMClient("", "http://localhost", "key", time.Second).(*OpenAIClient)
	assert.True(t, ok)
}

func TestSelectorUnserved(t *testing.T) {
	ctx := context.Background()
	s := NewSelector([]string{"mock-gpt-4o", "gpt-4o"}, "mock-qwen-plus", 0.7)

	missing, err := s.Unserved(ctx, NewMockClient(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-4o"}, missing)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"qwen-plus","object":"model","owned_by":"dashscope"}]}`))
	}))
	defer srv.Close()

	s = NewSelector([]string{"gpt-4o"}, "qwen-plus", 0.7)
	missing, err = s.Unserved(ctx, NewOpenAIClient(srv.URL, "test-key", time.Second))
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-4o"}, missing)
}
