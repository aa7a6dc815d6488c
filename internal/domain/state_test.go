package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnresolvedCalls(t *testing.T) {
	st := &ConversationState{}
	st.Append(NewUserTurn("query J1 and J2"))
	st.Append(NewAssistantTurn("", []ToolCallRequest{
		{ID: "c1", Name: "get_junction"},
		{ID: "c2", Name: "get_junction"},
		{ID: "c3", Name: "delete_junction"},
	}))
	st.Append(NewToolResultTurn("c2", "get_junction", json.RawMessage(`{}`)))

	pending := st.UnresolvedCalls()
	require.Len(t, pending, 2)
	assert.Equal(t, "c1", pending[0].ID)
	assert.Equal(t, "c3", pending[1].ID)
}

func TestUnresolvedCallsWithoutAssistant(t *testing.T) {
	st := &ConversationState{}
	st.Append(NewUserTurn("hi"))
	assert.Nil(t, st.UnresolvedCalls())
}

func TestDialogueRounds(t *testing.T) {
	turns := []Turn{
		NewAssistantTurn("welcome", nil),
		NewUserTurn("a"),
		NewAssistantTurn("A", nil),
		NewUserTurn("b"),
		NewAssistantTurn("", []ToolCallRequest{{ID: "x", Name: "t"}}),
		NewToolResultTurn("x", "t", json.RawMessage(`{}`)),
		NewUserTurn("c"),
	}

	rounds := DialogueRounds(turns, 0)
	require.Len(t, rounds, 3)
	assert.Len(t, rounds[0], 2)
	assert.Len(t, rounds[1], 3)

	last := DialogueRounds(turns, 2)
	require.Len(t, last, 2)
	assert.Equal(t, "b", last[0][0].Text)
	assert.Equal(t, "c", last[1][0].Text)
}

func TestRecentByKind(t *testing.T) {
	turns := []Turn{
		NewUserTurn("1"), NewAssistantTurn("x", nil), NewUserTurn("2"), NewUserTurn("3"),
	}
	got := RecentByKind(turns, 2, TurnKindUser)
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].Text)
	assert.Equal(t, "3", got[1].Text)
}

func TestToolTurns(t *testing.T) {
	errTurn := NewToolErrorTurn("c1", "get_junction", errors.New("boom"))
	assert.True(t, errTurn.IsError)
	assert.JSONEq(t, `{"error":"boom"}`, string(errTurn.Payload))
	assert.False(t, errTurn.IsCancelled())

	cancelled := NewToolResultTurn("c2", "delete_junction", json.RawMessage(`{"status":"cancelled","message":"no"}`))
	assert.True(t, cancelled.IsCancelled())
}

func TestParseAgentMode(t *testing.T) {
	assert.Equal(t, AgentModePlan, ParseAgentMode("plan"))
	assert.Equal(t, AgentModeTool, ParseAgentMode(""))
	assert.Equal(t, AgentModeTool, ParseAgentMode("other"))
}
