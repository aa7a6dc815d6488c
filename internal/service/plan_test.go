package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/assistant/internal/domain"
	"github.com/xiaot623/gogo/assistant/internal/protocol"
)

func TestPlanModeRunsSteps(t *testing.T) {
	sc := newScript().
		on(tagPlan, text("```json\n"+`{"steps":[
			{"description":"fetch J1","tool":"get_junction","arguments":{"name":"J1"}},
			{"description":"show J1","tool":"fly_to_entity_by_name_tool","arguments":{"entity_name":"J1"}}
		]}`+"\n```")).
		on(tagStep,
			calls(call("c1", "get_junction", `{"name":"J1"}`)),
			calls(call("c2", "fly_to_entity_by_name_tool", `{"entity_name":"J1"}`))).
		on(tagObserve,
			text(`{"next_node":"step_execute","next_step":2,"reason":"fetched"}`),
			text(`{"next_node":"summarize","reason":"done"}`)).
		on(tagSummarize, text("J1 is shown."))
	h := newHarness(t, sc)

	require.NoError(t, h.svc.HandleChat("s1", domain.AgentModePlan, "show me J1"))
	h.sink.waitFor(t, "s1", protocol.TypeComplete, 1)

	assert.Equal(t, 1, h.llm.CountTag(tagPlan))
	assert.Equal(t, 2, h.llm.CountTag(tagStep))
	assert.Equal(t, 2, h.llm.CountTag(tagObserve))
	assert.Equal(t, 0, h.llm.CountTag(tagClassify))
	assert.Equal(t, 2, h.sink.count("s1", protocol.TypeToolMessage))

	var plan string
	for _, e := range h.sink.all("s1") {
		if m, ok := e.(protocol.StepMessage); ok && len(m.Content) > 5 && m.Content[:5] == "Plan:" {
			plan = m.Content
		}
	}
	assert.Equal(t, "Plan:\n1. fetch J1 [get_junction]\n2. show J1 [fly_to_entity_by_name_tool]", plan)

	cp := h.checkpoint(t, "s1")
	assert.Equal(t, domain.AgentModePlan, cp.Mode)
	assert.Equal(t, 1, cp.State.CurrentStep)
	assert.Len(t, cp.State.PendingPlan, 2)
}

func TestPlanModeMalformedPlan(t *testing.T) {
	sc := newScript().
		on(tagPlan, text("I will look it up")).
		on(tagStep, text("There is nothing to do.")).
		on(tagSummarize, text("Nothing to do."))
	h := newHarness(t, sc)

	require.NoError(t, h.svc.HandleChat("s1", domain.AgentModePlan, "hello"))
	h.sink.waitFor(t, "s1", protocol.TypeComplete, 1)

	cp := h.checkpoint(t, "s1")
	require.Len(t, cp.State.PendingPlan, 1)
	assert.Equal(t, "hello", cp.State.PendingPlan[0].Description)
	assert.Equal(t, 0, h.llm.CountTag(tagObserve))
	assert.Equal(t, 0, h.sink.count("s1", protocol.TypeError))
}

func TestPlanModeReplanIsBounded(t *testing.T) {
	sc := newScript().
		always(tagPlan, text(`{"steps":[{"description":"fetch J404","tool":"get_junction","arguments":{"name":"J404"}}]}`)).
		always(tagStep, calls(call("", "get_junction", `{"name":"J404"}`))).
		always(tagObserve, text(`{"next_node":"plan","reason":"try again"}`)).
		on(tagSummarize, text("J404 does not exist."))
	h := newHarness(t, sc, func(c *Config) { c.MaxReplans = 2 })

	require.NoError(t, h.svc.HandleChat("s1", domain.AgentModePlan, "query J404"))
	h.sink.waitFor(t, "s1", protocol.TypeComplete, 1)

	assert.Equal(t, 3, h.llm.CountTag(tagPlan))
	assert.Equal(t, 3, h.llm.CountTag(tagObserve))

	var replan string
	for _, r := range h.llm.Requests() {
		if r.Tag == tagPlan {
			replan = r.Messages[0].Content
		}
	}
	assert.Contains(t, replan, "Previous plan")
	assert.Contains(t, replan, "J404")
}

func TestPlanModeResumesAtStep(t *testing.T) {
	sc := newScript().
		on(tagPlan, text(`{"steps":[{"description":"delete S2","tool":"delete_subcatchment","arguments":{"name":"S2"}}]}`)).
		on(tagStep, calls(call("c1", "delete_subcatchment", `{"name":"S2"}`))).
		on(tagObserve, text(`{"next_node":"summarize"}`)).
		on(tagSummarize, text("S2 was deleted."))
	h := newHarness(t, sc)

	require.NoError(t, h.svc.HandleChat("s1", domain.AgentModePlan, "delete S2"))
	cp := h.waitPending(t, "s1")
	assert.Equal(t, domain.NodeStepExecute, cp.State.Pending.NextNode)

	require.NoError(t, h.svc.HandleFeedback("s1", domain.AgentModePlan, domain.ResumeValue{Success: true}))
	h.sink.waitFor(t, "s1", protocol.TypeComplete, 1)

	assert.Equal(t, 1, h.llm.CountTag(tagStep))
	assert.Equal(t, 1, h.llm.CountTag(tagObserve))
	assert.False(t, h.model.Subcatchments.Has("S2"))
}

func TestPlanModeCancelEndsTurn(t *testing.T) {
	sc := newScript().
		on(tagPlan, text(`{"steps":[{"description":"delete S2","tool":"delete_subcatchment"},{"description":"refresh","tool":"init_entities_tool"}]}`)).
		on(tagStep, calls(call("c1", "delete_subcatchment", `{"name":"S2"}`))).
		on(tagSummarize, text("Cancelled."))
	h := newHarness(t, sc)

	require.NoError(t, h.svc.HandleChat("s1", domain.AgentModePlan, "delete S2"))
	h.waitPending(t, "s1")
	require.NoError(t, h.svc.HandleFeedback("s1", domain.AgentModePlan, domain.ResumeValue{Success: false}))
	h.sink.waitFor(t, "s1", protocol.TypeComplete, 1)

	assert.Equal(t, 0, h.llm.CountTag(tagObserve))
	assert.Equal(t, 1, h.llm.CountTag(tagStep))
	assert.True(t, h.model.Subcatchments.Has("S2"))
}

func TestPlanModeRewritesFollowUp(t *testing.T) {
	sc := newScript().
		on(tagRewrite, text("create junction J100 with longitude 130 and latitude 29")).
		always(tagPlan, text("no plan")).
		always(tagStep, text("Nothing to call.")).
		always(tagSummarize, text("Done."))
	h := newHarness(t, sc)

	require.NoError(t, h.svc.HandleChat("s1", domain.AgentModePlan, "create junction J100"))
	h.sink.waitFor(t, "s1", protocol.TypeComplete, 1)
	assert.Equal(t, 0, h.llm.CountTag(tagRewrite))

	require.NoError(t, h.svc.HandleChat("s1", domain.AgentModePlan, "lon 130, lat 29"))
	h.sink.waitFor(t, "s1", protocol.TypeComplete, 2)
	assert.Equal(t, 1, h.llm.CountTag(tagRewrite))

	cp := h.checkpoint(t, "s1")
	assert.Equal(t, "create junction J100 with longitude 130 and latitude 29", cp.State.RewrittenQuery)
	require.Len(t, cp.State.PendingPlan, 1)
	assert.Equal(t, cp.State.RewrittenQuery, cp.State.PendingPlan[0].Description)
}
