// Package domain defines the core domain models for the assistant.
package domain

// TurnKind discriminates the variants of a conversation Turn.
type TurnKind string

const (
	TurnKindUser       TurnKind = "user"
	TurnKindAssistant  TurnKind = "assistant"
	TurnKindToolResult TurnKind = "tool_result"
)

// ExecutionPolicy tells the executor how a tool call is scheduled.
type ExecutionPolicy string

const (
	// PolicyAutomatic calls run concurrently and can never suspend.
	PolicyAutomatic ExecutionPolicy = "automatic"
	// PolicyHumanInLoop calls run one at a time and may suspend for external input.
	PolicyHumanInLoop ExecutionPolicy = "human_in_loop"
)

// Valid reports whether p is one of the known policies.
func (p ExecutionPolicy) Valid() bool {
	return p == PolicyAutomatic || p == PolicyHumanInLoop
}

// ToolCategory groups tools by the stage that binds them.
type ToolCategory string

const (
	ToolCategoryData ToolCategory = "data"
	ToolCategoryUI   ToolCategory = "ui"
)

// AgentMode selects the orchestration strategy of a session.
type AgentMode string

const (
	AgentModeTool AgentMode = "tool"
	AgentModePlan AgentMode = "plan"
)

// ParseAgentMode maps a client supplied mode to an AgentMode, defaulting to tool mode.
func ParseAgentMode(s string) AgentMode {
	switch AgentMode(s) {
	case AgentModePlan:
		return AgentModePlan
	default:
		return AgentModeTool
	}
}

// Node is a stage of the orchestration graph. The state stores the next node to run
// so that a suspended session can continue where it stopped.
type Node string

const (
	NodeRewrite   Node = "rewrite"
	NodeClassify  Node = "classify"
	NodeDataPlan  Node = "data_plan"
	NodeDataExec  Node = "data_exec"
	NodeCheck     Node = "check"
	NodeUIPlan    Node = "ui_plan"
	NodeUIExec    Node = "ui_exec"
	NodeSummarize Node = "summarize"

	// Plan mode
	NodePlan        Node = "plan"
	NodeStepPlan    Node = "step_plan"
	NodeStepExecute Node = "step_execute"
	NodeObserve     Node = "observe"

	NodeEnd Node = "end"
)

// CheckDecision is the outcome of the check/retry controller.
type CheckDecision string

const (
	CheckRetry   CheckDecision = "retry"
	CheckAdvance CheckDecision = "advance"
	CheckAbort   CheckDecision = "abort"
)

// ResultStatus values used in tool result payloads.
const (
	ResultStatusOK        = "ok"
	ResultStatusCancelled = "cancelled"
)
