// Package policy evaluates tool policies with OPA.
package policy

import (
	"context"
	"os"

	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/pkg/errors"

	"github.com/xiaot623/gogo/assistant/internal/domain"
)

// Decision is the per-call verdict of the policy.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionBlock Decision = "block"
)

// Engine is the OPA policy engine.
type Engine struct {
	execution rego.PreparedEvalQuery
	decision  rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	prepare := func(query string) (rego.PreparedEvalQuery, error) {
		return rego.New(
			rego.Query(query),
			rego.Module("tool_policy.rego", policyContent),
		).PrepareForEval(ctx)
	}

	execution, err := prepare("data.tool_policy.execution")
	if err != nil {
		return nil, errors.Wrap(err, "failed to prepare execution query")
	}
	decision, err := prepare("data.tool_policy.decision")
	if err != nil {
		return nil, errors.Wrap(err, "failed to prepare decision query")
	}
	return &Engine{execution: execution, decision: decision}, nil
}

// NewEngineFromFile loads the policy from path, falling back to DefaultPolicy when
// path is empty.
func NewEngineFromFile(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read policy file")
	}
	return NewEngine(ctx, string(content))
}

// ToolInput describes a tool for execution policy resolution.
type ToolInput struct {
	ToolName       string                 `json:"tool_name"`
	Category       domain.ToolCategory    `json:"category"`
	DeclaredPolicy domain.ExecutionPolicy `json:"declared_policy"`
}

// ResolveExecution returns the execution policy the registry should use for a tool.
// An undefined result keeps the declared policy.
func (e *Engine) ResolveExecution(ctx context.Context, in ToolInput) (domain.ExecutionPolicy, error) {
	results, err := e.execution.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		return "", errors.Wrap(err, "failed to evaluate execution policy")
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return in.DeclaredPolicy, nil
	}
	s, ok := results[0].Expressions[0].Value.(string)
	if !ok {
		return in.DeclaredPolicy, nil
	}
	p := domain.ExecutionPolicy(s)
	if !p.Valid() {
		return "", errors.Errorf("policy returned unknown execution policy %q for %s", s, in.ToolName)
	}
	return p, nil
}

// CallInput describes a single tool call for the per-call gate.
type CallInput struct {
	ToolName  string              `json:"tool_name"`
	Category  domain.ToolCategory `json:"category"`
	SessionID string              `json:"session_id"`
	Args      map[string]any      `json:"args"`
}

// Evaluate checks a tool call. It returns the decision and an optional reason.
func (e *Engine) Evaluate(ctx context.Context, in CallInput) (Decision, string, error) {
	if in.Args == nil {
		in.Args = map[string]any{}
	}
	results, err := e.decision.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		return "", "", errors.Wrap(err, "failed to evaluate policy")
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionAllow, "default", nil
	}

	switch v := results[0].Expressions[0].Value.(type) {
	case string:
		return Decision(v), "", nil
	case map[string]any:
		d, _ := v["decision"].(string)
		reason, _ := v["reason"].(string)
		if d == "" {
			d = string(DecisionAllow)
		}
		return Decision(d), reason, nil
	}
	return DecisionAllow, "unexpected return type", nil
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package tool_policy

default decision := {"decision": "allow"}

# Destructive data operations always go through a human.
execution := "human_in_loop" if {
	startswith(input.tool_name, "delete_")
} else := input.declared_policy

# Batch reads are capped so a single call cannot dump the whole model.
decision := {"decision": "block", "reason": "batch reads are limited to 50 names"} if {
	startswith(input.tool_name, "batch_get_")
	count(input.args.names) > 50
}
`
