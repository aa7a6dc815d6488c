// Package tools declares the callable capabilities of the assistant and how they
// are executed.
package tools

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"

	"github.com/xiaot623/gogo/assistant/internal/domain"
)

// ErrUnknownTool is returned when a call names a tool that is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// Func executes an automatic tool.
type Func func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// Interruptible is a two-phase human-in-the-loop tool. Prepare must not have side
// effects; Complete performs the side effect once the external answer is known.
type Interruptible interface {
	Prepare(ctx context.Context, call domain.ToolCallRequest, args json.RawMessage) (domain.PendingRequest, error)
	Complete(ctx context.Context, req domain.PendingRequest, resume domain.ResumeValue) (json.RawMessage, error)
}

// UIBinding describes the client function an interrupt is rendered with.
type UIBinding struct {
	FunctionName     string `yaml:"function_name" json:"function_name"`
	IsDirectFeedback bool   `yaml:"is_direct_feedback" json:"is_direct_feedback"`
	SuccessMessage   string `yaml:"success_message" json:"success_message,omitempty"`
	Prompt           string `yaml:"prompt" json:"prompt,omitempty"`
}

// Descriptor is the static description of a tool.
type Descriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Category    domain.ToolCategory    `json:"category"`
	Policy      domain.ExecutionPolicy `json:"policy"`
	Parameters  json.RawMessage        `json:"parameters"`
	UI          *UIBinding             `json:"ui,omitempty"`
}

// Tool is a registry entry: a descriptor plus the handler that serves it.
type Tool struct {
	Descriptor

	fn        Func
	hil       Interruptible
	validator *gojsonschema.Schema
}

// Validate checks arguments against the tool's schema.
func (t *Tool) Validate(args json.RawMessage) error {
	if t.validator == nil {
		return nil
	}
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	res, err := t.validator.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return errors.Wrap(err, "failed to validate arguments")
	}
	if !res.Valid() {
		msg := "invalid arguments:"
		for _, e := range res.Errors() {
			msg += " " + e.String() + ";"
		}
		return errors.New(msg)
	}
	return nil
}

// Run executes an automatic tool.
func (t *Tool) Run(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	if t.Policy != domain.PolicyAutomatic || t.fn == nil {
		return nil, errors.Errorf("tool %s is not automatic", t.Name)
	}
	return t.fn(ctx, args)
}

// Prepare runs the first phase of a human-in-the-loop tool.
func (t *Tool) Prepare(ctx context.Context, call domain.ToolCallRequest, args json.RawMessage) (domain.PendingRequest, error) {
	if t.Policy != domain.PolicyHumanInLoop || t.hil == nil {
		return domain.PendingRequest{}, errors.Errorf("tool %s is not human_in_loop", t.Name)
	}
	req, err := t.hil.Prepare(ctx, call, args)
	if err != nil {
		return domain.PendingRequest{}, err
	}
	req.CallID = call.ID
	req.ToolName = t.Name
	if req.Args == nil {
		req.Args = args
	}
	return req, nil
}

// Complete runs the second phase of a human-in-the-loop tool.
func (t *Tool) Complete(ctx context.Context, req domain.PendingRequest, resume domain.ResumeValue) (json.RawMessage, error) {
	if t.hil == nil {
		return nil, errors.Errorf("tool %s is not human_in_loop", t.Name)
	}
	return t.hil.Complete(ctx, req, resume)
}

// Registry is an immutable set of tools built once at startup.
type Registry struct {
	tools map[string]*Tool
	names []string
}

// Lookup resolves a tool by name.
func (r *Registry) Lookup(name string) (*Tool, error) {
	if t, ok := r.tools[name]; ok {
		return t, nil
	}
	return nil, errors.Wrap(ErrUnknownTool, name)
}

// Descriptors returns every descriptor in catalog order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.tools[n].Descriptor)
	}
	return out
}

// Subset returns the descriptors of one category in catalog order.
func (r *Registry) Subset(category domain.ToolCategory) []Descriptor {
	var out []Descriptor
	for _, n := range r.names {
		if t := r.tools[n]; t.Category == category {
			out = append(out, t.Descriptor)
		}
	}
	return out
}

// Names returns the sorted tool names.
func (r *Registry) Names() []string {
	out := append([]string(nil), r.names...)
	sort.Strings(out)
	return out
}

// Len returns the number of tools.
func (r *Registry) Len() int {
	return len(r.names)
}
