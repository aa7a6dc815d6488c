package tools

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/xiaot623/gogo/assistant/internal/domain"
	"github.com/xiaot623/gogo/assistant/internal/policy"
)

// PolicyResolver decides the final execution policy of a tool.
type PolicyResolver interface {
	ResolveExecution(ctx context.Context, in policy.ToolInput) (domain.ExecutionPolicy, error)
}

type binding struct {
	args any
	fn   Func
	hil  Interruptible
}

// Builder collects handler bindings before the registry is built.
type Builder struct {
	bindings map[string]binding
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{bindings: make(map[string]binding)}
}

// Bind attaches an automatic handler. args is a zero value of the argument struct
// the schema is reflected from.
func (b *Builder) Bind(name string, args any, fn Func) {
	b.bindings[name] = binding{args: args, fn: fn}
}

// BindInterruptible attaches a two-phase handler.
func (b *Builder) BindInterruptible(name string, args any, h Interruptible) {
	b.bindings[name] = binding{args: args, hil: h}
}

// BindClient declares a tool that the client UI performs. Its interrupt is
// rendered from the catalog entry's ui binding.
func (b *Builder) BindClient(name string, args any) {
	b.bindings[name] = binding{args: args}
}

// Build resolves every catalog entry against its binding. A nil resolver keeps the
// declared policies.
func (b *Builder) Build(ctx context.Context, catalog *Catalog, resolver PolicyResolver) (*Registry, error) {
	reg := &Registry{tools: make(map[string]*Tool)}

	for _, entry := range catalog.Tools {
		if _, dup := reg.tools[entry.Name]; dup {
			return nil, errors.Errorf("tool %s declared twice", entry.Name)
		}
		bind, ok := b.bindings[entry.Name]
		if !ok {
			return nil, errors.Errorf("no handler bound for tool %s", entry.Name)
		}

		pol := entry.Policy
		if resolver != nil {
			resolved, err := resolver.ResolveExecution(ctx, policy.ToolInput{
				ToolName:       entry.Name,
				Category:       entry.Category,
				DeclaredPolicy: entry.Policy,
			})
			if err != nil {
				return nil, err
			}
			if resolved != pol {
				log.Debug().Str("tool", entry.Name).Str("declared", string(pol)).Str("resolved", string(resolved)).Msg("execution policy overridden")
			}
			pol = resolved
		}

		tool := &Tool{
			Descriptor: Descriptor{
				Name:        entry.Name,
				Description: entry.Description,
				Category:    entry.Category,
				Policy:      pol,
				UI:          entry.UI,
			},
		}

		switch pol {
		case domain.PolicyAutomatic:
			if bind.fn == nil {
				return nil, errors.Errorf("tool %s needs external input and cannot run automatically", entry.Name)
			}
			tool.fn = bind.fn
		case domain.PolicyHumanInLoop:
			switch {
			case bind.hil != nil:
				tool.hil = bind.hil
			case bind.fn != nil:
				tool.hil = &confirm{fn: bind.fn, ui: entry.UI}
			case entry.UI != nil && entry.UI.FunctionName != "":
				tool.hil = NewClientAction(*entry.UI)
			default:
				return nil, errors.Errorf("tool %s has neither a handler nor a ui binding", entry.Name)
			}
		default:
			return nil, errors.Errorf("tool %s has unknown policy %q", entry.Name, pol)
		}

		params, validator, err := reflectSchema(bind.args)
		if err != nil {
			return nil, errors.Wrapf(err, "tool %s", entry.Name)
		}
		tool.Parameters = params
		tool.validator = validator

		reg.tools[entry.Name] = tool
		reg.names = append(reg.names, entry.Name)
	}

	return reg, nil
}

// reflectSchema builds the JSON schema advertised to the model and a validator for
// incoming arguments.
func reflectSchema(args any) (json.RawMessage, *gojsonschema.Schema, error) {
	if args == nil {
		return json.RawMessage(`{"type":"object","properties":{}}`), nil, nil
	}
	r := &jsonschema.Reflector{
		DoNotReference:             true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  true,
		RequiredFromJSONSchemaTags: true,
	}
	raw, err := json.Marshal(r.Reflect(args))
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to marshal schema")
	}

	// Drop the meta keys: providers reject them and the validator only knows older drafts.
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, errors.Wrap(err, "failed to decode schema")
	}
	delete(m, "$schema")
	delete(m, "$id")
	clean, err := json.Marshal(m)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to encode schema")
	}

	validator, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(clean))
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to compile schema")
	}
	return clean, validator, nil
}
