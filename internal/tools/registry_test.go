package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/assistant/internal/domain"
	"github.com/xiaot623/gogo/assistant/internal/network"
	"github.com/xiaot623/gogo/assistant/internal/policy"
)

func newTestRegistry(t *testing.T) (*Registry, *network.Model) {
	t.Helper()
	ctx := context.Background()
	m, err := network.Load("")
	require.NoError(t, err)
	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	require.NoError(t, err)
	reg, err := NewDefaultRegistry(ctx, "", m, engine)
	require.NoError(t, err)
	return reg, m
}

func TestDefaultRegistry(t *testing.T) {
	reg, _ := newTestRegistry(t)

	assert.Equal(t, 23, reg.Len())
	assert.Len(t, reg.Subset(domain.ToolCategoryUI), 2)
	assert.Len(t, reg.Subset(domain.ToolCategoryData), 21)

	del, err := reg.Lookup("delete_conduit")
	require.NoError(t, err)
	assert.Equal(t, domain.PolicyHumanInLoop, del.Policy)

	get, err := reg.Lookup("get_junction")
	require.NoError(t, err)
	assert.Equal(t, domain.PolicyAutomatic, get.Policy)
	assert.Contains(t, string(get.Parameters), `"name"`)
	assert.NotContains(t, string(get.Parameters), "$schema")

	_, err = reg.Lookup("drop_database")
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestValidate(t *testing.T) {
	reg, _ := newTestRegistry(t)
	get, err := reg.Lookup("get_junction")
	require.NoError(t, err)

	assert.NoError(t, get.Validate(json.RawMessage(`{"name":"J1"}`)))
	assert.Error(t, get.Validate(json.RawMessage(`{}`)))
	assert.Error(t, get.Validate(json.RawMessage(`{"name":3}`)))
}

func TestRunAutomatic(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	get, _ := reg.Lookup("get_junction")
	out, err := get.Run(ctx, json.RawMessage(`{"name":"J1"}`))
	require.NoError(t, err)
	assert.Contains(t, string(out), `"J1"`)

	_, err = get.Run(ctx, json.RawMessage(`{"name":"J404"}`))
	assert.ErrorIs(t, err, network.ErrNotFound)

	update, _ := reg.Lookup("update_junction")
	out, err = update.Run(ctx, json.RawMessage(`{"name":"J2","fields":{"max_depth":4.5}}`))
	require.NoError(t, err)
	assert.Contains(t, string(out), `"max_depth":4.5`)
	assert.Contains(t, string(out), `"elevation":11.8`)
}

func TestConfirmDelete(t *testing.T) {
	ctx := context.Background()
	reg, m := newTestRegistry(t)

	del, _ := reg.Lookup("delete_subcatchment")
	call := domain.ToolCallRequest{ID: "call_1", Name: "delete_subcatchment", Arguments: map[string]any{"name": "S2"}}
	args := json.RawMessage(`{"name":"S2"}`)

	_, err := del.Run(ctx, args)
	require.Error(t, err, "human_in_loop tools cannot run directly")

	req, err := del.Prepare(ctx, call, args)
	require.NoError(t, err)
	require.NotNil(t, req.Notify)
	assert.Equal(t, "call_1", req.CallID)
	assert.Equal(t, "showConfirmBoxUITool", req.Notify.FunctionName)
	assert.False(t, req.Notify.IsDirectFeedback)
	assert.Equal(t, "Delete subcatchment S2? This cannot be undone.", req.Notify.Args["confirm_question"])
	assert.True(t, m.Subcatchments.Has("S2"), "prepare must not delete")

	out, err := del.Complete(ctx, req, domain.ResumeValue{Message: "user cancelled", Success: false})
	require.NoError(t, err)
	assert.True(t, domain.NewToolResultTurn("call_1", del.Name, out).IsCancelled())
	assert.True(t, m.Subcatchments.Has("S2"))

	out, err = del.Complete(ctx, req, domain.ResumeValue{Message: "confirmed", Success: true})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"deleted":"S2"`)
	assert.False(t, m.Subcatchments.Has("S2"))
}

func TestClientActionDirectFeedback(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	fly, _ := reg.Lookup("fly_to_entity_by_name_tool")
	args := json.RawMessage(`{"entity_name":"J1"}`)
	req, err := fly.Prepare(ctx, domain.ToolCallRequest{ID: "c9", Name: fly.Name}, args)
	require.NoError(t, err)
	require.NotNil(t, req.Notify)
	assert.True(t, req.Notify.IsDirectFeedback)
	assert.Equal(t, "flyToEntityByNameTool", req.Notify.FunctionName)
	assert.Equal(t, "J1", req.Notify.Args["entity_name"])
	assert.True(t, strings.Contains(req.Notify.SuccessMessage, "J1"))

	out, err := fly.Complete(ctx, req, domain.ResumeValue{Message: req.Notify.SuccessMessage, Success: true})
	require.NoError(t, err)
	assert.Contains(t, string(out), "success_message")
}

func TestBuildErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing binding", func(t *testing.T) {
		catalog := &Catalog{Tools: []CatalogEntry{{Name: "x", Category: domain.ToolCategoryData, Policy: domain.PolicyAutomatic}}}
		_, err := NewBuilder().Build(ctx, catalog, nil)
		assert.Error(t, err)
	})

	t.Run("client tool declared automatic", func(t *testing.T) {
		b := NewBuilder()
		b.BindClient("x", nil)
		catalog := &Catalog{Tools: []CatalogEntry{{Name: "x", Category: domain.ToolCategoryUI, Policy: domain.PolicyAutomatic}}}
		_, err := b.Build(ctx, catalog, nil)
		assert.Error(t, err)
	})

	t.Run("duplicate", func(t *testing.T) {
		b := NewBuilder()
		b.Bind("x", nil, func(context.Context, json.RawMessage) (json.RawMessage, error) { return nil, nil })
		entry := CatalogEntry{Name: "x", Category: domain.ToolCategoryData, Policy: domain.PolicyAutomatic}
		_, err := b.Build(ctx, &Catalog{Tools: []CatalogEntry{entry, entry}}, nil)
		assert.Error(t, err)
	})
}

func TestDecodeCatalogRejectsUnknownPolicy(t *testing.T) {
	_, err := DecodeCatalog(strings.NewReader("tools:\n  - {name: a, category: data, policy: maybe}\n"))
	assert.Error(t, err)
}
