package tools

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/xiaot623/gogo/assistant/internal/network"
)

type nameArgs struct {
	Name string `json:"name" jsonschema:"required,description=Entity name"`
}

type namesArgs struct {
	Names []string `json:"names,omitempty" jsonschema:"description=Names to fetch; empty lists everything"`
}

type updateArgs struct {
	Name   string         `json:"name" jsonschema:"required,description=Current entity name"`
	Fields map[string]any `json:"fields" jsonschema:"required,description=Fields to change; set name to rename"`
}

type infoArgs struct {
	InputTitle string `json:"input_title" jsonschema:"required,description=What the user has to provide"`
}

type flyToArgs struct {
	EntityName string `json:"entity_name" jsonschema:"required,description=Exact name of a single entity"`
}

// NewDefaultBuilder binds every bundled tool against the network model.
func NewDefaultBuilder(m *network.Model) *Builder {
	b := NewBuilder()
	bindEntity(b, m, m.Junctions, "junction", "junctions")
	bindEntity(b, m, m.Outfalls, "outfall", "outfalls")
	bindEntity(b, m, m.Conduits, "conduit", "conduits")
	bindEntity(b, m, m.Subcatchments, "subcatchment", "subcatchments")

	b.BindClient("human_info_completion_tool", infoArgs{})
	b.BindClient("init_entities_tool", nil)
	b.BindClient("fly_to_entity_by_name_tool", flyToArgs{})
	return b
}

func bindEntity[T network.Entity](b *Builder, m *network.Model, t *network.Table[T], single, plural string) {
	var zero T

	b.Bind("get_"+single, nameArgs{}, func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
		var args nameArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, errors.Wrap(err, "invalid arguments")
		}
		row, err := t.Get(args.Name)
		if err != nil {
			return nil, err
		}
		return OK(row)
	})

	b.Bind("batch_get_"+plural, namesArgs{}, func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
		var args namesArgs
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, errors.Wrap(err, "invalid arguments")
			}
		}
		rows := t.List(args.Names)
		return OK(map[string]any{"count": len(rows), plural: rows})
	})

	b.Bind("create_"+single, zero, func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
		var row T
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, errors.Wrap(err, "invalid arguments")
		}
		if err := network.Create(m, t, row); err != nil {
			return nil, err
		}
		return OK(row)
	})

	b.Bind("update_"+single, updateArgs{}, func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
		var args updateArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, errors.Wrap(err, "invalid arguments")
		}
		row, err := t.Get(args.Name)
		if err != nil {
			return nil, err
		}
		patch, err := json.Marshal(args.Fields)
		if err != nil {
			return nil, errors.Wrap(err, "invalid fields")
		}
		if err := json.Unmarshal(patch, &row); err != nil {
			return nil, errors.Wrap(err, "invalid fields")
		}
		if err := network.Update(m, t, args.Name, row); err != nil {
			return nil, err
		}
		return OK(row)
	})

	b.Bind("delete_"+single, nameArgs{}, func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
		var args nameArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, errors.Wrap(err, "invalid arguments")
		}
		if err := network.Delete(m, t, args.Name); err != nil {
			return nil, err
		}
		return OK(map[string]string{"deleted": args.Name})
	})
}

// NewDefaultRegistry loads the catalog at path and builds it against m.
func NewDefaultRegistry(ctx context.Context, catalogPath string, m *network.Model, resolver PolicyResolver) (*Registry, error) {
	catalog, err := LoadCatalog(catalogPath)
	if err != nil {
		return nil, err
	}
	return NewDefaultBuilder(m).Build(ctx, catalog, resolver)
}
