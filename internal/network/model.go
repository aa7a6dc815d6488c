// Package network holds the in-memory SWMM network model that the data tools operate on.
package network

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Kind names an entity table.
type Kind string

const (
	KindJunction     Kind = "junction"
	KindOutfall      Kind = "outfall"
	KindConduit      Kind = "conduit"
	KindSubcatchment Kind = "subcatchment"
)

var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("entity not found")
	// ErrExists is returned when creating an entity whose name is taken.
	ErrExists = errors.New("entity already exists")
)

// Entity is implemented by every network element.
type Entity interface {
	EntityName() string
}

// Junction is a network node.
type Junction struct {
	Name      string  `json:"name" yaml:"name" jsonschema:"required,description=Junction name such as J1"`
	Longitude float64 `json:"longitude" yaml:"longitude" jsonschema:"description=WGS84 longitude"`
	Latitude  float64 `json:"latitude" yaml:"latitude" jsonschema:"description=WGS84 latitude"`
	Elevation float64 `json:"elevation" yaml:"elevation" jsonschema:"description=Invert elevation in meters"`
	InitDepth float64 `json:"init_depth" yaml:"init_depth" jsonschema:"description=Initial water depth in meters"`
	MaxDepth  float64 `json:"max_depth" yaml:"max_depth" jsonschema:"description=Maximum water depth in meters"`
}

func (j Junction) EntityName() string { return j.Name }

// Outfall is a terminal node.
type Outfall struct {
	Name      string  `json:"name" yaml:"name" jsonschema:"required"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Elevation float64 `json:"elevation" yaml:"elevation"`
	Type      string  `json:"type" yaml:"type" jsonschema:"enum=FREE,enum=NORMAL,enum=FIXED"`
}

func (o Outfall) EntityName() string { return o.Name }

// Conduit is a link between two nodes.
type Conduit struct {
	Name      string  `json:"name" yaml:"name" jsonschema:"required"`
	FromNode  string  `json:"from_node" yaml:"from_node" jsonschema:"required,description=Upstream node name"`
	ToNode    string  `json:"to_node" yaml:"to_node" jsonschema:"required,description=Downstream node name"`
	Length    float64 `json:"length" yaml:"length"`
	Roughness float64 `json:"roughness" yaml:"roughness" jsonschema:"description=Manning roughness"`
}

func (c Conduit) EntityName() string { return c.Name }

// Subcatchment is a drainage area discharging to an outlet node.
type Subcatchment struct {
	Name     string  `json:"name" yaml:"name" jsonschema:"required"`
	RainGage string  `json:"rain_gage" yaml:"rain_gage"`
	Outlet   string  `json:"outlet" yaml:"outlet" jsonschema:"description=Outlet node name"`
	Area     float64 `json:"area" yaml:"area" jsonschema:"description=Area in hectares"`
	Imperv   float64 `json:"imperv" yaml:"imperv" jsonschema:"description=Impervious percentage"`
	Slope    float64 `json:"slope" yaml:"slope"`
}

func (s Subcatchment) EntityName() string { return s.Name }

// Table is a named collection of one entity type.
type Table[T Entity] struct {
	kind Kind
	mu   sync.RWMutex
	rows map[string]T
}

func newTable[T Entity](kind Kind) *Table[T] {
	return &Table[T]{kind: kind, rows: make(map[string]T)}
}

// Kind returns the entity kind stored in the table.
func (t *Table[T]) Kind() Kind { return t.kind }

// Get returns the entity with the given name.
func (t *Table[T]) Get(name string) (T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows[name]
	if !ok {
		var zero T
		return zero, errors.Wrapf(ErrNotFound, "%s %s", t.kind, name)
	}
	return row, nil
}

// List returns the entities matching names, or all entities when names is empty,
// sorted by name.
func (t *Table[T]) List(names []string) []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []T
	if len(names) == 0 {
		for _, row := range t.rows {
			out = append(out, row)
		}
	} else {
		for _, n := range names {
			if row, ok := t.rows[n]; ok {
				out = append(out, row)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityName() < out[j].EntityName() })
	return out
}

// Has reports whether an entity exists.
func (t *Table[T]) Has(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.rows[name]
	return ok
}

func (t *Table[T]) create(row T) error {
	name := row.EntityName()
	if name == "" {
		return errors.Errorf("%s name is required", t.kind)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[name]; ok {
		return errors.Wrapf(ErrExists, "%s %s", t.kind, name)
	}
	t.rows[name] = row
	return nil
}

func (t *Table[T]) replace(oldName string, row T) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[oldName]; !ok {
		return errors.Wrapf(ErrNotFound, "%s %s", t.kind, oldName)
	}
	newName := row.EntityName()
	if newName != oldName {
		if _, taken := t.rows[newName]; taken {
			return errors.Wrapf(ErrExists, "%s %s", t.kind, newName)
		}
		delete(t.rows, oldName)
	}
	t.rows[newName] = row
	return nil
}

func (t *Table[T]) delete(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[name]; !ok {
		return errors.Wrapf(ErrNotFound, "%s %s", t.kind, name)
	}
	delete(t.rows, name)
	return nil
}

// Model is the whole network.
type Model struct {
	Junctions     *Table[Junction]
	Outfalls      *Table[Outfall]
	Conduits      *Table[Conduit]
	Subcatchments *Table[Subcatchment]
}

// NewModel creates an empty model.
func NewModel() *Model {
	return &Model{
		Junctions:     newTable[Junction](KindJunction),
		Outfalls:      newTable[Outfall](KindOutfall),
		Conduits:      newTable[Conduit](KindConduit),
		Subcatchments: newTable[Subcatchment](KindSubcatchment),
	}
}

// HasNode reports whether a junction or outfall with the name exists.
func (m *Model) HasNode(name string) bool {
	return m.Junctions.Has(name) || m.Outfalls.Has(name)
}

// Counts returns the number of entities per kind.
func (m *Model) Counts() map[Kind]int {
	return map[Kind]int{
		KindJunction:     len(m.Junctions.List(nil)),
		KindOutfall:      len(m.Outfalls.List(nil)),
		KindConduit:      len(m.Conduits.List(nil)),
		KindSubcatchment: len(m.Subcatchments.List(nil)),
	}
}
