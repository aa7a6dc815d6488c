package network

import (
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Create validates references and inserts a new entity.
func Create[T Entity](m *Model, t *Table[T], row T) error {
	if err := m.validate(row); err != nil {
		return err
	}
	return t.create(row)
}

// Update replaces the entity stored under name; row may carry a new name.
func Update[T Entity](m *Model, t *Table[T], name string, row T) error {
	if err := m.validate(row); err != nil {
		return err
	}
	if err := t.replace(name, row); err != nil {
		return err
	}
	if row.EntityName() != name {
		m.renameReferences(t.kind, name, row.EntityName())
	}
	return nil
}

// Delete removes an entity that nothing else references.
func Delete[T Entity](m *Model, t *Table[T], name string) error {
	if refs := m.referencesTo(t.kind, name); len(refs) > 0 {
		return errors.Errorf("%s %s is still referenced by %v", t.kind, name, refs)
	}
	return t.delete(name)
}

func (m *Model) validate(row any) error {
	switch v := row.(type) {
	case Conduit:
		if !m.HasNode(v.FromNode) {
			return errors.Wrapf(ErrNotFound, "from_node %s", v.FromNode)
		}
		if !m.HasNode(v.ToNode) {
			return errors.Wrapf(ErrNotFound, "to_node %s", v.ToNode)
		}
	case Subcatchment:
		if v.Outlet != "" && !m.HasNode(v.Outlet) {
			return errors.Wrapf(ErrNotFound, "outlet %s", v.Outlet)
		}
	}
	return nil
}

func (m *Model) referencesTo(kind Kind, name string) []string {
	if kind != KindJunction && kind != KindOutfall {
		return nil
	}
	var refs []string
	for _, c := range m.Conduits.List(nil) {
		if c.FromNode == name || c.ToNode == name {
			refs = append(refs, c.Name)
		}
	}
	for _, s := range m.Subcatchments.List(nil) {
		if s.Outlet == name {
			refs = append(refs, s.Name)
		}
	}
	return refs
}

func (m *Model) renameReferences(kind Kind, oldName, newName string) {
	if kind != KindJunction && kind != KindOutfall {
		return
	}
	for _, c := range m.Conduits.List(nil) {
		changed := false
		if c.FromNode == oldName {
			c.FromNode, changed = newName, true
		}
		if c.ToNode == oldName {
			c.ToNode, changed = newName, true
		}
		if changed {
			_ = m.Conduits.replace(c.Name, c)
		}
	}
	for _, s := range m.Subcatchments.List(nil) {
		if s.Outlet == oldName {
			s.Outlet = newName
			_ = m.Subcatchments.replace(s.Name, s)
		}
	}
}

// Seed is the YAML layout of a network seed file.
type Seed struct {
	Junctions     []Junction     `yaml:"junctions"`
	Outfalls      []Outfall      `yaml:"outfalls"`
	Conduits      []Conduit      `yaml:"conduits"`
	Subcatchments []Subcatchment `yaml:"subcatchments"`
}

// LoadSeed reads a YAML seed into a new model. Nodes are loaded before links so
// references resolve.
func LoadSeed(r io.Reader) (*Model, error) {
	var seed Seed
	if err := yaml.NewDecoder(r).Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "failed to decode network seed")
	}
	m := NewModel()
	for _, j := range seed.Junctions {
		if err := Create(m, m.Junctions, j); err != nil {
			return nil, err
		}
	}
	for _, o := range seed.Outfalls {
		if err := Create(m, m.Outfalls, o); err != nil {
			return nil, err
		}
	}
	for _, c := range seed.Conduits {
		if err := Create(m, m.Conduits, c); err != nil {
			return nil, err
		}
	}
	for _, s := range seed.Subcatchments {
		if err := Create(m, m.Subcatchments, s); err != nil {
			return nil, err
		}
	}
	return m, nil
}
