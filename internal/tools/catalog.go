package tools

import (
	"bytes"
	_ "embed"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/xiaot623/gogo/assistant/internal/domain"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// CatalogEntry is the declarative description of one tool.
type CatalogEntry struct {
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description"`
	Category    domain.ToolCategory    `yaml:"category"`
	Policy      domain.ExecutionPolicy `yaml:"policy"`
	UI          *UIBinding             `yaml:"ui"`
}

// Catalog is the list of tools the registry is built from.
type Catalog struct {
	Tools []CatalogEntry `yaml:"tools"`
}

// DecodeCatalog reads a YAML catalog.
func DecodeCatalog(r io.Reader) (*Catalog, error) {
	var c Catalog
	if err := yaml.NewDecoder(r).Decode(&c); err != nil {
		return nil, errors.Wrap(err, "failed to decode tool catalog")
	}
	for i, e := range c.Tools {
		if e.Name == "" {
			return nil, errors.Errorf("catalog entry %d has no name", i)
		}
		if e.Category != domain.ToolCategoryData && e.Category != domain.ToolCategoryUI {
			return nil, errors.Errorf("tool %s has unknown category %q", e.Name, e.Category)
		}
		if !e.Policy.Valid() {
			return nil, errors.Errorf("tool %s has unknown policy %q", e.Name, e.Policy)
		}
	}
	return &c, nil
}

// LoadCatalog reads the catalog at path, or the bundled one when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DecodeCatalog(bytes.NewReader(defaultCatalog))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open tool catalog")
	}
	defer f.Close()
	return DecodeCatalog(f)
}
