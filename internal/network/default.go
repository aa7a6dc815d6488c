package network

import (
	"bytes"
	_ "embed"
	"os"

	"github.com/pkg/errors"
)

//go:embed seed.yaml
var defaultSeed []byte

// Load builds a model from the seed file at path, or from the bundled sample
// network when path is empty.
func Load(path string) (*Model, error) {
	if path == "" {
		return LoadSeed(bytes.NewReader(defaultSeed))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open network seed")
	}
	defer f.Close()
	return LoadSeed(f)
}
