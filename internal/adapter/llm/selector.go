package llm

import (
	"context"
	"slices"
	"sync/atomic"

	"github.com/pkg/errors"
)

// ErrUnknownModel is returned when selecting a model that is not configured.
var ErrUnknownModel = errors.New("unknown model")

// Selection is the active model configuration. It is replaced as a whole, never
// edited in place.
type Selection struct {
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
}

// Selector holds the configured models and the active selection.
type Selector struct {
	available []string
	active    atomic.Pointer[Selection]
}

// NewSelector creates a selector. The default model is added to available when missing.
func NewSelector(available []string, defaultModel string, temperature float32) *Selector {
	models := slices.Clone(available)
	if defaultModel != "" && !slices.Contains(models, defaultModel) {
		models = append([]string{defaultModel}, models...)
	}
	s := &Selector{available: models}
	s.active.Store(&Selection{Model: defaultModel, Temperature: temperature})
	return s
}

// Active returns the current selection.
func (s *Selector) Active() Selection {
	return *s.active.Load()
}

// Available returns the configured model names.
func (s *Selector) Available() []string {
	return slices.Clone(s.available)
}

// Select swaps the active model and returns the previous selection.
func (s *Selector) Select(model string) (Selection, error) {
	if !slices.Contains(s.available, model) {
		return Selection{}, errors.Wrap(ErrUnknownModel, model)
	}
	for {
		old := s.active.Load()
		next := &Selection{Model: model, Temperature: old.Temperature}
		if s.active.CompareAndSwap(old, next) {
			return *old, nil
		}
	}
}

// Unserved returns the configured models the endpoint does not list.
func (s *Selector) Unserved(ctx context.Context, client LLMClient) ([]string, error) {
	served, err := client.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(served))
	for _, m := range served {
		ids[m.ID] = true
	}
	var missing []string
	for _, name := range s.available {
		if !ids[name] {
			missing = append(missing, name)
		}
	}
	return missing, nil
}
