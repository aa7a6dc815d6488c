// Package repository persists session checkpoints.
package repository

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/xiaot623/gogo/assistant/internal/domain"
)

// ErrNotFound is returned by callers that require an existing checkpoint.
var ErrNotFound = errors.New("checkpoint not found")

// CheckpointStore is the durable store the engine suspends and resumes through.
//
// Save is last-writer-wins and bumps the checkpoint version. ClaimInterrupt is a
// compare-and-clear on the pending interrupt id, so exactly one resume succeeds
// for a given interrupt even across processes.
type CheckpointStore interface {
	Save(ctx context.Context, cp *domain.Checkpoint) error
	// Load returns nil, nil when the session has no checkpoint.
	Load(ctx context.Context, sessionID string) (*domain.Checkpoint, error)
	ClaimInterrupt(ctx context.Context, sessionID, interruptID string) (bool, error)
	Delete(ctx context.Context, sessionID string) error
	Close() error
}

func pendingID(cp *domain.Checkpoint) string {
	if cp.State.Pending != nil {
		return cp.State.Pending.ID
	}
	return ""
}

func encodeState(cp *domain.Checkpoint) ([]byte, error) {
	b, err := json.Marshal(cp.State)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal state")
	}
	return b, nil
}

func decodeState(raw []byte, cp *domain.Checkpoint) error {
	if err := json.Unmarshal(raw, &cp.State); err != nil {
		return errors.Wrap(err, "failed to unmarshal state")
	}
	return nil
}
