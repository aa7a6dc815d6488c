package repository

import (
	"context"
	"sync"
	"time"

	"github.com/huandu/go-clone"

	"github.com/xiaot623/gogo/assistant/internal/domain"
)

// MemoryStore keeps checkpoints in process memory. Snapshots are deep copies so
// the engine can keep mutating its own state after a save.
type MemoryStore struct {
	mu          sync.Mutex
	checkpoints map[string]*domain.Checkpoint
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{checkpoints: make(map[string]*domain.Checkpoint)}
}

func (s *MemoryStore) Save(ctx context.Context, cp *domain.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp.Version = 1
	if prev, ok := s.checkpoints[cp.SessionID]; ok {
		cp.Version = prev.Version + 1
	}
	cp.PendingInterruptID = pendingID(cp)
	cp.UpdatedAt = time.Now()
	s.checkpoints[cp.SessionID] = clone.Clone(cp).(*domain.Checkpoint)
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, sessionID string) (*domain.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[sessionID]
	if !ok {
		return nil, nil
	}
	return clone.Clone(cp).(*domain.Checkpoint), nil
}

func (s *MemoryStore) ClaimInterrupt(ctx context.Context, sessionID, interruptID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[sessionID]
	if !ok || cp.PendingInterruptID == "" || cp.PendingInterruptID != interruptID {
		return false, nil
	}
	cp.PendingInterruptID = ""
	return true, nil
}

func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, sessionID)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
