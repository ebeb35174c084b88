package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/mailrun/mailrun/internal/model"
)

// MemoryStore keeps checkpoints in process memory.
// Checkpoints are stored as encoded copies so callers cannot mutate them.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string][]byte
	saves int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]byte)}
}

func (s *MemoryStore) Save(ctx context.Context, cp *model.Checkpoint) error {
	if err := validateCheckpoint(cp); err != nil {
		return err
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[cp.CampaignID] = data
	s.saves++
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, id string) (*model.Checkpoint, error) {
	s.mu.RLock()
	data, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("checkpoint %s: %w", id, model.ErrNotFound)
	}
	var cp model.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return &cp, nil
}

func (s *MemoryStore) Latest(ctx context.Context) (string, error) {
	ids, _ := s.List(ctx)
	if len(ids) == 0 {
		return "", fmt.Errorf("no checkpoints: %w", model.ErrNotFound)
	}
	return ids[len(ids)-1], nil
}

func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return fmt.Errorf("checkpoint %s: %w", id, model.ErrNotFound)
	}
	delete(s.items, id)
	return nil
}

// Saves returns how many times Save succeeded.
func (s *MemoryStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
