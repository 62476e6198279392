package memory

import (
	"context"
	"sort"
	"sync"

	"solana-token-trader/internal/domain"
	"solana-token-trader/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Position // keyed by position id
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		data: make(map[string]*domain.Position),
	}
}

// Save upserts a position by ID.
func (s *PositionStore) Save(_ context.Context, p *domain.Position) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[p.ID] = p.Clone()
	return nil
}

// Delete removes a position by ID. Returns ErrNotFound if not exists.
func (s *PositionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[id]; !exists {
		return storage.ErrNotFound
	}
	delete(s.data, id)
	return nil
}

// Get retrieves a position by ID. Returns ErrNotFound if not exists.
func (s *PositionStore) Get(_ context.Context, id string) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return p.Clone(), nil
}

// LoadOpen retrieves all non-closed positions ordered by entry time ASC.
func (s *PositionStore) LoadOpen(_ context.Context) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Position
	for _, p := range s.data {
		if p.Status.IsOpen() {
			result = append(result, p.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].EntryTime.Equal(result[j].EntryTime) {
			return result[i].ID < result[j].ID
		}
		return result[i].EntryTime.Before(result[j].EntryTime)
	})

	return result, nil
}

var _ storage.PositionStore = (*PositionStore)(nil)
