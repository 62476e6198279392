package memory

import (
	"context"
	"sync"

	"solana-token-trader/internal/domain"
	"solana-token-trader/internal/storage"
)

// RiskStateStore is an in-memory implementation of storage.RiskStateStore.
type RiskStateStore struct {
	mu    sync.RWMutex
	state *domain.RiskState
}

// NewRiskStateStore creates a new in-memory risk state store.
func NewRiskStateStore() *RiskStateStore {
	return &RiskStateStore{}
}

// Load retrieves the snapshot. Returns ErrNotFound if none saved yet.
func (s *RiskStateStore) Load(_ context.Context) (*domain.RiskState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == nil {
		return nil, storage.ErrNotFound
	}
	stateCopy := *s.state
	return &stateCopy, nil
}

// Save overwrites the snapshot.
func (s *RiskStateStore) Save(_ context.Context, st *domain.RiskState) error {
	if st == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stateCopy := *st
	s.state = &stateCopy
	return nil
}

var _ storage.RiskStateStore = (*RiskStateStore)(nil)
