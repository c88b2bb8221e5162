// Package storage holds backend-independent behaviour shared by the seen state stores.
package storage

import (
	"context"
	"log/slog"
	"sync"

	"cafe_notifier/internal/domain"
)

// Backend is a durable seen state store.
type Backend interface {
	Load(ctx context.Context) (domain.SeenState, error)
	Save(ctx context.Context, state domain.SeenState) error
}

// PendingStore remembers a mapping whose save failed and merges it over every later
// Load until a save succeeds. Links already handled by this process are never forgotten
// while the backend refuses writes.
type PendingStore struct {
	backend Backend
	logger  *slog.Logger

	mu      sync.Mutex
	pending domain.SeenState
}

func WithPending(backend Backend, logger *slog.Logger) *PendingStore {
	return &PendingStore{
		backend: backend,
		logger:  logger.With("component", "pending_state"),
	}
}

func (s *PendingStore) Load(ctx context.Context) (domain.SeenState, error) {
	state, err := s.backend.Load(ctx)
	if err != nil {
		s.logger.Warn("load seen state failed, using pending only", "error", err)
		state = nil
	}
	if state == nil {
		state = make(domain.SeenState)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.pending {
		state[k] = v
	}
	return state, nil
}

func (s *PendingStore) Save(ctx context.Context, state domain.SeenState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Save(ctx, state); err != nil {
		s.pending = state.Clone()
		s.logger.Warn("seen state kept in memory until the next successful save",
			"boards", len(s.pending))
		return err
	}
	s.pending = nil
	return nil
}

// Pending reports whether a failed save is still held in memory.
func (s *PendingStore) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}
