// Package file persists seen state as a flat JSON object.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"cafe_notifier/internal/domain"
)

// Store keeps the board -> last link mapping in one JSON file.
type Store struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex
}

func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger.With("component", "file_state", "path", path),
	}
}

// Load returns the stored mapping. A missing, unreadable or corrupt file yields an empty one.
func (s *Store) Load(_ context.Context) (domain.SeenState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(), nil
}

func (s *Store) read() domain.SeenState {
	state := make(domain.SeenState)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("read state file failed, starting empty", "error", err)
		}
		return state
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return state
	}

	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn("state file is corrupt, starting empty", "error", err)
		return make(domain.SeenState)
	}
	if state == nil {
		state = make(domain.SeenState)
	}
	return state
}

// Save writes the whole mapping through a temp file and rename.
func (s *Store) Save(_ context.Context, state domain.SeenState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.write(state)
}

func (s *Store) write(state domain.SeenState) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	data = append(data, '\n')

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}
