package store

import (
	"context"
	"sync"

	"github.com/labledger/api/internal/model"
)

// MemoryStore is an in-process JobStore for tests and development.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]model.Job
}

// NewMemoryStore creates an empty in-memory job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]model.Job)}
}

// Set stores a copy of the job record.
func (s *MemoryStore) Set(_ context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

// Get returns a copy of the stored record or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, id string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &job, nil
}
