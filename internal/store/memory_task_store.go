package store

import (
	"context"
	"sync"
	"time"

	"github.com/dunamismax/optimg/internal/domain"
)

type MemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]domain.TaskRecord
}

func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{
		tasks: make(map[string]domain.TaskRecord),
	}
}

func (s *MemoryTaskStore) Create(_ context.Context, record domain.TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[record.ID]; ok {
		return ErrTaskExists
	}
	s.tasks[record.ID] = record
	return nil
}

func (s *MemoryTaskStore) Get(_ context.Context, id string) (domain.TaskRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.tasks[id]
	return record, ok, nil
}

func (s *MemoryTaskStore) UpdateStatus(_ context.Context, id, status string) (domain.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.tasks[id]
	if !ok {
		return domain.TaskRecord{}, ErrTaskNotFound
	}

	record.Status = status
	record.UpdatedAt = time.Now().UTC()
	s.tasks[id] = record
	return record, nil
}

// SaveResult records the terminal state: succeeded when result is non-nil,
// failed otherwise.
func (s *MemoryTaskStore) SaveResult(_ context.Context, id string, result *domain.TaskResult, taskErr string) (domain.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.tasks[id]
	if !ok {
		return domain.TaskRecord{}, ErrTaskNotFound
	}

	record.Status = terminalStatus(result)
	if result != nil {
		copied := *result
		record.Result = &copied
	} else {
		record.Result = nil
	}
	record.Error = taskErr
	record.UpdatedAt = time.Now().UTC()
	s.tasks[id] = record
	return record, nil
}

func terminalStatus(result *domain.TaskResult) string {
	if result == nil {
		return domain.TaskStatusFailed
	}
	return domain.TaskStatusSucceeded
}
