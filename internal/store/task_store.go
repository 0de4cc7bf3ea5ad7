package store

import (
	"context"
	"errors"

	"github.com/dunamismax/optimg/internal/domain"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskExists   = errors.New("task already exists")
)

type TaskStore interface {
	Create(ctx context.Context, record domain.TaskRecord) error
	Get(ctx context.Context, id string) (domain.TaskRecord, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.TaskRecord, error)
	SaveResult(ctx context.Context, id string, result *domain.TaskResult, taskErr string) (domain.TaskRecord, error)
}
