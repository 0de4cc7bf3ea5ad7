package store

import (
	"context"
	"strings"
)

// Open returns a Postgres-backed store when dsn is set and an in-memory store
// otherwise. The memory store is only visible to the current process.
func Open(ctx context.Context, dsn string) (TaskStore, func() error, error) {
	if strings.TrimSpace(dsn) == "" {
		return NewMemoryTaskStore(), func() error { return nil }, nil
	}
	pg, err := NewPostgresTaskStore(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Close, nil
}
