package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dunamismax/optimg/internal/domain"
	"github.com/lib/pq"
)

const taskSchemaSQL = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	task JSONB NOT NULL,
	webhook_url TEXT NOT NULL DEFAULT '',
	result JSONB,
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

const selectTaskSQL = `SELECT id, status, task, webhook_url, result, error, created_at, updated_at
	FROM tasks
	WHERE id = $1`

const uniqueViolation = "23505"

type PostgresTaskStore struct {
	db *sql.DB
}

func NewPostgresTaskStore(ctx context.Context, dsn string) (*PostgresTaskStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresTaskStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresTaskStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, taskSchemaSQL); err != nil {
		return fmt.Errorf("ensure tasks schema: %w", err)
	}
	return nil
}

func (s *PostgresTaskStore) Close() error {
	return s.db.Close()
}

func (s *PostgresTaskStore) Create(ctx context.Context, record domain.TaskRecord) error {
	taskJSON, err := json.Marshal(record.Task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	resultJSON, err := marshalResult(record.Result)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO tasks (id, status, task, webhook_url, result, error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.ID,
		record.Status,
		taskJSON,
		record.WebhookURL,
		resultJSON,
		record.Error,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrTaskExists
		}
		return fmt.Errorf("insert task: %w", err)
	}

	return nil
}

func (s *PostgresTaskStore) Get(ctx context.Context, id string) (domain.TaskRecord, bool, error) {
	record, err := scanTask(s.db.QueryRowContext(ctx, selectTaskSQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.TaskRecord{}, false, nil
		}
		return domain.TaskRecord{}, false, fmt.Errorf("query task: %w", err)
	}
	return record, true, nil
}

func (s *PostgresTaskStore) UpdateStatus(ctx context.Context, id, status string) (domain.TaskRecord, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks
		 SET status = $1, updated_at = $2
		 WHERE id = $3`,
		status,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return domain.TaskRecord{}, fmt.Errorf("update task status: %w", err)
	}
	return s.reload(ctx, res, id)
}

func (s *PostgresTaskStore) SaveResult(ctx context.Context, id string, result *domain.TaskResult, taskErr string) (domain.TaskRecord, error) {
	resultJSON, err := marshalResult(result)
	if err != nil {
		return domain.TaskRecord{}, err
	}

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks
		 SET status = $1, result = $2, error = $3, updated_at = $4
		 WHERE id = $5`,
		terminalStatus(result),
		resultJSON,
		taskErr,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return domain.TaskRecord{}, fmt.Errorf("save task result: %w", err)
	}
	return s.reload(ctx, res, id)
}

func (s *PostgresTaskStore) reload(ctx context.Context, res sql.Result, id string) (domain.TaskRecord, error) {
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.TaskRecord{}, ErrTaskNotFound
	}

	record, ok, err := s.Get(ctx, id)
	if err != nil {
		return domain.TaskRecord{}, err
	}
	if !ok {
		return domain.TaskRecord{}, ErrTaskNotFound
	}
	return record, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.TaskRecord, error) {
	var (
		record     domain.TaskRecord
		taskJSON   []byte
		resultJSON []byte
	)
	if err := row.Scan(
		&record.ID,
		&record.Status,
		&taskJSON,
		&record.WebhookURL,
		&resultJSON,
		&record.Error,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		return domain.TaskRecord{}, err
	}

	if err := json.Unmarshal(taskJSON, &record.Task); err != nil {
		return domain.TaskRecord{}, fmt.Errorf("unmarshal task: %w", err)
	}
	if len(resultJSON) > 0 {
		var result domain.TaskResult
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return domain.TaskRecord{}, fmt.Errorf("unmarshal task result: %w", err)
		}
		record.Result = &result
	}
	return record, nil
}

// marshalResult returns an untyped nil for a nil result so the column stays
// NULL.
func marshalResult(result *domain.TaskResult) (any, error) {
	if result == nil {
		return nil, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal task result: %w", err)
	}
	return data, nil
}
