package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dunamismax/optimg/internal/domain"
)

type ObjectWriter interface {
	WriteObject(ctx context.Context, objectKey string, r io.Reader, size int64, contentType string) error
}

// ObjectStorePublisher copies a finalized output file to object storage.
type ObjectStorePublisher struct {
	Storage      ObjectWriter
	OutputPrefix string
}

func (p ObjectStorePublisher) Publish(ctx context.Context, taskID string, result domain.TaskResult) (string, error) {
	if p.Storage == nil {
		return "", errors.New("storage client is required")
	}
	if strings.TrimSpace(result.OutputPath) == "" {
		return "", errors.New("result has no output path")
	}

	f, err := os.Open(result.OutputPath)
	if err != nil {
		return "", fmt.Errorf("open output file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat output file: %w", err)
	}

	objectKey := path.Join(
		defaultOutputPrefix(p.OutputPrefix),
		sanitizePathToken(taskID),
		sanitizeFileName(filepath.Base(result.OutputPath)),
	)

	contentType := domain.ParseFormat(strings.TrimPrefix(filepath.Ext(result.OutputPath), ".")).ContentType()
	if err := p.Storage.WriteObject(ctx, objectKey, f, info.Size(), contentType); err != nil {
		return "", err
	}
	return objectKey, nil
}

func defaultOutputPrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "outputs"
	}
	return prefix
}

func sanitizeFileName(name string) string {
	ext := filepath.Ext(name)
	return sanitizePathToken(strings.TrimSuffix(name, ext)) + strings.ToLower(ext)
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
