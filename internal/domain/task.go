package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	TaskStatusQueued     = "queued"
	TaskStatusProcessing = "processing"
	TaskStatusSucceeded  = "succeeded"
	TaskStatusFailed     = "failed"
)

var ErrInvalidTask = errors.New("invalid task")

// OutputConfig controls how a caller reports results. The pipeline never
// reads it; it is handed back untouched in the TaskResult.
type OutputConfig struct {
	ShowOnlySummary     bool `json:"show_only_summary,omitempty"`
	ShowOverallProgress bool `json:"show_overall_progress,omitempty"`
	QuietMode           bool `json:"quiet_mode,omitempty"`
}

// Task describes one conversion job. A zero MaxWidth or MaxHeight means the
// axis is unconstrained.
type Task struct {
	ID              string       `json:"id,omitempty"`
	SourcePath      string       `json:"source_path"`
	MaxWidth        int          `json:"max_width,omitempty"`
	MaxHeight       int          `json:"max_height,omitempty"`
	Grayscale       bool         `json:"grayscale,omitempty"`
	KeepMetadata    bool         `json:"keep_metadata,omitempty"`
	SkipSizeCompare bool         `json:"skip_size_comparison,omitempty"`
	OutputConfig    OutputConfig `json:"output_config"`
}

func (t Task) Validate() error {
	if strings.TrimSpace(t.SourcePath) == "" {
		return fmt.Errorf("%w: source_path is required", ErrInvalidTask)
	}
	if t.MaxWidth < 0 {
		return fmt.Errorf("%w: max_width must be positive", ErrInvalidTask)
	}
	if t.MaxHeight < 0 {
		return fmt.Errorf("%w: max_height must be positive", ErrInvalidTask)
	}
	return nil
}

// WantsResize reports whether at least one bound is set.
func (t Task) WantsResize() bool {
	return t.MaxWidth > 0 || t.MaxHeight > 0
}

// TaskRecord is the queue-facing view of a task and its latest outcome.
type TaskRecord struct {
	ID         string      `json:"id"`
	Status     string      `json:"status"`
	Task       Task        `json:"task"`
	WebhookURL string      `json:"webhook_url,omitempty"`
	Result     *TaskResult `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}
