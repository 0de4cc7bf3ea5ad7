package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dunamismax/optimg/internal/domain"
	"github.com/hibiken/asynq"
)

const TypeOptimizeImage = "image:optimize"

type OptimizeImagePayload struct {
	TaskID      string      `json:"task_id"`
	Task        domain.Task `json:"task"`
	WebhookURL  string      `json:"webhook_url,omitempty"`
	RequestedAt time.Time   `json:"requested_at"`
}

func NewOptimizeImageTask(payload OptimizeImagePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal optimize payload: %w", err)
	}
	return asynq.NewTask(TypeOptimizeImage, body), nil
}

func ParseOptimizeImagePayload(task *asynq.Task) (OptimizeImagePayload, error) {
	var payload OptimizeImagePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return OptimizeImagePayload{}, fmt.Errorf("unmarshal optimize payload: %w", err)
	}
	if payload.TaskID == "" {
		payload.TaskID = payload.Task.ID
	}
	if payload.Task.ID == "" {
		payload.Task.ID = payload.TaskID
	}
	return payload, nil
}
