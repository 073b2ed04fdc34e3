package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// NotifyEmailTask is scheduled for every customer-facing notification.
	NotifyEmailTask = "notify:email"
)

// EmailPayload is serialized into the task payload so the worker knows what to
// deliver and to whom.
type EmailPayload struct {
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// EnqueueEmail enqueues a notification delivery job.
func EnqueueEmail(ctx context.Context, client *asynq.Client, payload EmailPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(NotifyEmailTask, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("enqueue email task: %w", err)
	}
	return nil
}
