// Package queue defines the asynq task used when flush firings are driven by
// Redis instead of the in-process cron.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// FlushTask asks the server process to drain the batch buffer.
	FlushTask = "batch:flush"
	// FlushQueue isolates flush tasks from anything else sharing the Redis.
	FlushQueue = "flush"
)

// FlushPayload identifies what triggered a flush.
type FlushPayload struct {
	Trigger string `json:"trigger"`
	// Slot is the cron expression of the firing, empty for ad-hoc flushes.
	Slot string `json:"slot,omitempty"`
}

// NewFlushTask builds the task. Flushes never retry through asynq: the next
// configured firing is the retry.
func NewFlushTask(payload FlushPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(FlushTask, data, asynq.MaxRetry(0), asynq.Queue(FlushQueue)), nil
}

// ParseFlushPayload decodes a task built by NewFlushTask.
func ParseFlushPayload(task *asynq.Task) (FlushPayload, error) {
	var payload FlushPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return FlushPayload{}, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}

// EnqueueFlush requests an immediate flush through Redis.
func EnqueueFlush(ctx context.Context, client *asynq.Client, trigger string) (*asynq.TaskInfo, error) {
	task, err := NewFlushTask(FlushPayload{Trigger: trigger})
	if err != nil {
		return nil, err
	}
	info, err := client.EnqueueContext(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("enqueue flush task: %w", err)
	}
	return info, nil
}
