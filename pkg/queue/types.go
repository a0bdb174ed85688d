package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/statekit/pkg/statemachine"
)

// DefaultQueueName is the default queue name used when no queue is specified
const DefaultQueueName = "default"

// DefaultMaxRetries bounds infrastructure retries of a task.
const DefaultMaxRetries int8 = 3

// TaskStatus represents the status of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task is one background invocation waiting to be resumed.
type Task struct {
	ID          uuid.UUID             `json:"id"`
	Queue       string                `json:"queue"`
	Envelope    statemachine.Envelope `json:"envelope"`
	Status      TaskStatus            `json:"status"`
	RetryCount  int8                  `json:"retry_count"`
	MaxRetries  int8                  `json:"max_retries"`
	ScheduledAt time.Time             `json:"scheduled_at"`
	LockedUntil *time.Time            `json:"locked_until,omitempty"`
	LockedBy    *uuid.UUID            `json:"locked_by,omitempty"`
	ProcessedAt *time.Time            `json:"processed_at,omitempty"`
	Error       *string               `json:"error,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
}

// DeadTask is a task that will not be retried, kept for inspection.
type DeadTask struct {
	ID         uuid.UUID             `json:"id"`
	TaskID     uuid.UUID             `json:"task_id"`
	Queue      string                `json:"queue"`
	Envelope   statemachine.Envelope `json:"envelope"`
	Error      string                `json:"error"`
	RetryCount int8                  `json:"retry_count"`
	FailedAt   time.Time             `json:"failed_at"`
}

func newDeadTask(task *Task) *DeadTask {
	d := &DeadTask{
		ID:         uuid.New(),
		TaskID:     task.ID,
		Queue:      task.Queue,
		Envelope:   task.Envelope,
		RetryCount: task.RetryCount,
		FailedAt:   time.Now(),
	}
	if task.Error != nil {
		d.Error = *task.Error
	}
	return d
}

// Backoff returns the delay before the given retry attempt.
type Backoff func(retry int8) time.Duration

// LinearBackoff waits step, 2*step, 3*step... between attempts.
func LinearBackoff(step time.Duration) Backoff {
	return func(retry int8) time.Duration {
		return time.Duration(retry) * step
	}
}

// DefaultBackoff is the linear 30s progression used when none is configured.
var DefaultBackoff = LinearBackoff(30 * time.Second)
