package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/statekit/pkg/statemachine"
)

// EnqueuerRepository defines the interface for task creation
type EnqueuerRepository interface {
	CreateTask(ctx context.Context, task *Task) error
}

// Enqueuer stores background invocations as tasks.
// It implements statemachine.Dispatcher.
type Enqueuer struct {
	repo              EnqueuerRepository
	defaultQueue      string
	defaultMaxRetries int8
	routes            map[string]string
}

var _ statemachine.Dispatcher = (*Enqueuer)(nil)

// NewEnqueuer creates a new Enqueuer
func NewEnqueuer(repo EnqueuerRepository, opts ...EnqueuerOption) (*Enqueuer, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &enqueuerOptions{
		defaultQueue:      DefaultQueueName,
		defaultMaxRetries: DefaultMaxRetries,
		routes:            make(map[string]string),
	}

	for _, opt := range opts {
		opt(options)
	}

	return &Enqueuer{
		repo:              repo,
		defaultQueue:      options.defaultQueue,
		defaultMaxRetries: options.defaultMaxRetries,
		routes:            options.routes,
	}, nil
}

// Dispatch stores env as a pending task. The task runs as soon as a worker
// listening on its queue picks it up.
func (e *Enqueuer) Dispatch(ctx context.Context, env statemachine.Envelope) error {
	if env.EntityType == "" || env.EntityID == "" || env.Action == "" || env.Process == "" || env.TrID == uuid.Nil {
		return ErrInvalidEnvelope
	}

	task := e.buildTask(env)
	if err := e.repo.CreateTask(ctx, task); err != nil {
		return fmt.Errorf("failed to create task for action %q in queue %q: %w", env.Action, task.Queue, err)
	}

	return nil
}

// QueueFor returns the queue a process's envelopes are routed to.
func (e *Enqueuer) QueueFor(process string) string {
	if q, ok := e.routes[process]; ok {
		return q
	}
	return e.defaultQueue
}

func (e *Enqueuer) buildTask(env statemachine.Envelope) *Task {
	now := time.Now()
	return &Task{
		ID:          uuid.New(),
		Queue:       e.QueueFor(env.Process),
		Envelope:    env,
		Status:      TaskStatusPending,
		MaxRetries:  e.defaultMaxRetries,
		ScheduledAt: now,
		CreatedAt:   now,
	}
}
