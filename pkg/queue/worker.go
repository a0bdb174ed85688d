package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/statekit/pkg/logger"
	"github.com/dmitrymomot/statekit/pkg/statemachine"
)

// WorkerRepository defines the interface for worker operations
type WorkerRepository interface {
	// ClaimTask atomically claims the next available task
	ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error)

	// CompleteTask marks task as completed
	CompleteTask(ctx context.Context, taskID uuid.UUID) error

	// FailTask marks task as failed and increments retry count
	FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error

	// MoveToDLQ moves task to dead letter queue
	MoveToDLQ(ctx context.Context, taskID uuid.UUID) error

	// ExtendLock extends the lock timeout for long-running tasks
	ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error
}

// Resumer runs the second phase of a background invocation.
// *statemachine.Machine satisfies it.
type Resumer interface {
	Resume(ctx context.Context, env statemachine.Envelope) (uuid.UUID, error)
}

// ResumerFunc adapts a function to the Resumer interface.
type ResumerFunc func(ctx context.Context, env statemachine.Envelope) (uuid.UUID, error)

// Resume calls f(ctx, env).
func (f ResumerFunc) Resume(ctx context.Context, env statemachine.Envelope) (uuid.UUID, error) {
	return f(ctx, env)
}

// IsTerminal reports whether a resume error must not be retried: the failure
// path already ran, the transition started and released the lock, or the
// envelope can never be resolved.
func IsTerminal(err error) bool {
	return statemachine.IsSideEffectError(err) ||
		errors.Is(err, statemachine.ErrResumeFailed) ||
		statemachine.IsNotAllowedError(err) ||
		errors.Is(err, statemachine.ErrProcessNotRegistered) ||
		errors.Is(err, statemachine.ErrNoLoader) ||
		errors.Is(err, statemachine.ErrCommandPanic)
}

// Worker claims tasks and resumes their envelopes
type Worker struct {
	repo     WorkerRepository
	resumer  Resumer
	queues   []string
	workerID uuid.UUID
	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	stopMu   sync.Mutex // Protects stopping state and WaitGroup operations

	pullInterval time.Duration
	lockTimeout  time.Duration
	logger       *slog.Logger
	terminal     func(error) bool

	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
}

// NewWorker creates a new task worker
func NewWorker(repo WorkerRepository, resumer Resumer, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	if resumer == nil {
		return nil, ErrResumerNil
	}

	options := &workerOptions{
		queues:             []string{DefaultQueueName},
		pullInterval:       5 * time.Second,
		lockTimeout:        5 * time.Minute,
		maxConcurrentTasks: 1,
		logger:             slog.Default(),
		terminal:           IsTerminal,
	}

	for _, opt := range opts {
		opt(options)
	}

	workerID := uuid.New()

	return &Worker{
		repo:         repo,
		resumer:      resumer,
		queues:       options.queues,
		workerID:     workerID,
		sem:          make(chan struct{}, options.maxConcurrentTasks),
		pullInterval: options.pullInterval,
		lockTimeout:  options.lockTimeout,
		logger:       options.logger.With(logger.Component("worker"), slog.String("worker_id", workerID.String())),
		terminal:     options.terminal,
	}, nil
}

// Start begins processing tasks in the background
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return ErrWorkerStarted
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.stopping.Store(false)

	go w.run()

	w.logger.Info("worker started",
		slog.Any("queues", w.queues),
		slog.Int("max_concurrent", cap(w.sem)))

	return nil
}

// Stop gracefully shuts down the worker, waiting for claimed tasks.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return ErrWorkerNotStarted
	}

	w.stopMu.Lock()
	w.stopping.Store(true)
	w.stopMu.Unlock()

	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()

	w.logger.Info("worker stopping, waiting for active tasks to complete")
	w.wg.Wait()
	w.logger.Info("worker stopped")

	return nil
}

// Run starts the worker and returns a function suitable for errgroup
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()

		return w.Stop()
	}
}

func (w *Worker) run() {
	ticker := time.NewTicker(w.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			select {
			case w.sem <- struct{}{}:
				// Never add to the WaitGroup once Stop has begun waiting.
				w.stopMu.Lock()
				if w.stopping.Load() {
					w.stopMu.Unlock()
					<-w.sem
					return
				}
				w.wg.Add(1)
				w.stopMu.Unlock()

				go func() {
					defer w.wg.Done()
					defer func() { <-w.sem }()

					if err := w.pullAndProcess(); err != nil {
						w.logger.Error("failed to process task", logger.Error(err))
					}
				}()
			default:
				w.logger.Debug("all worker slots busy, skipping tick")
			}
		}
	}
}

func (w *Worker) pullAndProcess() error {
	task, err := w.repo.ClaimTask(w.ctx, w.workerID, w.queues, w.lockTimeout)
	if err != nil {
		if errors.Is(err, ErrNoTaskToClaim) {
			return nil
		}
		return fmt.Errorf("failed to claim task: %w", err)
	}
	if task == nil {
		return nil
	}

	w.logger.Debug("claimed task",
		logger.TaskID(task.ID),
		logger.TrID(task.Envelope.TrID),
		logger.Action(task.Envelope.Action),
		slog.String("queue", task.Queue))

	return w.processTask(w.ctx, task)
}

// ProcessTask resumes a single claimed task synchronously and records the
// outcome in the repository.
func (w *Worker) ProcessTask(ctx context.Context, task *Task) error {
	return w.processTask(ctx, task)
}

func (w *Worker) processTask(parent context.Context, task *Task) (retErr error) {
	start := time.Now()

	// Not tied to the worker lifecycle so shutdown lets claimed tasks finish.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), w.lockTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("%w: %v", statemachine.ErrCommandPanic, r)
			w.logger.Error("resume panicked",
				logger.TaskID(task.ID),
				logger.TrID(task.Envelope.TrID),
				slog.Any("panic", r))
			_ = w.handleTaskFailure(ctx, task, retErr, time.Since(start))
		}
	}()

	_, err := w.resumer.Resume(ctx, task.Envelope)
	duration := time.Since(start)

	if err != nil {
		return w.handleTaskFailure(ctx, task, err, duration)
	}

	return w.handleTaskSuccess(ctx, task, duration)
}

// handleTaskFailure always records the error first, then moves the task to
// the dead letter queue when it is terminal or out of retries. Otherwise the
// storage has already rescheduled it with backoff.
func (w *Worker) handleTaskFailure(ctx context.Context, task *Task, execErr error, duration time.Duration) error {
	terminal := w.terminal(execErr)

	w.logger.Error("task failed",
		logger.TaskID(task.ID),
		logger.TrID(task.Envelope.TrID),
		logger.Process(task.Envelope.Process),
		logger.Action(task.Envelope.Action),
		logger.EntityKey(task.Envelope.EntityType+"/"+task.Envelope.EntityID),
		logger.RetryCount(int(task.RetryCount)),
		slog.Int("max_retries", int(task.MaxRetries)),
		slog.Bool("terminal", terminal),
		logger.Duration(duration),
		logger.Error(execErr))

	if err := w.repo.FailTask(ctx, task.ID, execErr.Error()); err != nil {
		return fmt.Errorf("failed to update task %s status to failed: %w", task.ID, err)
	}

	if !terminal && task.RetryCount+1 < task.MaxRetries {
		return nil
	}

	if err := w.repo.MoveToDLQ(ctx, task.ID); err != nil {
		return fmt.Errorf("failed to move task %s to DLQ: %w", task.ID, err)
	}

	w.logger.Warn("task moved to dead letter queue",
		logger.TaskID(task.ID),
		logger.TrID(task.Envelope.TrID))

	return nil
}

func (w *Worker) handleTaskSuccess(ctx context.Context, task *Task, duration time.Duration) error {
	if err := w.repo.CompleteTask(ctx, task.ID); err != nil {
		return fmt.Errorf("failed to mark task %s as completed: %w", task.ID, err)
	}

	w.logger.Info("task completed",
		logger.TaskID(task.ID),
		logger.TrID(task.Envelope.TrID),
		logger.Action(task.Envelope.Action),
		slog.String("queue", task.Queue),
		logger.Duration(duration))

	return nil
}

// Drain claims and processes due tasks one at a time until none is left,
// returning the number of tasks it processed. It does not require Start.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		task, err := w.repo.ClaimTask(ctx, w.workerID, w.queues, w.lockTimeout)
		if errors.Is(err, ErrNoTaskToClaim) || (err == nil && task == nil) {
			return processed, nil
		}
		if err != nil {
			return processed, fmt.Errorf("failed to claim task: %w", err)
		}

		if err := w.processTask(ctx, task); err != nil {
			return processed, err
		}
		processed++
	}
}

// ExtendLockForTask extends the lock timeout for a long-running task
func (w *Worker) ExtendLockForTask(ctx context.Context, taskID uuid.UUID, extension time.Duration) error {
	return w.repo.ExtendLock(ctx, taskID, extension)
}

// WorkerInfo returns information about the worker
func (w *Worker) WorkerInfo() (id string, hostname string, pid int) {
	hostname, _ = os.Hostname()
	return w.workerID.String(), hostname, os.Getpid()
}
