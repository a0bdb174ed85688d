package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces queue keys in a shared Redis database.
const DefaultKeyPrefix = "statekit:queue:"

// DefaultRetention is how long completed tasks are kept for inspection.
const DefaultRetention = 24 * time.Hour

// RedisStorage implements the queue repository interfaces on Redis so that
// dispatching processes and workers can run on different hosts.
//
// Layout under the key prefix:
//
//	task:<id>         task JSON
//	pending:<queue>   sorted set of task ids scored by ScheduledAt
//	processing        sorted set of task ids scored by LockedUntil
//	dlq               hash of dead task id to DeadTask JSON
//
// A task is claimed by whoever removes it from its pending set, so claims
// never need a server-side script.
type RedisStorage struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
	backoff   Backoff
	now       func() time.Time
}

// RedisOption configures a RedisStorage.
type RedisOption func(*RedisStorage)

// WithKeyPrefix sets the key namespace.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStorage) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithRetention sets how long completed tasks stay readable.
func WithRetention(d time.Duration) RedisOption {
	return func(s *RedisStorage) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithRedisBackoff sets the retry delay progression.
func WithRedisBackoff(b Backoff) RedisOption {
	return func(s *RedisStorage) {
		if b != nil {
			s.backoff = b
		}
	}
}

// WithClock replaces time.Now for scheduling decisions.
func WithClock(now func() time.Time) RedisOption {
	return func(s *RedisStorage) {
		if now != nil {
			s.now = now
		}
	}
}

// NewRedisStorage creates a queue storage on top of client.
func NewRedisStorage(client redis.UniversalClient, opts ...RedisOption) *RedisStorage {
	s := &RedisStorage{
		client:    client,
		prefix:    DefaultKeyPrefix,
		retention: DefaultRetention,
		backoff:   DefaultBackoff,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStorage) taskKey(id uuid.UUID) string { return s.prefix + "task:" + id.String() }
func (s *RedisStorage) pendingKey(queue string) string { return s.prefix + "pending:" + queue }
func (s *RedisStorage) processingKey() string { return s.prefix + "processing" }
func (s *RedisStorage) dlqKey() string { return s.prefix + "dlq" }

func score(t time.Time) float64 { return float64(t.UnixMilli()) }

// CreateTask implements EnqueuerRepository
func (s *RedisStorage) CreateTask(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task %s: %w", task.ID, err)
	}

	ok, err := s.client.SetNX(ctx, s.taskKey(task.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to store task %s: %w", task.ID, err)
	}
	if !ok {
		return ErrTaskExists
	}

	if task.Status == TaskStatusPending {
		if err := s.client.ZAdd(ctx, s.pendingKey(task.Queue), redis.Z{
			Score:  score(task.ScheduledAt),
			Member: task.ID.String(),
		}).Err(); err != nil {
			return fmt.Errorf("failed to enqueue task %s: %w", task.ID, err)
		}
	}

	return nil
}

// ClaimTask implements WorkerRepository. Expired claims are recovered first,
// then the earliest due task across queues is taken.
func (s *RedisStorage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	if _, err := s.RecoverExpired(ctx); err != nil {
		return nil, err
	}

	now := s.now()
	maxScore := strconv.FormatInt(now.UnixMilli(), 10)

	// Another worker may win the race for the head of a queue; try each
	// queue's head at most once per call.
	tried := make(map[string]bool, len(queues))
	for range queues {
		var (
			bestQueue string
			bestID    string
			bestScore float64
		)
		for _, q := range queues {
			if tried[q] {
				continue
			}
			zs, err := s.client.ZRangeByScoreWithScores(ctx, s.pendingKey(q), &redis.ZRangeBy{
				Min:   "-inf",
				Max:   maxScore,
				Count: 1,
			}).Result()
			if err != nil {
				return nil, fmt.Errorf("failed to read queue %q: %w", q, err)
			}
			if len(zs) == 0 {
				tried[q] = true
				continue
			}
			if bestID == "" || zs[0].Score < bestScore {
				bestQueue, bestScore = q, zs[0].Score
				bestID, _ = zs[0].Member.(string)
			}
		}
		if bestID == "" {
			return nil, ErrNoTaskToClaim
		}

		removed, err := s.client.ZRem(ctx, s.pendingKey(bestQueue), bestID).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to claim task %s: %w", bestID, err)
		}
		if removed == 0 {
			tried[bestQueue] = true
			continue
		}

		id, err := uuid.Parse(bestID)
		if err != nil {
			return nil, fmt.Errorf("invalid task id %q in queue %q: %w", bestID, bestQueue, err)
		}
		task, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}

		lockUntil := now.Add(lockDuration)
		task.Status = TaskStatusProcessing
		task.LockedUntil = &lockUntil
		task.LockedBy = &workerID

		if err := s.save(ctx, task, 0, func(p redis.Pipeliner) {
			p.ZAdd(ctx, s.processingKey(), redis.Z{Score: score(lockUntil), Member: bestID})
		}); err != nil {
			return nil, err
		}
		return task, nil
	}

	return nil, ErrNoTaskToClaim
}

// CompleteTask implements WorkerRepository
func (s *RedisStorage) CompleteTask(ctx context.Context, taskID uuid.UUID) error {
	task, err := s.processing(ctx, taskID)
	if err != nil {
		return err
	}

	now := s.now()
	task.Status = TaskStatusCompleted
	task.ProcessedAt = &now
	task.LockedUntil = nil
	task.LockedBy = nil

	return s.save(ctx, task, s.retention, func(p redis.Pipeliner) {
		p.ZRem(ctx, s.processingKey(), taskID.String())
	})
}

// FailTask implements WorkerRepository
func (s *RedisStorage) FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error {
	task, err := s.processing(ctx, taskID)
	if err != nil {
		return err
	}

	task.RetryCount++
	task.Error = &errorMsg
	task.LockedUntil = nil
	task.LockedBy = nil

	if task.RetryCount >= task.MaxRetries {
		task.Status = TaskStatusFailed
		return s.save(ctx, task, 0, func(p redis.Pipeliner) {
			p.ZRem(ctx, s.processingKey(), taskID.String())
		})
	}

	task.Status = TaskStatusPending
	task.ScheduledAt = s.now().Add(s.backoff(task.RetryCount))

	return s.save(ctx, task, 0, func(p redis.Pipeliner) {
		p.ZRem(ctx, s.processingKey(), taskID.String())
		p.ZAdd(ctx, s.pendingKey(task.Queue), redis.Z{Score: score(task.ScheduledAt), Member: taskID.String()})
	})
}

// MoveToDLQ implements WorkerRepository
func (s *RedisStorage) MoveToDLQ(ctx context.Context, taskID uuid.UUID) error {
	task, err := s.load(ctx, taskID)
	if err != nil {
		return err
	}

	dead := newDeadTask(task)
	dead.FailedAt = s.now()
	data, err := json.Marshal(dead)
	if err != nil {
		return fmt.Errorf("failed to marshal dead task %s: %w", taskID, err)
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.dlqKey(), dead.ID.String(), data)
		p.ZRem(ctx, s.processingKey(), taskID.String())
		p.ZRem(ctx, s.pendingKey(task.Queue), taskID.String())
		p.Del(ctx, s.taskKey(taskID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to move task %s to DLQ: %w", taskID, err)
	}
	return nil
}

// ExtendLock implements WorkerRepository
func (s *RedisStorage) ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error {
	task, err := s.processing(ctx, taskID)
	if err != nil {
		return err
	}

	lockUntil := s.now().Add(duration)
	task.LockedUntil = &lockUntil

	return s.save(ctx, task, 0, func(p redis.Pipeliner) {
		p.ZAdd(ctx, s.processingKey(), redis.Z{Score: score(lockUntil), Member: taskID.String()})
	})
}

// RecoverExpired returns tasks whose claim expired to their pending set and
// reports how many were recovered.
func (s *RedisStorage) RecoverExpired(ctx context.Context) (int, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.processingKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(s.now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to scan expired tasks: %w", err)
	}

	recovered := 0
	for _, raw := range ids {
		removed, err := s.client.ZRem(ctx, s.processingKey(), raw).Result()
		if err != nil {
			return recovered, fmt.Errorf("failed to recover task %s: %w", raw, err)
		}
		if removed == 0 {
			continue
		}

		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		task, err := s.load(ctx, id)
		if errors.Is(err, ErrTaskNotFound) {
			continue
		}
		if err != nil {
			return recovered, err
		}

		task.Status = TaskStatusPending
		task.LockedUntil = nil
		task.LockedBy = nil
		if err := s.save(ctx, task, 0, func(p redis.Pipeliner) {
			p.ZAdd(ctx, s.pendingKey(task.Queue), redis.Z{Score: score(task.ScheduledAt), Member: raw})
		}); err != nil {
			return recovered, err
		}
		recovered++
	}

	return recovered, nil
}

// Task returns a stored task.
func (s *RedisStorage) Task(ctx context.Context, taskID uuid.UUID) (*Task, error) {
	return s.load(ctx, taskID)
}

// DeadTasks returns the dead letter queue.
func (s *RedisStorage) DeadTasks(ctx context.Context) ([]DeadTask, error) {
	raw, err := s.client.HGetAll(ctx, s.dlqKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read DLQ: %w", err)
	}

	out := make([]DeadTask, 0, len(raw))
	for id, data := range raw {
		var d DeadTask
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			return nil, fmt.Errorf("failed to decode dead task %s: %w", id, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// Pending returns the number of tasks waiting in a queue, including delayed ones.
func (s *RedisStorage) Pending(ctx context.Context, queue string) (int64, error) {
	return s.client.ZCard(ctx, s.pendingKey(queue)).Result()
}

func (s *RedisStorage) load(ctx context.Context, taskID uuid.UUID) (*Task, error) {
	data, err := s.client.Get(ctx, s.taskKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task %s: %w", taskID, err)
	}

	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to decode task %s: %w", taskID, err)
	}
	return &task, nil
}

func (s *RedisStorage) processing(ctx context.Context, taskID uuid.UUID) (*Task, error) {
	task, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != TaskStatusProcessing {
		return nil, ErrTaskNotProcessing
	}
	return task, nil
}

// save writes the task and runs extra in the same transaction.
func (s *RedisStorage) save(ctx context.Context, task *Task, ttl time.Duration, extra func(redis.Pipeliner)) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task %s: %w", task.ID, err)
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.taskKey(task.ID), data, ttl)
		if extra != nil {
			extra(p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", task.ID, err)
	}
	return nil
}
