package queue_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/statekit/pkg/entity"
	"github.com/dmitrymomot/statekit/pkg/lock"
	"github.com/dmitrymomot/statekit/pkg/queue"
	"github.com/dmitrymomot/statekit/pkg/statemachine"
	"github.com/dmitrymomot/statekit/pkg/trace"
)

func TestBackgroundTransitionThroughQueue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ref := entity.NewRef("doc", "1")

	store := entity.NewMemory()
	store.Put(ref, map[string]string{"status": "draft"})
	locks := lock.NewMemory()
	storage := newMemoryStorage(t)
	rec := trace.NewRecorder()

	enq, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)

	published := make(chan struct{}, 1)
	m := statemachine.MustNew(
		statemachine.WithAccessor(store),
		statemachine.WithLocker(locks),
		statemachine.WithLoader(store),
		statemachine.WithDispatcher(enq),
		statemachine.WithTraceSink(rec),
	)
	require.NoError(t, m.Register(statemachine.MustNewProcess("doc", "status",
		statemachine.WithTransitions(
			statemachine.NewTransition("publish", []string{"draft"}, "published",
				statemachine.WithInProgressState("publishing"),
				statemachine.WithCallbacks(func(context.Context, statemachine.Entity, *statemachine.Invocation) error {
					published <- struct{}{}
					return nil
				}),
			),
		),
	)))

	b, err := m.BindByName("doc", ref)
	require.NoError(t, err)

	id, err := b.PerformAction(ctx, "publish", statemachine.WithBackground())
	require.NoError(t, err)

	fields, _ := store.Fields(ref)
	assert.Equal(t, "publishing", fields["status"])
	assert.Equal(t, 1, storage.Count(queue.TaskStatusPending))
	assert.Equal(t, 1, locks.Held())

	w, err := queue.NewWorker(storage, m, queue.WithPullInterval(10*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() { _ = w.Stop() })

	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("background transition did not complete")
	}

	require.Eventually(t, func() bool {
		return storage.Count(queue.TaskStatusCompleted) == 1
	}, time.Second, 10*time.Millisecond)

	fields, _ = store.Fields(ref)
	assert.Equal(t, "published", fields["status"])
	assert.Zero(t, locks.Held())
	assert.Equal(t, 1, rec.Count(id, trace.KindBackgroundMode))
	assert.Equal(t, 2, rec.Count(id, trace.KindStart))
}

func TestWorker_Drain(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := entity.NewMemory()
	storage := newMemoryStorage(t)

	enq, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)

	m := statemachine.MustNew(
		statemachine.WithAccessor(store),
		statemachine.WithLocker(lock.NewMemory()),
		statemachine.WithLoader(store),
		statemachine.WithDispatcher(enq),
	)
	require.NoError(t, m.Register(statemachine.MustNewProcess("doc", "status",
		statemachine.WithTransitions(
			statemachine.NewTransition("publish", []string{"draft"}, "published",
				statemachine.WithInProgressState("publishing"),
			),
		),
	)))

	refs := []entity.Ref{entity.NewRef("doc", "1"), entity.NewRef("doc", "2")}
	for _, ref := range refs {
		store.Put(ref, map[string]string{"status": "draft"})
		b, err := m.BindByName("doc", ref)
		require.NoError(t, err)
		_, err = b.PerformAction(ctx, "publish", statemachine.WithBackground())
		require.NoError(t, err)
	}

	w, err := queue.NewWorker(storage, m)
	require.NoError(t, err)

	n, err := w.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, storage.Count(queue.TaskStatusCompleted))

	for _, ref := range refs {
		fields, _ := store.Fields(ref)
		assert.Equal(t, "published", fields["status"])
	}

	n, err = w.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// flakyLoader fails the first n loads.
type flakyLoader struct {
	*entity.Memory
	fails atomic.Int32
}

func (l *flakyLoader) Load(ctx context.Context, entityType, id string) (statemachine.Entity, error) {
	if l.fails.Add(-1) >= 0 {
		return nil, errors.New("connection reset")
	}
	return l.Memory.Load(ctx, entityType, id)
}

// failingWrite fails the nth write of value and passes every other call through.
type failingWrite struct {
	*entity.Memory
	value string
	nth   int32
	seen  atomic.Int32
}

func (a *failingWrite) Set(ctx context.Context, e statemachine.Entity, field, value string) error {
	if value == a.value && a.seen.Add(1) == a.nth {
		return errors.New("write conflict")
	}
	return a.Memory.Set(ctx, e, field, value)
}

func TestResumeRetries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	noBackoff := queue.WithMemoryBackoff(func(int8) time.Duration { return 0 })

	publishProcess := func(sideEffects *atomic.Int32) *statemachine.Process {
		return statemachine.MustNewProcess("doc", "status",
			statemachine.WithTransitions(
				statemachine.NewTransition("publish", []string{"draft"}, "published",
					statemachine.WithInProgressState("publishing"),
					statemachine.WithFailedState("publish_failed"),
					statemachine.WithSideEffects(func(context.Context, statemachine.Entity, *statemachine.Invocation) error {
						sideEffects.Add(1)
						return nil
					}),
				),
			),
		)
	}

	t.Run("transient load error is retried under the dispatcher's lock", func(t *testing.T) {
		t.Parallel()

		ref := entity.NewRef("doc", "1")
		store := entity.NewMemory()
		store.Put(ref, map[string]string{"status": "draft"})
		loader := &flakyLoader{Memory: store}
		loader.fails.Store(1)
		locks := lock.NewMemory()
		storage := newMemoryStorage(t, noBackoff)

		enq, err := queue.NewEnqueuer(storage)
		require.NoError(t, err)

		var sideEffects atomic.Int32
		m := statemachine.MustNew(
			statemachine.WithAccessor(store),
			statemachine.WithLocker(locks),
			statemachine.WithLoader(loader),
			statemachine.WithDispatcher(enq),
		)
		require.NoError(t, m.Register(publishProcess(&sideEffects)))

		b, err := m.BindByName("doc", ref)
		require.NoError(t, err)
		id, err := b.PerformAction(ctx, "publish", statemachine.WithBackground())
		require.NoError(t, err)

		w, err := queue.NewWorker(storage, m)
		require.NoError(t, err)

		n, err := w.Drain(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n, "one failed attempt and one retry")
		assert.Equal(t, 1, storage.Count(queue.TaskStatusCompleted))
		assert.Empty(t, storage.DeadTasks())

		assert.Equal(t, int32(1), sideEffects.Load())
		fields, _ := store.Fields(ref)
		assert.Equal(t, "published", fields["status"])
		assert.Zero(t, locks.Held())
		assert.Empty(t, locks.Owner(statemachine.LockKey("doc", "1", "status")), "lock of %s released", id)
	})

	t.Run("failed in-progress write on resume is not retried", func(t *testing.T) {
		t.Parallel()

		ref := entity.NewRef("doc", "1")
		store := entity.NewMemory()
		store.Put(ref, map[string]string{"status": "draft"})
		// The dispatcher's write succeeds, the worker's write fails once.
		acc := &failingWrite{Memory: store, value: "publishing", nth: 2}
		locks := lock.NewMemory()
		storage := newMemoryStorage(t, noBackoff)

		enq, err := queue.NewEnqueuer(storage)
		require.NoError(t, err)

		var sideEffects atomic.Int32
		m := statemachine.MustNew(
			statemachine.WithAccessor(acc),
			statemachine.WithLocker(locks),
			statemachine.WithLoader(store),
			statemachine.WithDispatcher(enq),
		)
		require.NoError(t, m.Register(publishProcess(&sideEffects)))

		b, err := m.BindByName("doc", ref)
		require.NoError(t, err)
		_, err = b.PerformAction(ctx, "publish", statemachine.WithBackground())
		require.NoError(t, err)

		w, err := queue.NewWorker(storage, m)
		require.NoError(t, err)

		n, err := w.Drain(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Len(t, storage.DeadTasks(), 1)
		assert.Zero(t, storage.Count(queue.TaskStatusPending))

		assert.Zero(t, sideEffects.Load(), "side effects never run outside the lock")
		fields, _ := store.Fields(ref)
		assert.Equal(t, "publish_failed", fields["status"])
		assert.Zero(t, locks.Held())
	})
}
