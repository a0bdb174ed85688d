package statemachine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/statekit/pkg/entity"
	"github.com/dmitrymomot/statekit/pkg/lock"
	"github.com/dmitrymomot/statekit/pkg/statemachine"
	"github.com/dmitrymomot/statekit/pkg/trace"
)

var errBoom = errors.New("boom")

type env struct {
	m     *statemachine.Machine
	store *entity.Memory
	locks *lock.Memory
	rec   *trace.Recorder
	doc   entity.Ref
}

func newEnv(t testing.TB, opts ...statemachine.Option) *env {
	t.Helper()

	e := &env{
		store: entity.NewMemory(),
		locks: lock.NewMemory(),
		rec:   trace.NewRecorder(),
		doc:   entity.NewRef("document", "1"),
	}
	e.store.Put(e.doc, map[string]string{"status": "draft", "review": "pending"})

	base := []statemachine.Option{
		statemachine.WithAccessor(e.store),
		statemachine.WithLocker(e.locks),
		statemachine.WithLoader(e.store),
		statemachine.WithTraceSink(e.rec),
	}
	m, err := statemachine.New(append(base, opts...)...)
	require.NoError(t, err)
	e.m = m
	return e
}

func (e *env) bind(t testing.TB, p *statemachine.Process) *statemachine.BoundProcess {
	t.Helper()
	b, err := e.m.Bind(p, e.doc)
	require.NoError(t, err)
	return b
}

func (e *env) field(t testing.TB, name string) string {
	t.Helper()
	v, err := e.store.Get(context.Background(), e.doc, name)
	require.NoError(t, err)
	return v
}

func (e *env) locked(t testing.TB, field string) bool {
	t.Helper()
	held, err := e.locks.IsHeld(context.Background(), statemachine.LockKey("document", "1", field))
	require.NoError(t, err)
	return held
}

func noop(context.Context, statemachine.Entity, *statemachine.Invocation) error { return nil }

func fails(context.Context, statemachine.Entity, *statemachine.Invocation) error { return errBoom }

func allow(context.Context, statemachine.Entity) bool { return true }

func deny(context.Context, statemachine.Entity) bool { return false }

// record returns a command appending name to calls.
func record(calls *[]string, name string) statemachine.Command {
	return func(context.Context, statemachine.Entity, *statemachine.Invocation) error {
		*calls = append(*calls, name)
		return nil
	}
}

func recordFailure(calls *[]string, name string) statemachine.FailureCommand {
	return func(context.Context, statemachine.Entity, *statemachine.Invocation, error) error {
		*calls = append(*calls, name)
		return nil
	}
}

// payloads returns the payloads of events of the given kind for one invocation.
func payloads(rec *trace.Recorder, id uuid.UUID, kind trace.Kind) []string {
	var out []string
	for _, ev := range rec.Events() {
		if ev.TrID == id && ev.Kind == kind {
			out = append(out, ev.Payload)
		}
	}
	return out
}
