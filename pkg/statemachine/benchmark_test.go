package statemachine_test

import (
	"context"
	"testing"

	"github.com/dmitrymomot/statekit/pkg/entity"
	"github.com/dmitrymomot/statekit/pkg/lock"
	"github.com/dmitrymomot/statekit/pkg/statemachine"
	"github.com/dmitrymomot/statekit/pkg/trace"
)

func benchProcess() *statemachine.Process {
	return statemachine.MustNewProcess("doc", "status",
		statemachine.WithTransitions(
			statemachine.NewTransition("publish", []string{"draft"}, "published",
				statemachine.WithInProgressState("publishing"),
				statemachine.WithSideEffects(noop, noop),
				statemachine.WithCallbacks(noop),
			),
			statemachine.NewTransition("unpublish", []string{"published"}, "draft"),
		),
		statemachine.WithNestedProcesses(statemachine.MustNewProcess("archive", "status", statemachine.WithTransitions(
			statemachine.NewTransition("archive", []string{"draft", "published"}, "archived"),
		))),
	)
}

func benchMachine(b *testing.B) (*statemachine.Machine, entity.Ref) {
	store := entity.NewMemory()
	doc := entity.NewRef("document", "1")
	store.Put(doc, map[string]string{"status": "draft"})

	m, err := statemachine.New(
		statemachine.WithAccessor(store),
		statemachine.WithLocker(lock.NewMemory()),
		statemachine.WithTraceSink(trace.Discard),
	)
	if err != nil {
		b.Fatal(err)
	}
	return m, doc
}

func BenchmarkPerformAction(b *testing.B) {
	m, doc := benchMachine(b)
	bound, err := m.Bind(benchProcess(), doc)
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()

	b.ResetTimer()
	for b.Loop() {
		if _, err := bound.PerformAction(ctx, "publish"); err != nil {
			b.Fatal(err)
		}
		if _, err := bound.PerformAction(ctx, "unpublish"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAvailableActions(b *testing.B) {
	m, doc := benchMachine(b)
	bound, err := m.Bind(benchProcess(), doc)
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	caller := statemachine.StringCaller("bench")

	b.ResetTimer()
	for b.Loop() {
		_ = bound.AvailableActions(ctx, caller)
	}
}
