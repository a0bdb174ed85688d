package procdef

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/statekit/pkg/logger"
	"github.com/dmitrymomot/statekit/pkg/statemachine"
)

// ErrBuiltinFailure is returned by the "fail" builtin command.
var ErrBuiltinFailure = errors.New("failed on purpose")

// DefaultSleep is used by the "sleep" builtin when the invocation data
// carries no "sleep" duration.
const DefaultSleep = time.Second

// RegisterBuiltins adds general purpose functions to reg:
//
//	conditions:        always, never
//	permissions:       authenticated, nobody
//	commands:          noop, log, fail, sleep, stamp
//	failure commands:  noop, log
func RegisterBuiltins(reg *Registry, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	return errors.Join(
		reg.RegisterCondition("always", func(context.Context, statemachine.Entity) bool { return true }),
		reg.RegisterCondition("never", func(context.Context, statemachine.Entity) bool { return false }),

		reg.RegisterPermission("authenticated", func(_ context.Context, _ statemachine.Entity, c statemachine.Caller) bool {
			return c != nil && c.ID() != ""
		}),
		reg.RegisterPermission("nobody", func(context.Context, statemachine.Entity, statemachine.Caller) bool { return false }),

		reg.RegisterCommand("noop", func(context.Context, statemachine.Entity, *statemachine.Invocation) error { return nil }),
		reg.RegisterCommand("log", logCommand(log)),
		reg.RegisterCommand("fail", func(context.Context, statemachine.Entity, *statemachine.Invocation) error {
			return ErrBuiltinFailure
		}),
		reg.RegisterCommand("sleep", sleepCommand),
		reg.RegisterCommand("stamp", stampCommand),

		reg.RegisterFailureCommand("noop", func(context.Context, statemachine.Entity, *statemachine.Invocation, error) error { return nil }),
		reg.RegisterFailureCommand("log", logFailureCommand(log)),
	)
}

func logCommand(log *slog.Logger) statemachine.Command {
	return func(ctx context.Context, e statemachine.Entity, inv *statemachine.Invocation) error {
		log.InfoContext(ctx, "action performed",
			logger.Process(inv.Process),
			logger.Action(inv.Action),
			logger.EntityKey(e.EntityType()+"/"+e.EntityID()),
		)
		return nil
	}
}

func logFailureCommand(log *slog.Logger) statemachine.FailureCommand {
	return func(ctx context.Context, e statemachine.Entity, inv *statemachine.Invocation, cause error) error {
		log.WarnContext(ctx, "action failed",
			logger.Process(inv.Process),
			logger.Action(inv.Action),
			logger.EntityKey(e.EntityType()+"/"+e.EntityID()),
			logger.Error(cause),
		)
		return nil
	}
}

func sleepCommand(ctx context.Context, _ statemachine.Entity, inv *statemachine.Invocation) error {
	d := DefaultSleep
	switch v := inv.Data["sleep"].(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid sleep duration %q: %w", v, err)
		}
		d = parsed
	case time.Duration:
		d = v
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// stampCommand records when the action ran under "<action>_at".
func stampCommand(_ context.Context, _ statemachine.Entity, inv *statemachine.Invocation) error {
	inv.Data[inv.Action+"_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	return nil
}
