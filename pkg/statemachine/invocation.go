package statemachine

import (
	"context"
	"log/slog"
	"maps"

	"github.com/google/uuid"

	"github.com/dmitrymomot/statekit/pkg/logger"
)

// Invocation is the per-call context of one transition run.
//
// ID is unique per invocation, RootID is shared by the whole causal tree and
// ParentID is the ID of the invocation that triggered this one. For a root
// invocation all three are equal. Data is shared by every invocation of the
// tree running in the same process; it is not safe for concurrent use.
type Invocation struct {
	ID       uuid.UUID
	RootID   uuid.UUID
	ParentID uuid.UUID

	Caller Caller
	Data   map[string]any

	// Process is the name of the bound process, Action the requested action.
	Process string
	Action  string

	Background bool
	Resumed    bool
	Strict     bool

	bound *BoundProcess
}

// IsRoot reports whether the invocation started its causal tree.
func (inv *Invocation) IsRoot() bool {
	return inv.RootID == inv.ID
}

// child creates an invocation triggered by inv that shares its tree, caller and data bag.
func (inv *Invocation) child(action string) *Invocation {
	return &Invocation{
		ID:       uuid.New(),
		RootID:   inv.RootID,
		ParentID: inv.ID,
		Caller:   inv.Caller,
		Data:     inv.Data,
		Process:  inv.Process,
		Action:   action,
		bound:    inv.bound,
	}
}

// lockOwner is the token the invocation holds the state lock with. A resumed
// invocation keeps the id of its dispatching half and so owns the same lock.
func (inv *Invocation) lockOwner() string {
	return inv.ID.String()
}

// process returns the definition the invocation runs in.
func (inv *Invocation) process(m *Machine) *Process {
	if inv.bound != nil {
		return inv.bound.p
	}
	p, _ := m.Process(inv.Process)
	return p
}

// InvokeOption configures a single invocation.
type InvokeOption func(*invokeConfig)

type invokeConfig struct {
	caller     Caller
	data       map[string]any
	background bool
	strict     bool
}

// WithCaller sets the caller identity. Nested invocations inherit the parent's
// caller unless one is given.
func WithCaller(c Caller) InvokeOption {
	return func(cfg *invokeConfig) {
		cfg.caller = c
	}
}

// WithData merges values into the invocation data bag.
func WithData(data map[string]any) InvokeOption {
	return func(cfg *invokeConfig) {
		if cfg.data == nil {
			cfg.data = make(map[string]any, len(data))
		}
		maps.Copy(cfg.data, data)
	}
}

// WithBackground hands the side effects of a root invocation to the configured
// Dispatcher once the lock is held. It has no effect on nested invocations.
func WithBackground() InvokeOption {
	return func(cfg *invokeConfig) {
		cfg.background = true
	}
}

// WithStrictErrors makes a root invocation return side effect failures instead
// of logging them and returning only its id.
func WithStrictErrors() InvokeOption {
	return func(cfg *invokeConfig) {
		cfg.strict = true
	}
}

// NewInvocation creates the invocation for action. When ctx carries a running
// invocation the new one becomes its child: same root, parent set to the running
// invocation and a shared data bag.
func NewInvocation(ctx context.Context, action string, opts ...InvokeOption) *Invocation {
	cfg := &invokeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	var inv *Invocation
	if parent := InvocationFromContext(ctx); parent != nil {
		inv = parent.child(action)
		inv.bound = nil
		if cfg.caller != nil {
			inv.Caller = cfg.caller
		}
	} else {
		id := uuid.New()
		inv = &Invocation{
			ID:         id,
			RootID:     id,
			ParentID:   id,
			Caller:     cfg.caller,
			Action:     action,
			Background: cfg.background,
		}
	}
	inv.Strict = cfg.strict

	if inv.Data == nil {
		inv.Data = make(map[string]any, len(cfg.data))
	}
	maps.Copy(inv.Data, cfg.data)

	return inv
}

type invocationKey struct{}

// WithInvocation stores the running invocation in ctx.
func WithInvocation(ctx context.Context, inv *Invocation) context.Context {
	return context.WithValue(ctx, invocationKey{}, inv)
}

// InvocationFromContext returns the running invocation, or nil outside of one.
func InvocationFromContext(ctx context.Context) *Invocation {
	inv, _ := ctx.Value(invocationKey{}).(*Invocation)
	return inv
}

// LogExtractors returns logger context extractors that attach the running
// invocation ids to every record logged with its context.
//
//	log := logger.New(logger.WithContextExtractors(statemachine.LogExtractors()...))
func LogExtractors() []logger.ContextExtractor {
	return []logger.ContextExtractor{
		func(ctx context.Context) (slog.Attr, bool) {
			inv := InvocationFromContext(ctx)
			if inv == nil {
				return slog.Attr{}, false
			}
			return logger.Group("invocation",
				logger.TrID(inv.ID),
				logger.RootID(inv.RootID),
				logger.ParentID(inv.ParentID),
			), true
		},
		func(ctx context.Context) (slog.Attr, bool) {
			inv := InvocationFromContext(ctx)
			if inv == nil || inv.Caller == nil {
				return slog.Attr{}, false
			}
			return logger.CallerID(inv.Caller.ID()), true
		},
	}
}
