package statemachine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dmitrymomot/statekit/pkg/logger"
	"github.com/dmitrymomot/statekit/pkg/trace"
)

// DefaultLockTTL bounds how long a crashed invocation can keep a state locked.
const DefaultLockTTL = 30 * time.Minute

// Machine holds the collaborators shared by every process: state accessor,
// lock provider, trace sink and the optional background dispatcher.
type Machine struct {
	accessor   Accessor
	locker     Locker
	dispatcher Dispatcher
	loader     Loader
	callers    CallerResolver
	sink       trace.Sink
	log        *slog.Logger
	lockTTL    time.Duration
	now        func() time.Time

	mu        sync.RWMutex
	processes map[string]*Process
}

// Option configures a Machine during construction.
type Option func(*Machine) error

// WithAccessor sets the state field accessor. Required.
func WithAccessor(a Accessor) Option {
	return func(m *Machine) error {
		if a == nil {
			return ErrNoAccessor
		}
		m.accessor = a
		return nil
	}
}

// WithLocker sets the lock provider. Required.
func WithLocker(l Locker) Option {
	return func(m *Machine) error {
		if l == nil {
			return ErrNoLocker
		}
		m.locker = l
		return nil
	}
}

// WithDispatcher enables background execution.
func WithDispatcher(d Dispatcher) Option {
	return func(m *Machine) error {
		m.dispatcher = d
		return nil
	}
}

// WithLoader sets the entity loader used by Resume.
func WithLoader(l Loader) Option {
	return func(m *Machine) error {
		m.loader = l
		return nil
	}
}

// WithCallerResolver restores callers from their ids on Resume.
// Without one, resumed invocations run as StringCaller.
func WithCallerResolver(r CallerResolver) Option {
	return func(m *Machine) error {
		m.callers = r
		return nil
	}
}

// WithTraceSink replaces the default log sink. Several sinks receive every event in order.
func WithTraceSink(sinks ...trace.Sink) Option {
	return func(m *Machine) error {
		m.sink = trace.Multi(sinks...)
		return nil
	}
}

// WithLogger sets the engine logger. A nil logger keeps the default.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) error {
		if l != nil {
			m.log = l
		}
		return nil
	}
}

// WithLockTTL sets the expiry of state locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Machine) error {
		if ttl <= 0 {
			return fmt.Errorf("lock ttl must be positive, got %s", ttl)
		}
		m.lockTTL = ttl
		return nil
	}
}

// WithConfig applies settings loaded from the environment.
func WithConfig(cfg Config) Option {
	return func(m *Machine) error {
		if cfg.LockTTL > 0 {
			m.lockTTL = cfg.LockTTL
		}
		return nil
	}
}

// New creates a machine. An accessor and a locker are required.
func New(opts ...Option) (*Machine, error) {
	m := &Machine{
		log:       slog.Default(),
		lockTTL:   DefaultLockTTL,
		now:       time.Now,
		processes: make(map[string]*Process),
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}

	if m.accessor == nil {
		return nil, ErrNoAccessor
	}
	if m.locker == nil {
		return nil, ErrNoLocker
	}
	if m.sink == nil {
		m.sink = trace.NewLogSink(m.log)
	}

	return m, nil
}

// MustNew creates a machine and panics on configuration errors.
func MustNew(opts ...Option) *Machine {
	m, err := New(opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create state machine: %v", err))
	}
	return m
}

// Register makes processes resolvable by name, which background resumption requires.
func (m *Machine) Register(ps ...*Process) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range ps {
		if p == nil {
			return ErrInvalidProcess
		}
		if _, ok := m.processes[p.name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateProcess, p.name)
		}
	}
	for _, p := range ps {
		m.processes[p.name] = p
	}
	return nil
}

// Process returns a registered process.
func (m *Machine) Process(name string) (*Process, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.processes[name]
	return p, ok
}

// Processes returns the sorted names of registered processes.
func (m *Machine) Processes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.processes))
	for name := range m.processes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (m *Machine) emit(ctx context.Context, st *State, inv *Invocation, kind trace.Kind, payload string) {
	m.sink.Record(ctx, trace.Event{
		Time:      m.now(),
		TrID:      inv.ID,
		RootID:    inv.RootID,
		ParentID:  inv.ParentID,
		Kind:      kind,
		Process:   inv.Process,
		Action:    inv.Action,
		EntityKey: st.key,
		Payload:   payload,
	})
}

func (m *Machine) logCommandError(ctx context.Context, st *State, inv *Invocation, msg, command string, err error) {
	m.log.ErrorContext(ctx, msg,
		logger.TrID(inv.ID),
		logger.RootID(inv.RootID),
		logger.Process(inv.Process),
		logger.Action(inv.Action),
		logger.EntityKey(st.key),
		logger.Event(command),
		logger.Error(err),
	)
}
