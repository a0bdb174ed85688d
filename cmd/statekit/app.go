package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/statekit/pkg/entity"
	"github.com/dmitrymomot/statekit/pkg/httpserver"
	"github.com/dmitrymomot/statekit/pkg/lock"
	"github.com/dmitrymomot/statekit/pkg/mongo"
	"github.com/dmitrymomot/statekit/pkg/pg"
	"github.com/dmitrymomot/statekit/pkg/procdef"
	"github.com/dmitrymomot/statekit/pkg/queue"
	"github.com/dmitrymomot/statekit/pkg/redis"
	"github.com/dmitrymomot/statekit/pkg/statemachine"
	"github.com/dmitrymomot/statekit/pkg/trace"
)

type stateStore interface {
	statemachine.Accessor
	statemachine.Loader
}

type taskStore interface {
	queue.EnqueuerRepository
	queue.WorkerRepository
}

// app holds the machine and the backends it was wired to.
type app struct {
	cfg     Config
	log     *slog.Logger
	machine *statemachine.Machine

	store  stateStore
	memory *entity.Memory // set for the memory store only
	tasks  taskStore

	metrics *prometheus.Registry
	checks  []httpserver.Check

	rdb     goredis.UniversalClient
	closers []func(context.Context) error
}

type appOption func(*app)

// withRedisClient reuses client instead of connecting with the configured URL.
func withRedisClient(client goredis.UniversalClient) appOption {
	return func(a *app) { a.rdb = client }
}

// newApp connects the configured backends, loads the definition file and
// registers its processes. The returned app must be closed.
func newApp(ctx context.Context, cfg Config, log *slog.Logger, file string, opts ...appOption) (_ *app, err error) {
	a := &app{cfg: cfg, log: log, metrics: prometheus.NewRegistry()}
	for _, opt := range opts {
		opt(a)
	}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	a.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sink, err := trace.NewMetrics(a.metrics, cfg.MetricsNamespace)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	locker, err := a.openLocker(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.openQueue(ctx); err != nil {
		return nil, err
	}

	enq, err := queue.NewEnqueuer(a.tasks, cfg.Tasks.EnqueuerOptions()...)
	if err != nil {
		return nil, err
	}

	a.machine, err = statemachine.New(
		statemachine.WithAccessor(a.store),
		statemachine.WithLoader(a.store),
		statemachine.WithLocker(locker),
		statemachine.WithDispatcher(enq),
		statemachine.WithTraceSink(trace.NewLogSinkWithLevel(log, slog.LevelDebug), sink),
		statemachine.WithLogger(log),
		statemachine.WithConfig(cfg.Machine),
	)
	if err != nil {
		return nil, err
	}

	processes, err := loadProcesses(file, log)
	if err != nil {
		return nil, err
	}
	if err := a.machine.Register(processes...); err != nil {
		return nil, err
	}

	return a, nil
}

func loadProcesses(file string, log *slog.Logger) ([]*statemachine.Process, error) {
	reg := procdef.NewRegistry()
	if err := procdef.RegisterBuiltins(reg, log); err != nil {
		return nil, err
	}
	processes, err := procdef.LoadFile(file, reg)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", file, err)
	}
	return processes, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Store {
	case backendPostgres:
		pool, err := pg.Connect(ctx, a.cfg.PG)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.onClose(func(context.Context) error { pool.Close(); return nil })
		a.addCheck("postgres", pg.Healthcheck(pool))

		tables, err := a.cfg.tables()
		if err != nil {
			return err
		}
		opts := []entity.PostgresOption{entity.WithIDColumn(a.cfg.IDColumn)}
		for entityType, table := range tables {
			opts = append(opts, entity.WithTable(entityType, table))
		}
		a.store = entity.NewPostgres(pool, opts...)

	case backendMongo:
		db, err := mongo.ConnectDatabase(ctx, a.cfg.Mongo)
		if err != nil {
			return fmt.Errorf("connect mongo: %w", err)
		}
		a.onClose(db.Client().Disconnect)
		a.addCheck("mongo", mongo.Healthcheck(db.Client()))

		var opts []entity.MongoOption
		if a.cfg.MongoObjectIDs {
			opts = append(opts, entity.WithObjectIDs())
		}
		a.store = entity.NewMongo(db, opts...)

	default:
		a.memory = entity.NewMemory()
		a.store = a.memory
	}
	return nil
}

func (a *app) openLocker(ctx context.Context) (statemachine.Locker, error) {
	if a.cfg.Locks != backendRedis {
		return lock.NewMemory(), nil
	}
	client, err := a.redisClient(ctx)
	if err != nil {
		return nil, err
	}
	return lock.NewRedis(client, lock.WithConfig(a.cfg.Lock)), nil
}

func (a *app) openQueue(ctx context.Context) error {
	if a.cfg.Queue != backendRedis {
		storage := queue.NewMemoryStorage()
		a.onClose(func(context.Context) error { return storage.Close() })
		a.tasks = storage
		return nil
	}
	client, err := a.redisClient(ctx)
	if err != nil {
		return err
	}
	a.tasks = queue.NewRedisStorage(client, queue.WithKeyPrefix(a.cfg.Tasks.KeyPrefix))
	return nil
}

// redisClient returns the shared client, connecting on first use.
func (a *app) redisClient(ctx context.Context) (goredis.UniversalClient, error) {
	if a.rdb == nil {
		client, err := redis.Connect(ctx, a.cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.rdb = client
		a.onClose(func(context.Context) error { return client.Close() })
	}
	if !slices.ContainsFunc(a.checks, func(c httpserver.Check) bool { return c.Name == "redis" }) {
		a.addCheck("redis", redis.Healthcheck(a.rdb))
	}
	return a.rdb, nil
}

func (a *app) addCheck(name string, probe func(context.Context) error) {
	a.checks = append(a.checks, httpserver.Check{Name: name, Probe: probe})
}

func (a *app) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// newWorker creates a queue worker resuming tasks on the app's machine.
func (a *app) newWorker() (*queue.Worker, error) {
	opts := append(a.cfg.Tasks.WorkerOptions(), queue.WithWorkerLogger(a.log))
	return queue.NewWorker(a.tasks, a.machine, opts...)
}

// Close releases the backends in reverse order of opening.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for _, fn := range slices.Backward(a.closers) {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
