package queue

import "time"

// Config holds the configuration for the task queue
type Config struct {
	Queue              string        `env:"QUEUE_NAME" envDefault:"default"`
	KeyPrefix          string        `env:"QUEUE_KEY_PREFIX" envDefault:"statekit:queue:"`
	MaxRetries         int8          `env:"QUEUE_MAX_RETRIES" envDefault:"3"`
	PollInterval       time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"5s"`
	LockTimeout        time.Duration `env:"QUEUE_LOCK_TIMEOUT" envDefault:"5m"`
	ShutdownTimeout    time.Duration `env:"QUEUE_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	MaxConcurrentTasks int           `env:"QUEUE_MAX_CONCURRENT_TASKS" envDefault:"10"`
}

// EnqueuerOptions converts the config into enqueuer options.
func (c Config) EnqueuerOptions() []EnqueuerOption {
	return []EnqueuerOption{
		WithDefaultQueue(c.Queue),
		WithDefaultMaxRetries(c.MaxRetries),
	}
}

// WorkerOptions converts the config into worker options.
func (c Config) WorkerOptions() []WorkerOption {
	return []WorkerOption{
		WithQueues(c.Queue),
		WithPullInterval(c.PollInterval),
		WithLockTimeout(c.LockTimeout),
		WithMaxConcurrentTasks(c.MaxConcurrentTasks),
	}
}
