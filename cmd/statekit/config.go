package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/dmitrymomot/statekit/pkg/config"
	"github.com/dmitrymomot/statekit/pkg/httpserver"
	"github.com/dmitrymomot/statekit/pkg/lock"
	"github.com/dmitrymomot/statekit/pkg/logger"
	"github.com/dmitrymomot/statekit/pkg/mongo"
	"github.com/dmitrymomot/statekit/pkg/pg"
	"github.com/dmitrymomot/statekit/pkg/queue"
	"github.com/dmitrymomot/statekit/pkg/redis"
	"github.com/dmitrymomot/statekit/pkg/statemachine"
)

// Backend names accepted by the STATEKIT_STORE, STATEKIT_LOCKS and STATEKIT_QUEUE variables.
const (
	backendMemory   = "memory"
	backendRedis    = "redis"
	backendPostgres = "postgres"
	backendMongo    = "mongo"
)

// Config is the complete CLI configuration.
type Config struct {
	Store            string   `env:"STATEKIT_STORE" envDefault:"memory"`
	Locks            string   `env:"STATEKIT_LOCKS" envDefault:"memory"`
	Queue            string   `env:"STATEKIT_QUEUE" envDefault:"memory"`
	LogLevel         string   `env:"STATEKIT_LOG_LEVEL" envDefault:"info"`
	LogFormat        string   `env:"STATEKIT_LOG_FORMAT" envDefault:"text"`
	MetricsNamespace string   `env:"STATEKIT_METRICS_NAMESPACE" envDefault:"statekit"`
	Tables           []string `env:"STATEKIT_PG_TABLES" envSeparator:","` // entity_type=table
	IDColumn         string   `env:"STATEKIT_PG_ID_COLUMN" envDefault:"id"`
	MongoObjectIDs   bool     `env:"STATEKIT_MONGO_OBJECT_IDS" envDefault:"false"`

	Machine statemachine.Config
	Lock    lock.Config
	Tasks   queue.Config
	Redis   redis.Config
	PG      pg.Config
	Mongo   mongo.Config
	HTTP    httpserver.Config
}

func loadConfig(envFile string) (Config, error) {
	if envFile != "" {
		if err := config.LoadEnv(envFile); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	check := func(name, value string, allowed ...string) error {
		for _, a := range allowed {
			if value == a {
				return nil
			}
		}
		return fmt.Errorf("%s: unsupported backend %q, expected one of %s", name, value, strings.Join(allowed, ", "))
	}

	if err := check("STATEKIT_STORE", c.Store, backendMemory, backendPostgres, backendMongo); err != nil {
		return err
	}
	if err := check("STATEKIT_LOCKS", c.Locks, backendMemory, backendRedis); err != nil {
		return err
	}
	if err := check("STATEKIT_QUEUE", c.Queue, backendMemory, backendRedis); err != nil {
		return err
	}
	if _, err := c.level(); err != nil {
		return err
	}
	if _, err := logger.ParseFormat(c.LogFormat); err != nil {
		return fmt.Errorf("STATEKIT_LOG_FORMAT: %w", err)
	}
	_, err := c.tables()
	return err
}

func (c Config) level() (slog.Level, error) {
	l, err := logger.ParseLevel(c.LogLevel)
	if err != nil {
		return l, fmt.Errorf("STATEKIT_LOG_LEVEL: %w", err)
	}
	return l, nil
}

// tables parses the entity_type=table pairs of STATEKIT_PG_TABLES.
func (c Config) tables() (map[string]string, error) {
	out := make(map[string]string, len(c.Tables))
	for _, pair := range c.Tables {
		entityType, table, ok := strings.Cut(pair, "=")
		entityType, table = strings.TrimSpace(entityType), strings.TrimSpace(table)
		if !ok || entityType == "" || table == "" {
			return nil, fmt.Errorf("STATEKIT_PG_TABLES: malformed pair %q, expected entity_type=table", pair)
		}
		out[entityType] = table
	}
	return out, nil
}

func (c Config) newLogger(w io.Writer) *slog.Logger {
	level, _ := c.level()
	format, _ := logger.ParseFormat(c.LogFormat)
	return logger.New(
		logger.WithLevel(level),
		logger.WithFormat(format),
		logger.WithOutput(w),
		logger.WithAttr(logger.Component("statekit")),
		logger.WithContextExtractors(statemachine.LogExtractors()...),
	)
}
