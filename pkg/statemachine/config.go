package statemachine

import "time"

// Config holds engine settings loaded from the environment.
type Config struct {
	LockTTL time.Duration `env:"STATEMACHINE_LOCK_TTL" envDefault:"30m"`
}
