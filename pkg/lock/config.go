package lock

import "errors"

// DefaultPrefix namespaces Redis lock keys when no prefix is configured.
const DefaultPrefix = "statekit:lock:"

// ErrProvider wraps errors returned by the lock backend.
var ErrProvider = errors.New("lock provider error")

// Config holds lock settings loaded from the environment.
type Config struct {
	Prefix string `env:"LOCK_PREFIX" envDefault:"statekit:lock:"`
}
