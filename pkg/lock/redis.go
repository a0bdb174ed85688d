package lock

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only when it still carries the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Redis is a lock provider shared by every process talking to the same Redis.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// RedisOption configures a Redis lock provider.
type RedisOption func(*Redis)

// WithPrefix namespaces lock keys.
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

// WithConfig applies settings loaded from the environment.
func WithConfig(cfg Config) RedisOption {
	return func(r *Redis) {
		if cfg.Prefix != "" {
			r.prefix = cfg.Prefix
		}
	}
}

// NewRedis creates a Redis lock provider.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{client: client, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TryAcquire sets the key to owner with SET NX and the given expiry.
func (r *Redis) TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	ok, err := r.client.SetNX(ctx, r.prefix+key, owner, ttl).Result()
	if err != nil {
		return false, errors.Join(ErrProvider, err)
	}
	return ok, nil
}

// Release deletes the key atomically, and only while owner still holds it.
// A lock that expired and was taken by someone else is left alone.
func (r *Redis) Release(ctx context.Context, key, owner string) error {
	if err := releaseScript.Run(ctx, r.client, []string{r.prefix + key}, owner).Err(); err != nil {
		return errors.Join(ErrProvider, err)
	}
	return nil
}

// IsHeld reports whether any owner holds the key.
func (r *Redis) IsHeld(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+key).Result()
	if err != nil {
		return false, errors.Join(ErrProvider, err)
	}
	return n > 0, nil
}

// TTL returns the remaining expiry of a held lock, or zero when it is not held.
func (r *Redis) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := r.client.PTTL(ctx, r.prefix+key).Result()
	if err != nil {
		return 0, errors.Join(ErrProvider, err)
	}
	if d < 0 {
		return 0, nil
	}
	return d, nil
}
