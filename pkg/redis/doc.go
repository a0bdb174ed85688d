// Package redis connects to the Redis server shared by the lock provider and
// the transition queue.
//
//	var cfg redis.Config
//	config.MustLoad(&cfg)
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	locker := lock.NewRedis(client)
//	storage := queue.NewRedisStorage(client)
//
// Healthcheck adapts a client to the probe signature served by the worker's
// /healthz endpoint. Errors wrap the go-redis cause with errors.Join so both
// the sentinel and the cause match errors.Is.
package redis
