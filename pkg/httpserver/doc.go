// Package httpserver runs the operational HTTP endpoint of a statekit worker.
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	g.Go(func() error {
//		return srv.Run(ctx, httpserver.OpsRouter(registry, log,
//			httpserver.Check{Name: "redis", Probe: redis.Healthcheck(client)},
//		))
//	})
//
// Run blocks until ctx is cancelled and then shuts down within the configured
// timeout, so it composes with errgroup and signal.NotifyContext.
package httpserver
