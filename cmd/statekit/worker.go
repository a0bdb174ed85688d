package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/statekit/pkg/httpserver"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background transition worker",
	Long: `Claims queued background transitions from Redis and resumes them until the
process is interrupted. Prometheus metrics are served on /metrics and health
probes on /healthz and /readyz at HTTP_ADDR.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.Close(context.WithoutCancel(cmd.Context()))

		return runWorker(cmd.Context(), a)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(ctx context.Context, a *app, opts ...httpserver.Option) error {
	if a.cfg.Queue != backendRedis {
		return fmt.Errorf("worker requires STATEKIT_QUEUE=%s", backendRedis)
	}

	worker, err := a.newWorker()
	if err != nil {
		return err
	}
	srv := httpserver.NewFromConfig(a.cfg.HTTP, append([]httpserver.Option{httpserver.WithLogger(a.log)}, opts...)...)

	id, host, pid := worker.WorkerInfo()
	a.log.InfoContext(ctx, "starting worker",
		"worker_id", id,
		"hostname", host,
		"pid", pid,
		"processes", a.machine.Processes())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(worker.Run(ctx))
	g.Go(func() error {
		return srv.Run(ctx, httpserver.OpsRouter(a.metrics, a.log, a.checks...))
	})
	return g.Wait()
}
