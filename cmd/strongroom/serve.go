package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/strongroomhq/strongroom/pkg/api"
	"github.com/strongroomhq/strongroom/pkg/metrics"
	"github.com/strongroomhq/strongroom/pkg/scheduler"
	"github.com/strongroomhq/strongroom/pkg/worker"
	"github.com/strongroomhq/strongroom/pkg/workflow"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server with the embedded worker and scheduler",
	Long: `Start the HTTP API and, unless disabled in configuration, the
reconciliation worker and the staleness scheduler in the same process.

Any number of serve and worker processes may share one database; job claims
and scheduler ticks coordinate through it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDeps(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		metrics.SetVersion(Version)
		collector := metrics.NewCollector(d.store)
		collector.Start()
		defer collector.Stop()

		orch := workflow.NewOrchestrator(d.store, d.broker, workflow.Config{
			MaxBroadcastAttempts: d.cfg.Workflow.MaxBroadcastAttempts,
		})

		apiServer := api.NewServer(api.Config{
			ListenAddr: d.cfg.Server.ListenAddr,
			JWTSecret:  d.cfg.Server.JWTSecret,
			Version:    Version,
		}, d.store, d.service, orch)

		var w *worker.Worker
		if d.cfg.Reconciliation.WorkerEnabled {
			w = d.newWorker()
			w.Start()
			fmt.Println("✓ Reconciliation worker started")
		}

		var sched *scheduler.Scheduler
		if d.cfg.Reconciliation.Scheduler.Enabled {
			sched = d.newScheduler()
			sched.Start()
			fmt.Println("✓ Scheduler started")
		}

		errCh := make(chan error, 1)
		go func() {
			if err := apiServer.Start(); err != nil {
				errCh <- fmt.Errorf("API server error: %v", err)
			}
		}()
		fmt.Printf("✓ API listening on %s\n", d.cfg.Server.ListenAddr)
		fmt.Println()
		fmt.Println("Strongroom is running. Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
		case err := <-errCh:
			fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Reconciliation.StopTimeout())
		defer cancel()
		if err := apiServer.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: API shutdown: %v\n", err)
		}
		if sched != nil {
			sched.Stop()
		}
		if w != nil {
			w.Stop(d.cfg.Reconciliation.StopTimeout())
		}

		fmt.Println("✓ Shutdown complete")
		return nil
	},
}
