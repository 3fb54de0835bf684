package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/strongroomhq/strongroom/pkg/metrics"
	"github.com/strongroomhq/strongroom/pkg/scheduler"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a reconciliation worker without the API",
	Long: `Start a worker-only process: it claims pending reconciliation jobs
from the shared database and drives them to completion. Useful for scaling
job throughput independently of the API tier.

When the scheduler is enabled in configuration it runs here too; a store
advisory lock keeps concurrent processes from double-scheduling.`,
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

		w := d.newWorker()
		w.Start()
		fmt.Println("✓ Reconciliation worker started")

		var sched *scheduler.Scheduler
		if d.cfg.Reconciliation.Scheduler.Enabled {
			sched = d.newScheduler()
			sched.Start()
			fmt.Println("✓ Scheduler started")
		}

		fmt.Println()
		fmt.Println("Worker is running. Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		fmt.Println("\nShutting down...")

		if sched != nil {
			sched.Stop()
		}
		w.Stop(d.cfg.Reconciliation.StopTimeout())

		fmt.Println("✓ Shutdown complete")
		return nil
	},
}
