package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/strongroomhq/strongroom/pkg/chains"
	"github.com/strongroomhq/strongroom/pkg/clock"
	"github.com/strongroomhq/strongroom/pkg/config"
	"github.com/strongroomhq/strongroom/pkg/events"
	"github.com/strongroomhq/strongroom/pkg/log"
	"github.com/strongroomhq/strongroom/pkg/processor"
	"github.com/strongroomhq/strongroom/pkg/provider"
	"github.com/strongroomhq/strongroom/pkg/provider/blockbook"
	"github.com/strongroomhq/strongroom/pkg/reconcile"
	"github.com/strongroomhq/strongroom/pkg/scheduler"
	"github.com/strongroomhq/strongroom/pkg/storage"
	"github.com/strongroomhq/strongroom/pkg/worker"
)

// deps bundles everything a strongroom process wires up before it starts
// serving: the database pool, chain registry, provider gateways and the
// in-process event broker.
type deps struct {
	cfg       *config.Config
	store     *storage.PostgresStore
	registry  *chains.Registry
	providers *provider.Registry
	processor *processor.Processor
	broker    *events.Broker
	service   *reconcile.Service
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %v", err)
	}
	log.Init(log.Config{
		Level:      cfg.Log.Level,
		JSONOutput: cfg.Log.JSON,
	})
	return cfg, nil
}

func buildDeps(cmd *cobra.Command) (*deps, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	registry, err := chains.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to load chain registry: %v", err)
	}
	if len(cfg.Reconciliation.ReorgThresholds) > 0 {
		registry = registry.WithThresholdOverrides(cfg.Reconciliation.ReorgThresholds)
	}

	store, err := storage.NewPostgresStore(storage.PostgresConfig{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, clock.Real{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to reach database: %v", err)
	}

	gateway, err := blockbook.New(blockbook.Config{
		BaseURL:           cfg.Providers.Blockbook.BaseURL,
		APIKey:            cfg.Providers.Blockbook.APIKey,
		RequestsPerSecond: float64(cfg.Reconciliation.RateLimit.TokensPerInterval),
		AsyncChains:       blockbookAsyncChains(cfg, registry),
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to build blockbook gateway: %v", err)
	}

	providers := provider.NewRegistry()
	providers.Register(gateway)

	proc, err := processor.New(store, registry, gateway, processor.Config{})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to build processor: %v", err)
	}

	broker := events.NewBroker()
	broker.Start()

	return &deps{
		cfg:       cfg,
		store:     store,
		registry:  registry,
		providers: providers,
		processor: proc,
		broker:    broker,
		service:   reconcile.NewService(store, registry, broker),
	}, nil
}

// Close releases the broker and the database pool, in that order.
func (d *deps) Close() {
	d.broker.Stop()
	if err := d.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close store: %v\n", err)
	}
}

func (d *deps) newWorker() *worker.Worker {
	return worker.New(d.store, d.providers, d.registry, d.processor, d.broker, nil, worker.Config{
		MaxConcurrentJobs: d.cfg.Reconciliation.MaxConcurrentJobs,
		PollInterval:      d.cfg.Reconciliation.PollingInterval(),
		AsyncJobsEnabled:  d.cfg.Providers.Blockbook.AsyncJobs.Enabled,
		AsyncJobTimeout:   d.cfg.Providers.Blockbook.AsyncJobs.AsyncJobTimeout(),
	})
}

func (d *deps) newScheduler() *scheduler.Scheduler {
	return scheduler.New(d.store, d.service, nil, scheduler.Config{
		Interval:   d.cfg.Reconciliation.Scheduler.TickInterval,
		StaleAfter: d.cfg.Reconciliation.Scheduler.ReconcileEach,
	})
}

// blockbookAsyncChains resolves the async-jobs toggle to the set of chains
// the blockbook gateway serves. The worker's global gate still applies.
func blockbookAsyncChains(cfg *config.Config, registry *chains.Registry) []string {
	if !cfg.Providers.Blockbook.AsyncJobs.Enabled {
		return nil
	}
	var aliases []string
	for _, alias := range registry.Aliases() {
		ch, err := registry.Get(alias)
		if err == nil && ch.Provider == blockbook.Name {
			aliases = append(aliases, alias)
		}
	}
	return aliases
}
