package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/strongroomhq/strongroom/pkg/clock"
	"github.com/strongroomhq/strongroom/pkg/log"
	"github.com/strongroomhq/strongroom/pkg/metrics"
	"github.com/strongroomhq/strongroom/pkg/reconcile"
	"github.com/strongroomhq/strongroom/pkg/storage"
	"github.com/strongroomhq/strongroom/pkg/types"
)

// AdvisoryLockKey identifies the scheduler's cross-process lock. Every
// process uses the same key, so at most one of them schedules per tick.
const AdvisoryLockKey int64 = 740031

const (
	DefaultInterval   = 15 * time.Minute
	DefaultStaleAfter = 6 * time.Hour
	DefaultBatchLimit = 100
)

// Config controls the scheduling cadence. StaleAfter is how long an address
// row may go untouched before it becomes a re-reconciliation candidate;
// BatchLimit caps how many candidates one tick enqueues.
type Config struct {
	Interval   time.Duration
	StaleAfter time.Duration
	BatchLimit int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = DefaultStaleAfter
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = DefaultBatchLimit
	}
	return c
}

// Scheduler periodically re-enqueues reconciliation for addresses whose
// checkpoint has gone stale. Ticks are serialized across processes by a
// store advisory lock; a tick that finds the lock held does nothing.
type Scheduler struct {
	store   storage.Store
	service *reconcile.Service
	clock   clock.Clock
	cfg     Config
	logger  zerolog.Logger

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a Scheduler. clk may be nil, in which case wall-clock time is
// used.
func New(store storage.Store, service *reconcile.Service, clk clock.Clock, cfg Config) *Scheduler {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Scheduler{
		store:   store,
		service: service,
		clock:   clk,
		cfg:     cfg.withDefaults(),
		logger:  log.WithComponent("scheduler"),
		stopCh:  make(chan struct{}),
	}
}

// Start begins the tick loop.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
	metrics.UpdateComponent("scheduler", true, "")
	s.logger.Info().
		Dur("interval", s.cfg.Interval).
		Dur("stale_after", s.cfg.StaleAfter).
		Msg("Scheduler started")
}

// Stop halts the loop and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	metrics.UpdateComponent("scheduler", false, "stopped")
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// tick runs one scheduling cycle under the advisory lock.
func (s *Scheduler) tick(ctx context.Context) {
	release, ok, err := s.store.TryAdvisoryLock(ctx, AdvisoryLockKey)
	if err != nil {
		metrics.SchedulerTicksTotal.WithLabelValues("error").Inc()
		s.logger.Error().Err(err).Msg("Failed to acquire scheduler lock")
		return
	}
	if !ok {
		metrics.SchedulerTicksTotal.WithLabelValues("lock_held").Inc()
		s.logger.Debug().Msg("Scheduler lock held by a peer; skipping tick")
		return
	}
	defer release()

	cutoff := s.clock.Now().Add(-s.cfg.StaleAfter)
	candidates, err := s.store.ListStaleAddresses(ctx, cutoff, s.cfg.BatchLimit)
	if err != nil {
		metrics.SchedulerTicksTotal.WithLabelValues("error").Inc()
		s.logger.Error().Err(err).Msg("Failed to list stale addresses")
		return
	}

	scheduled := 0
	for _, addr := range candidates {
		_, err := s.service.CreateJob(ctx, reconcile.CreateJobInput{
			Address:    addr.Address,
			ChainAlias: addr.ChainAlias,
		})
		if errors.Is(err, types.ErrActiveJobExists) {
			// A user or a peer got there first.
			continue
		}
		if err != nil {
			s.logger.Error().Err(err).
				Str("address", addr.Address).
				Str("chain_alias", addr.ChainAlias).
				Msg("Failed to enqueue scheduled reconciliation")
			continue
		}
		scheduled++
	}

	metrics.SchedulerTicksTotal.WithLabelValues("scheduled").Inc()
	if scheduled > 0 {
		s.logger.Info().
			Int("scheduled", scheduled).
			Int("candidates", len(candidates)).
			Msg("Scheduled stale addresses for reconciliation")
	} else {
		s.logger.Debug().Int("candidates", len(candidates)).Msg("Scheduler tick found nothing to do")
	}
}
