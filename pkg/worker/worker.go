package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/strongroomhq/strongroom/pkg/chains"
	"github.com/strongroomhq/strongroom/pkg/clock"
	"github.com/strongroomhq/strongroom/pkg/events"
	"github.com/strongroomhq/strongroom/pkg/log"
	"github.com/strongroomhq/strongroom/pkg/metrics"
	"github.com/strongroomhq/strongroom/pkg/processor"
	"github.com/strongroomhq/strongroom/pkg/provider"
	"github.com/strongroomhq/strongroom/pkg/storage"
	"github.com/strongroomhq/strongroom/pkg/types"
)

// Defaults for Config fields left zero.
const (
	DefaultMaxConcurrentJobs = 3
	DefaultPollInterval      = 5 * time.Second
	DefaultSweepInterval     = 5 * time.Minute
	DefaultStaleAfter        = time.Hour
	DefaultAsyncJobTimeout   = 4 * time.Hour
	DefaultCheckpointEvery   = 100
)

// localPageSize bounds one keyset page when indexing local rows.
const localPageSize = 500

// Config holds worker tuning. Zero values take the documented defaults.
type Config struct {
	// MaxConcurrentJobs bounds how many jobs this process works at once.
	MaxConcurrentJobs int
	// PollInterval is the sleep between idle polling passes.
	PollInterval time.Duration
	// SweepInterval is how often the stale-job sweeper runs.
	SweepInterval time.Duration
	// StaleAfter is the running-job age beyond which the sweeper assumes
	// the owning process died.
	StaleAfter time.Duration

	// AsyncJobsEnabled gates the async flow globally; a provider must also
	// report SupportsAsyncJobs for the chain.
	AsyncJobsEnabled bool
	// AsyncJobTimeout is the wall-clock budget for a provider-side job,
	// measured from asyncJobStartedAt at every pass.
	AsyncJobTimeout time.Duration

	// CheckpointEvery is the number of processed transactions between
	// progress writes.
	CheckpointEvery int
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = DefaultMaxConcurrentJobs
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = DefaultStaleAfter
	}
	if c.AsyncJobTimeout <= 0 {
		c.AsyncJobTimeout = DefaultAsyncJobTimeout
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = DefaultCheckpointEvery
	}
	return c
}

// Worker claims pending reconciliation jobs and drives each to a terminal
// status. Any number of worker processes may run against one store; the
// claim query keeps them from stepping on each other.
type Worker struct {
	store     storage.Store
	providers *provider.Registry
	chains    *chains.Registry
	processor *processor.Processor
	broker    *events.Broker
	clock     clock.Clock
	cfg       Config
	logger    zerolog.Logger

	mu        sync.Mutex
	active    map[string]struct{}
	lastSweep time.Time

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a Worker. clk may be nil, in which case the system clock is
// used.
func New(store storage.Store, providers *provider.Registry, chainReg *chains.Registry, proc *processor.Processor, broker *events.Broker, clk clock.Clock, cfg Config) *Worker {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Worker{
		store:     store,
		providers: providers,
		chains:    chainReg,
		processor: proc,
		broker:    broker,
		clock:     clk,
		cfg:       cfg.withDefaults(),
		logger:    log.WithComponent("worker"),
		active:    make(map[string]struct{}),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the polling loop.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.run()

	metrics.UpdateComponent("worker", true, "")
	w.logger.Info().
		Int("max_concurrent_jobs", w.cfg.MaxConcurrentJobs).
		Dur("poll_interval", w.cfg.PollInterval).
		Bool("async_jobs_enabled", w.cfg.AsyncJobsEnabled).
		Msg("Reconciliation worker started")
}

// Stop signals the polling loop and waits up to timeout for in-flight jobs
// to finish. Jobs still running past the timeout keep their rows in
// running; the stale-job sweeper of a later worker recovers them.
func (w *Worker) Stop(timeout time.Duration) {
	w.stopOnce.Do(func() { close(w.stopCh) })

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info().Msg("Reconciliation worker stopped")
	case <-time.After(timeout):
		w.logger.Warn().Dur("timeout", timeout).Msg("Stop timed out with jobs still in flight")
	}
	metrics.UpdateComponent("worker", false, "stopped")
}

func (w *Worker) run() {
	defer w.wg.Done()
	ctx := context.Background()

	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		w.maybeSweep(ctx)

		if w.activeCount() >= w.cfg.MaxConcurrentJobs {
			w.sleep(w.cfg.PollInterval)
			continue
		}

		job, err := w.store.ClaimNextPendingJob(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("Failed to claim next pending job")
			w.sleep(w.cfg.PollInterval)
			continue
		}
		if job == nil {
			w.sleep(w.cfg.PollInterval)
			continue
		}
		w.launch(ctx, job)
	}
}

func (w *Worker) activeCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.active)
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// maybeSweep returns stale running jobs to pending, at most once per sweep
// interval. The first pass after startup always sweeps, so a restarted
// process reclaims whatever its predecessor left behind.
func (w *Worker) maybeSweep(ctx context.Context) {
	now := w.clock.Now()

	w.mu.Lock()
	due := now.Sub(w.lastSweep) >= w.cfg.SweepInterval
	if due {
		w.lastSweep = now
	}
	w.mu.Unlock()
	if !due {
		return
	}

	swept, err := w.store.SweepStaleJobs(ctx, now.Add(-w.cfg.StaleAfter))
	if err != nil {
		w.logger.Error().Err(err).Msg("Stale-job sweep failed")
		return
	}
	for _, job := range swept {
		metrics.JobsSweptTotal.Inc()
		w.logger.Warn().
			Str("job_id", job.ID).
			Str("chain_alias", job.ChainAlias).
			Str("address", job.Address).
			Msg("Returned stale running job to pending")
		w.publish(events.EventJobSwept, job, "")
	}
}

func (w *Worker) launch(ctx context.Context, job *types.ReconciliationJob) {
	w.mu.Lock()
	w.active[job.ID] = struct{}{}
	w.mu.Unlock()

	metrics.JobsClaimedTotal.Inc()
	metrics.JobsActive.Inc()
	w.publish(events.EventJobClaimed, job, "")

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() {
			w.mu.Lock()
			delete(w.active, job.ID)
			w.mu.Unlock()
			metrics.JobsActive.Dec()
		}()
		w.processJob(ctx, job)
	}()
}

// processJob resolves the provider and dispatches to the sync or async
// flow. Every outcome lands the job in a terminal status or leaves it
// recoverable by the sweeper.
func (w *Worker) processJob(ctx context.Context, job *types.ReconciliationJob) {
	logger := w.logger.With().
		Str("job_id", job.ID).
		Str("chain_alias", job.ChainAlias).
		Str("address", job.Address).
		Logger()

	gw, err := w.providers.Get(job.Provider)
	if err != nil {
		w.failJob(ctx, logger, job, err)
		return
	}

	if w.cfg.AsyncJobsEnabled && gw.SupportsAsyncJobs(job.ChainAlias) {
		logger.Info().Str("provider", job.Provider).Msg("Processing job via async flow")
		w.runAsyncJob(ctx, logger, gw, job)
		return
	}
	logger.Info().Str("provider", job.Provider).Msg("Processing job via sync flow")
	w.runSyncJob(ctx, logger, gw, job)
}

// checkpoint persists progress counters and the cursor, best-effort. A lost
// checkpoint costs re-processing, not correctness.
func (w *Worker) checkpoint(ctx context.Context, logger zerolog.Logger, job *types.ReconciliationJob) {
	if err := w.store.UpdateJob(ctx, job); err != nil {
		logger.Warn().Err(err).Msg("Checkpoint write failed")
		return
	}
	metrics.CheckpointsTotal.Inc()
}

func (w *Worker) appendAudit(ctx context.Context, entry *types.AuditEntry) error {
	entry.ID = uuid.NewString()
	if err := w.store.AppendAudit(ctx, entry); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	metrics.AuditEntriesTotal.WithLabelValues(string(entry.Action)).Inc()
	return nil
}

// completeJob finalizes a job. matched carries the hashes an async run
// observed; orphan detection against it runs only for single-batch results,
// because a multi-batch matched set covers just the final page and would
// misread everything earlier as orphaned.
func (w *Worker) completeJob(ctx context.Context, logger zerolog.Logger, job *types.ReconciliationJob, matched map[string]struct{}, singleBatch bool) error {
	if matched != nil && singleBatch {
		local, err := w.localIndex(ctx, job)
		if err != nil {
			return err
		}
		for hash, txn := range local {
			if _, ok := matched[hash]; ok {
				continue
			}
			if err := w.softDeleteOrphan(ctx, job, hash, txn); err != nil {
				return err
			}
		}
	}

	now := w.clock.Now()
	job.Status = types.JobStatusCompleted
	job.CompletedAt = &now
	if err := w.store.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to finalize job: %w", err)
	}

	metrics.JobsFinishedTotal.WithLabelValues(string(types.JobStatusCompleted)).Inc()
	if job.StartedAt != nil {
		metrics.JobDuration.Observe(now.Sub(*job.StartedAt).Seconds())
	}

	// The address checkpoint moves only after everything up to finalBlock
	// has been reconciled. Failure leaves a conservative checkpoint behind.
	if job.FinalBlock != nil {
		if err := w.store.AdvanceLastReconciledBlock(ctx, job.Address, job.ChainAlias, *job.FinalBlock); err != nil {
			logger.Error().Err(err).Int64("final_block", *job.FinalBlock).Msg("Failed to advance address checkpoint")
		}
	}

	logger.Info().
		Int64("processed", job.ProcessedCount).
		Int64("added", job.TransactionsAdded).
		Int64("soft_deleted", job.TransactionsSoftDeleted).
		Int64("discrepancies", job.DiscrepanciesFlagged).
		Int64("errors", job.ErrorsCount).
		Msg("Reconciliation job completed")
	w.publish(events.EventJobCompleted, job, "")
	return nil
}

// failJob drives a job to failed, recording the cause on the row and in the
// audit log. Async bookkeeping is cleared so the dead provider job's
// artifacts cannot be reused.
func (w *Worker) failJob(ctx context.Context, logger zerolog.Logger, job *types.ReconciliationJob, jobErr error) {
	now := w.clock.Now()
	msg := jobErr.Error()

	job.Status = types.JobStatusFailed
	job.Error = &msg
	job.CompletedAt = &now
	job.ErrorsCount++
	job.AsyncJobID = nil
	job.AsyncNextPageURL = nil
	job.AsyncJobStartedAt = nil

	if err := w.store.UpdateJob(ctx, job); err != nil {
		logger.Error().Err(err).Str("cause", msg).Msg("Failed to record job failure; the stale-job sweeper will recover it")
		return
	}

	if err := w.appendAudit(ctx, &types.AuditEntry{
		JobID:           job.ID,
		TransactionHash: "N/A",
		Action:          types.AuditActionError,
		ErrorMessage:    &msg,
	}); err != nil {
		logger.Warn().Err(err).Msg("Failed to append failure audit entry")
	}

	metrics.JobsFinishedTotal.WithLabelValues(string(types.JobStatusFailed)).Inc()
	if job.StartedAt != nil {
		metrics.JobDuration.Observe(now.Sub(*job.StartedAt).Seconds())
	}

	logger.Error().Str("cause", msg).Msg("Reconciliation job failed")
	w.publish(events.EventJobFailed, job, msg)
}

// localIndex loads every live local transaction for the job's pair into a
// map keyed by normalized hash. Partial jobs exclude rows below fromBlock;
// those predate the window and must not be declared orphans.
func (w *Worker) localIndex(ctx context.Context, job *types.ReconciliationJob) (map[string]*types.Transaction, error) {
	var minBlock *int64
	if job.Mode == types.JobModePartial {
		minBlock = job.FromBlock
	}

	local := make(map[string]*types.Transaction)
	afterHash := ""
	for {
		page, err := w.store.ListTransactionsForAddress(ctx, job.ChainAlias, job.Address, minBlock, afterHash, localPageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to index local transactions: %w", err)
		}
		for _, txn := range page {
			local[txn.TxHash] = txn
		}
		if len(page) < localPageSize {
			return local, nil
		}
		afterHash = page[len(page)-1].TxHash
	}
}

// softDeleteOrphan hides a local row the provider no longer reports,
// keeping the row as it stood in the audit trail.
func (w *Worker) softDeleteOrphan(ctx context.Context, job *types.ReconciliationJob, hash string, txn *types.Transaction) error {
	if err := w.store.SoftDeleteTransaction(ctx, job.ChainAlias, hash); err != nil {
		return fmt.Errorf("failed to soft delete %s: %w", hash, err)
	}
	if err := w.appendAudit(ctx, &types.AuditEntry{
		JobID:           job.ID,
		TransactionHash: hash,
		Action:          types.AuditActionSoftDeleted,
		BeforeSnapshot:  snapshotTransaction(txn),
	}); err != nil {
		return err
	}
	job.TransactionsSoftDeleted++
	return nil
}

// snapshotTransaction freezes the audit-relevant view of a local row.
func snapshotTransaction(txn *types.Transaction) types.JSONMap {
	snap := types.JSONMap{
		"txHash":      txn.TxHash,
		"chainAlias":  txn.ChainAlias,
		"blockNumber": txn.BlockNumber,
		"fromAddress": txn.FromAddress,
		"value":       txn.Value,
		"fee":         txn.Fee,
		"status":      txn.Status,
		"kind":        string(txn.Kind),
	}
	if txn.ToAddress != nil {
		snap["toAddress"] = *txn.ToAddress
	}
	return snap
}

func (w *Worker) publish(eventType events.EventType, job *types.ReconciliationJob, errMsg string) {
	if w.broker == nil {
		return
	}
	metadata := map[string]string{
		"job_id":      job.ID,
		"chain_alias": job.ChainAlias,
		"address":     job.Address,
		"status":      string(job.Status),
	}
	if errMsg != "" {
		metadata["error"] = errMsg
	}
	w.broker.Publish(&events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: w.clock.Now(),
		Message:   fmt.Sprintf("reconciliation job %s for %s on %s", job.ID, job.Address, job.ChainAlias),
		Metadata:  metadata,
	})
}
