package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/strongroomhq/strongroom/pkg/metrics"
	"github.com/strongroomhq/strongroom/pkg/provider"
	"github.com/strongroomhq/strongroom/pkg/types"
)

// runAsyncJob drives the async flow. Passes repeat on the poll interval;
// every pass makes at most one provider interaction and leaves all progress
// in the job row, so a process death at any point resumes from the row
// alone once the sweeper hands the job back.
func (w *Worker) runAsyncJob(ctx context.Context, logger zerolog.Logger, gw provider.Gateway, job *types.ReconciliationJob) {
	for {
		done, err := w.asyncPass(ctx, logger, gw, job)
		if err != nil {
			w.failJob(ctx, logger, job, err)
			return
		}
		if done {
			return
		}

		select {
		case <-w.stopCh:
			logger.Info().Msg("Shutdown requested; leaving async job for later resumption")
			return
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

// asyncPass advances the job by one step, dispatching on its persisted
// async bookkeeping. It reports done once the job reaches a terminal
// status.
func (w *Worker) asyncPass(ctx context.Context, logger zerolog.Logger, gw provider.Gateway, job *types.ReconciliationJob) (bool, error) {
	now := w.clock.Now()

	switch {
	case job.AsyncJobID == nil:
		return false, w.startAsyncJob(ctx, logger, gw, job, now)

	case job.AsyncJobStartedAt != nil && now.Sub(*job.AsyncJobStartedAt) > w.cfg.AsyncJobTimeout:
		w.failJob(ctx, logger, job, fmt.Errorf("provider job %s timed out after %s", *job.AsyncJobID, w.cfg.AsyncJobTimeout))
		return true, nil

	case job.AsyncNextPageURL == nil:
		w.failJob(ctx, logger, job, errors.New("async bookkeeping lost its next page URL"))
		return true, nil
	}

	res, err := gw.FetchAsyncJobResults(ctx, *job.AsyncNextPageURL)
	if err != nil {
		return false, fmt.Errorf("failed to poll provider job: %w", err)
	}

	if !res.IsReady {
		// Heartbeat; a silent multi-hour wait must not look stale to the
		// sweeper.
		if err := w.store.TouchJob(ctx, job.ID); err != nil {
			logger.Warn().Err(err).Msg("Failed to refresh job heartbeat")
		}
		return false, nil
	}

	before := job.ProcessedCount
	matched := make(map[string]struct{}, len(res.Transactions))
	if err := w.ingestBatch(ctx, logger, job, res.Transactions, matched); err != nil {
		return false, err
	}

	if res.IsComplete {
		if err := w.completeJob(ctx, logger, job, matched, before == 0); err != nil {
			return false, err
		}
		return true, nil
	}

	url := res.NextPageURL
	job.AsyncNextPageURL = &url
	if err := w.store.UpdateJob(ctx, job); err != nil {
		return false, fmt.Errorf("failed to persist next page: %w", err)
	}
	return false, nil
}

// startAsyncJob asks the provider to assemble the history server-side and
// persists the job handle for later passes.
func (w *Worker) startAsyncJob(ctx context.Context, logger zerolog.Logger, gw provider.Gateway, job *types.ReconciliationJob, now time.Time) error {
	if job.FinalBlock == nil {
		height, err := gw.GetCurrentBlockNumber(ctx, job.ChainAlias)
		switch {
		case err != nil:
			logger.Warn().Err(err).Msg("Could not pin final block; job proceeds without an address checkpoint")
		case height != nil:
			job.FinalBlock = height
		}
	}

	started, err := gw.StartAsyncJob(ctx, job.ChainAlias, job.Address, provider.AsyncWindow{
		StartBlock: job.FromBlock,
		EndBlock:   job.FinalBlock,
	})
	if err != nil {
		return fmt.Errorf("failed to start provider job: %w", err)
	}

	job.AsyncJobID = &started.JobID
	job.AsyncNextPageURL = &started.NextPageURL
	job.AsyncJobStartedAt = &now
	if err := w.store.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to persist provider job handle: %w", err)
	}

	logger.Info().Str("async_job_id", started.JobID).Msg("Provider history job started")
	return nil
}

// ingestBatch records one page of async results. Every hash joins matched,
// present locally or not; completion uses the set to tell orphans apart.
// Unlike the sync flow there is no discrepancy comparison here: async
// results arrive unordered relative to the local index and only absence is
// meaningful.
func (w *Worker) ingestBatch(ctx context.Context, logger zerolog.Logger, job *types.ReconciliationJob, txs []provider.Transaction, matched map[string]struct{}) error {
	sinceCheckpoint := 0
	for i := range txs {
		p := &txs[i]
		hash := w.chains.NormalizeHash(job.ChainAlias, p.TransactionHash)
		matched[hash] = struct{}{}

		existing, err := w.store.GetTransaction(ctx, job.ChainAlias, hash)
		if err != nil {
			return fmt.Errorf("failed to look up %s: %w", hash, err)
		}
		if existing == nil {
			if _, err := w.processor.Process(ctx, job.ChainAlias, p); err != nil {
				job.ErrorsCount++
				logger.Warn().Err(err).Str("tx_hash", hash).Msg("Failed to ingest provider transaction")
			} else {
				if err := w.appendAudit(ctx, &types.AuditEntry{
					JobID:           job.ID,
					TransactionHash: hash,
					Action:          types.AuditActionAdded,
					AfterSnapshot:   p.RawData,
				}); err != nil {
					return err
				}
				job.TransactionsAdded++
			}
		}

		job.ProcessedCount++
		if p.Cursor != "" {
			cursor := p.Cursor
			job.LastProcessedCursor = &cursor
		}
		metrics.TransactionsProcessedTotal.WithLabelValues(job.ChainAlias).Inc()

		sinceCheckpoint++
		if sinceCheckpoint >= w.cfg.CheckpointEvery {
			w.checkpoint(ctx, logger, job)
			sinceCheckpoint = 0
		}
	}
	return nil
}
