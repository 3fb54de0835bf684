package worker

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/strongroomhq/strongroom/pkg/metrics"
	"github.com/strongroomhq/strongroom/pkg/provider"
	"github.com/strongroomhq/strongroom/pkg/types"
)

// runSyncJob drives the streaming flow to a terminal status.
func (w *Worker) runSyncJob(ctx context.Context, logger zerolog.Logger, gw provider.Gateway, job *types.ReconciliationJob) {
	if err := w.syncStream(ctx, logger, gw, job); err != nil {
		w.failJob(ctx, logger, job, err)
	}
}

// syncStream walks the provider's transaction stream against the local
// index: provider-only hashes are ingested, shared hashes are compared for
// discrepancies, and whatever the provider never mentioned is orphaned at
// the end.
func (w *Worker) syncStream(ctx context.Context, logger zerolog.Logger, gw provider.Gateway, job *types.ReconciliationJob) error {
	// Pin the chain height before reading anything, so the address
	// checkpoint can never claim blocks this run did not cover.
	if job.FinalBlock == nil {
		height, err := gw.GetCurrentBlockNumber(ctx, job.ChainAlias)
		switch {
		case err != nil:
			logger.Warn().Err(err).Msg("Could not pin final block; job proceeds without an address checkpoint")
		case height != nil:
			job.FinalBlock = height
			if err := w.store.UpdateJob(ctx, job); err != nil {
				return fmt.Errorf("failed to persist final block: %w", err)
			}
		}
	}

	local, err := w.localIndex(ctx, job)
	if err != nil {
		return err
	}

	opts := provider.FetchOptions{
		FromBlock:     job.FromBlock,
		ToBlock:       job.ToBlock,
		FromTimestamp: job.FromTimestamp,
		ToTimestamp:   job.ToTimestamp,
	}
	if job.LastProcessedCursor != nil {
		opts.Cursor = *job.LastProcessedCursor
	}

	it := gw.FetchTransactions(ctx, job.ChainAlias, job.Address, opts)
	defer it.Close()

	sinceCheckpoint := 0
	for it.Next() {
		p := it.Transaction()
		hash := w.chains.NormalizeHash(job.ChainAlias, p.TransactionHash)

		existing, seen := local[hash]
		if !seen {
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
		} else {
			if fields := discrepancyFields(existing, p); len(fields) > 0 {
				if err := w.appendAudit(ctx, &types.AuditEntry{
					JobID:             job.ID,
					TransactionHash:   hash,
					Action:            types.AuditActionDiscrepancy,
					BeforeSnapshot:    snapshotTransaction(existing),
					AfterSnapshot:     p.RawData,
					DiscrepancyFields: fields,
				}); err != nil {
					return err
				}
				job.DiscrepanciesFlagged++
			}
			delete(local, hash)
		}

		job.ProcessedCount++
		cursor := p.Cursor
		job.LastProcessedCursor = &cursor
		metrics.TransactionsProcessedTotal.WithLabelValues(job.ChainAlias).Inc()

		sinceCheckpoint++
		if sinceCheckpoint >= w.cfg.CheckpointEvery {
			w.checkpoint(ctx, logger, job)
			sinceCheckpoint = 0
		}
	}
	if err := it.Err(); err != nil {
		return err
	}

	// One more checkpoint before orphan handling, so a failure below
	// cannot roll the cursor back.
	w.checkpoint(ctx, logger, job)

	for hash, txn := range local {
		if err := w.softDeleteOrphan(ctx, job, hash, txn); err != nil {
			return err
		}
	}

	return w.completeJob(ctx, logger, job, nil, false)
}

// discrepancyFields compares a local row with the provider's normalized
// view. Addresses compare case-insensitively; block numbers and fees
// compare as strings. Value and status are excluded: providers normalize
// them differently and flagging every difference would drown the audit log
// in benign mismatches.
func discrepancyFields(local *types.Transaction, p *provider.Transaction) types.StringList {
	var fields types.StringList

	if !strings.EqualFold(local.FromAddress, p.Normalized.FromAddress) {
		fields = append(fields, "fromAddress")
	}
	localTo := ""
	if local.ToAddress != nil {
		localTo = *local.ToAddress
	}
	if !strings.EqualFold(localTo, p.Normalized.ToAddress) {
		fields = append(fields, "toAddress")
	}
	if strconv.FormatInt(local.BlockNumber, 10) != p.Normalized.BlockNumber {
		fields = append(fields, "blockNumber")
	}
	if local.Fee != p.Normalized.Fee {
		fields = append(fields, "fee")
	}
	return fields
}
