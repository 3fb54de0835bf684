// Package reconcile validates and manages reconciliation jobs: one-shot
// comparisons of locally persisted transactions against an external history
// provider for a single (address, chainAlias) pair.
//
// # Job Windows
//
// A job runs in one of two modes. full walks the provider's complete
// history for the address. partial resumes from the address's
// lastReconciledBlock checkpoint, widened backwards by the chain's reorg
// threshold:
//
//	fromBlock = max(0, lastReconciledBlock - reorgThreshold(chainAlias))
//
// The widening re-reads the blocks nearest the tip at the previous run's
// end, where a reorg could have replaced transactions after the checkpoint
// was taken. A partial request with no checkpoint on record is upgraded to
// full; there is nothing to resume from.
//
// # One Active Job per Pair
//
// At most one job per (address, chainAlias) may be pending or running.
// CreateJob surfaces a violation as types.ErrActiveJobExists, backed by the
// store's partial unique index, so the rule holds across processes and
// under races. HTTP handlers implement "replace a pending job" on top of
// FindActiveJob and DeleteJob; DeleteJob refuses anything that is not
// pending.
//
// Execution belongs to pkg/worker, which claims pending jobs and drives
// them to completed or failed. This package never touches running jobs.
package reconcile
