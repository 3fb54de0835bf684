// Package worker drains the reconciliation job queue.
//
// A Worker polls the store for pending jobs and runs each claimed job in
// its own goroutine, up to a configured concurrency cap. Claiming is a
// store-side status flip, so any number of worker processes can share one
// queue without double-running a job. A periodic sweeper returns jobs that
// have been stuck in running past a staleness cutoff to pending, which is
// how work owned by a crashed process gets picked up again.
//
// Jobs run in one of two flows. The sync flow streams the provider's
// transaction history page by page, comparing each entry against the local
// index: unknown hashes are ingested through the processor, known hashes
// are field-compared and flagged as discrepancies when they disagree, and
// local rows the provider never mentioned are soft deleted at the end. The
// async flow hands the heavy lifting to the provider: it starts a
// server-side history export, polls for result pages, and ingests them as
// they arrive. Orphan detection runs only when the export fit in a single
// batch, because the set of seen hashes is rebuilt per page and a partial
// set would condemn rows the provider did vouch for.
//
// Progress (cursor and counters) is checkpointed into the job row at a
// configurable interval, so a resumed job continues from where the last
// run left off rather than starting over. Every mutation the run makes to
// the transaction index is recorded as an audit entry under the job's ID.
package worker
