package storage

import (
	"context"
	"time"

	"github.com/strongroomhq/strongroom/pkg/types"
)

// TransitionFunc applies one state-machine event to a workflow hydrated
// inside a store transaction. It mutates wf.State and wf.Context and returns
// the event row to append. Returning an error aborts the transaction and no
// row is written. The store bumps Version and stamps UpdatedAt itself.
type TransitionFunc func(wf *types.Workflow) (*types.WorkflowEvent, error)

// Store defines the interface for reconciliation and workflow state storage.
// It is implemented by the Postgres store and by an in-memory store used in
// tests. The store is the sole coordination point between processes: row
// locks, the job-claim queue and the scheduler advisory lock all live here.
type Store interface {
	// Workflows
	CreateWorkflow(ctx context.Context, wf *types.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*types.Workflow, error)
	// TransitionWorkflow locks the workflow row, invokes apply on the
	// hydrated workflow, writes (state, context, version+1) conditional on
	// the observed version and appends the returned event row, all in one
	// transaction. A conditional write matching zero rows reports
	// types.ErrConcurrentModification.
	TransitionWorkflow(ctx context.Context, id string, apply TransitionFunc) (*types.Workflow, error)
	ListWorkflowEvents(ctx context.Context, workflowID string) ([]*types.WorkflowEvent, error)
	WorkflowStateCounts(ctx context.Context) (map[types.WorkflowState]int64, error)

	// Addresses
	CreateAddress(ctx context.Context, addr *types.Address) error
	GetAddress(ctx context.Context, address, chainAlias string) (*types.Address, error)
	// AdvanceLastReconciledBlock moves the checkpoint forward. Lower values
	// and missing rows are silently ignored.
	AdvanceLastReconciledBlock(ctx context.Context, address, chainAlias string, block int64) error
	// ListStaleAddresses returns addresses whose row has not been touched
	// since updatedBefore, oldest first, at most limit of them. The scheduler
	// uses it to pick re-reconciliation candidates.
	ListStaleAddresses(ctx context.Context, updatedBefore time.Time, limit int) ([]*types.Address, error)

	// Reconciliation jobs
	CreateJob(ctx context.Context, job *types.ReconciliationJob) error
	GetJob(ctx context.Context, id string) (*types.ReconciliationJob, error)
	FindActiveJob(ctx context.Context, address, chainAlias string) (*types.ReconciliationJob, error)
	ListJobs(ctx context.Context, address, chainAlias string, limit, offset int) ([]types.JobSummary, int64, error)
	UpdateJob(ctx context.Context, job *types.ReconciliationJob) error
	// TouchJob refreshes updated_at only. The worker calls it on async
	// passes that made no other write so the stale-job sweeper keeps seeing
	// the job as owned.
	TouchJob(ctx context.Context, id string) error
	DeletePendingJob(ctx context.Context, id string) error
	// ClaimNextPendingJob atomically selects the oldest pending job with
	// FOR UPDATE SKIP LOCKED, marks it running and stamps startedAt. It
	// returns (nil, nil) when no pending job exists.
	ClaimNextPendingJob(ctx context.Context) (*types.ReconciliationJob, error)
	// SweepStaleJobs re-labels running jobs not updated since staleBefore
	// back to pending and clears their async fields. Returns the swept jobs.
	SweepStaleJobs(ctx context.Context, staleBefore time.Time) ([]*types.ReconciliationJob, error)
	JobStatusCounts(ctx context.Context) (map[types.JobStatus]int64, error)

	// Transactions
	UpsertTransaction(ctx context.Context, tx *types.Transaction) error
	GetTransaction(ctx context.Context, chainAlias, txHash string) (*types.Transaction, error)
	// ListTransactionsForAddress pages live rows where the address appears
	// as sender or recipient, keyset-ordered by txHash. minBlock, when set,
	// skips rows below it. afterHash is exclusive; pass "" for the first page.
	ListTransactionsForAddress(ctx context.Context, chainAlias, address string, minBlock *int64, afterHash string, limit int) ([]*types.Transaction, error)
	SoftDeleteTransaction(ctx context.Context, chainAlias, txHash string) error

	// Tokens
	UpsertToken(ctx context.Context, token *types.Token) error
	GetToken(ctx context.Context, chainAlias, address string) (*types.Token, error)

	// Audit entries
	AppendAudit(ctx context.Context, entry *types.AuditEntry) error
	ListAuditByJob(ctx context.Context, jobID string) ([]*types.AuditEntry, error)

	// TryAdvisoryLock takes a cross-process advisory lock without blocking.
	// When acquired it returns a release func; when a peer holds the lock it
	// returns ok=false and a nil release.
	TryAdvisoryLock(ctx context.Context, key int64) (release func(), ok bool, err error)

	// Utility
	Ping(ctx context.Context) error
	Close() error
}
