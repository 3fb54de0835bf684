/*
Package types defines the shared domain model for the Strongroom
reconciliation and workflow core.

All persistent entities live here so that every other package (the
orchestrator, the reconciliation service, the worker, the stores and the
HTTP layer) speaks the same vocabulary without import cycles.

# Entities

Workflow / WorkflowEvent: a transaction signing pipeline and its
append-only transition history. The workflow row carries a JSONB context
(everything the state machine needs to rehydrate) and a version column
used for optimistic concurrency: every accepted event bumps version by
exactly one and writes exactly one WorkflowEvent row.

	Workflow (1) ──< WorkflowEvent (N, append-only)

Address: a watched account on one chain, with LastReconciledBlock as its
reconciliation checkpoint. The checkpoint only moves forward.

ReconciliationJob: one reconciliation run for an (address, chain) pair.
The partial unique index behind ErrActiveJobExists guarantees at most one
pending-or-running job per pair. Progress counters and the provider
cursor are checkpointed into the row itself, which is what makes worker
crashes recoverable: any process can resume a job from the row alone.

AuditEntry: the append-only evidence trail of a job. Four actions:

	added        provider transaction missing locally, now upserted
	discrepancy  both sides present, compared fields differ
	soft_deleted local transaction the provider no longer reports
	error        processing failure tied to a hash (or "N/A")

Transaction / Token: the local ledger rows reconciliation compares
against. Token carries three classification fields that are set on insert
and must never be overwritten by metadata upserts.

# Error taxonomy

Sentinel errors (ErrWorkflowNotFound, ErrConcurrentModification,
ErrActiveJobExists, ...) are tested with errors.Is at boundaries. Two
structured errors carry context: InvalidTransitionError (which state
rejected which event) and ProviderError (which provider operation failed
and whether a retry may help).

# Conventions

IDs are UUIDv4 strings. Timestamps are UTC. JSONB columns use the
Valuer/Scanner implementations in json.go. EVM addresses and hashes are
stored normalized (lowercase); see pkg/chains for the normalization
rules.
*/
package types
