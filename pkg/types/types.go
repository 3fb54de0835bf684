package types

import (
	"time"
)

// Workflow drives one outgoing transaction through the signing pipeline.
type Workflow struct {
	ID        string          `db:"id" json:"id"`
	State     WorkflowState   `db:"state" json:"state"`
	Context   WorkflowContext `db:"context" json:"context"`
	Version   int64           `db:"version" json:"version"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time       `db:"updated_at" json:"updatedAt"`
}

// WorkflowState is the current position in the transaction state machine.
type WorkflowState string

const (
	StateCreated            WorkflowState = "created"
	StateReview             WorkflowState = "review"
	StateEvaluatingPolicies WorkflowState = "evaluating_policies"
	StateWaitingApproval    WorkflowState = "waiting_approval"
	StateApproved           WorkflowState = "approved"
	StateWaitingSignature   WorkflowState = "waiting_signature"
	StateBroadcasting       WorkflowState = "broadcasting"
	StateIndexing           WorkflowState = "indexing"
	StateCompleted          WorkflowState = "completed"
	StateFailed             WorkflowState = "failed"
)

// Terminal reports whether the state accepts no further events.
func (s WorkflowState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// WorkflowContext is the mutable record carried alongside the state. It is
// persisted as a single JSONB column and rehydrated on every Send.
type WorkflowContext struct {
	VaultID              string    `json:"vaultId"`
	ChainAlias           string    `json:"chainAlias"`
	MarshalledHex        string    `json:"marshalledHex"`
	OrganisationID       string    `json:"organisationId"`
	CreatedBy            CreatedBy `json:"createdBy"`
	SkipReview           bool      `json:"skipReview"`
	BroadcastAttempts    int       `json:"broadcastAttempts"`
	MaxBroadcastAttempts int       `json:"maxBroadcastAttempts"`

	// Written by transitions.
	Error       string   `json:"error,omitempty"`
	FailedAt    string   `json:"failedAt,omitempty"`
	Approvers   []string `json:"approvers,omitempty"`
	ApprovedBy  string   `json:"approvedBy,omitempty"`
	Signature   string   `json:"signature,omitempty"`
	TxHash      string   `json:"txHash,omitempty"`
	BlockNumber *int64   `json:"blockNumber,omitempty"`
}

// CreatedBy identifies the principal that created a workflow.
type CreatedBy struct {
	ID   string        `json:"id"`
	Type CreatedByType `json:"type"`
}

// CreatedByType distinguishes human, machine and webhook principals.
type CreatedByType string

const (
	CreatedByUser    CreatedByType = "User"
	CreatedBySystem  CreatedByType = "System"
	CreatedByWebhook CreatedByType = "Webhook"
)

// EventType names a state-machine event.
type EventType string

const (
	EventStart                   EventType = "START"
	EventConfirm                 EventType = "CONFIRM"
	EventCancel                  EventType = "CANCEL"
	EventPoliciesPassed          EventType = "POLICIES_PASSED"
	EventPoliciesRequireApproval EventType = "POLICIES_REQUIRE_APPROVAL"
	EventPoliciesRejected        EventType = "POLICIES_REJECTED"
	EventApprove                 EventType = "APPROVE"
	EventReject                  EventType = "REJECT"
	EventRequestSignature        EventType = "REQUEST_SIGNATURE"
	EventSignatureReceived       EventType = "SIGNATURE_RECEIVED"
	EventSignatureFailed         EventType = "SIGNATURE_FAILED"
	EventBroadcastSuccess        EventType = "BROADCAST_SUCCESS"
	EventBroadcastRetry          EventType = "BROADCAST_RETRY"
	EventBroadcastFailed         EventType = "BROADCAST_FAILED"
	EventIndexingComplete        EventType = "INDEXING_COMPLETE"
	EventIndexingFailed          EventType = "INDEXING_FAILED"
)

// EventPayload carries the optional data attached to a state-machine event.
// Only the fields relevant to the event type are set.
type EventPayload struct {
	Reason      string   `json:"reason,omitempty"`
	Error       string   `json:"error,omitempty"`
	Approvers   []string `json:"approvers,omitempty"`
	ApprovedBy  string   `json:"approvedBy,omitempty"`
	RejectedBy  string   `json:"rejectedBy,omitempty"`
	Signature   string   `json:"signature,omitempty"`
	TxHash      string   `json:"txHash,omitempty"`
	BlockNumber *int64   `json:"blockNumber,omitempty"`
}

// WorkflowEvent is one accepted transition, append-only.
type WorkflowEvent struct {
	ID           string        `db:"id" json:"id"`
	WorkflowID   string        `db:"workflow_id" json:"workflowId"`
	EventType    EventType     `db:"event_type" json:"eventType"`
	EventPayload EventPayload  `db:"event_payload" json:"eventPayload"`
	FromState    WorkflowState `db:"from_state" json:"fromState"`
	ToState      WorkflowState `db:"to_state" json:"toState"`
	TriggeredBy  string        `db:"triggered_by" json:"triggeredBy"`
	CreatedAt    time.Time     `db:"created_at" json:"createdAt"`
}

// Address is a watched chain account with its reconciliation checkpoint.
// LastReconciledBlock only moves forward once set.
type Address struct {
	ID                  string    `db:"id" json:"id"`
	Address             string    `db:"address" json:"address"`
	ChainAlias          string    `db:"chain_alias" json:"chainAlias"`
	LastReconciledBlock *int64    `db:"last_reconciled_block" json:"lastReconciledBlock"`
	CreatedAt           time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time `db:"updated_at" json:"updatedAt"`
}

// JobStatus is the lifecycle state of a reconciliation job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobMode selects full-history or incremental reconciliation.
type JobMode string

const (
	JobModeFull    JobMode = "full"
	JobModePartial JobMode = "partial"
)

// ReconciliationJob is one reconciliation run for an (address, chain) pair.
// At most one job per pair may be pending or running at any instant.
type ReconciliationJob struct {
	ID         string    `db:"id" json:"id"`
	Address    string    `db:"address" json:"address"`
	ChainAlias string    `db:"chain_alias" json:"chainAlias"`
	Provider   string    `db:"provider" json:"provider"`
	Mode       JobMode   `db:"mode" json:"mode"`
	Status     JobStatus `db:"status" json:"status"`

	FromBlock     *int64     `db:"from_block" json:"fromBlock"`
	ToBlock       *int64     `db:"to_block" json:"toBlock"`
	FromTimestamp *time.Time `db:"from_timestamp" json:"fromTimestamp"`
	ToTimestamp   *time.Time `db:"to_timestamp" json:"toTimestamp"`

	// Progress, persisted at every checkpoint. Monotone within a run.
	LastProcessedCursor     *string `db:"last_processed_cursor" json:"lastProcessedCursor"`
	ProcessedCount          int64   `db:"processed_count" json:"processedCount"`
	TransactionsAdded       int64   `db:"transactions_added" json:"transactionsAdded"`
	TransactionsSoftDeleted int64   `db:"transactions_soft_deleted" json:"transactionsSoftDeleted"`
	DiscrepanciesFlagged    int64   `db:"discrepancies_flagged" json:"discrepanciesFlagged"`
	ErrorsCount             int64   `db:"errors_count" json:"errorsCount"`

	// FinalBlock is the chain height pinned at job start; never overwritten
	// during processing.
	FinalBlock *int64 `db:"final_block" json:"finalBlock"`

	// Async-job bookkeeping. Set and cleared together.
	AsyncJobID        *string    `db:"async_job_id" json:"asyncJobId"`
	AsyncNextPageURL  *string    `db:"async_next_page_url" json:"asyncNextPageUrl"`
	AsyncJobStartedAt *time.Time `db:"async_job_started_at" json:"asyncJobStartedAt"`

	Error       *string    `db:"error" json:"error"`
	StartedAt   *time.Time `db:"started_at" json:"startedAt"`
	CompletedAt *time.Time `db:"completed_at" json:"completedAt"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
}

// Active reports whether the job occupies the (address, chain) slot.
func (j *ReconciliationJob) Active() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusRunning
}

// JobSummary is the listing projection of a job.
type JobSummary struct {
	JobID      string    `db:"id" json:"jobId"`
	Status     JobStatus `db:"status" json:"status"`
	Address    string    `db:"address" json:"address"`
	ChainAlias string    `db:"chain_alias" json:"chainAlias"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// JobPage is a paginated job listing.
type JobPage struct {
	Data  []JobSummary `json:"data"`
	Total int64        `json:"total"`
}

// AuditAction classifies a reconciliation audit entry.
type AuditAction string

const (
	AuditActionAdded       AuditAction = "added"
	AuditActionDiscrepancy AuditAction = "discrepancy"
	AuditActionSoftDeleted AuditAction = "soft_deleted"
	AuditActionError       AuditAction = "error"
)

// AuditEntry records one reconciliation observation, append-only.
// Discrepancy entries carry the set of mismatching field names.
type AuditEntry struct {
	ID                string      `db:"id" json:"id"`
	JobID             string      `db:"job_id" json:"jobId"`
	TransactionHash   string      `db:"transaction_hash" json:"transactionHash"`
	Action            AuditAction `db:"action" json:"action"`
	BeforeSnapshot    JSONMap     `db:"before_snapshot" json:"beforeSnapshot,omitempty"`
	AfterSnapshot     JSONMap     `db:"after_snapshot" json:"afterSnapshot,omitempty"`
	DiscrepancyFields StringList  `db:"discrepancy_fields" json:"discrepancyFields,omitempty"`
	ErrorMessage      *string     `db:"error_message" json:"errorMessage,omitempty"`
	CreatedAt         time.Time   `db:"created_at" json:"createdAt"`
}

// Transaction is a locally persisted chain transaction.
// (ChainAlias, TxHash) is unique after normalization. Orphaned rows are
// soft-deleted by setting DeletedAt; they stay out of reconciliation scans.
type Transaction struct {
	ID          string     `db:"id" json:"id"`
	ChainAlias  string     `db:"chain_alias" json:"chainAlias"`
	TxHash      string     `db:"tx_hash" json:"txHash"`
	BlockNumber int64      `db:"block_number" json:"blockNumber"`
	FromAddress string     `db:"from_address" json:"fromAddress"`
	ToAddress   *string    `db:"to_address" json:"toAddress"`
	Value       string     `db:"value" json:"value"`
	Fee         string     `db:"fee" json:"fee"`
	Status      string     `db:"status" json:"status"`
	Kind        TxKind     `db:"kind" json:"kind"`
	Timestamp   time.Time  `db:"timestamp" json:"timestamp"`
	DeletedAt   *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
}

// TxKind is the processor's classification of a transaction.
type TxKind string

const (
	TxKindTransfer     TxKind = "transfer"
	TxKindSwap         TxKind = "swap"
	TxKindContractCall TxKind = "contract_call"
)

// Token is an asset contract discovered during processing. The three
// classification fields are written on insert and never on metadata upsert.
type Token struct {
	ID                     string    `db:"id" json:"id"`
	ChainAlias             string    `db:"chain_alias" json:"chainAlias"`
	Address                string    `db:"address" json:"address"`
	Name                   string    `db:"name" json:"name"`
	Symbol                 string    `db:"symbol" json:"symbol"`
	Decimals               int       `db:"decimals" json:"decimals"`
	NeedsClassification    bool      `db:"needs_classification" json:"needsClassification"`
	ClassificationAttempts int       `db:"classification_attempts" json:"classificationAttempts"`
	ClassificationError    *string   `db:"classification_error" json:"classificationError"`
	CreatedAt              time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt              time.Time `db:"updated_at" json:"updatedAt"`
}
