package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver
	"github.com/jmoiron/sqlx"

	"github.com/strongroomhq/strongroom/pkg/clock"
	"github.com/strongroomhq/strongroom/pkg/types"
)

// Postgres error code for unique constraint violations.
const uniqueViolationCode = "23505"

// PostgresConfig holds connection pool settings.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewPostgresStore opens a connection pool against the configured DSN.
func NewPostgresStore(cfg PostgresConfig, clk clock.Clock) (*PostgresStore, error) {
	db, err := sqlx.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return &PostgresStore{db: db, clock: clk}, nil
}

// NewPostgresStoreWithDB wraps an already opened pool. Tests use it with
// sqlmock.
func NewPostgresStoreWithDB(db *sqlx.DB, clk clock.Clock) *PostgresStore {
	return &PostgresStore{db: db, clock: clk}
}

// DB exposes the underlying pool for the migration runner.
func (s *PostgresStore) DB() *sqlx.DB {
	return s.db
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// Workflow operations

const insertWorkflowSQL = `
	INSERT INTO workflows (id, state, context, version, created_at, updated_at)
	VALUES (:id, :state, :context, :version, :created_at, :updated_at)`

func (s *PostgresStore) CreateWorkflow(ctx context.Context, wf *types.Workflow) error {
	now := s.clock.Now()
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	wf.UpdatedAt = now

	if _, err := s.db.NamedExecContext(ctx, insertWorkflowSQL, wf); err != nil {
		return fmt.Errorf("failed to create workflow: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetWorkflow(ctx context.Context, id string) (*types.Workflow, error) {
	var wf types.Workflow
	err := s.db.GetContext(ctx, &wf, `SELECT * FROM workflows WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	return &wf, nil
}

func (s *PostgresStore) TransitionWorkflow(ctx context.Context, id string, apply TransitionFunc) (*types.Workflow, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var wf types.Workflow
	err = tx.GetContext(ctx, &wf, `SELECT * FROM workflows WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock workflow: %w", err)
	}

	event, err := apply(&wf)
	if err != nil {
		return nil, err
	}

	observed := wf.Version
	now := s.clock.Now()
	wf.Version = observed + 1
	wf.UpdatedAt = now

	res, err := tx.ExecContext(ctx, `
		UPDATE workflows
		SET state = $1, context = $2, version = $3, updated_at = $4
		WHERE id = $5 AND version = $6`,
		wf.State, wf.Context, wf.Version, wf.UpdatedAt, wf.ID, observed)
	if err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return nil, types.ErrConcurrentModification
	}

	event.WorkflowID = wf.ID
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO workflow_events
			(id, workflow_id, event_type, event_payload, from_state, to_state, triggered_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, event.WorkflowID, event.EventType, event.EventPayload,
		event.FromState, event.ToState, event.TriggeredBy, event.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to append workflow event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transition: %w", err)
	}
	return &wf, nil
}

func (s *PostgresStore) ListWorkflowEvents(ctx context.Context, workflowID string) ([]*types.WorkflowEvent, error) {
	var events []*types.WorkflowEvent
	err := s.db.SelectContext(ctx, &events, `
		SELECT * FROM workflow_events
		WHERE workflow_id = $1
		ORDER BY created_at ASC, id ASC`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow events: %w", err)
	}
	return events, nil
}

func (s *PostgresStore) WorkflowStateCounts(ctx context.Context) (map[types.WorkflowState]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM workflows GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("failed to count workflows: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.WorkflowState]int64)
	for rows.Next() {
		var state types.WorkflowState
		var n int64
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("failed to scan workflow count: %w", err)
		}
		counts[state] = n
	}
	return counts, rows.Err()
}

// Address operations

const insertAddressSQL = `
	INSERT INTO addresses (id, address, chain_alias, last_reconciled_block, created_at, updated_at)
	VALUES (:id, :address, :chain_alias, :last_reconciled_block, :created_at, :updated_at)`

func (s *PostgresStore) CreateAddress(ctx context.Context, addr *types.Address) error {
	now := s.clock.Now()
	if addr.CreatedAt.IsZero() {
		addr.CreatedAt = now
	}
	addr.UpdatedAt = now

	if _, err := s.db.NamedExecContext(ctx, insertAddressSQL, addr); err != nil {
		return fmt.Errorf("failed to create address: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAddress(ctx context.Context, address, chainAlias string) (*types.Address, error) {
	var addr types.Address
	err := s.db.GetContext(ctx, &addr,
		`SELECT * FROM addresses WHERE address = $1 AND chain_alias = $2`, address, chainAlias)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrAddressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get address: %w", err)
	}
	return &addr, nil
}

func (s *PostgresStore) AdvanceLastReconciledBlock(ctx context.Context, address, chainAlias string, block int64) error {
	// Missing rows and lower checkpoints both match zero rows, which is fine.
	_, err := s.db.ExecContext(ctx, `
		UPDATE addresses
		SET last_reconciled_block = $3, updated_at = $4
		WHERE address = $1 AND chain_alias = $2
		  AND (last_reconciled_block IS NULL OR last_reconciled_block < $3)`,
		address, chainAlias, block, s.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to advance reconciled block: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListStaleAddresses(ctx context.Context, updatedBefore time.Time, limit int) ([]*types.Address, error) {
	var addrs []*types.Address
	err := s.db.SelectContext(ctx, &addrs, `
		SELECT * FROM addresses
		WHERE updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2`,
		updatedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale addresses: %w", err)
	}
	return addrs, nil
}

// Reconciliation job operations

const insertJobSQL = `
	INSERT INTO reconciliation_jobs (
		id, address, chain_alias, provider, mode, status,
		from_block, to_block, from_timestamp, to_timestamp,
		last_processed_cursor, processed_count, transactions_added,
		transactions_soft_deleted, discrepancies_flagged, errors_count,
		final_block, async_job_id, async_next_page_url, async_job_started_at,
		error, started_at, completed_at, created_at, updated_at
	) VALUES (
		:id, :address, :chain_alias, :provider, :mode, :status,
		:from_block, :to_block, :from_timestamp, :to_timestamp,
		:last_processed_cursor, :processed_count, :transactions_added,
		:transactions_soft_deleted, :discrepancies_flagged, :errors_count,
		:final_block, :async_job_id, :async_next_page_url, :async_job_started_at,
		:error, :started_at, :completed_at, :created_at, :updated_at
	)`

func (s *PostgresStore) CreateJob(ctx context.Context, job *types.ReconciliationJob) error {
	now := s.clock.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	if _, err := s.db.NamedExecContext(ctx, insertJobSQL, job); err != nil {
		if isUniqueViolation(err) {
			return types.ErrActiveJobExists
		}
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*types.ReconciliationJob, error) {
	var job types.ReconciliationJob
	err := s.db.GetContext(ctx, &job, `SELECT * FROM reconciliation_jobs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *PostgresStore) FindActiveJob(ctx context.Context, address, chainAlias string) (*types.ReconciliationJob, error) {
	var job types.ReconciliationJob
	err := s.db.GetContext(ctx, &job, `
		SELECT * FROM reconciliation_jobs
		WHERE address = $1 AND chain_alias = $2 AND status IN ('pending', 'running')
		LIMIT 1`, address, chainAlias)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active job: %w", err)
	}
	return &job, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, address, chainAlias string, limit, offset int) ([]types.JobSummary, int64, error) {
	var total int64
	err := s.db.GetContext(ctx, &total, `
		SELECT COUNT(*) FROM reconciliation_jobs
		WHERE address = $1 AND chain_alias = $2`, address, chainAlias)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	summaries := []types.JobSummary{}
	err = s.db.SelectContext(ctx, &summaries, `
		SELECT id, status, address, chain_alias, created_at FROM reconciliation_jobs
		WHERE address = $1 AND chain_alias = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`, address, chainAlias, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}
	return summaries, total, nil
}

const updateJobSQL = `
	UPDATE reconciliation_jobs SET
		status = :status,
		last_processed_cursor = :last_processed_cursor,
		processed_count = :processed_count,
		transactions_added = :transactions_added,
		transactions_soft_deleted = :transactions_soft_deleted,
		discrepancies_flagged = :discrepancies_flagged,
		errors_count = :errors_count,
		final_block = :final_block,
		async_job_id = :async_job_id,
		async_next_page_url = :async_next_page_url,
		async_job_started_at = :async_job_started_at,
		error = :error,
		started_at = :started_at,
		completed_at = :completed_at,
		updated_at = :updated_at
	WHERE id = :id`

func (s *PostgresStore) UpdateJob(ctx context.Context, job *types.ReconciliationJob) error {
	job.UpdatedAt = s.clock.Now()
	res, err := s.db.NamedExecContext(ctx, updateJobSQL, job)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return types.ErrJobNotFound
	}
	return nil
}

func (s *PostgresStore) TouchJob(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE reconciliation_jobs SET updated_at = $2 WHERE id = $1`, id, s.clock.Now()); err != nil {
		return fmt.Errorf("failed to touch job: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeletePendingJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM reconciliation_jobs WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return types.ErrJobNotFound
	}
	return nil
}

func (s *PostgresStore) ClaimNextPendingJob(ctx context.Context) (*types.ReconciliationJob, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var job types.ReconciliationJob
	err = tx.GetContext(ctx, &job, `
		SELECT * FROM reconciliation_jobs
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select pending job: %w", err)
	}

	now := s.clock.Now()
	job.Status = types.JobStatusRunning
	job.UpdatedAt = now
	if job.StartedAt == nil {
		job.StartedAt = &now
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE reconciliation_jobs
		SET status = $2, started_at = $3, updated_at = $4
		WHERE id = $1`,
		job.ID, job.Status, job.StartedAt, job.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to mark job running: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}
	return &job, nil
}

func (s *PostgresStore) SweepStaleJobs(ctx context.Context, staleBefore time.Time) ([]*types.ReconciliationJob, error) {
	rows, err := s.db.QueryxContext(ctx, `
		UPDATE reconciliation_jobs
		SET status = 'pending',
		    async_job_id = NULL,
		    async_next_page_url = NULL,
		    async_job_started_at = NULL,
		    updated_at = $2
		WHERE status = 'running' AND updated_at < $1
		RETURNING *`, staleBefore, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to sweep stale jobs: %w", err)
	}
	defer rows.Close()

	var swept []*types.ReconciliationJob
	for rows.Next() {
		var job types.ReconciliationJob
		if err := rows.StructScan(&job); err != nil {
			return nil, fmt.Errorf("failed to scan swept job: %w", err)
		}
		swept = append(swept, &job)
	}
	return swept, rows.Err()
}

func (s *PostgresStore) JobStatusCounts(ctx context.Context) (map[types.JobStatus]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM reconciliation_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.JobStatus]int64)
	for rows.Next() {
		var status types.JobStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Transaction operations

const upsertTransactionSQL = `
	INSERT INTO transactions (
		id, chain_alias, tx_hash, block_number, from_address, to_address,
		value, fee, status, kind, timestamp, deleted_at, created_at, updated_at
	) VALUES (
		:id, :chain_alias, :tx_hash, :block_number, :from_address, :to_address,
		:value, :fee, :status, :kind, :timestamp, NULL, :created_at, :updated_at
	)
	ON CONFLICT (chain_alias, tx_hash) DO UPDATE SET
		block_number = EXCLUDED.block_number,
		from_address = EXCLUDED.from_address,
		to_address   = EXCLUDED.to_address,
		value        = EXCLUDED.value,
		fee          = EXCLUDED.fee,
		status       = EXCLUDED.status,
		kind         = EXCLUDED.kind,
		timestamp    = EXCLUDED.timestamp,
		deleted_at   = NULL,
		updated_at   = EXCLUDED.updated_at`

func (s *PostgresStore) UpsertTransaction(ctx context.Context, txn *types.Transaction) error {
	now := s.clock.Now()
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = now
	}
	txn.UpdatedAt = now

	if _, err := s.db.NamedExecContext(ctx, upsertTransactionSQL, txn); err != nil {
		return fmt.Errorf("failed to upsert transaction: %w", err)
	}
	return nil
}

// GetTransaction returns nil when no row exists.
func (s *PostgresStore) GetTransaction(ctx context.Context, chainAlias, txHash string) (*types.Transaction, error) {
	var txn types.Transaction
	err := s.db.GetContext(ctx, &txn,
		`SELECT * FROM transactions WHERE chain_alias = $1 AND tx_hash = $2`, chainAlias, txHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &txn, nil
}

func (s *PostgresStore) ListTransactionsForAddress(ctx context.Context, chainAlias, address string, minBlock *int64, afterHash string, limit int) ([]*types.Transaction, error) {
	query := `
		SELECT * FROM transactions
		WHERE chain_alias = $1
		  AND (from_address = $2 OR to_address = $2)
		  AND deleted_at IS NULL
		  AND tx_hash > $3`
	args := []interface{}{chainAlias, address, afterHash}

	if minBlock != nil {
		query += fmt.Sprintf(" AND block_number >= $%d", len(args)+1)
		args = append(args, *minBlock)
	}
	query += fmt.Sprintf(" ORDER BY tx_hash ASC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	var txns []*types.Transaction
	if err := s.db.SelectContext(ctx, &txns, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txns, nil
}

func (s *PostgresStore) SoftDeleteTransaction(ctx context.Context, chainAlias, txHash string) error {
	now := s.clock.Now()
	if _, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET deleted_at = $3, updated_at = $3
		WHERE chain_alias = $1 AND tx_hash = $2 AND deleted_at IS NULL`,
		chainAlias, txHash, now); err != nil {
		return fmt.Errorf("failed to soft delete transaction: %w", err)
	}
	return nil
}

// Token operations

// UpsertToken pins needs_classification, classification_attempts and
// classification_error on insert. A conflicting upsert refreshes metadata
// only and never touches the classification columns.
const upsertTokenSQL = `
	INSERT INTO tokens (
		id, chain_alias, address, name, symbol, decimals,
		needs_classification, classification_attempts, classification_error,
		created_at, updated_at
	) VALUES (
		:id, :chain_alias, :address, :name, :symbol, :decimals,
		TRUE, 0, NULL,
		:created_at, :updated_at
	)
	ON CONFLICT (chain_alias, address) DO UPDATE SET
		name       = EXCLUDED.name,
		symbol     = EXCLUDED.symbol,
		decimals   = EXCLUDED.decimals,
		updated_at = EXCLUDED.updated_at`

func (s *PostgresStore) UpsertToken(ctx context.Context, token *types.Token) error {
	now := s.clock.Now()
	if token.CreatedAt.IsZero() {
		token.CreatedAt = now
	}
	token.UpdatedAt = now

	if _, err := s.db.NamedExecContext(ctx, upsertTokenSQL, token); err != nil {
		return fmt.Errorf("failed to upsert token: %w", err)
	}
	return nil
}

// GetToken returns nil when no row exists.
func (s *PostgresStore) GetToken(ctx context.Context, chainAlias, address string) (*types.Token, error) {
	var token types.Token
	err := s.db.GetContext(ctx, &token,
		`SELECT * FROM tokens WHERE chain_alias = $1 AND address = $2`, chainAlias, address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return &token, nil
}

// Audit operations

const insertAuditSQL = `
	INSERT INTO reconciliation_audit_entries (
		id, job_id, transaction_hash, action,
		before_snapshot, after_snapshot, discrepancy_fields, error_message, created_at
	) VALUES (
		:id, :job_id, :transaction_hash, :action,
		:before_snapshot, :after_snapshot, :discrepancy_fields, :error_message, :created_at
	)`

func (s *PostgresStore) AppendAudit(ctx context.Context, entry *types.AuditEntry) error {
	if entry.Action == types.AuditActionDiscrepancy && len(entry.DiscrepancyFields) == 0 {
		return fmt.Errorf("%w: discrepancy audit entry requires discrepancy fields", types.ErrValidation)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.clock.Now()
	}

	if _, err := s.db.NamedExecContext(ctx, insertAuditSQL, entry); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAuditByJob(ctx context.Context, jobID string) ([]*types.AuditEntry, error) {
	var entries []*types.AuditEntry
	err := s.db.SelectContext(ctx, &entries, `
		SELECT * FROM reconciliation_audit_entries
		WHERE job_id = $1
		ORDER BY created_at ASC, id ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}

// Coordination

// TryAdvisoryLock pins a dedicated connection for the lifetime of the lock;
// Postgres releases advisory locks when their session dies, so a crashed
// holder never wedges peers.
func (s *PostgresStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRowxContext(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&acquired); err != nil {
		conn.Close()
		return nil, false, fmt.Errorf("failed to try advisory lock: %w", err)
	}
	if !acquired {
		conn.Close()
		return nil, false, nil
	}

	release := func() {
		// Unlock must run on the session that took the lock.
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, key)
		_ = conn.Close()
	}
	return release, true, nil
}
