package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/strongroomhq/strongroom/pkg/clock"
	"github.com/strongroomhq/strongroom/pkg/types"
)

// MemoryStore implements Store with in-process maps. It mirrors the Postgres
// store's semantics closely enough to back the service, orchestrator, worker
// and API tests: claim ordering, the one-active-job constraint, optimistic
// workflow versioning and advisory locks all behave the same way.
type MemoryStore struct {
	mu    sync.Mutex
	clock clock.Clock

	workflows      map[string]*types.Workflow
	workflowEvents map[string][]*types.WorkflowEvent
	addresses      map[string]*types.Address // key: address|chainAlias
	jobs           map[string]*types.ReconciliationJob
	transactions   map[string]*types.Transaction // key: chainAlias|txHash
	tokens         map[string]*types.Token       // key: chainAlias|address
	audits         map[string][]*types.AuditEntry
	locks          map[int64]bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	return &MemoryStore{
		clock:          clk,
		workflows:      make(map[string]*types.Workflow),
		workflowEvents: make(map[string][]*types.WorkflowEvent),
		addresses:      make(map[string]*types.Address),
		jobs:           make(map[string]*types.ReconciliationJob),
		transactions:   make(map[string]*types.Transaction),
		tokens:         make(map[string]*types.Token),
		audits:         make(map[string][]*types.AuditEntry),
		locks:          make(map[int64]bool),
	}
}

func pairKey(a, b string) string {
	return a + "|" + b
}

// Workflow operations

func (s *MemoryStore) CreateWorkflow(ctx context.Context, wf *types.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[wf.ID]; ok {
		return fmt.Errorf("workflow already exists: %s", wf.ID)
	}
	now := s.clock.Now()
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	wf.UpdatedAt = now
	s.workflows[wf.ID] = cloneWorkflow(wf)
	return nil
}

func (s *MemoryStore) GetWorkflow(ctx context.Context, id string) (*types.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, ok := s.workflows[id]
	if !ok {
		return nil, types.ErrWorkflowNotFound
	}
	return cloneWorkflow(wf), nil
}

func (s *MemoryStore) TransitionWorkflow(ctx context.Context, id string, apply TransitionFunc) (*types.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.workflows[id]
	if !ok {
		return nil, types.ErrWorkflowNotFound
	}

	wf := cloneWorkflow(stored)
	event, err := apply(wf)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	wf.Version++
	wf.UpdatedAt = now
	s.workflows[id] = cloneWorkflow(wf)

	event.WorkflowID = id
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	s.workflowEvents[id] = append(s.workflowEvents[id], cloneEvent(event))
	return wf, nil
}

func (s *MemoryStore) ListWorkflowEvents(ctx context.Context, workflowID string) ([]*types.WorkflowEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]*types.WorkflowEvent, 0, len(s.workflowEvents[workflowID]))
	for _, ev := range s.workflowEvents[workflowID] {
		events = append(events, cloneEvent(ev))
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
	return events, nil
}

func (s *MemoryStore) WorkflowStateCounts(ctx context.Context) (map[types.WorkflowState]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[types.WorkflowState]int64)
	for _, wf := range s.workflows {
		counts[wf.State]++
	}
	return counts, nil
}

// Address operations

func (s *MemoryStore) CreateAddress(ctx context.Context, addr *types.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(addr.Address, addr.ChainAlias)
	if _, ok := s.addresses[key]; ok {
		return fmt.Errorf("address already exists: %s", key)
	}
	now := s.clock.Now()
	if addr.CreatedAt.IsZero() {
		addr.CreatedAt = now
	}
	addr.UpdatedAt = now
	s.addresses[key] = cloneAddress(addr)
	return nil
}

func (s *MemoryStore) GetAddress(ctx context.Context, address, chainAlias string) (*types.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr, ok := s.addresses[pairKey(address, chainAlias)]
	if !ok {
		return nil, types.ErrAddressNotFound
	}
	return cloneAddress(addr), nil
}

func (s *MemoryStore) AdvanceLastReconciledBlock(ctx context.Context, address, chainAlias string, block int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr, ok := s.addresses[pairKey(address, chainAlias)]
	if !ok {
		return nil
	}
	if addr.LastReconciledBlock != nil && *addr.LastReconciledBlock >= block {
		return nil
	}
	b := block
	addr.LastReconciledBlock = &b
	addr.UpdatedAt = s.clock.Now()
	return nil
}

func (s *MemoryStore) ListStaleAddresses(ctx context.Context, updatedBefore time.Time, limit int) ([]*types.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []*types.Address
	for _, addr := range s.addresses {
		if addr.UpdatedAt.Before(updatedBefore) {
			stale = append(stale, cloneAddress(addr))
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].UpdatedAt.Before(stale[j].UpdatedAt) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

// Reconciliation job operations

func (s *MemoryStore) CreateJob(ctx context.Context, job *types.ReconciliationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.jobs {
		if existing.Address == job.Address && existing.ChainAlias == job.ChainAlias && existing.Active() {
			return types.ErrActiveJobExists
		}
	}
	now := s.clock.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryStore) GetJob(ctx context.Context, id string) (*types.ReconciliationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, types.ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (s *MemoryStore) FindActiveJob(ctx context.Context, address, chainAlias string) (*types.ReconciliationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range s.jobs {
		if job.Address == address && job.ChainAlias == chainAlias && job.Active() {
			return cloneJob(job), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListJobs(ctx context.Context, address, chainAlias string, limit, offset int) ([]types.JobSummary, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*types.ReconciliationJob
	for _, job := range s.jobs {
		if job.Address == address && job.ChainAlias == chainAlias {
			matched = append(matched, job)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if offset >= len(matched) {
		return []types.JobSummary{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	summaries := make([]types.JobSummary, 0, end-offset)
	for _, job := range matched[offset:end] {
		summaries = append(summaries, types.JobSummary{
			JobID:      job.ID,
			Status:     job.Status,
			Address:    job.Address,
			ChainAlias: job.ChainAlias,
			CreatedAt:  job.CreatedAt,
		})
	}
	return summaries, total, nil
}

func (s *MemoryStore) UpdateJob(ctx context.Context, job *types.ReconciliationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		return types.ErrJobNotFound
	}
	job.UpdatedAt = s.clock.Now()
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryStore) TouchJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, ok := s.jobs[id]; ok {
		job.UpdatedAt = s.clock.Now()
	}
	return nil
}

func (s *MemoryStore) DeletePendingJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.Status != types.JobStatusPending {
		return types.ErrJobNotFound
	}
	delete(s.jobs, id)
	return nil
}

func (s *MemoryStore) ClaimNextPendingJob(ctx context.Context) (*types.ReconciliationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *types.ReconciliationJob
	for _, job := range s.jobs {
		if job.Status != types.JobStatusPending {
			continue
		}
		if oldest == nil || job.CreatedAt.Before(oldest.CreatedAt) {
			oldest = job
		}
	}
	if oldest == nil {
		return nil, nil
	}

	now := s.clock.Now()
	oldest.Status = types.JobStatusRunning
	oldest.UpdatedAt = now
	if oldest.StartedAt == nil {
		oldest.StartedAt = &now
	}
	return cloneJob(oldest), nil
}

func (s *MemoryStore) SweepStaleJobs(ctx context.Context, staleBefore time.Time) ([]*types.ReconciliationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var swept []*types.ReconciliationJob
	for _, job := range s.jobs {
		if job.Status != types.JobStatusRunning || !job.UpdatedAt.Before(staleBefore) {
			continue
		}
		job.Status = types.JobStatusPending
		job.AsyncJobID = nil
		job.AsyncNextPageURL = nil
		job.AsyncJobStartedAt = nil
		job.UpdatedAt = s.clock.Now()
		swept = append(swept, cloneJob(job))
	}
	return swept, nil
}

func (s *MemoryStore) JobStatusCounts(ctx context.Context) (map[types.JobStatus]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[types.JobStatus]int64)
	for _, job := range s.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

// Transaction operations

func (s *MemoryStore) UpsertTransaction(ctx context.Context, txn *types.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	key := pairKey(txn.ChainAlias, txn.TxHash)
	if existing, ok := s.transactions[key]; ok {
		txn.ID = existing.ID
		txn.CreatedAt = existing.CreatedAt
	} else if txn.CreatedAt.IsZero() {
		txn.CreatedAt = now
	}
	txn.DeletedAt = nil
	txn.UpdatedAt = now
	s.transactions[key] = cloneTransaction(txn)
	return nil
}

func (s *MemoryStore) GetTransaction(ctx context.Context, chainAlias, txHash string) (*types.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.transactions[pairKey(chainAlias, txHash)]
	if !ok {
		return nil, nil
	}
	return cloneTransaction(txn), nil
}

func (s *MemoryStore) ListTransactionsForAddress(ctx context.Context, chainAlias, address string, minBlock *int64, afterHash string, limit int) ([]*types.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*types.Transaction
	for _, txn := range s.transactions {
		if txn.ChainAlias != chainAlias || txn.DeletedAt != nil {
			continue
		}
		if txn.FromAddress != address && (txn.ToAddress == nil || *txn.ToAddress != address) {
			continue
		}
		if minBlock != nil && txn.BlockNumber < *minBlock {
			continue
		}
		if strings.Compare(txn.TxHash, afterHash) <= 0 {
			continue
		}
		matched = append(matched, txn)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].TxHash < matched[j].TxHash
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]*types.Transaction, 0, len(matched))
	for _, txn := range matched {
		out = append(out, cloneTransaction(txn))
	}
	return out, nil
}

func (s *MemoryStore) SoftDeleteTransaction(ctx context.Context, chainAlias, txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.transactions[pairKey(chainAlias, txHash)]
	if !ok || txn.DeletedAt != nil {
		return nil
	}
	now := s.clock.Now()
	txn.DeletedAt = &now
	txn.UpdatedAt = now
	return nil
}

// Token operations

func (s *MemoryStore) UpsertToken(ctx context.Context, token *types.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	key := pairKey(token.ChainAlias, token.Address)
	if existing, ok := s.tokens[key]; ok {
		existing.Name = token.Name
		existing.Symbol = token.Symbol
		existing.Decimals = token.Decimals
		existing.UpdatedAt = now
		*token = *existing
		return nil
	}

	token.NeedsClassification = true
	token.ClassificationAttempts = 0
	token.ClassificationError = nil
	if token.CreatedAt.IsZero() {
		token.CreatedAt = now
	}
	token.UpdatedAt = now
	s.tokens[key] = cloneToken(token)
	return nil
}

func (s *MemoryStore) GetToken(ctx context.Context, chainAlias, address string) (*types.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[pairKey(chainAlias, address)]
	if !ok {
		return nil, nil
	}
	return cloneToken(token), nil
}

// Audit operations

func (s *MemoryStore) AppendAudit(ctx context.Context, entry *types.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.Action == types.AuditActionDiscrepancy && len(entry.DiscrepancyFields) == 0 {
		return fmt.Errorf("%w: discrepancy audit entry requires discrepancy fields", types.ErrValidation)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.clock.Now()
	}
	s.audits[entry.JobID] = append(s.audits[entry.JobID], cloneAudit(entry))
	return nil
}

func (s *MemoryStore) ListAuditByJob(ctx context.Context, jobID string) ([]*types.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]*types.AuditEntry, 0, len(s.audits[jobID]))
	for _, entry := range s.audits[jobID] {
		entries = append(entries, cloneAudit(entry))
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

// Coordination

func (s *MemoryStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locks[key] {
		return nil, false, nil
	}
	s.locks[key] = true
	release := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.locks, key)
	}
	return release, true, nil
}

// Utility

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// Clone helpers keep callers from mutating stored state through returned
// pointers.

func cloneWorkflow(wf *types.Workflow) *types.Workflow {
	out := *wf
	out.Context = cloneWorkflowContext(wf.Context)
	return &out
}

func cloneWorkflowContext(c types.WorkflowContext) types.WorkflowContext {
	out := c
	if c.Approvers != nil {
		out.Approvers = append([]string(nil), c.Approvers...)
	}
	if c.BlockNumber != nil {
		b := *c.BlockNumber
		out.BlockNumber = &b
	}
	return out
}

func cloneEvent(ev *types.WorkflowEvent) *types.WorkflowEvent {
	out := *ev
	if ev.EventPayload.Approvers != nil {
		out.EventPayload.Approvers = append([]string(nil), ev.EventPayload.Approvers...)
	}
	if ev.EventPayload.BlockNumber != nil {
		b := *ev.EventPayload.BlockNumber
		out.EventPayload.BlockNumber = &b
	}
	return &out
}

func cloneAddress(addr *types.Address) *types.Address {
	out := *addr
	if addr.LastReconciledBlock != nil {
		b := *addr.LastReconciledBlock
		out.LastReconciledBlock = &b
	}
	return &out
}

func cloneJob(job *types.ReconciliationJob) *types.ReconciliationJob {
	out := *job
	out.FromBlock = cloneInt64(job.FromBlock)
	out.ToBlock = cloneInt64(job.ToBlock)
	out.FinalBlock = cloneInt64(job.FinalBlock)
	out.FromTimestamp = cloneTime(job.FromTimestamp)
	out.ToTimestamp = cloneTime(job.ToTimestamp)
	out.AsyncJobStartedAt = cloneTime(job.AsyncJobStartedAt)
	out.StartedAt = cloneTime(job.StartedAt)
	out.CompletedAt = cloneTime(job.CompletedAt)
	out.LastProcessedCursor = cloneString(job.LastProcessedCursor)
	out.AsyncJobID = cloneString(job.AsyncJobID)
	out.AsyncNextPageURL = cloneString(job.AsyncNextPageURL)
	out.Error = cloneString(job.Error)
	return &out
}

func cloneTransaction(txn *types.Transaction) *types.Transaction {
	out := *txn
	out.ToAddress = cloneString(txn.ToAddress)
	out.DeletedAt = cloneTime(txn.DeletedAt)
	return &out
}

func cloneToken(token *types.Token) *types.Token {
	out := *token
	out.ClassificationError = cloneString(token.ClassificationError)
	return &out
}

func cloneAudit(entry *types.AuditEntry) *types.AuditEntry {
	out := *entry
	if entry.BeforeSnapshot != nil {
		out.BeforeSnapshot = make(types.JSONMap, len(entry.BeforeSnapshot))
		for k, v := range entry.BeforeSnapshot {
			out.BeforeSnapshot[k] = v
		}
	}
	if entry.AfterSnapshot != nil {
		out.AfterSnapshot = make(types.JSONMap, len(entry.AfterSnapshot))
		for k, v := range entry.AfterSnapshot {
			out.AfterSnapshot[k] = v
		}
	}
	if entry.DiscrepancyFields != nil {
		out.DiscrepancyFields = append(types.StringList(nil), entry.DiscrepancyFields...)
	}
	out.ErrorMessage = cloneString(entry.ErrorMessage)
	return &out
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
