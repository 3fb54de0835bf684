package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongroomhq/strongroom/pkg/chains"
	"github.com/strongroomhq/strongroom/pkg/clock"
	"github.com/strongroomhq/strongroom/pkg/processor"
	"github.com/strongroomhq/strongroom/pkg/provider"
	"github.com/strongroomhq/strongroom/pkg/provider/providertest"
	"github.com/strongroomhq/strongroom/pkg/storage"
	"github.com/strongroomhq/strongroom/pkg/types"
)

const testAddress = "0xowner00000000000000000000000000000000aa"

func int64Ptr(v int64) *int64 { return &v }
func strPtr(s string) *string { return &s }

type harness struct {
	worker *Worker
	store  *storage.MemoryStore
	fake   *providertest.Fake
	clk    *clock.Fake
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	registry, err := chains.NewRegistry()
	require.NoError(t, err)

	clk := clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	store := storage.NewMemoryStore(clk)

	proc, err := processor.New(store, registry, nil, processor.Config{})
	require.NoError(t, err)

	fake := providertest.New()
	providers := provider.NewRegistry()
	providers.Register(fake)

	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Millisecond
	}
	return &harness{
		worker: New(store, providers, registry, proc, nil, clk, cfg),
		store:  store,
		fake:   fake,
		clk:    clk,
	}
}

func pendingJob(mode types.JobMode) *types.ReconciliationJob {
	return &types.ReconciliationJob{
		ID:         uuid.NewString(),
		Address:    testAddress,
		ChainAlias: "ethereum",
		Provider:   "fake",
		Mode:       mode,
		Status:     types.JobStatusPending,
	}
}

func (h *harness) claim(t *testing.T, job *types.ReconciliationJob) *types.ReconciliationJob {
	t.Helper()
	require.NoError(t, h.store.CreateJob(context.Background(), job))
	claimed, err := h.store.ClaimNextPendingJob(context.Background())
	require.NoError(t, err)
	require.NotNil(t, claimed)
	return claimed
}

func localTx(hash, from, to string, block int64, fee string) *types.Transaction {
	toAddr := to
	return &types.Transaction{
		ID:          uuid.NewString(),
		ChainAlias:  "ethereum",
		TxHash:      hash,
		BlockNumber: block,
		FromAddress: from,
		ToAddress:   &toAddr,
		Value:       "1",
		Fee:         fee,
		Status:      "success",
		Kind:        types.TxKindTransfer,
	}
}

func auditsByAction(t *testing.T, store storage.Store, jobID string) map[types.AuditAction][]*types.AuditEntry {
	t.Helper()
	entries, err := store.ListAuditByJob(context.Background(), jobID)
	require.NoError(t, err)

	byAction := make(map[types.AuditAction][]*types.AuditEntry)
	for _, entry := range entries {
		byAction[entry.Action] = append(byAction[entry.Action], entry)
	}
	return byAction
}

func TestSyncJobMixedSet(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	require.NoError(t, h.store.CreateAddress(ctx, &types.Address{
		ID:         uuid.NewString(),
		Address:    testAddress,
		ChainAlias: "ethereum",
	}))

	// h1 matches the provider view, h2 disagrees on fee, h3 never shows up.
	require.NoError(t, h.store.UpsertTransaction(ctx, localTx("0xh1", testAddress, "0xpeer1", 100, "21000")))
	require.NoError(t, h.store.UpsertTransaction(ctx, localTx("0xh2", testAddress, "0xpeer2", 110, "21000")))
	require.NoError(t, h.store.UpsertTransaction(ctx, localTx("0xh3", testAddress, "0xpeer3", 120, "21000")))

	h.fake.Height = int64Ptr(19_000_000)
	h.fake.Stream = []provider.Transaction{
		// Uppercased counterparts must not register as discrepancies.
		providertest.Tx("0xH1", 100, strings.ToUpper(testAddress), "0xPEER1", "21000"),
		providertest.Tx("0xh2", 110, testAddress, "0xpeer2", "42000"),
		providertest.Tx("0xh4", 130, testAddress, "0xpeer4", "21000"),
	}

	job := h.claim(t, pendingJob(types.JobModeFull))
	h.worker.processJob(ctx, job)

	stored, err := h.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	assert.Equal(t, int64(3), stored.ProcessedCount)
	assert.Equal(t, int64(1), stored.TransactionsAdded)
	assert.Equal(t, int64(1), stored.DiscrepanciesFlagged)
	assert.Equal(t, int64(1), stored.TransactionsSoftDeleted)
	assert.Equal(t, int64(0), stored.ErrorsCount)
	require.NotNil(t, stored.FinalBlock)
	assert.Equal(t, int64(19_000_000), *stored.FinalBlock)
	require.NotNil(t, stored.LastProcessedCursor)
	assert.Equal(t, "2", *stored.LastProcessedCursor)

	byAction := auditsByAction(t, h.store, job.ID)

	require.Len(t, byAction[types.AuditActionAdded], 1)
	added := byAction[types.AuditActionAdded][0]
	assert.Equal(t, "0xh4", added.TransactionHash)
	assert.Equal(t, "0xh4", added.AfterSnapshot["txid"])

	require.Len(t, byAction[types.AuditActionDiscrepancy], 1)
	disc := byAction[types.AuditActionDiscrepancy][0]
	assert.Equal(t, "0xh2", disc.TransactionHash)
	assert.Equal(t, types.StringList{"fee"}, disc.DiscrepancyFields)
	assert.Equal(t, "21000", disc.BeforeSnapshot["fee"])
	assert.Equal(t, "42000", disc.AfterSnapshot["fees"])

	require.Len(t, byAction[types.AuditActionSoftDeleted], 1)
	assert.Equal(t, "0xh3", byAction[types.AuditActionSoftDeleted][0].TransactionHash)

	// Ingested row is normalized; orphan is hidden, not erased.
	h4, err := h.store.GetTransaction(ctx, "ethereum", "0xh4")
	require.NoError(t, err)
	require.NotNil(t, h4)
	assert.Equal(t, testAddress, h4.FromAddress)
	h3, err := h.store.GetTransaction(ctx, "ethereum", "0xh3")
	require.NoError(t, err)
	require.NotNil(t, h3)
	assert.NotNil(t, h3.DeletedAt)

	addr, err := h.store.GetAddress(ctx, testAddress, "ethereum")
	require.NoError(t, err)
	require.NotNil(t, addr.LastReconciledBlock)
	assert.Equal(t, int64(19_000_000), *addr.LastReconciledBlock)
}

func TestSyncJobResumesFromPersistedCursor(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	h.fake.Stream = []provider.Transaction{
		providertest.Tx("0xa1", 10, testAddress, "0xp1", "1"),
		providertest.Tx("0xa2", 20, testAddress, "0xp2", "1"),
		providertest.Tx("0xa3", 30, testAddress, "0xp3", "1"),
	}

	job := h.claim(t, pendingJob(types.JobModeFull))
	// As if a previous run consumed the first transaction and crashed.
	job.LastProcessedCursor = strPtr("0")

	h.worker.processJob(ctx, job)

	stored, err := h.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCompleted, stored.Status)
	assert.Equal(t, int64(2), stored.ProcessedCount)
	assert.Equal(t, int64(2), stored.TransactionsAdded)
	assert.Equal(t, "2", *stored.LastProcessedCursor)

	byAction := auditsByAction(t, h.store, job.ID)
	require.Len(t, byAction[types.AuditActionAdded], 2)
	hashes := []string{byAction[types.AuditActionAdded][0].TransactionHash, byAction[types.AuditActionAdded][1].TransactionHash}
	assert.ElementsMatch(t, []string{"0xa2", "0xa3"}, hashes)
}

// updateCountingStore counts job-row writes passing through to the store.
type updateCountingStore struct {
	storage.Store
	updates int
}

func (u *updateCountingStore) UpdateJob(ctx context.Context, job *types.ReconciliationJob) error {
	u.updates++
	return u.Store.UpdateJob(ctx, job)
}

func TestSyncJobCheckpointsAtInterval(t *testing.T) {
	registry, err := chains.NewRegistry()
	require.NoError(t, err)
	clk := clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	counting := &updateCountingStore{Store: storage.NewMemoryStore(clk)}

	proc, err := processor.New(counting, registry, nil, processor.Config{})
	require.NoError(t, err)

	fake := providertest.New()
	fake.Stream = []provider.Transaction{
		providertest.Tx("0xc1", 1, testAddress, "0xp", "1"),
		providertest.Tx("0xc2", 2, testAddress, "0xp", "1"),
		providertest.Tx("0xc3", 3, testAddress, "0xp", "1"),
		providertest.Tx("0xc4", 4, testAddress, "0xp", "1"),
		providertest.Tx("0xc5", 5, testAddress, "0xp", "1"),
	}
	providers := provider.NewRegistry()
	providers.Register(fake)

	w := New(counting, providers, registry, proc, nil, clk, Config{CheckpointEvery: 2, PollInterval: time.Millisecond})
	ctx := context.Background()

	job := pendingJob(types.JobModeFull)
	require.NoError(t, counting.CreateJob(ctx, job))
	claimed, err := counting.ClaimNextPendingJob(ctx)
	require.NoError(t, err)

	w.processJob(ctx, claimed)

	// Two interval checkpoints, the pre-orphan checkpoint, and the final
	// completion write. Height is unset, so there is no pin write.
	assert.Equal(t, 4, counting.updates)

	stored, err := counting.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCompleted, stored.Status)
	assert.Equal(t, int64(5), stored.ProcessedCount)
	assert.Equal(t, "4", *stored.LastProcessedCursor)
	assert.Nil(t, stored.FinalBlock)
}

func TestSyncJobStreamFailureMarksJobFailed(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	h.fake.Stream = []provider.Transaction{
		providertest.Tx("0xf1", 10, testAddress, "0xp1", "1"),
		providertest.Tx("0xf2", 20, testAddress, "0xp2", "1"),
	}
	h.fake.StreamErr = errors.New("blockbook exploded")
	h.fake.FailAfter = 1

	job := h.claim(t, pendingJob(types.JobModeFull))
	h.worker.processJob(ctx, job)

	stored, err := h.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusFailed, stored.Status)
	require.NotNil(t, stored.Error)
	assert.Contains(t, *stored.Error, "blockbook exploded")
	require.NotNil(t, stored.CompletedAt)
	assert.Equal(t, int64(1), stored.ErrorsCount)
	// The transaction consumed before the failure is not lost.
	assert.Equal(t, int64(1), stored.ProcessedCount)
	assert.Equal(t, int64(1), stored.TransactionsAdded)

	byAction := auditsByAction(t, h.store, job.ID)
	require.Len(t, byAction[types.AuditActionError], 1)
	failure := byAction[types.AuditActionError][0]
	assert.Equal(t, "N/A", failure.TransactionHash)
	require.NotNil(t, failure.ErrorMessage)
	assert.Contains(t, *failure.ErrorMessage, "blockbook exploded")
}

// txRejectingStore fails upserts for one hash to exercise the
// continue-on-processor-error path.
type txRejectingStore struct {
	storage.Store
	rejectHash string
}

func (r *txRejectingStore) UpsertTransaction(ctx context.Context, txn *types.Transaction) error {
	if txn.TxHash == r.rejectHash {
		return errors.New("constraint violation")
	}
	return r.Store.UpsertTransaction(ctx, txn)
}

func TestSyncJobProcessorErrorCountsAndContinues(t *testing.T) {
	registry, err := chains.NewRegistry()
	require.NoError(t, err)
	clk := clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	rejecting := &txRejectingStore{Store: storage.NewMemoryStore(clk), rejectHash: "0xbad"}

	proc, err := processor.New(rejecting, registry, nil, processor.Config{})
	require.NoError(t, err)

	fake := providertest.New()
	fake.Stream = []provider.Transaction{
		providertest.Tx("0xbad", 10, testAddress, "0xp1", "1"),
		providertest.Tx("0xok", 20, testAddress, "0xp2", "1"),
	}
	providers := provider.NewRegistry()
	providers.Register(fake)

	w := New(rejecting, providers, registry, proc, nil, clk, Config{PollInterval: time.Millisecond})
	ctx := context.Background()

	job := pendingJob(types.JobModeFull)
	require.NoError(t, rejecting.CreateJob(ctx, job))
	claimed, err := rejecting.ClaimNextPendingJob(ctx)
	require.NoError(t, err)

	w.processJob(ctx, claimed)

	stored, err := rejecting.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCompleted, stored.Status)
	assert.Equal(t, int64(2), stored.ProcessedCount)
	assert.Equal(t, int64(1), stored.TransactionsAdded)
	assert.Equal(t, int64(1), stored.ErrorsCount)

	byAction := auditsByAction(t, rejecting, job.ID)
	require.Len(t, byAction[types.AuditActionAdded], 1)
	assert.Equal(t, "0xok", byAction[types.AuditActionAdded][0].TransactionHash)
}

func TestPartialModeLeavesRowsBelowWindowAlone(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	// 0xold predates the window; 0xin is inside it and orphaned.
	require.NoError(t, h.store.UpsertTransaction(ctx, localTx("0xold", testAddress, "0xp1", 50, "1")))
	require.NoError(t, h.store.UpsertTransaction(ctx, localTx("0xin", testAddress, "0xp2", 150, "1")))

	job := pendingJob(types.JobModePartial)
	job.FromBlock = int64Ptr(100)
	claimed := h.claim(t, job)
	h.worker.processJob(ctx, claimed)

	stored, err := h.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCompleted, stored.Status)
	assert.Equal(t, int64(1), stored.TransactionsSoftDeleted)

	old, err := h.store.GetTransaction(ctx, "ethereum", "0xold")
	require.NoError(t, err)
	assert.Nil(t, old.DeletedAt)
	in, err := h.store.GetTransaction(ctx, "ethereum", "0xin")
	require.NoError(t, err)
	assert.NotNil(t, in.DeletedAt)
}

func TestUnknownProviderFailsJob(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	job := pendingJob(types.JobModeFull)
	job.Provider = "nope"
	claimed := h.claim(t, job)
	h.worker.processJob(ctx, claimed)

	stored, err := h.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusFailed, stored.Status)
	require.NotNil(t, stored.Error)
	assert.Contains(t, *stored.Error, "unknown provider")
}

func TestSweepReturnsStaleJobsToPending(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	job := h.claim(t, pendingJob(types.JobModeFull))
	job.AsyncJobID = strPtr("prov-1")
	job.AsyncNextPageURL = strPtr("https://x/page/1")
	startedAt := h.clk.Now()
	job.AsyncJobStartedAt = &startedAt
	require.NoError(t, h.store.UpdateJob(ctx, job))

	h.clk.Advance(2 * time.Hour)
	h.worker.maybeSweep(ctx)

	stored, err := h.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusPending, stored.Status)
	assert.Nil(t, stored.AsyncJobID)
	assert.Nil(t, stored.AsyncNextPageURL)
	assert.Nil(t, stored.AsyncJobStartedAt)

	// The recovered job is claimable again and keeps its original start.
	reclaimed, err := h.store.ClaimNextPendingJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.Equal(t, job.ID, reclaimed.ID)
	require.NotNil(t, reclaimed.StartedAt)
	assert.Equal(t, startedAt, *reclaimed.StartedAt)
}

func TestSweepLeavesFreshRunningJobsAlone(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	job := h.claim(t, pendingJob(types.JobModeFull))

	h.clk.Advance(30 * time.Minute)
	h.worker.maybeSweep(ctx)

	stored, err := h.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusRunning, stored.Status)
}

func TestStartClaimsAndCompletesPendingJobs(t *testing.T) {
	h := newHarness(t, Config{PollInterval: time.Millisecond})
	ctx := context.Background()

	h.fake.Stream = []provider.Transaction{
		providertest.Tx("0xa1", 10, "0xsender", testAddress, "1"),
	}
	job := pendingJob(types.JobModeFull)
	require.NoError(t, h.store.CreateJob(ctx, job))

	h.worker.Start()
	defer h.worker.Stop(time.Second)

	require.Eventually(t, func() bool {
		stored, err := h.store.GetJob(ctx, job.ID)
		return err == nil && stored.Status == types.JobStatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	stored, err := h.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.TransactionsAdded)
}
