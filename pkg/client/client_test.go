package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongroomhq/strongroom/pkg/api"
	"github.com/strongroomhq/strongroom/pkg/chains"
	"github.com/strongroomhq/strongroom/pkg/clock"
	"github.com/strongroomhq/strongroom/pkg/reconcile"
	"github.com/strongroomhq/strongroom/pkg/storage"
	"github.com/strongroomhq/strongroom/pkg/types"
	"github.com/strongroomhq/strongroom/pkg/workflow"
)

const testAddress = "0xAbc0000000000000000000000000000000000001"

func newTestAPI(t *testing.T, jwtSecret string) (*httptest.Server, *storage.MemoryStore) {
	t.Helper()

	registry, err := chains.NewRegistry()
	require.NoError(t, err)

	clk := clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	store := storage.NewMemoryStore(clk)
	svc := reconcile.NewService(store, registry, nil)
	orch := workflow.NewOrchestrator(store, nil, workflow.Config{})

	srv := api.NewServer(api.Config{ListenAddr: ":0", JWTSecret: jwtSecret, Version: "test"}, store, svc, orch)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, store
}

func testWorkflowInput() CreateWorkflowInput {
	return CreateWorkflowInput{
		VaultID:        "vault-1",
		ChainAlias:     "ethereum",
		MarshalledHex:  "0xdeadbeef",
		OrganisationID: "org-1",
		CreatedBy:      types.CreatedBy{ID: "user-1", Type: types.CreatedByUser},
	}
}

func TestReconcileRoundTrip(t *testing.T) {
	ts, _ := newTestAPI(t, "")
	c := New(ts.URL)
	ctx := context.Background()

	job, err := c.Reconcile(ctx, testAddress, "ethereum", ReconcileRequest{Mode: types.JobModeFull})
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusPending, job.Status)
	assert.Equal(t, types.JobModeFull, job.Mode)
	assert.Equal(t, "0xabc0000000000000000000000000000000000001", job.Address)
	assert.Equal(t, "blockbook", job.Provider)

	page, err := c.ListJobs(ctx, testAddress, "ethereum", 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, job.ID, page.Data[0].JobID)

	detail, err := c.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.Job)
	assert.Equal(t, job.ID, detail.Job.ID)
	assert.Empty(t, detail.AuditLog)
}

func TestWorkflowRoundTrip(t *testing.T) {
	ts, _ := newTestAPI(t, "")
	c := New(ts.URL)
	ctx := context.Background()

	wf, err := c.CreateWorkflow(ctx, testWorkflowInput())
	require.NoError(t, err)
	assert.Equal(t, types.StateCreated, wf.State)

	wf, err = c.ReviewWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateReview, wf.State)

	wf, err = c.ConfirmWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateEvaluatingPolicies, wf.State)

	got, err := c.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.Version, got.Version)

	history, err := c.WorkflowHistory(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, types.EventStart, history[0].EventType)
	assert.Equal(t, types.EventConfirm, history[1].EventType)
}

func TestApprovalPayloadReachesServer(t *testing.T) {
	ts, store := newTestAPI(t, "")
	c := New(ts.URL)
	ctx := context.Background()

	wf, err := c.CreateWorkflow(ctx, testWorkflowInput())
	require.NoError(t, err)
	_, err = c.ReviewWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	_, err = c.ConfirmWorkflow(ctx, wf.ID)
	require.NoError(t, err)

	// Policy evaluation is internal to the server process; simulate it.
	orch := workflow.NewOrchestrator(store, nil, workflow.Config{})
	_, err = orch.Send(ctx, wf.ID, types.EventPoliciesRequireApproval, types.EventPayload{Approvers: []string{"user-2"}}, "policy-engine")
	require.NoError(t, err)

	approved, err := c.ApproveWorkflow(ctx, wf.ID, types.EventPayload{ApprovedBy: "user-2"})
	require.NoError(t, err)
	assert.Equal(t, types.StateApproved, approved.State)
	assert.Equal(t, "user-2", approved.Context.ApprovedBy)
}

func TestAPIErrorDecoding(t *testing.T) {
	ts, _ := newTestAPI(t, "")
	c := New(ts.URL)
	ctx := context.Background()

	_, err := c.GetJob(ctx, "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.StatusCode)
	assert.Equal(t, "NOT_FOUND", apiErr.Code)
	assert.False(t, apiErr.Retryable)
	assert.Contains(t, apiErr.Error(), "NOT_FOUND")

	_, err = c.Reconcile(ctx, testAddress, "dogechain", ReconcileRequest{})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.StatusCode)
	assert.Equal(t, "VALIDATION", apiErr.Code)
}

func TestInvalidTransitionSurfacesConflict(t *testing.T) {
	ts, _ := newTestAPI(t, "")
	c := New(ts.URL)
	ctx := context.Background()

	wf, err := c.CreateWorkflow(ctx, testWorkflowInput())
	require.NoError(t, err)

	_, err = c.ApproveWorkflow(ctx, wf.ID, types.EventPayload{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 409, apiErr.StatusCode)
	assert.Equal(t, "INVALID_STATE_TRANSITION", apiErr.Code)
}

func TestBearerTokenAttached(t *testing.T) {
	ts, _ := newTestAPI(t, "client-secret")
	ctx := context.Background()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("client-secret"))
	require.NoError(t, err)

	authed := New(ts.URL, WithToken(token))
	wf, err := authed.CreateWorkflow(ctx, testWorkflowInput())
	require.NoError(t, err)
	assert.NotEmpty(t, wf.ID)

	anon := New(ts.URL)
	_, err = anon.GetWorkflow(ctx, wf.ID)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.StatusCode)
	assert.Equal(t, "UNAUTHENTICATED", apiErr.Code)
}

func TestHealthProbes(t *testing.T) {
	ts, _ := newTestAPI(t, "")
	c := New(ts.URL)
	ctx := context.Background()

	health, err := c.Healthz(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "test", health.Version)

	ready, err := c.Readyz(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ready", ready.Status)
	assert.Equal(t, "ok", ready.Checks["database"])
}

func TestTransportErrorIsNotAPIError(t *testing.T) {
	c := New("http://127.0.0.1:1")

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := c.Healthz(ctx)
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}
