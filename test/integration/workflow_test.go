package integration

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongroomhq/strongroom/pkg/client"
	"github.com/strongroomhq/strongroom/pkg/types"
)

func workflowInput() client.CreateWorkflowInput {
	return client.CreateWorkflowInput{
		VaultID:        "vault-1",
		ChainAlias:     "ethereum",
		MarshalledHex:  "0xdeadbeef",
		OrganisationID: "org-1",
		CreatedBy:      types.CreatedBy{ID: "user-1", Type: types.CreatedByUser},
	}
}

// TestWorkflowLifecycleEndToEnd walks a transaction from creation to
// completed. User-facing steps go through the SDK; policy, signing,
// broadcast and indexing verdicts arrive as internal orchestrator events,
// the way the surrounding services deliver them.
func TestWorkflowLifecycleEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	s := newStack(t)
	ctx := context.Background()

	wf, err := s.client.CreateWorkflow(ctx, workflowInput())
	require.NoError(t, err)
	assert.Equal(t, types.StateCreated, wf.State)
	assert.Equal(t, int64(1), wf.Version)
	t.Logf("Created workflow %s", wf.ID)

	wf, err = s.client.ReviewWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateReview, wf.State)

	wf, err = s.client.ConfirmWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateEvaluatingPolicies, wf.State)

	wf, err = s.orch.Send(ctx, wf.ID, types.EventPoliciesRequireApproval,
		types.EventPayload{Approvers: []string{"user-2", "user-3"}}, "policy-engine")
	require.NoError(t, err)
	assert.Equal(t, types.StateWaitingApproval, wf.State)
	assert.Equal(t, []string{"user-2", "user-3"}, wf.Context.Approvers)

	wf, err = s.client.ApproveWorkflow(ctx, wf.ID, types.EventPayload{ApprovedBy: "user-2"})
	require.NoError(t, err)
	assert.Equal(t, types.StateApproved, wf.State)
	assert.Equal(t, "user-2", wf.Context.ApprovedBy)

	wf, err = s.orch.Send(ctx, wf.ID, types.EventRequestSignature, types.EventPayload{}, "signer")
	require.NoError(t, err)
	assert.Equal(t, types.StateWaitingSignature, wf.State)

	wf, err = s.orch.Send(ctx, wf.ID, types.EventSignatureReceived,
		types.EventPayload{Signature: "0xsigned"}, "signer")
	require.NoError(t, err)
	assert.Equal(t, types.StateBroadcasting, wf.State)
	assert.Equal(t, "0xsigned", wf.Context.Signature)

	wf, err = s.orch.Send(ctx, wf.ID, types.EventBroadcastSuccess,
		types.EventPayload{TxHash: "0xbeef01"}, "broadcaster")
	require.NoError(t, err)
	assert.Equal(t, types.StateIndexing, wf.State)
	assert.Equal(t, "0xbeef01", wf.Context.TxHash)

	wf, err = s.orch.Send(ctx, wf.ID, types.EventIndexingComplete,
		types.EventPayload{BlockNumber: int64Ptr(812)}, "indexer")
	require.NoError(t, err)
	assert.Equal(t, types.StateCompleted, wf.State)
	require.NotNil(t, wf.Context.BlockNumber)
	assert.Equal(t, int64(812), *wf.Context.BlockNumber)
	assert.Equal(t, int64(9), wf.Version)
	t.Logf("Workflow completed at version %d", wf.Version)

	got, err := s.client.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateCompleted, got.State)

	history, err := s.client.WorkflowHistory(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, history, 8)
	assert.Equal(t, types.EventStart, history[0].EventType)
	assert.Equal(t, "anonymous", history[0].TriggeredBy)
	assert.Equal(t, types.EventPoliciesRequireApproval, history[2].EventType)
	assert.Equal(t, "policy-engine", history[2].TriggeredBy)
	assert.Equal(t, types.EventIndexingComplete, history[7].EventType)
	assert.Equal(t, types.StateCompleted, history[7].ToState)

	// Terminal states accept nothing further.
	_, err = s.client.ApproveWorkflow(ctx, wf.ID, types.EventPayload{ApprovedBy: "user-2"})
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "INVALID_STATE_TRANSITION", apiErr.Code)
}

// TestWorkflowSkipReviewFastPath covers machine-initiated transactions:
// review is skipped at creation and a clean policy verdict routes straight
// to approved without a human in the loop.
func TestWorkflowSkipReviewFastPath(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	s := newStack(t)
	ctx := context.Background()

	input := workflowInput()
	input.CreatedBy = types.CreatedBy{ID: "treasury-bot", Type: types.CreatedBySystem}
	input.SkipReview = true

	wf, err := s.client.CreateWorkflow(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, types.StateCreated, wf.State)

	wf, err = s.client.ReviewWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateEvaluatingPolicies, wf.State)

	wf, err = s.orch.Send(ctx, wf.ID, types.EventPoliciesPassed, types.EventPayload{}, "policy-engine")
	require.NoError(t, err)
	assert.Equal(t, types.StateApproved, wf.State)
	assert.Empty(t, wf.Context.Approvers)
}
