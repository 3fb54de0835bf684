package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongroomhq/strongroom/pkg/types"
)

func int64Ptr(v int64) *int64 { return &v }

func TestApplyTransitionTable(t *testing.T) {
	tests := []struct {
		name      string
		state     types.WorkflowState
		ctx       types.WorkflowContext
		event     types.EventType
		payload   types.EventPayload
		wantState types.WorkflowState
		check     func(t *testing.T, ctx types.WorkflowContext)
	}{
		{
			name:      "start enters review",
			state:     types.StateCreated,
			event:     types.EventStart,
			wantState: types.StateReview,
		},
		{
			name:      "start skips review when flagged",
			state:     types.StateCreated,
			ctx:       types.WorkflowContext{SkipReview: true},
			event:     types.EventStart,
			wantState: types.StateEvaluatingPolicies,
		},
		{
			name:      "confirm leaves review",
			state:     types.StateReview,
			event:     types.EventConfirm,
			wantState: types.StateEvaluatingPolicies,
		},
		{
			name:      "cancel records the reason",
			state:     types.StateReview,
			event:     types.EventCancel,
			payload:   types.EventPayload{Reason: "wrong amount"},
			wantState: types.StateFailed,
			check: func(t *testing.T, ctx types.WorkflowContext) {
				assert.Equal(t, "wrong amount", ctx.Error)
				assert.Equal(t, "review", ctx.FailedAt)
			},
		},
		{
			name:      "cancel defaults the reason",
			state:     types.StateReview,
			event:     types.EventCancel,
			wantState: types.StateFailed,
			check: func(t *testing.T, ctx types.WorkflowContext) {
				assert.Equal(t, "Cancelled by user", ctx.Error)
				assert.Equal(t, "review", ctx.FailedAt)
			},
		},
		{
			name:      "policies pass straight to approved",
			state:     types.StateEvaluatingPolicies,
			event:     types.EventPoliciesPassed,
			wantState: types.StateApproved,
		},
		{
			name:      "policies require approval",
			state:     types.StateEvaluatingPolicies,
			event:     types.EventPoliciesRequireApproval,
			payload:   types.EventPayload{Approvers: []string{"alice", "bob"}},
			wantState: types.StateWaitingApproval,
			check: func(t *testing.T, ctx types.WorkflowContext) {
				assert.Equal(t, []string{"alice", "bob"}, ctx.Approvers)
			},
		},
		{
			name:      "policies reject",
			state:     types.StateEvaluatingPolicies,
			event:     types.EventPoliciesRejected,
			payload:   types.EventPayload{Reason: "amount over limit"},
			wantState: types.StateFailed,
			check: func(t *testing.T, ctx types.WorkflowContext) {
				assert.Equal(t, "amount over limit", ctx.Error)
				assert.Equal(t, "evaluating_policies", ctx.FailedAt)
			},
		},
		{
			name:      "approval granted",
			state:     types.StateWaitingApproval,
			event:     types.EventApprove,
			payload:   types.EventPayload{ApprovedBy: "alice"},
			wantState: types.StateApproved,
			check: func(t *testing.T, ctx types.WorkflowContext) {
				assert.Equal(t, "alice", ctx.ApprovedBy)
			},
		},
		{
			name:      "approval rejected",
			state:     types.StateWaitingApproval,
			event:     types.EventReject,
			payload:   types.EventPayload{RejectedBy: "bob", Reason: "unknown destination"},
			wantState: types.StateFailed,
			check: func(t *testing.T, ctx types.WorkflowContext) {
				assert.Equal(t, "unknown destination", ctx.Error)
				assert.Equal(t, "waiting_approval", ctx.FailedAt)
			},
		},
		{
			name:      "signature requested",
			state:     types.StateApproved,
			event:     types.EventRequestSignature,
			wantState: types.StateWaitingSignature,
		},
		{
			name:      "signature received",
			state:     types.StateWaitingSignature,
			event:     types.EventSignatureReceived,
			payload:   types.EventPayload{Signature: "0xdeadbeef"},
			wantState: types.StateBroadcasting,
			check: func(t *testing.T, ctx types.WorkflowContext) {
				assert.Equal(t, "0xdeadbeef", ctx.Signature)
			},
		},
		{
			name:      "signature failed",
			state:     types.StateWaitingSignature,
			event:     types.EventSignatureFailed,
			payload:   types.EventPayload{Reason: "signer offline"},
			wantState: types.StateFailed,
			check: func(t *testing.T, ctx types.WorkflowContext) {
				assert.Equal(t, "signer offline", ctx.Error)
				assert.Equal(t, "waiting_signature", ctx.FailedAt)
			},
		},
		{
			name:      "broadcast success",
			state:     types.StateBroadcasting,
			event:     types.EventBroadcastSuccess,
			payload:   types.EventPayload{TxHash: "0xabc123"},
			wantState: types.StateIndexing,
			check: func(t *testing.T, ctx types.WorkflowContext) {
				assert.Equal(t, "0xabc123", ctx.TxHash)
			},
		},
		{
			name:      "broadcast failed is terminal",
			state:     types.StateBroadcasting,
			event:     types.EventBroadcastFailed,
			payload:   types.EventPayload{Error: "nonce too low"},
			wantState: types.StateFailed,
			check: func(t *testing.T, ctx types.WorkflowContext) {
				assert.Equal(t, "nonce too low", ctx.Error)
				assert.Equal(t, "broadcasting", ctx.FailedAt)
			},
		},
		{
			name:      "indexing complete records block",
			state:     types.StateIndexing,
			event:     types.EventIndexingComplete,
			payload:   types.EventPayload{BlockNumber: int64Ptr(19_234_567)},
			wantState: types.StateCompleted,
			check: func(t *testing.T, ctx types.WorkflowContext) {
				require.NotNil(t, ctx.BlockNumber)
				assert.Equal(t, int64(19_234_567), *ctx.BlockNumber)
			},
		},
		{
			name:      "indexing failed",
			state:     types.StateIndexing,
			event:     types.EventIndexingFailed,
			payload:   types.EventPayload{Error: "block reorged"},
			wantState: types.StateFailed,
			check: func(t *testing.T, ctx types.WorkflowContext) {
				assert.Equal(t, "block reorged", ctx.Error)
				assert.Equal(t, "indexing", ctx.FailedAt)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := tt.ctx
			got, err := Apply(tt.state, &ctx, tt.event, tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, got)
			if tt.check != nil {
				tt.check(t, ctx)
			}
		})
	}
}

func TestApplyBroadcastRetryCountsAttempts(t *testing.T) {
	ctx := types.WorkflowContext{MaxBroadcastAttempts: 3}
	retry := types.EventPayload{Error: "gateway timeout"}

	for i := 1; i <= 3; i++ {
		state, err := Apply(types.StateBroadcasting, &ctx, types.EventBroadcastRetry, retry)
		require.NoError(t, err)
		assert.Equal(t, types.StateBroadcasting, state)
		assert.Equal(t, i, ctx.BroadcastAttempts)
		assert.Empty(t, ctx.Error)
	}

	// Attempts are exhausted, the next retry gives up.
	state, err := Apply(types.StateBroadcasting, &ctx, types.EventBroadcastRetry, retry)
	require.NoError(t, err)
	assert.Equal(t, types.StateFailed, state)
	assert.Equal(t, 3, ctx.BroadcastAttempts)
	assert.Equal(t, "gateway timeout", ctx.Error)
	assert.Equal(t, "broadcasting", ctx.FailedAt)
}

func TestApplyTerminalStatesRejectEverything(t *testing.T) {
	events := []types.EventType{
		types.EventStart,
		types.EventConfirm,
		types.EventCancel,
		types.EventPoliciesPassed,
		types.EventPoliciesRequireApproval,
		types.EventPoliciesRejected,
		types.EventApprove,
		types.EventReject,
		types.EventRequestSignature,
		types.EventSignatureReceived,
		types.EventSignatureFailed,
		types.EventBroadcastSuccess,
		types.EventBroadcastRetry,
		types.EventBroadcastFailed,
		types.EventIndexingComplete,
		types.EventIndexingFailed,
	}

	for _, terminal := range []types.WorkflowState{types.StateCompleted, types.StateFailed} {
		for _, event := range events {
			ctx := types.WorkflowContext{}
			_, err := Apply(terminal, &ctx, event, types.EventPayload{})
			require.Error(t, err, "state %s must reject %s", terminal, event)
			assert.True(t, types.IsInvalidTransition(err))
		}
	}
}

func TestApplyRejectsEventsOutOfSequence(t *testing.T) {
	tests := []struct {
		state types.WorkflowState
		event types.EventType
	}{
		{types.StateCreated, types.EventConfirm},
		{types.StateCreated, types.EventApprove},
		{types.StateReview, types.EventStart},
		{types.StateReview, types.EventPoliciesPassed},
		{types.StateEvaluatingPolicies, types.EventApprove},
		{types.StateWaitingApproval, types.EventRequestSignature},
		{types.StateApproved, types.EventSignatureReceived},
		{types.StateWaitingSignature, types.EventBroadcastSuccess},
		{types.StateBroadcasting, types.EventIndexingComplete},
		{types.StateIndexing, types.EventBroadcastSuccess},
	}

	for _, tt := range tests {
		ctx := types.WorkflowContext{VaultID: "vault-1"}
		_, err := Apply(tt.state, &ctx, tt.event, types.EventPayload{})
		require.Error(t, err, "state %s must reject %s", tt.state, tt.event)
		assert.True(t, types.IsInvalidTransition(err))
		assert.Equal(t, "vault-1", ctx.VaultID)
		assert.Empty(t, ctx.Error, "rejected events must not touch the context")
	}
}
