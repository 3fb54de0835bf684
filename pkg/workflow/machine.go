package workflow

import (
	"github.com/strongroomhq/strongroom/pkg/types"
)

// Apply computes the target state for event from the given state, applying
// the event's context effects in place. Illegal (state, event) pairs return
// InvalidTransitionError; terminal states accept nothing.
//
// Apply is a pure function of its inputs. Persistence, versioning and event
// history live in the Orchestrator.
func Apply(state types.WorkflowState, wctx *types.WorkflowContext, event types.EventType, payload types.EventPayload) (types.WorkflowState, error) {
	if state.Terminal() {
		return "", &types.InvalidTransitionError{State: state, Event: event}
	}

	switch state {
	case types.StateCreated:
		if event == types.EventStart {
			if wctx.SkipReview {
				return types.StateEvaluatingPolicies, nil
			}
			return types.StateReview, nil
		}

	case types.StateReview:
		switch event {
		case types.EventConfirm:
			return types.StateEvaluatingPolicies, nil
		case types.EventCancel:
			reason := payload.Reason
			if reason == "" {
				reason = "Cancelled by user"
			}
			return fail(wctx, state, reason), nil
		}

	case types.StateEvaluatingPolicies:
		switch event {
		case types.EventPoliciesPassed:
			return types.StateApproved, nil
		case types.EventPoliciesRequireApproval:
			wctx.Approvers = append([]string(nil), payload.Approvers...)
			return types.StateWaitingApproval, nil
		case types.EventPoliciesRejected:
			return fail(wctx, state, payload.Reason), nil
		}

	case types.StateWaitingApproval:
		switch event {
		case types.EventApprove:
			wctx.ApprovedBy = payload.ApprovedBy
			return types.StateApproved, nil
		case types.EventReject:
			return fail(wctx, state, payload.Reason), nil
		}

	case types.StateApproved:
		if event == types.EventRequestSignature {
			return types.StateWaitingSignature, nil
		}

	case types.StateWaitingSignature:
		switch event {
		case types.EventSignatureReceived:
			wctx.Signature = payload.Signature
			return types.StateBroadcasting, nil
		case types.EventSignatureFailed:
			return fail(wctx, state, payload.Reason), nil
		}

	case types.StateBroadcasting:
		switch event {
		case types.EventBroadcastSuccess:
			wctx.TxHash = payload.TxHash
			return types.StateIndexing, nil
		case types.EventBroadcastRetry:
			if wctx.BroadcastAttempts < wctx.MaxBroadcastAttempts {
				wctx.BroadcastAttempts++
				return types.StateBroadcasting, nil
			}
			return fail(wctx, state, payload.Error), nil
		case types.EventBroadcastFailed:
			return fail(wctx, state, payload.Error), nil
		}

	case types.StateIndexing:
		switch event {
		case types.EventIndexingComplete:
			if payload.BlockNumber != nil {
				block := *payload.BlockNumber
				wctx.BlockNumber = &block
			}
			return types.StateCompleted, nil
		case types.EventIndexingFailed:
			return fail(wctx, state, payload.Error), nil
		}
	}

	return "", &types.InvalidTransitionError{State: state, Event: event}
}

// fail records why and where the workflow died, then routes it to failed.
func fail(wctx *types.WorkflowContext, from types.WorkflowState, reason string) types.WorkflowState {
	wctx.Error = reason
	wctx.FailedAt = string(from)
	return types.StateFailed
}
