// Package workflow drives transaction signing workflows through an explicit
// state machine, from creation through review, policy evaluation, approval,
// signing, broadcasting and indexing to a terminal state.
//
// The package separates the decision from the write. Apply is a pure
// function that maps (state, context, event, payload) to the next state and
// the context effects; the Orchestrator runs Apply inside the store's
// transition transaction so the row lock, the version-conditional update and
// the event append land atomically.
//
// # Architecture
//
//	                 ┌─────────┐
//	                 │ created │
//	                 └────┬────┘
//	                      │ START
//	         skipReview   │
//	        ┌─────────────┼──────────────┐
//	        │             ▼              │
//	        │        ┌────────┐          │
//	        │        │ review │──CANCEL──┼────────────┐
//	        │        └────┬───┘          │            │
//	        │             │ CONFIRM      │            │
//	        ▼             ▼              │            │
//	      ┌─────────────────────┐        │            │
//	      │ evaluating_policies │◄───────┘            │
//	      └──────────┬──────────┘                     │
//	                 │                                │
//	   PASSED ┌──────┴────────┐ REQUIRE_APPROVAL      │
//	          ▼               ▼                       │
//	    ┌──────────┐   ┌──────────────────┐           │
//	    │ approved │◄──│ waiting_approval │──REJECT───┤
//	    └────┬─────┘   └──────────────────┘           │
//	         │ REQUEST_SIGNATURE                      │
//	         ▼                                        │
//	 ┌───────────────────┐                            │
//	 │ waiting_signature │──────SIGNATURE_FAILED──────┤
//	 └────────┬──────────┘                            │
//	          │ SIGNATURE_RECEIVED                    │
//	          ▼                                       ▼
//	 ┌──────────────┐        BROADCAST_FAILED   ┌──────────┐
//	 │ broadcasting │──────────────────────────►│  failed  │
//	 └────┬─────────┘◄─┐                        └──────────┘
//	      │            │ BROADCAST_RETRY              ▲
//	      │            │ (attempts < max)             │
//	      │ BROADCAST_SUCCESS                         │
//	      ▼                                           │
//	 ┌──────────┐        INDEXING_FAILED              │
//	 │ indexing │─────────────────────────────────────┘
//	 └────┬─────┘
//	      │ INDEXING_COMPLETE
//	      ▼
//	 ┌───────────┐
//	 │ completed │
//	 └───────────┘
//
// completed and failed are terminal. A terminal workflow rejects every
// further event with InvalidTransitionError, so replayed webhooks and
// double-clicked buttons cannot corrupt finished work.
//
// # Core Components
//
// Apply: the transition table as a pure function. It never touches storage,
// which keeps the full matrix testable without a database. Context effects
// are written through the passed pointer: approvers on
// POLICIES_REQUIRE_APPROVAL, the approver identity on APPROVE, the signature
// on SIGNATURE_RECEIVED, the transaction hash on BROADCAST_SUCCESS, the
// block number on INDEXING_COMPLETE, and error plus failedAt whenever a
// branch lands on failed.
//
// Orchestrator: the stateful wrapper. Create opens a workflow in state
// created at version 1 without writing a history row; only accepted events
// append to workflow_events, so a workflow whose history holds N rows is at
// version N+1. Send feeds one event through
// storage.Store.TransitionWorkflow, which locks the row, rehydrates the
// context, runs Apply and performs the version-conditional update. A lost
// race surfaces as ErrConcurrentModification and leaves no trace.
//
// BROADCAST_RETRY is the one self-loop: it stays in broadcasting and
// increments broadcastAttempts until the configured maximum, then gives up
// into failed. Each retry is still a real transition with its own version
// bump and history row.
//
// # Usage
//
//	orch := workflow.NewOrchestrator(store, broker, workflow.Config{
//		MaxBroadcastAttempts: 10,
//	})
//
//	wf, err := orch.Create(ctx, workflow.CreateInput{
//		VaultID:        "vault-1",
//		ChainAlias:     "eth-mainnet",
//		MarshalledHex:  "0x02f870...",
//		OrganisationID: "org-1",
//		CreatedBy:      types.CreatedBy{ID: "user-1", Type: types.CreatedByUser},
//	})
//	if err != nil {
//		return err
//	}
//
//	wf, err = orch.Send(ctx, wf.ID, types.EventStart, types.EventPayload{}, "user-1")
//
// # Integration Points
//
// The HTTP layer in pkg/api translates verbs (approve, reject, confirm,
// review) to state-machine events and maps InvalidTransitionError to 409.
// The events broker receives workflow.created, workflow.transitioned and,
// on terminal states, workflow.completed or workflow.failed. Counters in
// pkg/metrics track accepted transitions, rejected events and version
// conflicts.
//
// # Limitations
//
//   - No automatic retry on ErrConcurrentModification; callers decide
//     whether to re-read and resend.
//   - The state machine is fixed at compile time. There is no per-tenant
//     customization of states or transitions.
//   - Policy evaluation itself lives upstream; this package only consumes
//     its verdict events.
//
// # See Also
//
//   - pkg/storage: the transactional transition primitive
//   - pkg/types: states, events, payloads and sentinel errors
//   - pkg/api: HTTP surface for workflow operations
package workflow
