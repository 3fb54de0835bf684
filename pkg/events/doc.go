/*
Package events provides an in-memory event broker for Strongroom's pub/sub messaging.

The events package implements a lightweight event bus for broadcasting domain
events to interested subscribers. It supports asynchronous event delivery with
non-blocking publish, enabling loose coupling between the workflow orchestrator,
the reconciliation worker, and observers such as the API layer and metrics.

# Architecture

Strongroom's event system provides non-blocking pub/sub messaging with buffered
channels:

	┌──────────────────── EVENT BROKER ────────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │              Event Broker                   │          │
	│  │  - In-memory message bus                    │          │
	│  │  - Topic-agnostic (all events broadcast)    │          │
	│  │  - Non-blocking publish                     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          Event Distribution                 │          │
	│  │                                              │          │
	│  │  Publisher → Event Channel (buffer: 100)    │          │
	│  │       ↓                                      │          │
	│  │  Broadcast Loop                              │          │
	│  │       ↓                                      │          │
	│  │  Subscriber Channels (buffer: 50 each)      │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Event Types                       │          │
	│  │                                              │          │
	│  │  Workflow Events:                           │          │
	│  │    - workflow.created                       │          │
	│  │    - workflow.transitioned                  │          │
	│  │    - workflow.completed                     │          │
	│  │    - workflow.failed                        │          │
	│  │                                              │          │
	│  │  Reconciliation Events:                     │          │
	│  │    - reconciliation.job.created             │          │
	│  │    - reconciliation.job.claimed             │          │
	│  │    - reconciliation.job.completed           │          │
	│  │    - reconciliation.job.failed              │          │
	│  │    - reconciliation.job.swept               │          │
	│  │    - reconciliation.job.deleted             │          │
	│  └────────────────────────────────────────────┘           │
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Subscribers                      │          │
	│  │                                              │          │
	│  │  Metrics: Count transitions for dashboards  │          │
	│  │  Logging: Structured audit trail            │          │
	│  │  Webhooks: Send notifications (future)      │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Event Broker:
  - Central message bus for event distribution
  - Manages subscriber lifecycle
  - Non-blocking publish (buffered channel)
  - Graceful shutdown via stop channel

Event:
  - ID: Unique event identifier
  - Type: Event type (workflow.transitioned, reconciliation.job.failed, etc.)
  - Timestamp: When event occurred
  - Message: Human-readable description
  - Metadata: Key-value pairs for additional context

Subscriber:
  - Channel that receives Event pointers
  - Buffered (50 events) to handle bursts
  - Created via broker.Subscribe()
  - Closed via broker.Unsubscribe()

# Event Flow

Publish Flow:
 1. Publisher calls broker.Publish(event)
 2. Event added to main event channel (non-blocking)
 3. Broadcast loop receives event
 4. Event sent to all subscriber channels
 5. Subscribers receive event asynchronously
 6. Full subscriber buffers skip (no blocking)

Subscribe Flow:
 1. Subscriber calls broker.Subscribe()
 2. New buffered channel created
 3. Channel registered in subscriber map
 4. Subscriber channel returned
 5. Subscriber receives events via channel

Unsubscribe Flow:
 1. Subscriber calls broker.Unsubscribe(channel)
 2. Channel removed from subscriber map
 3. Channel closed

# Usage

Creating and Starting Broker:

	import "github.com/strongroomhq/strongroom/pkg/events"

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

Subscribing to Events:

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			fmt.Printf("Event: %s - %s\n", event.Type, event.Message)
		}
	}()

Publishing Events:

	broker.Publish(&events.Event{
		Type:    events.EventWorkflowTransitioned,
		Message: "workflow moved to waiting_approval",
		Metadata: map[string]string{
			"workflow_id": wf.ID,
			"event":       "POLICIES_REQUIRE_APPROVAL",
			"to_state":    "waiting_approval",
		},
	})

Filtering Events by Type:

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			switch event.Type {
			case events.EventJobFailed:
				alertOnJobFailure(event)
			case events.EventWorkflowFailed:
				alertOnWorkflowFailure(event)
			default:
				// Ignore other events
			}
		}
	}()

# Integration Points

This package integrates with:

  - pkg/workflow: Publishes workflow lifecycle and transition events
  - pkg/reconcile: Publishes job creation and deletion events
  - pkg/worker: Publishes job claim, completion, failure, and sweep events
  - pkg/api: May stream events to operators (future)

# Event Types Catalog

Workflow Events:

EventWorkflowCreated:
  - Published when: Workflow row persisted at version 1
  - Metadata: workflow_id, chain_alias, organisation_id

EventWorkflowTransitioned:
  - Published when: Any accepted event moves a workflow between states
  - Metadata: workflow_id, event, from_state, to_state, version

EventWorkflowCompleted:
  - Published when: Workflow reaches the completed state
  - Metadata: workflow_id, tx_hash, block_number

EventWorkflowFailed:
  - Published when: Workflow reaches the failed state
  - Metadata: workflow_id, error

Reconciliation Events:

EventJobCreated:
  - Published when: New reconciliation job accepted
  - Metadata: job_id, address, chain_alias, mode

EventJobClaimed:
  - Published when: Worker claims a pending job
  - Metadata: job_id, mode, provider

EventJobCompleted:
  - Published when: Job reaches completed with final counters
  - Metadata: job_id, processed, added, soft_deleted, flagged

EventJobFailed:
  - Published when: Job fails after a checkpoint attempt
  - Metadata: job_id, error

EventJobSwept:
  - Published when: Sweeper returns a stale running job to pending
  - Metadata: job_id, stale_since

EventJobDeleted:
  - Published when: Operator deletes a pending job
  - Metadata: job_id

# Design Patterns

Non-Blocking Publish:
  - Publish sends to buffered channel
  - Returns immediately (no waiting)
  - Events may be dropped if buffer full
  - Trade-off: Throughput over guaranteed delivery

Fan-Out Pattern:
  - Single event broadcast to all subscribers
  - Each subscriber gets own channel
  - Independent processing rates
  - Full buffers skip to prevent blocking

Fire-and-Forget:
  - No acknowledgment from subscribers
  - No retry on delivery failure
  - Suitable for monitoring, not critical operations
  - Durable history lives in the workflow_events and audit tables, not here

# Limitations

Current Limitations:
  - In-memory only (no persistence)
  - No event replay or history
  - No guaranteed delivery (best effort)
  - No topic-based filtering (all events broadcast)

The durable records of what happened are the workflow event rows and the
reconciliation audit log in Postgres. This broker only exists for live
observers inside the process.

# See Also

  - pkg/workflow for workflow transition publishing
  - pkg/worker for reconciliation job lifecycle publishing
  - Pub/sub pattern: https://en.wikipedia.org/wiki/Publish%E2%80%93subscribe_pattern
*/
package events
