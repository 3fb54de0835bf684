package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/strongroomhq/strongroom/pkg/events"
	"github.com/strongroomhq/strongroom/pkg/log"
	"github.com/strongroomhq/strongroom/pkg/metrics"
	"github.com/strongroomhq/strongroom/pkg/storage"
	"github.com/strongroomhq/strongroom/pkg/types"
)

// DefaultMaxBroadcastAttempts bounds BROADCAST_RETRY loops when the config
// does not say otherwise.
const DefaultMaxBroadcastAttempts = 10

// CreateInput carries the fields needed to open a new workflow.
type CreateInput struct {
	VaultID        string          `json:"vaultId"`
	ChainAlias     string          `json:"chainAlias"`
	MarshalledHex  string          `json:"marshalledHex"`
	OrganisationID string          `json:"organisationId"`
	CreatedBy      types.CreatedBy `json:"createdBy"`
	SkipReview     bool            `json:"skipReview"`
}

func (in CreateInput) validate() error {
	switch {
	case in.VaultID == "":
		return fmt.Errorf("%w: vaultId is required", types.ErrValidation)
	case in.ChainAlias == "":
		return fmt.Errorf("%w: chainAlias is required", types.ErrValidation)
	case in.MarshalledHex == "":
		return fmt.Errorf("%w: marshalledHex is required", types.ErrValidation)
	case in.OrganisationID == "":
		return fmt.Errorf("%w: organisationId is required", types.ErrValidation)
	case in.CreatedBy.ID == "":
		return fmt.Errorf("%w: createdBy.id is required", types.ErrValidation)
	}

	switch in.CreatedBy.Type {
	case types.CreatedByUser, types.CreatedBySystem, types.CreatedByWebhook:
		return nil
	default:
		return fmt.Errorf("%w: createdBy.type must be User, System or Webhook", types.ErrValidation)
	}
}

// Config holds orchestrator settings.
type Config struct {
	MaxBroadcastAttempts int
}

// Orchestrator drives workflows through the state machine. All writes go
// through the store's single-transaction transition so the workflow row and
// its event history cannot drift apart.
type Orchestrator struct {
	store                storage.Store
	broker               *events.Broker
	logger               zerolog.Logger
	maxBroadcastAttempts int
}

// NewOrchestrator creates an Orchestrator. broker may be nil when no live
// observers are wanted.
func NewOrchestrator(store storage.Store, broker *events.Broker, cfg Config) *Orchestrator {
	if cfg.MaxBroadcastAttempts <= 0 {
		cfg.MaxBroadcastAttempts = DefaultMaxBroadcastAttempts
	}
	return &Orchestrator{
		store:                store,
		broker:               broker,
		logger:               log.WithComponent("workflow"),
		maxBroadcastAttempts: cfg.MaxBroadcastAttempts,
	}
}

// Create persists a new workflow in state created at version 1.
func (o *Orchestrator) Create(ctx context.Context, input CreateInput) (*types.Workflow, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	wf := &types.Workflow{
		ID:      uuid.NewString(),
		State:   types.StateCreated,
		Version: 1,
		Context: types.WorkflowContext{
			VaultID:              input.VaultID,
			ChainAlias:           input.ChainAlias,
			MarshalledHex:        input.MarshalledHex,
			OrganisationID:       input.OrganisationID,
			CreatedBy:            input.CreatedBy,
			SkipReview:           input.SkipReview,
			MaxBroadcastAttempts: o.maxBroadcastAttempts,
		},
	}
	if err := o.store.CreateWorkflow(ctx, wf); err != nil {
		return nil, err
	}

	o.logger.Info().
		Str("workflow_id", wf.ID).
		Str("chain_alias", input.ChainAlias).
		Str("organisation_id", input.OrganisationID).
		Str("created_by", input.CreatedBy.ID).
		Bool("skip_review", input.SkipReview).
		Msg("Workflow created")

	o.publish(events.EventWorkflowCreated, "workflow created", map[string]string{
		"workflow_id":     wf.ID,
		"chain_alias":     input.ChainAlias,
		"organisation_id": input.OrganisationID,
	})
	return wf, nil
}

// Send applies one state-machine event to the workflow. The row lock,
// version-conditional write and event append happen in one store
// transaction; on success the returned workflow carries the bumped version.
func (o *Orchestrator) Send(ctx context.Context, id string, event types.EventType, payload types.EventPayload, triggeredBy string) (*types.Workflow, error) {
	var fromState types.WorkflowState

	wf, err := o.store.TransitionWorkflow(ctx, id, func(w *types.Workflow) (*types.WorkflowEvent, error) {
		fromState = w.State
		next, err := Apply(w.State, &w.Context, event, payload)
		if err != nil {
			return nil, err
		}
		w.State = next
		return &types.WorkflowEvent{
			ID:           uuid.NewString(),
			EventType:    event,
			EventPayload: payload,
			FromState:    fromState,
			ToState:      next,
			TriggeredBy:  triggeredBy,
		}, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, types.ErrConcurrentModification):
			metrics.WorkflowConflictsTotal.Inc()
		case types.IsInvalidTransition(err):
			metrics.WorkflowRejectionsTotal.Inc()
			o.logger.Warn().
				Str("workflow_id", id).
				Str("event", string(event)).
				Str("state", string(fromState)).
				Str("triggered_by", triggeredBy).
				Msg("Rejected illegal workflow event")
		}
		return nil, err
	}

	metrics.WorkflowTransitionsTotal.WithLabelValues(string(event), string(wf.State)).Inc()
	o.logger.Info().
		Str("workflow_id", wf.ID).
		Str("event", string(event)).
		Str("from_state", string(fromState)).
		Str("to_state", string(wf.State)).
		Int64("version", wf.Version).
		Str("triggered_by", triggeredBy).
		Msg("Workflow transitioned")

	o.publish(events.EventWorkflowTransitioned, "workflow transitioned", map[string]string{
		"workflow_id": wf.ID,
		"event":       string(event),
		"from_state":  string(fromState),
		"to_state":    string(wf.State),
		"version":     strconv.FormatInt(wf.Version, 10),
	})

	switch wf.State {
	case types.StateCompleted:
		o.publish(events.EventWorkflowCompleted, "workflow completed", map[string]string{
			"workflow_id": wf.ID,
			"tx_hash":     wf.Context.TxHash,
		})
	case types.StateFailed:
		o.publish(events.EventWorkflowFailed, "workflow failed", map[string]string{
			"workflow_id": wf.ID,
			"error":       wf.Context.Error,
		})
	}
	return wf, nil
}

// GetByID returns the workflow without locking it.
func (o *Orchestrator) GetByID(ctx context.Context, id string) (*types.Workflow, error) {
	return o.store.GetWorkflow(ctx, id)
}

// GetHistory returns the workflow's accepted events ordered by createdAt
// ascending.
func (o *Orchestrator) GetHistory(ctx context.Context, id string) ([]*types.WorkflowEvent, error) {
	if _, err := o.store.GetWorkflow(ctx, id); err != nil {
		return nil, err
	}
	return o.store.ListWorkflowEvents(ctx, id)
}

func (o *Orchestrator) publish(eventType events.EventType, msg string, metadata map[string]string) {
	if o.broker == nil {
		return
	}
	o.broker.Publish(&events.Event{
		Type:     eventType,
		Message:  msg,
		Metadata: metadata,
	})
}
