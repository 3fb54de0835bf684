package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/strongroomhq/strongroom/pkg/chains"
	"github.com/strongroomhq/strongroom/pkg/events"
	"github.com/strongroomhq/strongroom/pkg/log"
	"github.com/strongroomhq/strongroom/pkg/storage"
	"github.com/strongroomhq/strongroom/pkg/types"
)

// Listing bounds. Callers asking for more than MaxListLimit get it clamped.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// CreateJobInput carries the fields for opening a reconciliation job.
// Mode defaults to partial. The block and timestamp bounds are optional.
type CreateJobInput struct {
	Address       string        `json:"address"`
	ChainAlias    string        `json:"chainAlias"`
	Mode          types.JobMode `json:"mode,omitempty"`
	FromBlock     *int64        `json:"fromBlock,omitempty"`
	ToBlock       *int64        `json:"toBlock,omitempty"`
	FromTimestamp *time.Time    `json:"fromTimestamp,omitempty"`
	ToTimestamp   *time.Time    `json:"toTimestamp,omitempty"`
}

// JobDetail is a job together with its audit log, ordered by createdAt
// ascending.
type JobDetail struct {
	Job      *types.ReconciliationJob `json:"job"`
	AuditLog []*types.AuditEntry      `json:"auditLog"`
}

// Service validates job-creation requests, computes reorg-safe windows and
// exposes retrieval. The one-active-job rule is enforced by the store's
// partial unique index; Service surfaces it as types.ErrActiveJobExists.
type Service struct {
	store    storage.Store
	registry *chains.Registry
	broker   *events.Broker
	logger   zerolog.Logger
}

// NewService creates a reconciliation Service. broker may be nil.
func NewService(store storage.Store, registry *chains.Registry, broker *events.Broker) *Service {
	return &Service{
		store:    store,
		registry: registry,
		broker:   broker,
		logger:   log.WithComponent("reconcile"),
	}
}

// FindActiveJob returns the pending or running job for the pair, or nil.
func (s *Service) FindActiveJob(ctx context.Context, address, chainAlias string) (*types.ReconciliationJob, error) {
	return s.store.FindActiveJob(ctx, s.registry.NormalizeAddress(chainAlias, address), chainAlias)
}

// DeleteJob removes a pending job. Running and terminal jobs are not
// deletable; the caller gets types.ErrJobNotFound for those.
func (s *Service) DeleteJob(ctx context.Context, id string) error {
	if err := s.store.DeletePendingJob(ctx, id); err != nil {
		return err
	}

	s.logger.Info().Str("job_id", id).Msg("Deleted pending reconciliation job")
	s.publish(events.EventJobDeleted, "reconciliation job deleted", map[string]string{
		"job_id": id,
	})
	return nil
}

// CreateJob validates the input, resolves the provider from the chain
// registry, computes the reorg-safe window for partial mode and persists a
// pending job with zeroed counters. A partial job with no checkpoint to
// resume from is upgraded to full.
func (s *Service) CreateJob(ctx context.Context, input CreateJobInput) (*types.ReconciliationJob, error) {
	if input.Address == "" {
		return nil, fmt.Errorf("%w: address is required", types.ErrValidation)
	}
	chain, err := s.registry.Get(input.ChainAlias)
	if err != nil {
		return nil, err
	}

	mode := input.Mode
	switch mode {
	case "":
		mode = types.JobModePartial
	case types.JobModeFull, types.JobModePartial:
	default:
		return nil, fmt.Errorf("%w: mode must be full or partial", types.ErrValidation)
	}
	if input.FromBlock != nil && input.ToBlock != nil && *input.ToBlock < *input.FromBlock {
		return nil, fmt.Errorf("%w: toBlock must not be below fromBlock", types.ErrValidation)
	}

	address := s.registry.NormalizeAddress(chain.Alias, input.Address)

	// The Address row carries the reconciliation checkpoint. Creating it
	// here gives completed jobs a place to land lastReconciledBlock.
	addr, err := s.ensureAddress(ctx, address, chain.Alias)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve address row: %w", err)
	}

	fromBlock := input.FromBlock
	if mode == types.JobModePartial && fromBlock == nil {
		if addr.LastReconciledBlock == nil {
			// Nothing reconciled yet, so a partial run has no floor.
			mode = types.JobModeFull
		} else {
			from := s.registry.SafeFromBlock(*addr.LastReconciledBlock, chain.Alias)
			fromBlock = &from
		}
	}

	job := &types.ReconciliationJob{
		ID:            uuid.NewString(),
		Address:       address,
		ChainAlias:    chain.Alias,
		Provider:      chain.Provider,
		Mode:          mode,
		Status:        types.JobStatusPending,
		FromBlock:     fromBlock,
		ToBlock:       input.ToBlock,
		FromTimestamp: input.FromTimestamp,
		ToTimestamp:   input.ToTimestamp,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("address", address).
		Str("chain_alias", chain.Alias).
		Str("provider", chain.Provider).
		Str("mode", string(mode)).
		Msg("Reconciliation job created")

	s.publish(events.EventJobCreated, "reconciliation job created", map[string]string{
		"job_id":      job.ID,
		"address":     address,
		"chain_alias": chain.Alias,
		"mode":        string(mode),
	})
	return job, nil
}

// GetJob returns the job and its audit log.
func (s *Service) GetJob(ctx context.Context, id string) (*JobDetail, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	audit, err := s.store.ListAuditByJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load audit log: %w", err)
	}
	return &JobDetail{Job: job, AuditLog: audit}, nil
}

// ListJobs returns a page of job summaries for the pair, newest first.
func (s *Service) ListJobs(ctx context.Context, address, chainAlias string, limit, offset int) (*types.JobPage, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	data, total, err := s.store.ListJobs(ctx, s.registry.NormalizeAddress(chainAlias, address), chainAlias, limit, offset)
	if err != nil {
		return nil, err
	}
	return &types.JobPage{Data: data, Total: total}, nil
}

func (s *Service) ensureAddress(ctx context.Context, address, chainAlias string) (*types.Address, error) {
	addr, err := s.store.GetAddress(ctx, address, chainAlias)
	if err == nil {
		return addr, nil
	}
	if !errors.Is(err, types.ErrAddressNotFound) {
		return nil, err
	}

	addr = &types.Address{
		ID:         uuid.NewString(),
		Address:    address,
		ChainAlias: chainAlias,
	}
	if err := s.store.CreateAddress(ctx, addr); err != nil {
		// Lost a create race; the winner's row serves just as well.
		if existing, getErr := s.store.GetAddress(ctx, address, chainAlias); getErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return addr, nil
}

func (s *Service) publish(eventType events.EventType, msg string, metadata map[string]string) {
	if s.broker == nil {
		return
	}
	s.broker.Publish(&events.Event{
		Type:     eventType,
		Message:  msg,
		Metadata: metadata,
	})
}
