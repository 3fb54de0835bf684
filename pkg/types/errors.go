package types

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced across store, service and HTTP boundaries.
// Callers test them with errors.Is.
var (
	// ErrWorkflowNotFound: no workflow row with the given id.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrJobNotFound: no reconciliation job row with the given id.
	ErrJobNotFound = errors.New("reconciliation job not found")

	// ErrAddressNotFound: no address row for (address, chainAlias).
	ErrAddressNotFound = errors.New("address not found")

	// ErrConcurrentModification: a version-conditional workflow update
	// matched zero rows. Recoverable: re-read and retry.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrActiveJobExists: a second active job for the same
	// (address, chainAlias) was rejected by the partial unique index.
	ErrActiveJobExists = errors.New("active reconciliation job already exists")

	// ErrUnsupportedChain: the chain alias is not in the registry.
	ErrUnsupportedChain = errors.New("unsupported chain")

	// ErrValidation: bad input to a public operation.
	ErrValidation = errors.New("validation failed")
)

// InvalidTransitionError reports an event that is illegal from the
// workflow's current state. No row changes when it is returned.
type InvalidTransitionError struct {
	State WorkflowState
	Event EventType
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: event %s not allowed in state %s", e.Event, e.State)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var ite *InvalidTransitionError
	return errors.As(err, &ite)
}

// ProviderError wraps a failure talking to an external history provider.
// Transient errors are retried on the next polling pass in async mode.
type ProviderError struct {
	Provider  string
	Op        string
	Transient bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsTransientProviderError reports whether err is a provider error that a
// later pass may succeed on.
func IsTransientProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Transient
}
