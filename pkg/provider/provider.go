package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/strongroomhq/strongroom/pkg/types"
)

// ErrUnknownProvider: no gateway registered under the requested name.
var ErrUnknownProvider = errors.New("unknown provider")

// Normalized is the provider-independent projection compared against local
// rows during reconciliation. Numeric fields stay strings; providers
// disagree on integer widths and fee denominations, so values are compared
// textually.
type Normalized struct {
	FromAddress string `json:"fromAddress"`
	ToAddress   string `json:"toAddress"`
	BlockNumber string `json:"blockNumber"`
	Fee         string `json:"fee"`
}

// Transaction is one provider-reported transaction. RawData preserves the
// provider's wire object for audit snapshots; Cursor marks the resume point
// directly after this transaction.
type Transaction struct {
	TransactionHash string        `json:"transactionHash"`
	Cursor          string        `json:"cursor"`
	RawData         types.JSONMap `json:"rawData"`
	Normalized      Normalized    `json:"normalized"`
}

// FetchOptions bounds a transaction stream. Cursor resumes a previous
// stream after the transaction that produced it; the zero value streams
// from the beginning.
type FetchOptions struct {
	Cursor        string
	FromBlock     *int64
	ToBlock       *int64
	FromTimestamp *time.Time
	ToTimestamp   *time.Time
}

// Iterator streams transactions lazily, fetching provider pages as they
// are consumed. Next reports false at the end of the stream or on failure;
// Err distinguishes. Callers own Close.
type Iterator interface {
	Next() bool
	Transaction() *Transaction
	Err() error
	Close() error
}

// AsyncWindow bounds a server-side history export.
type AsyncWindow struct {
	StartBlock *int64 `json:"startBlock,omitempty"`
	EndBlock   *int64 `json:"endBlock,omitempty"`
}

// AsyncJob identifies a server-side history export in progress.
type AsyncJob struct {
	JobID       string `json:"jobId"`
	NextPageURL string `json:"nextPageUrl"`
}

// AsyncResults is one polled page of a server-side export. IsReady false
// means the export is still being prepared and the same URL should be
// polled again later. NextPageURL is set when IsComplete is false.
type AsyncResults struct {
	IsReady      bool          `json:"isReady"`
	IsComplete   bool          `json:"isComplete"`
	Transactions []Transaction `json:"transactions"`
	NextPageURL  string        `json:"nextPageUrl,omitempty"`
}

// Gateway is the contract between the reconciliation worker and an external
// transaction-history provider.
type Gateway interface {
	// Name returns the registry key, e.g. "blockbook".
	Name() string

	// SupportsAsyncJobs reports whether the provider offers server-side
	// export jobs for the chain. The worker additionally gates the async
	// flow behind its own configuration.
	SupportsAsyncJobs(chainAlias string) bool

	// GetCurrentBlockNumber returns the chain tip height, or nil when the
	// provider cannot report one.
	GetCurrentBlockNumber(ctx context.Context, chainAlias string) (*int64, error)

	// FetchTransactions opens a lazy, cursor-restartable stream over the
	// address's history. Errors surface through the iterator.
	FetchTransactions(ctx context.Context, chainAlias, address string, opts FetchOptions) Iterator

	// StartAsyncJob asks the provider to prepare the address's history
	// server-side. Results are polled via FetchAsyncJobResults.
	StartAsyncJob(ctx context.Context, chainAlias, address string, window AsyncWindow) (*AsyncJob, error)

	// FetchAsyncJobResults polls one page of a server-side export.
	// nextPageURL must be absolute, as returned by StartAsyncJob or a
	// previous page.
	FetchAsyncJobResults(ctx context.Context, nextPageURL string) (*AsyncResults, error)
}

// Registry resolves provider names from the chain registry to gateways.
type Registry struct {
	mu       sync.RWMutex
	gateways map[string]Gateway
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{gateways: make(map[string]Gateway)}
}

// Register adds or replaces the gateway under its own name.
func (r *Registry) Register(gw Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[gw.Name()] = gw
}

// Get returns the gateway registered under name.
func (r *Registry) Get(name string) (Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	gw, ok := r.gateways[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return gw, nil
}
