// Package providertest provides a scripted provider.Gateway for tests.
package providertest

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/strongroomhq/strongroom/pkg/provider"
	"github.com/strongroomhq/strongroom/pkg/types"
)

// AsyncPage scripts one FetchAsyncJobResults call.
type AsyncPage struct {
	Results *provider.AsyncResults
	Err     error
}

// Fake is an in-memory provider.Gateway. Configure the exported fields
// before use; CallLog records every gateway operation in order.
type Fake struct {
	mu sync.Mutex

	GatewayName string
	Async       map[string]bool

	// Height is returned by GetCurrentBlockNumber. nil models a provider
	// that cannot report the tip.
	Height    *int64
	HeightErr error

	// Stream is the canonical transaction history, oldest first. Entries
	// without a cursor get their stream position assigned.
	Stream []provider.Transaction

	// StreamErr, when set, aborts iteration after FailAfter yields.
	StreamErr error
	FailAfter int

	StartResult *provider.AsyncJob
	StartErr    error

	// Pages are consumed one per FetchAsyncJobResults call.
	Pages   []AsyncPage
	pageIdx int

	CallLog []string
}

// New creates a Fake with no history and no async support.
func New() *Fake {
	return &Fake{
		GatewayName: "fake",
		Async:       make(map[string]bool),
	}
}

// Tx builds a stream entry.
func Tx(hash string, block int64, from, to, fee string) provider.Transaction {
	return provider.Transaction{
		TransactionHash: hash,
		RawData: types.JSONMap{
			"txid":        hash,
			"blockHeight": block,
			"from":        from,
			"to":          to,
			"fees":        fee,
		},
		Normalized: provider.Normalized{
			FromAddress: from,
			ToAddress:   to,
			BlockNumber: strconv.FormatInt(block, 10),
			Fee:         fee,
		},
	}
}

func (f *Fake) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CallLog = append(f.CallLog, op)
}

// Calls counts recorded invocations of op.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.CallLog {
		if c == op {
			n++
		}
	}
	return n
}

// Name implements provider.Gateway.
func (f *Fake) Name() string { return f.GatewayName }

// SupportsAsyncJobs implements provider.Gateway.
func (f *Fake) SupportsAsyncJobs(chainAlias string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Async[chainAlias]
}

// GetCurrentBlockNumber implements provider.Gateway.
func (f *Fake) GetCurrentBlockNumber(ctx context.Context, chainAlias string) (*int64, error) {
	f.record("current_block")
	if f.HeightErr != nil {
		return nil, f.HeightErr
	}
	if f.Height == nil {
		return nil, nil
	}
	h := *f.Height
	return &h, nil
}

// FetchTransactions implements provider.Gateway. The stream resumes after
// opts.Cursor and honors the block window; timestamps are ignored.
func (f *Fake) FetchTransactions(ctx context.Context, chainAlias, address string, opts provider.FetchOptions) provider.Iterator {
	f.record("fetch_transactions")

	start := 0
	if opts.Cursor != "" {
		if n, err := strconv.Atoi(opts.Cursor); err == nil {
			start = n + 1
		}
	}
	return &fakeIterator{fake: f, ctx: ctx, opts: opts, pos: start}
}

// StartAsyncJob implements provider.Gateway.
func (f *Fake) StartAsyncJob(ctx context.Context, chainAlias, address string, window provider.AsyncWindow) (*provider.AsyncJob, error) {
	f.record("start_async_job")
	if f.StartErr != nil {
		return nil, f.StartErr
	}
	if f.StartResult == nil {
		return nil, errors.New("fake: StartResult not scripted")
	}
	job := *f.StartResult
	return &job, nil
}

// FetchAsyncJobResults implements provider.Gateway, consuming one scripted
// page per call.
func (f *Fake) FetchAsyncJobResults(ctx context.Context, nextPageURL string) (*provider.AsyncResults, error) {
	f.record("fetch_async_results")

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pageIdx >= len(f.Pages) {
		return nil, errors.New("fake: no more scripted pages")
	}
	page := f.Pages[f.pageIdx]
	f.pageIdx++
	if page.Err != nil {
		return nil, page.Err
	}
	return page.Results, nil
}

type fakeIterator struct {
	fake *Fake
	ctx  context.Context
	opts provider.FetchOptions

	pos     int
	yielded int
	cur     *provider.Transaction
	err     error
}

func (it *fakeIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if err := it.ctx.Err(); err != nil {
		it.err = err
		return false
	}

	for it.pos < len(it.fake.Stream) {
		if it.fake.StreamErr != nil && it.yielded >= it.fake.FailAfter {
			it.err = it.fake.StreamErr
			return false
		}

		tx := it.fake.Stream[it.pos]
		if tx.Cursor == "" {
			tx.Cursor = strconv.Itoa(it.pos)
		}
		it.pos++

		if !it.inWindow(tx) {
			continue
		}
		it.cur = &tx
		it.yielded++
		return true
	}
	return false
}

func (it *fakeIterator) inWindow(tx provider.Transaction) bool {
	block, err := strconv.ParseInt(tx.Normalized.BlockNumber, 10, 64)
	if err != nil {
		return true
	}
	if it.opts.FromBlock != nil && block < *it.opts.FromBlock {
		return false
	}
	if it.opts.ToBlock != nil && block > *it.opts.ToBlock {
		return false
	}
	return true
}

func (it *fakeIterator) Transaction() *provider.Transaction { return it.cur }

func (it *fakeIterator) Err() error { return it.err }

func (it *fakeIterator) Close() error { return nil }
