package blockbook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/strongroomhq/strongroom/pkg/provider"
	"github.com/strongroomhq/strongroom/pkg/types"
)

// addressTxsResponse is one page of /api/v2/address/{address}?details=txs.
type addressTxsResponse struct {
	Page         int               `json:"page"`
	TotalPages   int               `json:"totalPages"`
	Transactions []json.RawMessage `json:"transactions"`
}

// wireTx carries the fields this gateway reads out of a Blockbook
// transaction object. The full object is preserved separately as RawData.
type wireTx struct {
	TxID        string      `json:"txid"`
	BlockHeight int64       `json:"blockHeight"`
	BlockTime   int64       `json:"blockTime"`
	Fees        string      `json:"fees"`
	Vin         []wireEntry `json:"vin"`
	Vout        []wireEntry `json:"vout"`
}

type wireEntry struct {
	IsAddress bool     `json:"isAddress"`
	Addresses []string `json:"addresses"`
}

func firstAddress(entries []wireEntry) string {
	for _, e := range entries {
		if e.IsAddress && len(e.Addresses) > 0 {
			return e.Addresses[0]
		}
	}
	return ""
}

func buildTransaction(w wireTx, raw json.RawMessage, cursor string) (*provider.Transaction, error) {
	var data types.JSONMap
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, &types.ProviderError{Provider: Name, Op: "decode_transaction", Err: err}
	}
	return &provider.Transaction{
		TransactionHash: w.TxID,
		Cursor:          cursor,
		RawData:         data,
		Normalized: provider.Normalized{
			FromAddress: firstAddress(w.Vin),
			ToAddress:   firstAddress(w.Vout),
			BlockNumber: strconv.FormatInt(w.BlockHeight, 10),
			Fee:         w.Fees,
		},
	}, nil
}

func decodeWireTx(raw json.RawMessage, cursor string) (*provider.Transaction, error) {
	var w wireTx
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, &types.ProviderError{Provider: Name, Op: "decode_transaction", Err: err}
	}
	return buildTransaction(w, raw, cursor)
}

// txIterator pages through an address's history one request at a time.
// A cursor identifies the page and index of the last consumed transaction;
// resuming skips through it and continues.
type txIterator struct {
	ctx     context.Context
	client  *Client
	chain   string
	address string
	opts    provider.FetchOptions

	page    int // next page to request, 1-based
	skipIdx int // last consumed index on the resumed page, -1 when fresh
	total   int // totalPages from the last response, 0 before the first

	buf  []provider.Transaction
	idx  int
	cur  *provider.Transaction
	err  error
	done bool
}

func (it *txIterator) Next() bool {
	if it.err != nil || it.done {
		return false
	}
	for {
		if it.idx < len(it.buf) {
			it.cur = &it.buf[it.idx]
			it.idx++
			return true
		}
		if !it.fetchPage() {
			return false
		}
	}
}

func (it *txIterator) Transaction() *provider.Transaction { return it.cur }

func (it *txIterator) Err() error { return it.err }

func (it *txIterator) Close() error { return nil }

func (it *txIterator) fetchPage() bool {
	if it.total > 0 && it.page > it.total {
		it.done = true
		return false
	}

	var out addressTxsResponse
	if err := it.client.do(it.ctx, "fetch_transactions", http.MethodGet, it.requestURL(), nil, &out); err != nil {
		it.err = err
		return false
	}

	buf := make([]provider.Transaction, 0, len(out.Transactions))
	for i, raw := range out.Transactions {
		// Entries at or before skipIdx were consumed by the run that
		// produced the cursor.
		if it.skipIdx >= 0 && i <= it.skipIdx {
			continue
		}
		var w wireTx
		if err := json.Unmarshal(raw, &w); err != nil {
			it.err = &types.ProviderError{Provider: Name, Op: "decode_transaction", Err: err}
			return false
		}
		if !it.inWindow(w) {
			continue
		}
		tx, err := buildTransaction(w, raw, makeCursor(it.page, i))
		if err != nil {
			it.err = err
			return false
		}
		buf = append(buf, *tx)
	}

	empty := len(out.Transactions) == 0
	it.skipIdx = -1
	it.buf = buf
	it.idx = 0
	it.total = out.TotalPages
	it.page++

	if empty {
		// An empty page ends the stream even when totalPages is absent.
		it.done = true
		return false
	}
	return true
}

// inWindow applies the block and timestamp bounds client-side; not every
// Blockbook deployment honors the from/to query parameters.
func (it *txIterator) inWindow(w wireTx) bool {
	if it.opts.FromBlock != nil && w.BlockHeight < *it.opts.FromBlock {
		return false
	}
	if it.opts.ToBlock != nil && w.BlockHeight > *it.opts.ToBlock {
		return false
	}
	if it.opts.FromTimestamp != nil && w.BlockTime < it.opts.FromTimestamp.Unix() {
		return false
	}
	if it.opts.ToTimestamp != nil && w.BlockTime > it.opts.ToTimestamp.Unix() {
		return false
	}
	return true
}

func (it *txIterator) requestURL() string {
	q := url.Values{}
	q.Set("details", "txs")
	q.Set("pageSize", strconv.Itoa(it.client.cfg.PageSize))
	q.Set("page", strconv.Itoa(it.page))
	if it.opts.FromBlock != nil {
		q.Set("from", strconv.FormatInt(*it.opts.FromBlock, 10))
	}
	if it.opts.ToBlock != nil {
		q.Set("to", strconv.FormatInt(*it.opts.ToBlock, 10))
	}
	return it.client.chainBase(it.chain) + "/api/v2/address/" + url.PathEscape(it.address) + "?" + q.Encode()
}
