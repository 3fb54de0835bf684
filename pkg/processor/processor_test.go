package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongroomhq/strongroom/pkg/chains"
	"github.com/strongroomhq/strongroom/pkg/clock"
	"github.com/strongroomhq/strongroom/pkg/provider"
	"github.com/strongroomhq/strongroom/pkg/storage"
	"github.com/strongroomhq/strongroom/pkg/types"
)

// fakeFetcher serves scripted raw documents keyed by transaction hash.
type fakeFetcher struct {
	docs map[string]types.JSONMap
	err  error
}

func (f *fakeFetcher) FetchTx(ctx context.Context, chainAlias, txHash string) (types.JSONMap, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.docs[txHash], nil
}

// countingStore counts token upserts passing through to the real store.
type countingStore struct {
	storage.Store
	tokenUpserts int
}

func (c *countingStore) UpsertToken(ctx context.Context, token *types.Token) error {
	c.tokenUpserts++
	return c.Store.UpsertToken(ctx, token)
}

func newTestProcessor(t *testing.T, fetcher TxFetcher) (*Processor, *storage.MemoryStore) {
	t.Helper()
	registry, err := chains.NewRegistry()
	require.NoError(t, err)

	store := storage.NewMemoryStore(clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
	proc, err := New(store, registry, fetcher, Config{})
	require.NoError(t, err)
	return proc, store
}

func providerTx(hash string, raw types.JSONMap) *provider.Transaction {
	return &provider.Transaction{
		TransactionHash: hash,
		RawData:         raw,
		Normalized: provider.Normalized{
			FromAddress: "0xFrom0000000000000000000000000000000000aa",
			ToAddress:   "0xTo000000000000000000000000000000000000bb",
			BlockNumber: "19000100",
			Fee:         "21000",
		},
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		raw  types.JSONMap
		want types.TxKind
	}{
		{
			name: "native transfer",
			raw:  types.JSONMap{"txid": "0xaaa"},
			want: types.TxKindTransfer,
		},
		{
			name: "plain call with empty calldata",
			raw:  types.JSONMap{"ethereumSpecific": map[string]any{"data": "0x"}},
			want: types.TxKindTransfer,
		},
		{
			name: "single token movement",
			raw: types.JSONMap{
				"tokenTransfers": []any{
					map[string]any{"contract": "0xToken1"},
				},
			},
			want: types.TxKindTransfer,
		},
		{
			name: "two token movements make a swap",
			raw: types.JSONMap{
				"tokenTransfers": []any{
					map[string]any{"contract": "0xToken1"},
					map[string]any{"contract": "0xToken2"},
				},
			},
			want: types.TxKindSwap,
		},
		{
			name: "calldata without token movement",
			raw: types.JSONMap{
				"ethereumSpecific": map[string]any{"data": "0xa9059cbb"},
			},
			want: types.TxKindContractCall,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.raw))
		})
	}
}

func TestProcessNativeTransfer(t *testing.T) {
	proc, store := newTestProcessor(t, nil)
	ctx := context.Background()

	raw := types.JSONMap{
		"txid":      "0xAAA",
		"blockTime": float64(1714564800),
		"value":     "1000000000000000000",
	}
	txn, err := proc.Process(ctx, "ethereum", providerTx("0xAAA", raw))
	require.NoError(t, err)

	assert.Equal(t, "0xaaa", txn.TxHash)
	assert.Equal(t, "ethereum", txn.ChainAlias)
	assert.Equal(t, int64(19000100), txn.BlockNumber)
	assert.Equal(t, "0xfrom0000000000000000000000000000000000aa", txn.FromAddress)
	require.NotNil(t, txn.ToAddress)
	assert.Equal(t, "0xto000000000000000000000000000000000000bb", *txn.ToAddress)
	assert.Equal(t, "1000000000000000000", txn.Value)
	assert.Equal(t, "21000", txn.Fee)
	assert.Equal(t, "success", txn.Status)
	assert.Equal(t, types.TxKindTransfer, txn.Kind)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), txn.Timestamp)

	stored, err := store.GetTransaction(ctx, "ethereum", "0xaaa")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, txn.ID, stored.ID)
}

func TestProcessContractSideRecipientAbsent(t *testing.T) {
	proc, _ := newTestProcessor(t, nil)

	ptx := providerTx("0xbbb", types.JSONMap{"txid": "0xbbb"})
	ptx.Normalized.ToAddress = ""

	txn, err := proc.Process(context.Background(), "ethereum", ptx)
	require.NoError(t, err)
	assert.Nil(t, txn.ToAddress)
}

func TestProcessPrefersFetchedDocument(t *testing.T) {
	// The provider stream carries a thin document; the fetched one holds
	// the token movements that drive classification.
	fetched := types.JSONMap{
		"txid": "0xccc",
		"tokenTransfers": []any{
			map[string]any{"contract": "0xDAI0000000000000000000000000000000000001", "name": "Dai", "symbol": "DAI", "decimals": float64(18)},
			map[string]any{"contract": "0xUSDC000000000000000000000000000000000002", "name": "USD Coin", "symbol": "USDC", "decimals": float64(6)},
		},
	}
	fetcherImpl := &fakeFetcher{docs: map[string]types.JSONMap{"0xccc": fetched}}
	proc, store := newTestProcessor(t, fetcherImpl)
	ctx := context.Background()

	txn, err := proc.Process(ctx, "ethereum", providerTx("0xccc", types.JSONMap{"txid": "0xccc"}))
	require.NoError(t, err)
	assert.Equal(t, types.TxKindSwap, txn.Kind)

	dai, err := store.GetToken(ctx, "ethereum", "0xdai0000000000000000000000000000000000001")
	require.NoError(t, err)
	require.NotNil(t, dai)
	assert.Equal(t, "Dai", dai.Name)
	assert.Equal(t, "DAI", dai.Symbol)
	assert.Equal(t, 18, dai.Decimals)
	assert.True(t, dai.NeedsClassification)

	usdc, err := store.GetToken(ctx, "ethereum", "0xusdc000000000000000000000000000000000002")
	require.NoError(t, err)
	require.NotNil(t, usdc)
	assert.Equal(t, 6, usdc.Decimals)
}

func TestProcessFallsBackWhenFetchFails(t *testing.T) {
	proc, store := newTestProcessor(t, &fakeFetcher{err: errors.New("rpc unavailable")})
	ctx := context.Background()

	raw := types.JSONMap{
		"txid": "0xddd",
		"ethereumSpecific": map[string]any{
			"data": "0x095ea7b3",
		},
	}
	txn, err := proc.Process(ctx, "ethereum", providerTx("0xddd", raw))
	require.NoError(t, err)
	assert.Equal(t, types.TxKindContractCall, txn.Kind)

	stored, err := store.GetTransaction(ctx, "ethereum", "0xddd")
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestProcessTokenCacheSkipsRepeatUpserts(t *testing.T) {
	registry, err := chains.NewRegistry()
	require.NoError(t, err)

	counting := &countingStore{Store: storage.NewMemoryStore(clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))}
	proc, err := New(counting, registry, nil, Config{TokenCacheSize: 8})
	require.NoError(t, err)
	ctx := context.Background()

	raw := types.JSONMap{
		"tokenTransfers": []any{
			map[string]any{"contract": "0xToken1", "symbol": "TK1"},
		},
	}
	_, err = proc.Process(ctx, "ethereum", providerTx("0x111", raw))
	require.NoError(t, err)
	_, err = proc.Process(ctx, "ethereum", providerTx("0x222", raw))
	require.NoError(t, err)

	assert.Equal(t, 1, counting.tokenUpserts)
}

func TestProcessStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status any
		want   string
	}{
		{"executed", float64(1), "success"},
		{"reverted", float64(0), "failed"},
		{"pending", float64(-1), "pending"},
		{"absent", nil, "success"},
	}

	proc, _ := newTestProcessor(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := types.JSONMap{"txid": "0x" + tt.name}
			if tt.status != nil {
				raw["ethereumSpecific"] = map[string]any{"status": tt.status}
			}
			txn, err := proc.Process(context.Background(), "ethereum", providerTx("0x"+tt.name, raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, txn.Status)
		})
	}
}

func TestProcessBlockNumberFallsBackToRaw(t *testing.T) {
	proc, _ := newTestProcessor(t, nil)

	ptx := providerTx("0xeee", types.JSONMap{"blockHeight": float64(42)})
	ptx.Normalized.BlockNumber = ""

	txn, err := proc.Process(context.Background(), "ethereum", ptx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), txn.BlockNumber)
}
