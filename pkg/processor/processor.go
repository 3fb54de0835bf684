package processor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/strongroomhq/strongroom/pkg/chains"
	"github.com/strongroomhq/strongroom/pkg/log"
	"github.com/strongroomhq/strongroom/pkg/provider"
	"github.com/strongroomhq/strongroom/pkg/storage"
	"github.com/strongroomhq/strongroom/pkg/types"
)

// TxFetcher retrieves the authoritative raw transaction document from the
// chain access layer. The blockbook client implements it.
type TxFetcher interface {
	FetchTx(ctx context.Context, chainAlias, txHash string) (types.JSONMap, error)
}

// Config holds processor settings.
type Config struct {
	TokenCacheSize int // entries, default 4096
}

// Processor ingests provider transactions that are absent locally: it
// fetches the raw document, classifies it, and upserts the normalized row
// plus any tokens it references. Tokens recently upserted by this process
// are skipped via an LRU cache; re-upserting is harmless but wasteful.
type Processor struct {
	store    storage.Store
	registry *chains.Registry
	fetcher  TxFetcher
	tokens   *lru.Cache[string, struct{}]
	logger   zerolog.Logger
}

// New creates a Processor. fetcher may be nil, in which case the
// provider-reported document is used as-is.
func New(store storage.Store, registry *chains.Registry, fetcher TxFetcher, cfg Config) (*Processor, error) {
	size := cfg.TokenCacheSize
	if size <= 0 {
		size = 4096
	}
	cache, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("failed to build token cache: %w", err)
	}

	return &Processor{
		store:    store,
		registry: registry,
		fetcher:  fetcher,
		tokens:   cache,
		logger:   log.WithComponent("processor"),
	}, nil
}

// Process ingests one provider transaction. The returned row reflects what
// was written.
func (p *Processor) Process(ctx context.Context, chainAlias string, ptx *provider.Transaction) (*types.Transaction, error) {
	raw := ptx.RawData
	if p.fetcher != nil {
		fetched, err := p.fetcher.FetchTx(ctx, chainAlias, ptx.TransactionHash)
		switch {
		case err != nil:
			// The provider's copy still allows ingestion.
			p.logger.Warn().
				Err(err).
				Str("chain_alias", chainAlias).
				Str("tx_hash", ptx.TransactionHash).
				Msg("Raw transaction fetch failed, using provider data")
		case fetched != nil:
			raw = fetched
		}
	}

	if err := p.upsertTokens(ctx, chainAlias, raw); err != nil {
		return nil, err
	}

	txn := p.buildTransaction(chainAlias, ptx, raw)
	if err := p.store.UpsertTransaction(ctx, txn); err != nil {
		return nil, fmt.Errorf("failed to upsert transaction: %w", err)
	}
	return txn, nil
}

// Classify derives the transaction kind from its raw document. Two or more
// token movements make a swap, exactly one is a token transfer, remaining
// calldata-bearing calls are contract calls, everything else is a native
// transfer.
func Classify(raw types.JSONMap) types.TxKind {
	switch n := len(rawSlice(raw, "tokenTransfers")); {
	case n >= 2:
		return types.TxKindSwap
	case n == 1:
		return types.TxKindTransfer
	}
	if data := rawNestedString(raw, "ethereumSpecific", "data"); data != "" && data != "0x" {
		return types.TxKindContractCall
	}
	return types.TxKindTransfer
}

func (p *Processor) buildTransaction(chainAlias string, ptx *provider.Transaction, raw types.JSONMap) *types.Transaction {
	block, err := strconv.ParseInt(ptx.Normalized.BlockNumber, 10, 64)
	if err != nil {
		block = rawInt(raw, "blockHeight")
	}

	var to *string
	if ptx.Normalized.ToAddress != "" {
		addr := p.registry.NormalizeAddress(chainAlias, ptx.Normalized.ToAddress)
		to = &addr
	}

	fee := ptx.Normalized.Fee
	if fee == "" {
		fee = rawString(raw, "fees")
	}

	var ts time.Time
	if sec := rawInt(raw, "blockTime"); sec > 0 {
		ts = time.Unix(sec, 0).UTC()
	}

	return &types.Transaction{
		ID:          uuid.NewString(),
		ChainAlias:  chainAlias,
		TxHash:      p.registry.NormalizeHash(chainAlias, ptx.TransactionHash),
		BlockNumber: block,
		FromAddress: p.registry.NormalizeAddress(chainAlias, ptx.Normalized.FromAddress),
		ToAddress:   to,
		Value:       rawString(raw, "value"),
		Fee:         fee,
		Status:      rawStatus(raw),
		Kind:        Classify(raw),
		Timestamp:   ts,
	}
}

// upsertTokens registers every asset contract the document references.
// Inserts pin needsClassification for the classifier pipeline; updates of
// known tokens touch metadata only. Both are the store's concern.
func (p *Processor) upsertTokens(ctx context.Context, chainAlias string, raw types.JSONMap) error {
	for _, entry := range rawSlice(raw, "tokenTransfers") {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}

		contract := stringField(m, "contract")
		if contract == "" {
			contract = stringField(m, "token")
		}
		if contract == "" {
			continue
		}
		contract = p.registry.NormalizeAddress(chainAlias, contract)

		key := chainAlias + "|" + contract
		if _, cached := p.tokens.Get(key); cached {
			continue
		}

		token := &types.Token{
			ID:         uuid.NewString(),
			ChainAlias: chainAlias,
			Address:    contract,
			Name:       stringField(m, "name"),
			Symbol:     stringField(m, "symbol"),
			Decimals:   intField(m, "decimals"),
		}
		if err := p.store.UpsertToken(ctx, token); err != nil {
			return fmt.Errorf("failed to upsert token %s: %w", contract, err)
		}
		p.tokens.Add(key, struct{}{})
	}
	return nil
}

// rawStatus maps the Blockbook EVM status convention (1 ok, 0 failed,
// -1 pending). Chains without an execution status report success.
func rawStatus(raw types.JSONMap) string {
	eth, ok := raw["ethereumSpecific"].(map[string]any)
	if !ok {
		return "success"
	}
	status, ok := eth["status"].(float64)
	if !ok {
		return "success"
	}
	switch {
	case status > 0:
		return "success"
	case status == 0:
		return "failed"
	default:
		return "pending"
	}
}

// JSON documents decode numbers as float64 and objects as map[string]any;
// these helpers read them without panicking on absent or oddly typed keys.

func rawSlice(m types.JSONMap, key string) []any {
	s, _ := m[key].([]any)
	return s
}

func rawString(m types.JSONMap, key string) string {
	s, _ := m[key].(string)
	return s
}

func rawInt(m types.JSONMap, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

func rawNestedString(m types.JSONMap, outer, inner string) string {
	o, ok := m[outer].(map[string]any)
	if !ok {
		return ""
	}
	s, _ := o[inner].(string)
	return s
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func intField(m map[string]any, key string) int {
	f, _ := m[key].(float64)
	return int(f)
}
