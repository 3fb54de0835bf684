package blockbook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/strongroomhq/strongroom/pkg/log"
	"github.com/strongroomhq/strongroom/pkg/metrics"
	"github.com/strongroomhq/strongroom/pkg/provider"
	"github.com/strongroomhq/strongroom/pkg/types"
)

// Name is the registry key for this gateway.
const Name = "blockbook"

// Config holds the gateway settings. BaseURL points at a multi-chain
// Blockbook front (one path segment per chain alias); ChainURLs overrides
// the base for chains served by a dedicated instance.
type Config struct {
	BaseURL   string
	ChainURLs map[string]string
	APIKey    string

	Timeout           time.Duration // per-request, default 10s
	PageSize          int           // transactions per page, default 1000
	RequestsPerSecond float64       // single-slot gate, default 10

	// AsyncChains lists chains whose history can be exported server-side.
	AsyncChains []string

	BreakerFailures uint32        // consecutive failures before opening, default 5
	BreakerCooldown time.Duration // open to half-open, default 30s
}

func (cfg Config) withDefaults() Config {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = 1000
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown == 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	return cfg
}

// Client talks to Blockbook-style history APIs. Every request passes the
// process-wide rate gate and the circuit breaker, so concurrent jobs share
// one budget and one view of provider health.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	async   map[string]bool
	logger  zerolog.Logger
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" && len(cfg.ChainURLs) == 0 {
		return nil, fmt.Errorf("blockbook: base URL is required")
	}
	cfg = cfg.withDefaults()

	logger := log.WithComponent("blockbook")
	async := make(map[string]bool, len(cfg.AsyncChains))
	for _, alias := range cfg.AsyncChains {
		async[alias] = true
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    Name,
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Provider circuit state changed")
		},
	})

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		breaker: breaker,
		async:   async,
		logger:  logger,
	}, nil
}

// Name implements provider.Gateway.
func (c *Client) Name() string { return Name }

// SupportsAsyncJobs implements provider.Gateway.
func (c *Client) SupportsAsyncJobs(chainAlias string) bool {
	return c.async[chainAlias]
}

// chainBase returns the API root for a chain.
func (c *Client) chainBase(chainAlias string) string {
	if base, ok := c.cfg.ChainURLs[chainAlias]; ok {
		return strings.TrimRight(base, "/")
	}
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + chainAlias
}

// statusResponse is the Blockbook /api/v2 status document, reduced to the
// field we read.
type statusResponse struct {
	Blockbook struct {
		BestHeight int64 `json:"bestHeight"`
	} `json:"blockbook"`
}

// GetCurrentBlockNumber implements provider.Gateway.
func (c *Client) GetCurrentBlockNumber(ctx context.Context, chainAlias string) (*int64, error) {
	var out statusResponse
	if err := c.do(ctx, "current_block", http.MethodGet, c.chainBase(chainAlias)+"/api/v2", nil, &out); err != nil {
		return nil, err
	}
	if out.Blockbook.BestHeight == 0 {
		return nil, nil
	}
	height := out.Blockbook.BestHeight
	return &height, nil
}

// FetchTx retrieves one transaction's full detail document. The processor
// uses it as the authoritative raw source when classifying.
func (c *Client) FetchTx(ctx context.Context, chainAlias, txHash string) (types.JSONMap, error) {
	var out types.JSONMap
	endpoint := c.chainBase(chainAlias) + "/api/v2/tx/" + url.PathEscape(txHash)
	if err := c.do(ctx, "fetch_tx", http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchTransactions implements provider.Gateway. The stream fetches one
// page per underlying request and resumes after opts.Cursor when set.
func (c *Client) FetchTransactions(ctx context.Context, chainAlias, address string, opts provider.FetchOptions) provider.Iterator {
	it := &txIterator{
		ctx:     ctx,
		client:  c,
		chain:   chainAlias,
		address: address,
		opts:    opts,
		page:    1,
		skipIdx: -1,
	}
	if opts.Cursor != "" {
		page, idx, err := parseCursor(opts.Cursor)
		if err != nil {
			it.err = err
		} else {
			it.page = page
			it.skipIdx = idx
		}
	}
	return it
}

type startAsyncRequest struct {
	FromBlock *int64 `json:"fromBlock,omitempty"`
	ToBlock   *int64 `json:"toBlock,omitempty"`
}

type startAsyncResponse struct {
	JobID       string `json:"jobId"`
	NextPageURL string `json:"nextPageUrl"`
}

// StartAsyncJob implements provider.Gateway.
func (c *Client) StartAsyncJob(ctx context.Context, chainAlias, address string, window provider.AsyncWindow) (*provider.AsyncJob, error) {
	body, err := json.Marshal(startAsyncRequest{FromBlock: window.StartBlock, ToBlock: window.EndBlock})
	if err != nil {
		return nil, fmt.Errorf("encoding async job request: %w", err)
	}

	endpoint := c.chainBase(chainAlias) + "/api/v2/address/" + url.PathEscape(address) + "/history-jobs"
	var out startAsyncResponse
	if err := c.do(ctx, "start_async_job", http.MethodPost, endpoint, body, &out); err != nil {
		return nil, err
	}
	if out.JobID == "" || out.NextPageURL == "" {
		return nil, &types.ProviderError{
			Provider: Name,
			Op:       "start_async_job",
			Err:      fmt.Errorf("incomplete response: jobId=%q nextPageUrl=%q", out.JobID, out.NextPageURL),
		}
	}

	// Later polls receive only the URL, so it has to stand on its own.
	next, err := absoluteURL(endpoint, out.NextPageURL)
	if err != nil {
		return nil, fmt.Errorf("resolving async page url: %w", err)
	}
	return &provider.AsyncJob{JobID: out.JobID, NextPageURL: next}, nil
}

type asyncResultsResponse struct {
	IsReady      bool              `json:"isReady"`
	IsComplete   bool              `json:"isComplete"`
	Transactions []json.RawMessage `json:"transactions"`
	NextPageURL  string            `json:"nextPageUrl"`
}

// FetchAsyncJobResults implements provider.Gateway.
func (c *Client) FetchAsyncJobResults(ctx context.Context, nextPageURL string) (*provider.AsyncResults, error) {
	var out asyncResultsResponse
	if err := c.do(ctx, "fetch_async_results", http.MethodGet, nextPageURL, nil, &out); err != nil {
		return nil, err
	}

	results := &provider.AsyncResults{
		IsReady:    out.IsReady,
		IsComplete: out.IsComplete,
	}
	for _, raw := range out.Transactions {
		tx, err := decodeWireTx(raw, "")
		if err != nil {
			return nil, err
		}
		results.Transactions = append(results.Transactions, *tx)
	}
	if out.NextPageURL != "" {
		next, err := absoluteURL(nextPageURL, out.NextPageURL)
		if err != nil {
			return nil, fmt.Errorf("resolving async page url: %w", err)
		}
		results.NextPageURL = next
	}
	return results, nil
}

// do runs one HTTP exchange through the rate gate and the breaker, decodes
// a 200 response into out and classifies failures as transient or not.
func (c *Client) do(ctx context.Context, op, method, endpoint string, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	timer := metrics.NewTimer()
	_, err := c.breaker.Execute(func() (interface{}, error) {
		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
		if err != nil {
			return nil, &types.ProviderError{Provider: Name, Op: op, Err: err}
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.cfg.APIKey != "" {
			req.Header.Set("api-key", c.cfg.APIKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, &types.ProviderError{Provider: Name, Op: op, Transient: true, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			transient := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
			return nil, &types.ProviderError{
				Provider:  Name,
				Op:        op,
				Transient: transient,
				Err:       fmt.Errorf("unexpected status %d", resp.StatusCode),
			}
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, &types.ProviderError{Provider: Name, Op: op, Err: fmt.Errorf("decoding response: %w", err)}
		}
		return nil, nil
	})
	timer.ObserveDurationVec(metrics.ProviderRequestDuration, Name, op)

	if err != nil {
		// An open breaker fails fast; later passes may find it closed again.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = &types.ProviderError{Provider: Name, Op: op, Transient: true, Err: err}
		}
		metrics.ProviderRequestsTotal.WithLabelValues(Name, op, "error").Inc()
		return err
	}
	metrics.ProviderRequestsTotal.WithLabelValues(Name, op, "success").Inc()
	return nil
}

// absoluteURL resolves ref against base so the result can be fetched
// without further context.
func absoluteURL(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}

// Cursors encode "page:index" of the last consumed transaction.

func makeCursor(page, idx int) string {
	return strconv.Itoa(page) + ":" + strconv.Itoa(idx)
}

func parseCursor(cursor string) (page, idx int, err error) {
	part, idxPart, ok := strings.Cut(cursor, ":")
	if !ok {
		return 0, 0, fmt.Errorf("malformed cursor %q", cursor)
	}
	page, err = strconv.Atoi(part)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed cursor %q", cursor)
	}
	idx, err = strconv.Atoi(idxPart)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed cursor %q", cursor)
	}
	return page, idx, nil
}
