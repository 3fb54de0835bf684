package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/strongroomhq/strongroom/pkg/types"
)

// DefaultTimeout bounds one API call when the caller's context carries no
// earlier deadline.
const DefaultTimeout = 10 * time.Second

// Client is a Go client for the Strongroom HTTP API. Request and response
// bodies are the wire shapes from pkg/types; errors returned by the server
// surface as *APIError.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithToken sets the bearer token attached to every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient swaps the underlying HTTP client, e.g. to add tracing.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a Client for the API at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is the server's error envelope plus the HTTP status it came with.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Retryable  bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// ReconcileRequest is the optional body of Reconcile. Zero values mean
// server defaults: partial mode from the last checkpoint.
type ReconcileRequest struct {
	Mode          types.JobMode `json:"mode,omitempty"`
	FromBlock     *int64        `json:"fromBlock,omitempty"`
	ToBlock       *int64        `json:"toBlock,omitempty"`
	FromTimestamp *time.Time    `json:"fromTimestamp,omitempty"`
	ToTimestamp   *time.Time    `json:"toTimestamp,omitempty"`
}

// JobDetail is a job with its audit trail, as returned by GetJob.
type JobDetail struct {
	Job      *types.ReconciliationJob `json:"job"`
	AuditLog []*types.AuditEntry      `json:"auditLog"`
}

// CreateWorkflowInput is the body of CreateWorkflow.
type CreateWorkflowInput struct {
	VaultID        string          `json:"vaultId"`
	ChainAlias     string          `json:"chainAlias"`
	MarshalledHex  string          `json:"marshalledHex"`
	OrganisationID string          `json:"organisationId"`
	CreatedBy      types.CreatedBy `json:"createdBy"`
	SkipReview     bool            `json:"skipReview,omitempty"`
}

// Health reports process liveness.
type Health struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
	Uptime    string    `json:"uptime,omitempty"`
}

// Readiness reports whether the server can do useful work, per dependency.
type Readiness struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// Healthz calls the liveness probe.
func (c *Client) Healthz(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Readyz calls the readiness probe. A not-ready server still yields a
// Readiness value: its Status reads "not ready" and Checks names the
// failing dependency.
func (c *Client) Readyz(ctx context.Context) (*Readiness, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/readyz", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// /readyz answers 503 with a readiness body, not an error envelope.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, decodeAPIError(resp)
	}
	var out Readiness
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// Reconcile requests reconciliation for the address on the chain. It
// returns the newly enqueued job, or the already running one.
func (c *Client) Reconcile(ctx context.Context, address, chainAlias string, req ReconcileRequest) (*types.ReconciliationJob, error) {
	path := fmt.Sprintf("/v2/reconciliation/addresses/%s/chain/%s/reconcile",
		url.PathEscape(address), url.PathEscape(chainAlias))

	var job types.ReconciliationJob
	if err := c.do(ctx, http.MethodPost, path, req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns a page of job summaries for the pair, newest first.
// limit and offset of 0 take server defaults.
func (c *Client) ListJobs(ctx context.Context, address, chainAlias string, limit, offset int) (*types.JobPage, error) {
	path := fmt.Sprintf("/v2/reconciliation/addresses/%s/chain/%s/reconciliation-jobs",
		url.PathEscape(address), url.PathEscape(chainAlias))

	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var page types.JobPage
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetJob returns one job with its full audit log.
func (c *Client) GetJob(ctx context.Context, jobID string) (*JobDetail, error) {
	var detail JobDetail
	if err := c.do(ctx, http.MethodGet, "/v2/reconciliation/reconciliation-jobs/"+url.PathEscape(jobID), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// CreateWorkflow registers a new transaction workflow in state created.
func (c *Client) CreateWorkflow(ctx context.Context, input CreateWorkflowInput) (*types.Workflow, error) {
	var wf types.Workflow
	if err := c.do(ctx, http.MethodPost, "/v2/workflows", input, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// GetWorkflow returns the current state of a workflow.
func (c *Client) GetWorkflow(ctx context.Context, id string) (*types.Workflow, error) {
	var wf types.Workflow
	if err := c.do(ctx, http.MethodGet, "/v2/workflows/"+url.PathEscape(id), nil, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// WorkflowHistory returns the workflow's accepted transitions, oldest first.
func (c *Client) WorkflowHistory(ctx context.Context, id string) ([]*types.WorkflowEvent, error) {
	var out struct {
		Data []*types.WorkflowEvent `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/v2/workflows/"+url.PathEscape(id)+"/history", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// ReviewWorkflow moves a created workflow into review.
func (c *Client) ReviewWorkflow(ctx context.Context, id string) (*types.Workflow, error) {
	return c.workflowAction(ctx, id, "review", nil)
}

// ConfirmWorkflow confirms a reviewed workflow, handing it to policy
// evaluation.
func (c *Client) ConfirmWorkflow(ctx context.Context, id string) (*types.Workflow, error) {
	return c.workflowAction(ctx, id, "confirm", nil)
}

// ApproveWorkflow approves a workflow that is waiting for approval.
func (c *Client) ApproveWorkflow(ctx context.Context, id string, payload types.EventPayload) (*types.Workflow, error) {
	return c.workflowAction(ctx, id, "approve", &payload)
}

// RejectWorkflow rejects a workflow that is waiting for approval.
func (c *Client) RejectWorkflow(ctx context.Context, id string, payload types.EventPayload) (*types.Workflow, error) {
	return c.workflowAction(ctx, id, "reject", &payload)
}

func (c *Client) workflowAction(ctx context.Context, id, verb string, payload *types.EventPayload) (*types.Workflow, error) {
	var body any
	if payload != nil {
		body = payload
	}
	var wf types.Workflow
	if err := c.do(ctx, http.MethodPost, "/v2/workflows/"+url.PathEscape(id)+"/"+verb, body, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var env struct {
		Error struct {
			Code      string `json:"code"`
			Message   string `json:"message"`
			Retryable bool   `json:"retryable"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err == nil && env.Error.Code != "" {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Retryable = env.Error.Retryable
	} else {
		apiErr.Message = resp.Status
	}
	return apiErr
}
