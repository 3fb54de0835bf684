/*
Package api implements the HTTP surface of the reconciliation and workflow
core.

The server exposes three groups of routes:

	/healthz               liveness probe
	/readyz                readiness probe (store ping)
	/metrics               Prometheus scrape endpoint

	/v2/reconciliation/addresses/{address}/chain/{chainAlias}/reconcile
	                       POST: open a job (201), return the running one
	                       (200) or replace the pending one
	/v2/reconciliation/addresses/{address}/chain/{chainAlias}/reconciliation-jobs
	                       GET: paginated job listing (limit/offset)
	/v2/reconciliation/reconciliation-jobs/{jobId}
	                       GET: job with its full audit log

	/v2/workflows          POST: create a workflow
	/v2/workflows/{id}     GET: current state and context
	/v2/workflows/{id}/history
	                       GET: accepted events, oldest first
	/v2/workflows/{id}/{review|confirm|approve|reject}
	                       POST: apply one user action

# Authentication

Routes under /v2 require an HS256 bearer token. The token's subject is the
acting principal and ends up in the triggeredBy column of workflow events. A
missing token is a 401, a forged or malformed one a 403 and an expired one a
419, which the wallet front-end treats as "session expired, log in again".
An empty server.jwtSecret disables the check; the server warns loudly at
startup when that is the case.

# Errors

All errors share one body shape:

	{"error": {"code": "INVALID_STATE_TRANSITION", "message": "...", "retryable": true}}

Domain errors map onto statuses in renderError: validation 400, missing rows
404, illegal workflow events and lost version races 409 (the latter with
retryable set), everything unrecognized 500 with the detail kept in the logs
rather than the response.

Handlers hold no state of their own; they parse, call the reconciliation
service or the workflow orchestrator, and render. Request logging, metrics
and panic recovery are chi middleware in middleware.go.
*/
package api
