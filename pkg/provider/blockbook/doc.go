// Package blockbook implements provider.Gateway against Blockbook-style
// HTTP APIs fronting multiple chains.
//
// # Endpoints
//
//	GET  {chainBase}/api/v2                                   status; bestHeight
//	GET  {chainBase}/api/v2/address/{address}?details=txs     paged history
//	POST {chainBase}/api/v2/address/{address}/history-jobs    start async export
//	GET  {nextPageUrl}                                        poll async export
//
// chainBase is BaseURL plus the chain alias as a path segment, or a
// per-chain override from ChainURLs for chains served by a dedicated
// instance. The api-key header authenticates when an APIKey is configured.
//
// # Shared Budget and Health
//
// All requests from one Client flow through a single-slot rate gate
// (RequestsPerSecond, default 10) and a circuit breaker that opens after
// BreakerFailures consecutive failures and fails fast until
// BreakerCooldown passes. Concurrent reconciliation jobs therefore share
// one request budget and one view of provider health. Breaker rejections
// and 5xx/429 responses surface as transient provider errors; 4xx and
// decode failures do not, since retrying them cannot help.
//
// # Cursors
//
// The address endpoint pages by number, so a stream cursor encodes
// "page:index" of the last consumed transaction. Resuming re-fetches that
// page and skips through the index. Block and timestamp windows are also
// enforced client-side; not every deployment honors the from/to query
// parameters.
package blockbook
