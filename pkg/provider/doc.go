// Package provider defines the contract between the reconciliation worker
// and external transaction-history providers, plus the registry that
// resolves a job's provider name to a live gateway.
//
// # The Gateway Contract
//
// A Gateway exposes two read paths over an address's history:
//
//	sync:  FetchTransactions returns a lazy Iterator that pages through
//	       the provider on demand. Every yielded Transaction carries a
//	       Cursor; persisting the last consumed cursor lets a crashed or
//	       interrupted run resume mid-stream instead of starting over.
//
//	async: StartAsyncJob asks the provider to prepare the full history
//	       server-side. FetchAsyncJobResults polls for pages using only a
//	       URL, so a different process can continue polling a job it did
//	       not start.
//
// Normalized holds the four fields reconciliation compares: fromAddress,
// toAddress, blockNumber and fee. Block numbers and fees stay strings end
// to end; providers disagree on widths and denominations, and the
// comparison is textual anyway. RawData preserves the provider's original
// object for audit snapshots.
//
// # Iteration
//
//	it := gw.FetchTransactions(ctx, "ethereum", addr, provider.FetchOptions{})
//	defer it.Close()
//	for it.Next() {
//		tx := it.Transaction()
//		...
//	}
//	if err := it.Err(); err != nil {
//		...
//	}
//
// Errors during paging end the stream; Err reports what happened. A
// types.ProviderError with Transient set means a later attempt may
// succeed.
//
// Package blockbook implements the Gateway against Blockbook-style HTTP
// APIs; package providertest holds a scripted fake for worker and
// processor tests.
package provider
