// Package processor turns provider transactions into normalized local rows.
//
// The reconciliation worker hands the processor every streamed transaction
// that has no local counterpart. Processing is three steps:
//
//  1. Fetch the authoritative raw document for the hash through a TxFetcher
//     (the Blockbook /api/v2/tx endpoint in production). When the fetch
//     fails, or no fetcher is configured, the document the provider stream
//     already carried is used instead; a thinner document may classify less
//     precisely but never blocks ingestion.
//
//  2. Classify. Two or more token movements are a swap, exactly one is a
//     token transfer, other calls carrying calldata are contract calls, and
//     everything else is a native transfer.
//
//  3. Upsert. Token contracts referenced by the document are upserted
//     first, then the transaction row itself. New tokens enter flagged for
//     classification; re-upserting an existing token refreshes metadata but
//     never touches its classification state. A small LRU keyed by
//     chain|contract suppresses repeat token upserts within the process.
//
// Addresses and hashes are canonicalized through the chain registry before
// they reach the store, so lookups and comparisons elsewhere can stay
// byte-exact.
package processor
