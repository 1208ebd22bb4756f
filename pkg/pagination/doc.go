// Package pagination provides cursor iteration and bounded batch fan-out
// for Shopify GraphQL connections.
//
// Shopify connections expose pageInfo.hasNextPage and pageInfo.endCursor.
// Collect follows the cursor until the connection is exhausted or a hard
// page ceiling is reached, accumulating every item before returning:
//
//	items, err := pagination.Collect(ctx, pagination.DefaultConfig(), fetchPage)
//
// Batches splits a list of inputs into fixed-size chunks and runs a worker
// per chunk with bounded concurrency:
//
//	results := pagination.Batches(ctx, ids, pagination.DefaultConfig(), fetchBatch)
//
// A failed batch is recorded in its BatchResult and never cancels the
// other batches.
package pagination
