// Package pagination builds a selection of the first N catalog records by
// walking pages in order.
//
// The catalog API only serves fixed-size pages, so selecting the first N
// records means fetching page after page until enough records have been seen
// or the catalog runs out:
//
//	sel := pagination.NewSelector(catalogClient, pagination.DefaultConfig())
//	res, err := sel.SelectFirstN(ctx, 30, 1, nil)
//	// res.IDs holds the identifiers of records 1..30
//
// Pages are fetched strictly one after another, never in parallel, so the
// caller's rate limit holds and the result order is the catalog order.
// Records the caller already holds (for example the pages it has displayed)
// are passed as alreadyFetched and are never fetched again.
//
// Publish runs a selection and replaces a selection.Store with the result.
package pagination
