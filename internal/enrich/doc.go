// Package enrich implements the post-enrichment stages: hook extraction,
// embedding generation, hook/topic/audience classification, and profile
// style completion.
//
// Each stage dequeues flagged rows oldest first, bounded by its batch size,
// and settles every item it touches: success writes the output and clears
// the flag in one store operation, failure records the error and advances
// the item's attempt counter. Upstream outages surface as batch-aborting
// errors so the remaining items keep their flags untouched.
package enrich
